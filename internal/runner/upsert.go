package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tulashvilimindia/batumi.work/internal/content"
	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/fetch"
	"github.com/tulashvilimindia/batumi.work/internal/source"
	"github.com/tulashvilimindia/batumi.work/internal/store"
)

// outcome is the result of processing one posting.
type outcome struct {
	result     crawler.ItemResult
	reason     string
	errText    string
	statusCode int
	listingID  *int64
}

func skipped(reason string, listingID *int64) outcome {
	return outcome{result: crawler.ItemSkipped, reason: reason, listingID: listingID}
}

func failed(err error) outcome {
	return outcome{result: crawler.ItemFailed, errText: err.Error(), statusCode: fetch.StatusCode(err)}
}

func (rn *run) process(ctx context.Context, item source.Item) outcome {
	if item.Err != nil {
		if reason, ok := crawler.SkipReason(item.Err); ok {
			return skipped(reason, nil)
		}
		return failed(item.Err)
	}
	if item.Record == nil {
		return failed(errors.New("adapter returned no record"))
	}
	return rn.upsert(ctx, *item.Record)
}

// ArchivePath is where the raw detail page of a listing version is kept.
func ArchivePath(src, externalID, contentHash string) string {
	return fmt.Sprintf("%s/%s/%s.html", src, externalID, contentHash)
}

// ResolveCategory applies the classifier. An empty category takes the
// classifier's answer; a partition-asserted one is overridden only when the
// classifier is confident and disagrees. PartitionCategory is untouched.
func ResolveCategory(rec *crawler.JobRecord) {
	classified := content.ClassifyCategory(rec.Title+" "+rec.TitleEN, rec.Body+" "+rec.BodyEN)
	switch {
	case rec.Category == "":
		rec.Category = classified
	case classified != content.FallbackCategory && classified != rec.Category:
		rec.Category = classified
	}
}

// upsert applies one record to the listing store keyed by (source,
// external_id).
func (rn *run) upsert(ctx context.Context, rec crawler.JobRecord) outcome {
	if rec.ContentHash == "" {
		rec.ContentHash = content.ContentHash(rec.Title, rec.Body, rec.Company)
	}
	ResolveCategory(&rec)
	category, categoryID, ok := rn.lookups.Category(rec.Category)
	if !ok {
		return skipped(crawler.SkipNoCategory, nil)
	}
	rec.Category = category
	now := rn.r.now()
	incoming := crawler.Listing{
		JobRecord:   rec,
		Status:      crawler.ListingActive,
		CategoryID:  categoryID,
		RegionID:    rn.lookups.RegionID(rec.Region),
		FirstSeenAt: now,
		LastSeenAt:  now,
	}

	existing, err := rn.r.listings.FindListing(ctx, rec.Source, rec.ExternalID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		id, err := rn.r.listings.InsertListing(ctx, incoming)
		if errors.Is(err, store.ErrDuplicate) {
			// Lost an insert race with another run; apply as an update.
			existing, err = rn.r.listings.FindListing(ctx, rec.Source, rec.ExternalID)
			if err != nil {
				return failed(fmt.Errorf("reload after duplicate insert: %w", err))
			}
			return rn.refresh(ctx, existing, incoming)
		}
		if err != nil {
			return failed(err)
		}
		rn.archiveRaw(ctx, rec)
		return outcome{result: crawler.ItemNew, listingID: &id}
	case err != nil:
		return failed(err)
	default:
		return rn.refresh(ctx, existing, incoming)
	}
}

func (rn *run) refresh(ctx context.Context, existing, incoming crawler.Listing) outcome {
	id := existing.ID
	if existing.ContentHash == incoming.ContentHash {
		hints := crawler.ListingHints{
			Location:          incoming.Location,
			RegionID:          incoming.RegionID,
			PartitionCategory: incoming.PartitionCategory,
		}
		if err := rn.r.listings.TouchListing(ctx, id, incoming.LastSeenAt, hints); err != nil {
			return failed(err)
		}
		return skipped(crawler.SkipUnchangedContent, &id)
	}
	incoming.ID = id
	incoming.FirstSeenAt = existing.FirstSeenAt
	if err := rn.r.listings.OverwriteListing(ctx, incoming); err != nil {
		return failed(err)
	}
	rn.archiveRaw(ctx, incoming.JobRecord)
	return outcome{result: crawler.ItemUpdated, listingID: &id}
}

// archiveRaw stores the raw detail page. Failures never affect the item.
func (rn *run) archiveRaw(ctx context.Context, rec crawler.JobRecord) {
	if rn.r.archive == nil || len(rec.RawHTML) == 0 {
		return
	}
	path := ArchivePath(rec.Source, rec.ExternalID, rec.ContentHash)
	if _, err := rn.r.archive.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewReader(rec.RawHTML)); err != nil {
		rn.logger.Warn("archive raw page failed", zap.String("path", path), zap.Error(err))
	}
}
