// Package progress carries crawl run events from the orchestrator to
// pluggable sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageItemDone      Stage = "ITEM_DONE"
	StagePartitionDone Stage = "PARTITION_DONE"
	StageRunDone       Stage = "RUN_DONE"
)

// Event is one run milestone.
type Event struct {
	JobID  string
	Source string
	TS     time.Time
	Stage  Stage
	// Partition is the partition key for item and partition events.
	Partition  string
	ExternalID string
	// Result is set on item events.
	Result crawler.ItemResult
	// Status is the final job status on run-done events.
	Status crawler.JobStatus
	Dur    time.Duration
	// Note carries low-volume context such as a partition error.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.Source == "" {
		return errors.New("source is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StagePartitionDone:
	case StageItemDone:
		if e.Result == "" {
			return errors.New("item event requires result")
		}
	case StageRunDone:
		if e.Status == "" {
			return errors.New("run done requires status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
