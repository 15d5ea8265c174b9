package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/progress"
)

func TestPrometheusSinkRecordsRun(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{JobID: "j1", Source: "jobsge", TS: now, Stage: progress.StageRunStart},
		{JobID: "j1", Source: "jobsge", TS: now, Stage: progress.StageRunStart},
		{JobID: "j1", Source: "jobsge", TS: now, Stage: progress.StageItemDone, Result: crawler.ItemNew},
		{JobID: "j1", Source: "jobsge", TS: now, Stage: progress.StageItemDone, Result: crawler.ItemNew},
		{JobID: "j1", Source: "jobsge", TS: now, Stage: progress.StageItemDone, Result: crawler.ItemSkipped},
		{JobID: "j1", Source: "jobsge", TS: now, Stage: progress.StagePartitionDone, Partition: "tbilisi/it"},
		{JobID: "j1", Source: "jobsge", TS: now, Stage: progress.StagePartitionDone, Partition: "adjara/it", Note: "boom"},
		{JobID: "j1", Source: "jobsge", TS: now, Stage: progress.StageRunDone, Status: crawler.JobStatusCompleted, Dur: 90 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsStarted.WithLabelValues("jobsge")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive.WithLabelValues("jobsge")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.items.WithLabelValues("jobsge", "new")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.items.WithLabelValues("jobsge", "skipped")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.partitions.WithLabelValues("jobsge", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsFinished.WithLabelValues("jobsge", "completed")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "crawler_run_duration_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
