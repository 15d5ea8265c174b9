package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/runner"
)

type fakeRunner struct {
	mu       sync.Mutex
	requests []runner.Request
	failOn   string
	block    chan struct{}
}

func (f *fakeRunner) Run(_ context.Context, req runner.Request) (crawler.CrawlJob, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if req.Source == f.failOn {
		return crawler.CrawlJob{}, errors.New("boom")
	}
	return crawler.CrawlJob{ID: "job-" + req.Source, Status: crawler.JobStatusCompleted}, nil
}

func (f *fakeRunner) calls() []runner.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Request(nil), f.requests...)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Interval: time.Hour}, nil, nil)
	require.Error(t, err)
	_, err = New(Config{}, &fakeRunner{}, nil)
	require.Error(t, err)
}

func TestTickRunsEverySourceWithRegionFilter(t *testing.T) {
	fr := &fakeRunner{failOn: "jobsge"}
	s, err := New(Config{
		Interval: time.Hour,
		Sources:  []string{"jobsge", "hrge"},
		Regions:  []string{"adjara", "tbilisi"},
	}, fr, nil)
	require.NoError(t, err)

	s.Tick(context.Background())

	calls := fr.calls()
	require.Len(t, calls, 2)
	require.Equal(t, "jobsge", calls[0].Source)
	require.Equal(t, "hrge", calls[1].Source)
	for _, req := range calls {
		require.Equal(t, crawler.JobKindScheduled, req.Kind)
		require.Equal(t, "scheduler", req.TriggeredBy)
		require.Equal(t, []crawler.Partition{{Region: "adjara"}, {Region: "tbilisi"}}, req.Partitions)
	}
}

func TestTickWithoutRegionsRequestsEverything(t *testing.T) {
	fr := &fakeRunner{}
	s, err := New(Config{Interval: time.Hour, Sources: []string{"hrge"}}, fr, nil)
	require.NoError(t, err)

	s.Tick(context.Background())
	require.Nil(t, fr.calls()[0].Partitions)
}

func TestTickStopsOnCancelledContext(t *testing.T) {
	fr := &fakeRunner{}
	s, err := New(Config{Interval: time.Hour, Sources: []string{"jobsge", "hrge"}}, fr, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Tick(ctx)
	require.Empty(t, fr.calls())
}

func TestRunOnStartAndOverlapSkipped(t *testing.T) {
	fr := &fakeRunner{block: make(chan struct{})}
	s, err := New(Config{Interval: time.Hour, Sources: []string{"hrge"}, RunOnStart: true}, fr, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return len(fr.calls()) == 1 }, time.Second, 5*time.Millisecond)

	// A tick while the first cycle is still running is dropped.
	s.job.Run()
	require.Len(t, fr.calls(), 1)

	close(fr.block)
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
}
