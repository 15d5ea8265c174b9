package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
)

var _ crawler.Clock = New()

func TestNowIsUTCAndCurrent(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	got := New().Now()

	require.Equal(t, time.UTC, got.Location())
	assert.WithinDuration(t, before.Add(time.Second), got, 2*time.Second)
}

func TestNowDoesNotGoBackwards(t *testing.T) {
	t.Parallel()

	clk := New()
	first := clk.Now()
	assert.False(t, clk.Now().Before(first))
}
