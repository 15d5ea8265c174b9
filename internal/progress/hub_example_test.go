package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
)

type resultCounter map[crawler.ItemResult]int

func (c resultCounter) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		if evt.Stage == StageItemDone {
			c[evt.Result]++
		}
	}
	return nil
}

func (resultCounter) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit counts item results through a custom sink.
func ExampleHub_Emit() {
	counts := resultCounter{}
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 8, MaxBatchWait: time.Second}, counts)

	ts := time.Unix(0, 0)
	for _, r := range []crawler.ItemResult{crawler.ItemNew, crawler.ItemNew, crawler.ItemSkipped} {
		hub.Emit(Event{JobID: "run-1", Source: "hrge", TS: ts, Stage: StageItemDone, Result: r})
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("new=%d skipped=%d\n", counts[crawler.ItemNew], counts[crawler.ItemSkipped])
	// Output:
	// new=2 skipped=1
}
