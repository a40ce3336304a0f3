package ui

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsSummary(t *testing.T) {
	var s Stats
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Record(10, 1024)
		}()
	}
	wg.Wait()
	s.Failed.Add(1)

	assert.Equal(t, "4 chapters, 40 pages, 4.00 KB in 3s (1 failed)", s.Summary(2600*time.Millisecond))
}

func TestProgressHandleWithoutOutput(t *testing.T) {
	pm := NewProgressManager(nil)
	h := pm.Register("ch 1")
	h.Update(1, 2, 100)
	h.MarkDone()
	h.Update(2, 2, 200)

	failed := pm.Register("ch 2")
	failed.Abort()
	failed.MarkDone()

	pm.Close()
}
