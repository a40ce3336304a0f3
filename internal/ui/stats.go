package ui

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/brogergvhs/mangapipe/internal/util"
)

// Stats accumulates totals across concurrently downloaded chapters.
type Stats struct {
	TotalImages   atomic.Int64
	TotalBytes    atomic.Int64
	TotalChapters atomic.Int64
	Failed        atomic.Int64
}

func (s *Stats) Record(pages int, bytes int64) {
	s.TotalChapters.Add(1)
	s.TotalImages.Add(int64(pages))
	s.TotalBytes.Add(bytes)
}

func (s *Stats) Summary(elapsed time.Duration) string {
	return fmt.Sprintf("%d chapters, %d pages, %s in %s (%d failed)",
		s.TotalChapters.Load(), s.TotalImages.Load(), util.Human(s.TotalBytes.Load()),
		elapsed.Round(time.Second), s.Failed.Load())
}
