package rtl433

import (
	"context"
	"sync"
)

// RecordingSweeper is a Sweeper that only records the names it was asked to
// sweep. Used in tests instead of killing system processes.
type RecordingSweeper struct {
	mu    sync.Mutex
	names []string
}

func (s *RecordingSweeper) Sweep(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	return nil
}

func (s *RecordingSweeper) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}
