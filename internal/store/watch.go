package store

import (
	"context"

	"github.com/hanpama/gqlcache/internal/record"
)

type watcher struct {
	ch     chan record.ChangeSet
	done   chan struct{}
	closed bool
}

// stop closes the channel once. Callers hold watchMu.
func (w *watcher) stop() {
	if !w.closed {
		w.closed = true
		close(w.ch)
		close(w.done)
	}
}

// Watch returns a channel that receives every published change set until ctx
// is done or the store is disposed; then the channel is closed. Delivery never
// blocks the writer: when the channel's buffer is full the change set is
// dropped and logged.
func (s *Store) Watch(ctx context.Context, buffer int) <-chan record.ChangeSet {
	w := &watcher{ch: make(chan record.ChangeSet, buffer), done: make(chan struct{})}

	s.watchMu.Lock()
	if s.watchClosed {
		s.watchMu.Unlock()
		close(w.ch)
		return w.ch
	}
	s.watchSeq++
	id := s.watchSeq
	s.watchers[id] = w
	s.watchMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-w.done:
			return
		}
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		w.stop()
		delete(s.watchers, id)
	}()
	return w.ch
}

func (s *Store) notifyWatchers(changed record.ChangeSet) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for id, w := range s.watchers {
		if w.closed {
			continue
		}
		select {
		case w.ch <- changed.Clone():
		default:
			s.logger.Warn("watcher is not keeping up, dropping change set", "watcher", id, "changed", changed.Len())
		}
	}
}

func (s *Store) closeWatchers() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.watchClosed = true
	for id, w := range s.watchers {
		w.stop()
		delete(s.watchers, id)
	}
}
