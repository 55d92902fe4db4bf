package session

import (
	"context"
	"sync"
)

// threadLocks serializes turns per thread. Entries are refcounted and dropped
// once no turn holds or waits on them.
type threadLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the thread is free or ctx is done.
func (l *threadLocks) acquire(ctx context.Context, threadID string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[threadID]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[threadID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(threadID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.unref(threadID, e)
		})
	}, nil
}

func (l *threadLocks) unref(threadID string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, threadID)
	}
}

func (l *threadLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
