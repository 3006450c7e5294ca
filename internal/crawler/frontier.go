package crawler

import (
	"context"
	"sync"
)

// frontierItem is a discovered URL awaiting a visit.
type frontierItem struct {
	url   string
	depth int
}

// frontier is a LIFO work list shared by traversal workers. Pop blocks
// while the list is empty but some popped item is still being processed,
// since that item may push more links. It reports exhaustion once the list
// is empty and nothing is in flight.
type frontier struct {
	mu       sync.Mutex
	items    []frontierItem
	inflight int
	wake     chan struct{}
}

func newFrontier(seed frontierItem) *frontier {
	return &frontier{
		items: []frontierItem{seed},
		wake:  make(chan struct{}),
	}
}

// Push adds items so that the first one is popped next.
func (f *frontier) Push(items ...frontierItem) {
	if len(items) == 0 {
		return
	}
	f.mu.Lock()
	for i := len(items) - 1; i >= 0; i-- {
		f.items = append(f.items, items[i])
	}
	f.broadcastLocked()
	f.mu.Unlock()
}

// Pop returns the next item, or false when the frontier is exhausted or
// ctx is done. Every successful Pop must be paired with Done.
func (f *frontier) Pop(ctx context.Context) (frontierItem, bool) {
	for {
		f.mu.Lock()
		if n := len(f.items); n > 0 {
			item := f.items[n-1]
			f.items = f.items[:n-1]
			f.inflight++
			f.mu.Unlock()
			return item, true
		}
		if f.inflight == 0 {
			f.mu.Unlock()
			return frontierItem{}, false
		}
		wake := f.wake
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return frontierItem{}, false
		case <-wake:
		}
	}
}

// Done marks a popped item as fully processed.
func (f *frontier) Done() {
	f.mu.Lock()
	f.inflight--
	if f.inflight == 0 && len(f.items) == 0 {
		f.broadcastLocked()
	}
	f.mu.Unlock()
}

func (f *frontier) broadcastLocked() {
	close(f.wake)
	f.wake = make(chan struct{})
}

// visitTracker provides thread-safe visited URL tracking to prevent revisits.
type visitTracker interface {
	MarkIfNew(url string) bool
	Seen(url string) bool
}

type concurrentVisitTracker struct {
	seen sync.Map
}

func newConcurrentVisitTracker() *concurrentVisitTracker {
	return &concurrentVisitTracker{}
}

// MarkIfNew stores the URL if it has not been seen before and returns true.
func (t *concurrentVisitTracker) MarkIfNew(url string) bool {
	if url == "" {
		return false
	}
	_, loaded := t.seen.LoadOrStore(url, struct{}{})
	return !loaded
}

// Seen reports whether the URL was already marked.
func (t *concurrentVisitTracker) Seen(url string) bool {
	_, ok := t.seen.Load(url)
	return ok
}
