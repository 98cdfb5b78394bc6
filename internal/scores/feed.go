package scores

import (
	"sync"

	"github.com/KevinAiCloud/InterviewAI/internal/db/models"
)

// Feed fans newly recorded scores out to live subscribers.
type Feed struct {
	mu     sync.Mutex
	subs   map[uint64]chan models.Score
	nextID uint64
	closed bool
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]chan models.Score)}
}

// Subscribe returns a channel of scores published from now on. A subscriber
// that falls more than buffer scores behind misses the overflow. cancel
// closes the channel and is safe to call more than once.
func (f *Feed) Subscribe(buffer int) (<-chan models.Score, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.Score, buffer)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	f.nextID++
	id := f.nextID
	f.subs[id] = ch

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
}

// Publish delivers score to every subscriber without blocking.
func (f *Feed) Publish(score models.Score) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- score:
		default:
		}
	}
}

// Close ends every subscription. Later subscriptions are closed immediately.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
