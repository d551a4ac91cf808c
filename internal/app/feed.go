package app

import "sync"

// ResultFeed fans finished attempts out to live subscribers (the admin results socket).
type ResultFeed struct {
	mu          sync.Mutex
	subscribers map[chan Result]struct{}
}

func NewResultFeed() *ResultFeed {
	return &ResultFeed{subscribers: make(map[chan Result]struct{})}
}

// Subscribe returns a channel that receives every published result.
// The caller must invoke the returned cancel function to avoid leaks.
func (f *ResultFeed) Subscribe() (<-chan Result, func()) {
	ch := make(chan Result, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers r to every subscriber without blocking. A subscriber whose
// buffer is full loses its oldest pending result.
func (f *ResultFeed) Publish(r Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- r:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- r
		}
	}
}

// Subscribers reports how many listeners are attached.
func (f *ResultFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}
