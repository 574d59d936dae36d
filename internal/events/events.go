// Package events broadcasts player state changes to independent subscribers.
package events

import "sync"

// DefaultCapacity is the queue length of each subscriber.
const DefaultCapacity = 50

// Kind identifies which part of the player state changed.
type Kind int

const (
	Playback Kind = iota
	Loop
	Shuffle
	Volume
	Song
	NextSong
	Tracklist
)

// Kinds lists every event kind in declaration order.
var Kinds = []Kind{Playback, Loop, Shuffle, Volume, Song, NextSong, Tracklist}

func (k Kind) String() string {
	switch k {
	case Playback:
		return "Playback"
	case Loop:
		return "Loop"
	case Shuffle:
		return "Shuffle"
	case Volume:
		return "Volume"
	case Song:
		return "Song"
	case NextSong:
		return "NextSong"
	case Tracklist:
		return "Tracklist"
	default:
		return "Unknown"
	}
}

// Bus fans out events to subscribers, each with its own bounded queue.
//
// Publish never blocks. When a subscriber's queue is full its oldest event is
// discarded, so a slow reader loses events but sees the rest in order.
type Bus struct {
	capacity int

	mu     sync.Mutex
	subs   []chan Kind
	closed bool
}

// NewBus creates a bus whose subscribers buffer up to capacity events.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{capacity: capacity}
}

// Subscribe returns a new receiver. It is closed by Unsubscribe or Close.
func (b *Bus) Subscribe() <-chan Kind {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Kind, b.capacity)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe detaches and closes a receiver returned by Subscribe.
func (b *Bus) Unsubscribe(ch <-chan Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Publish delivers k to every subscriber.
func (b *Bus) Publish(k Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- k:
			continue
		default:
		}
		// Queue full: make room by dropping the oldest event.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- k:
		default:
		}
	}
}

// Subscribers returns the number of attached receivers.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every receiver. Later subscribers get a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
