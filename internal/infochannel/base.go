// internal/infochannel/base.go
package infochannel

import (
	"sync"
)

// Base is the collection of channels gathered for one diagnosis attempt. It
// keeps insertion order and an index by type. Channel types must be set
// before Add; retagging an added channel is not reflected in the index.
type Base struct {
	channels []Channel
	byType   map[Type][]Channel

	mu       sync.Mutex
	readings map[Channel]*reading
}

type reading struct {
	once  sync.Once
	lines []string
	err   error
}

// NewBase returns a Base holding the given channels.
func NewBase(channels ...Channel) *Base {
	b := &Base{
		byType:   make(map[Type][]Channel),
		readings: make(map[Channel]*reading),
	}
	for _, ch := range channels {
		b.Add(ch)
	}
	return b
}

// Add appends a channel. Nil channels are ignored.
func (b *Base) Add(ch Channel) {
	if ch == nil {
		return
	}
	b.channels = append(b.channels, ch)
	b.byType[ch.Type()] = append(b.byType[ch.Type()], ch)
}

// Len returns the number of channels.
func (b *Base) Len() int { return len(b.channels) }

// Channels returns every channel in insertion order.
func (b *Base) Channels() []Channel {
	return append([]Channel{}, b.channels...)
}

// OfType returns the channels tagged exactly t, in insertion order.
func (b *Base) OfType(t Type) []Channel {
	return b.byType[t]
}

// Compatible returns the channels a circumstance declared for t may read: all
// channels when t is ANY, otherwise those tagged t or ANY. Insertion order is
// preserved.
func (b *Base) Compatible(t Type) []Channel {
	if t == TypeAny {
		return b.Channels()
	}
	exact, wildcard := b.byType[t], b.byType[TypeAny]
	if len(wildcard) == 0 {
		return exact
	}
	out := make([]Channel, 0, len(exact)+len(wildcard))
	for _, ch := range b.channels {
		if typ := ch.Type(); typ == t || typ == TypeAny {
			out = append(out, ch)
		}
	}
	return out
}

// Read opens ch at most once for the lifetime of the Base and returns the
// memoized lines or error. Safe for concurrent use.
func (b *Base) Read(ch Channel) ([]string, error) {
	b.mu.Lock()
	r, ok := b.readings[ch]
	if !ok {
		r = &reading{}
		b.readings[ch] = r
	}
	b.mu.Unlock()

	r.once.Do(func() {
		r.lines, r.err = ch.Open()
	})
	return r.lines, r.err
}
