package state

import (
	"errors"
	"net/netip"
	"time"
)

var ErrBufferFull = errors.New("buffer full")

// SendBufferEntry is an upper-layer packet waiting for a route
type SendBufferEntry struct {
	Payload     []byte
	Destination netip.Addr
	NextHeader  uint8
	EnqueuedAt  time.Time
}

// SendBuffer is a bounded FIFO of packets awaiting route discovery
type SendBuffer struct {
	clk     TimeSource
	maxLen  int
	timeout time.Duration
	entries []SendBufferEntry
}

func NewSendBuffer(clk TimeSource, cfg DsrCfg) *SendBuffer {
	return &SendBuffer{
		clk:     clk,
		maxLen:  cfg.MaxSendBuffLen,
		timeout: cfg.SendBufferTimeout,
	}
}

// Enqueue appends e. When the buffer is full the oldest entry is evicted and returned.
func (b *SendBuffer) Enqueue(e SendBufferEntry) (SendBufferEntry, bool) {
	e.EnqueuedAt = b.clk.Now()
	var evicted SendBufferEntry
	full := len(b.entries) >= b.maxLen
	if full {
		evicted = b.entries[0]
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, e)
	return evicted, full
}

// Dequeue removes and returns every unexpired entry for dst, oldest first
func (b *SendBuffer) Dequeue(dst netip.Addr) []SendBufferEntry {
	now := b.clk.Now()
	out := make([]SendBufferEntry, 0)
	b.filter(func(e SendBufferEntry) bool {
		if e.Destination != dst {
			return true
		}
		if now.Sub(e.EnqueuedAt) <= b.timeout {
			out = append(out, e)
		}
		return false
	})
	return out
}

func (b *SendBuffer) Find(dst netip.Addr) bool {
	for _, e := range b.entries {
		if e.Destination == dst {
			return true
		}
	}
	return false
}

// Destinations lists the buffered destinations in order of their oldest packet
func (b *SendBuffer) Destinations() []netip.Addr {
	out := make([]netip.Addr, 0)
	seen := make(map[netip.Addr]struct{})
	for _, e := range b.entries {
		if _, ok := seen[e.Destination]; !ok {
			seen[e.Destination] = struct{}{}
			out = append(out, e.Destination)
		}
	}
	return out
}

// DropPacketWithDst removes and returns every entry for dst
func (b *SendBuffer) DropPacketWithDst(dst netip.Addr) []SendBufferEntry {
	out := make([]SendBufferEntry, 0)
	b.filter(func(e SendBufferEntry) bool {
		if e.Destination == dst {
			out = append(out, e)
			return false
		}
		return true
	})
	return out
}

// Purge removes and returns the entries older than SendBufferTimeout
func (b *SendBuffer) Purge() []SendBufferEntry {
	now := b.clk.Now()
	out := make([]SendBufferEntry, 0)
	b.filter(func(e SendBufferEntry) bool {
		if now.Sub(e.EnqueuedAt) > b.timeout {
			out = append(out, e)
			return false
		}
		return true
	})
	return out
}

func (b *SendBuffer) Len() int {
	return len(b.entries)
}

func (b *SendBuffer) filter(keep func(e SendBufferEntry) bool) {
	kept := b.entries[:0]
	for _, e := range b.entries {
		if keep(e) {
			kept = append(kept, e)
		}
	}
	clear(b.entries[len(kept):])
	b.entries = kept
}
