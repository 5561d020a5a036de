package rpc

import (
	"sync"

	"github.com/zeusync/zeusrpc/internal/core/wire"
)

// Consumer tracks outstanding calls by correlation id.
type Consumer struct {
	mu      sync.Mutex
	pending map[uint64]chan wire.Packet
	ids     func() uint64
}

func NewConsumer(ids func() uint64) *Consumer {
	if ids == nil {
		ids = NewCorrelationID
	}
	return &Consumer{
		pending: make(map[uint64]chan wire.Packet),
		ids:     ids,
	}
}

// Register reserves a correlation id unique among outstanding calls.
func (c *Consumer) Register() (uint64, <-chan wire.Packet) {
	ch := make(chan wire.Packet, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		id := c.ids()
		if _, taken := c.pending[id]; taken || id == 0 {
			continue
		}
		c.pending[id] = ch
		return id, ch
	}
}

// Forget drops an outstanding call without completing it.
func (c *Consumer) Forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Deliver completes the call matching p.CorrelationID. Each call completes at
// most once; unmatched packets are reported with false.
func (c *Consumer) Deliver(p wire.Packet) bool {
	c.mu.Lock()
	ch, ok := c.pending[p.CorrelationID]
	if ok {
		delete(c.pending, p.CorrelationID)
	}
	c.mu.Unlock()

	if ok {
		ch <- p
	}
	return ok
}

// Pending is the number of outstanding calls.
func (c *Consumer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
