package arq

import (
	"fmt"

	"go.uber.org/atomic"
)

// Stats is a snapshot of a sender's counters.
type Stats struct {
	Base  SeqNum `json:"base"`
	Total int    `json:"total"`
	Sent  int    `json:"sent"`
	Acked int    `json:"acked"`
}

// Efficiency returns Total/Sent, the share of transmissions that were not
// retransmissions. It is 0 before anything was sent.
func (s Stats) Efficiency() float64 {
	if s.Sent == 0 {
		return 0
	}
	return float64(s.Total) / float64(s.Sent)
}

// Retransmissions returns how many transmissions were repeats.
func (s Stats) Retransmissions() int {
	if s.Sent < s.Total {
		return 0
	}
	return s.Sent - s.Total
}

func (s Stats) String() string {
	return fmt.Sprintf("base=%d total=%d sent=%d acked=%d efficiency=%.3f",
		s.Base, s.Total, s.Sent, s.Acked, s.Efficiency())
}

// Counters are the sender counters. They are written by the sending goroutine
// only and may be read from any goroutine.
type Counters struct {
	base  atomic.Uint32
	total atomic.Int64
	sent  atomic.Int64
	acked atomic.Int64
}

// Reset prepares the counters for a message of total segments.
func (c *Counters) Reset(total int) {
	c.base.Store(0)
	c.total.Store(int64(total))
	c.sent.Store(0)
	c.acked.Store(0)
}

// Sent records one transmission.
func (c *Counters) Sent() { c.sent.Inc() }

// Acked records one newly acknowledged segment and returns the acked count.
func (c *Counters) Acked() int { return int(c.acked.Inc()) }

// AckedCount returns the number of acknowledged segments.
func (c *Counters) AckedCount() int { return int(c.acked.Load()) }

// Advance moves the window base one segment forward.
func (c *Counters) Advance() SeqNum { return SeqNum(c.base.Inc()) }

// Base returns the window base.
func (c *Counters) Base() SeqNum { return SeqNum(c.base.Load()) }

// Snapshot returns the current values.
func (c *Counters) Snapshot() Stats {
	return Stats{
		Base:  SeqNum(c.base.Load()),
		Total: int(c.total.Load()),
		Sent:  int(c.sent.Load()),
		Acked: int(c.acked.Load()),
	}
}
