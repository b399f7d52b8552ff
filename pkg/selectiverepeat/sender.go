// Package selectiverepeat implements the Selective-Repeat ARQ sender and receiver.
package selectiverepeat

import (
	"time"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/denisstrizhkin/network-labs/pkg/arq"
	"github.com/denisstrizhkin/network-labs/pkg/pipe"
)

var log = logging.MustGetLogger("selectiverepeat")

type slot struct {
	seg      arq.Segment
	acked    bool
	lastSent time.Time
}

// Sender is the Selective-Repeat sending side. Every in-flight segment has its
// own retransmission timer.
type Sender struct {
	tx   *pipe.Tx[arq.Segment]
	rx   *pipe.Rx[arq.SeqNum]
	conf arq.Config
	log  *logging.Logger

	counters arq.Counters

	base   arq.SeqNum
	window []slot
}

// NewSender constructs a Sender that writes segments to tx and reads acks from rx.
func NewSender(tx *pipe.Tx[arq.Segment], rx *pipe.Rx[arq.SeqNum], conf arq.Config) *Sender {
	return &Sender{
		tx:   tx,
		rx:   rx,
		conf: conf,
		log:  log,
	}
}

// SetLogger replaces the package logger.
func (s *Sender) SetLogger(l *logging.Logger) { s.log = l }

func (s *Sender) reset(total, windowSize int) {
	s.counters.Reset(total)
	s.base = 0
	s.window = make([]slot, 0, windowSize)
}

func (s *Sender) windowEnd(windowSize, total int) arq.SeqNum {
	end := int(s.base) + windowSize
	if end > total {
		end = total
	}
	return arq.SeqNum(end)
}

// Send delivers message, keeping at most windowSize segments unacknowledged.
func (s *Sender) Send(message string, windowSize int) error {
	if windowSize < 1 {
		return errors.Wrapf(arq.ErrInvalidWindow, "got %d", windowSize)
	}

	data := []byte(message)
	total := arq.SegmentCount(len(data), s.conf.SegmentSize)
	s.reset(total, windowSize)

	rto := s.conf.RoundTimeout.Std()
	start := time.Now()
	for s.counters.AckedCount() < total {
		if time.Since(start) > s.conf.TransferTimeout.Std() {
			return errors.Wrapf(arq.ErrTransferTimeout, "base %d, %d of %d acked",
				s.base, s.counters.AckedCount(), total)
		}

		end := s.windowEnd(windowSize, total)
		for seq := s.base + arq.SeqNum(len(s.window)); seq < end; seq++ {
			s.window = append(s.window, slot{seg: arq.MakeSegment(data, seq, total, s.conf.SegmentSize)})
		}

		for i := range s.window {
			sl := &s.window[i]
			if sl.acked {
				continue
			}
			if !sl.lastSent.IsZero() && time.Since(sl.lastSent) <= rto {
				continue
			}
			if err := s.transmit(sl); err != nil {
				return err
			}
		}

		if err := s.drainAcks(); err != nil {
			return err
		}
	}

	s.log.Debugf("Sent %d segments: %s", total, s.counters.Snapshot())
	return nil
}

func (s *Sender) transmit(sl *slot) error {
	if err := s.tx.Send(sl.seg); err != nil {
		return errors.Wrapf(arq.ErrChannelClosed, "send segment %d, base %d", sl.seg.Seq, s.base)
	}
	if !sl.lastSent.IsZero() {
		s.log.Debugf("Retransmit %s", sl.seg)
	} else {
		s.log.Debugf("Send %s", sl.seg)
	}
	sl.lastSent = time.Now()
	s.counters.Sent()
	return nil
}

// drainAcks consumes acks for up to one poll interval. It returns early once
// the window slid, so that newly admitted segments go out without delay.
func (s *Sender) drainAcks() error {
	deadline := time.Now().Add(s.conf.PollInterval.Std())
	for len(s.window) > 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}

		ack, err := s.rx.RecvTimeout(remaining)
		if err == pipe.ErrTimeout {
			return nil
		}
		if err != nil {
			return errors.Wrapf(arq.ErrChannelClosed, "receive ack, base %d", s.base)
		}

		if s.ack(ack) {
			return nil
		}
	}
	return nil
}

// ack marks n as acknowledged and slides the window past the acknowledged
// prefix. It reports whether the window moved.
func (s *Sender) ack(n arq.SeqNum) bool {
	if n < s.base || n >= s.base+arq.SeqNum(len(s.window)) {
		return false
	}

	sl := &s.window[n-s.base]
	if !sl.acked {
		sl.acked = true
		acked := s.counters.Acked()
		s.log.Debugf("Ack %d, %d of %d", n, acked, s.counters.Snapshot().Total)
	}

	slid := false
	for len(s.window) > 0 && s.window[0].acked {
		s.window = s.window[1:]
		s.base = s.counters.Advance()
		slid = true
	}
	return slid
}

// EfficiencyCoefficient returns the number of segments of the last message
// divided by the number of transmissions it took.
func (s *Sender) EfficiencyCoefficient() float64 {
	return s.counters.Snapshot().Efficiency()
}

// Stats returns the sender counters.
func (s *Sender) Stats() arq.Stats {
	return s.counters.Snapshot()
}

// Base returns the oldest unacknowledged sequence number. It is safe to call
// concurrently with Send.
func (s *Sender) Base() arq.SeqNum {
	return s.counters.Base()
}
