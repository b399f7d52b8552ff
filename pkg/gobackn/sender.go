// Package gobackn implements the Go-Back-N ARQ sender and receiver.
//
// The receiver accepts only the next expected segment and re-acknowledges
// duplicates. The sender retransmits its whole window after a round without
// progress.
package gobackn

import (
	"time"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/denisstrizhkin/network-labs/pkg/arq"
	"github.com/denisstrizhkin/network-labs/pkg/pipe"
)

var log = logging.MustGetLogger("gobackn")

// Sender is the Go-Back-N sending side.
type Sender struct {
	tx   *pipe.Tx[arq.Segment]
	rx   *pipe.Rx[arq.SeqNum]
	conf arq.Config
	log  *logging.Logger

	counters arq.Counters

	// Per-call state, owned by the goroutine running Send.
	base   arq.SeqNum
	next   arq.SeqNum
	window []arq.Segment
	marks  []bool
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
	s.next = 0
	s.window = make([]arq.Segment, 0, windowSize)
	s.marks = make([]bool, 0, windowSize)
}

// Send delivers message, keeping at most windowSize segments unacknowledged.
func (s *Sender) Send(message string, windowSize int) error {
	if windowSize < 1 {
		return errors.Wrapf(arq.ErrInvalidWindow, "got %d", windowSize)
	}

	data := []byte(message)
	total := arq.SegmentCount(len(data), s.conf.SegmentSize)
	s.reset(total, windowSize)

	start := time.Now()
	for s.counters.AckedCount() < total {
		if time.Since(start) > s.conf.TransferTimeout.Std() {
			return errors.Wrapf(arq.ErrTransferTimeout, "base %d, %d of %d acked",
				s.base, s.counters.AckedCount(), total)
		}

		end := s.windowEnd(windowSize, total)
		for seq := s.base + arq.SeqNum(len(s.window)); seq < end; seq++ {
			s.window = append(s.window, arq.MakeSegment(data, seq, total, s.conf.SegmentSize))
			s.marks = append(s.marks, false)
		}

		for ; s.next < end; s.next++ {
			if err := s.transmit(s.window[s.next-s.base]); err != nil {
				return err
			}
		}

		progressed, err := s.awaitAcks()
		if err != nil {
			return err
		}
		if !progressed {
			s.log.Debugf("No progress in %s, going back to %d", s.conf.RoundTimeout, s.base)
			s.next = s.base
		}
	}

	s.log.Debugf("Sent %d segments: %s", total, s.counters.Snapshot())
	return nil
}

func (s *Sender) windowEnd(windowSize, total int) arq.SeqNum {
	end := int(s.base) + windowSize
	if end > total {
		end = total
	}
	return arq.SeqNum(end)
}

func (s *Sender) transmit(seg arq.Segment) error {
	if err := s.tx.Send(seg); err != nil {
		return errors.Wrapf(arq.ErrChannelClosed, "send segment %d, base %d", seg.Seq, s.base)
	}
	s.counters.Sent()
	s.log.Debugf("Send %s", seg)
	return nil
}

// awaitAcks waits up to one round for the window to slide. Once it slid, acks
// that are already queued are consumed without blocking.
func (s *Sender) awaitAcks() (bool, error) {
	deadline := time.Now().Add(s.conf.RoundTimeout.Std())
	progressed := false

	for {
		var (
			ack arq.SeqNum
			err error
		)
		if progressed {
			var ok bool
			// A closed ack pipe is reported by the next blocking wait.
			if ack, ok, err = s.rx.TryRecv(); err != nil || !ok {
				return true, nil
			}
		} else {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return false, nil
			}
			ack, err = s.rx.RecvTimeout(remaining)
			if err == pipe.ErrTimeout {
				return false, nil
			}
		}
		if err != nil {
			return progressed, errors.Wrapf(arq.ErrChannelClosed, "receive ack, base %d", s.base)
		}

		if s.ack(ack) {
			progressed = true
		}
	}
}

// ack marks n and slides the window over the acknowledged prefix. It reports
// whether the window moved.
func (s *Sender) ack(n arq.SeqNum) bool {
	if n < s.base || n >= s.base+arq.SeqNum(len(s.window)) {
		return false
	}
	s.marks[n-s.base] = true

	slid := false
	for len(s.marks) > 0 && s.marks[0] {
		s.window = s.window[1:]
		s.marks = s.marks[1:]
		s.base = s.counters.Advance()
		acked := s.counters.Acked()
		slid = true
		s.log.Debugf("Ack %d, %d of %d", s.base-1, acked, s.counters.Snapshot().Total)
	}
	if s.next < s.base {
		s.next = s.base
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
