package selectiverepeat

import (
	"time"
	"unicode/utf8"

	"github.com/google/btree"
	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/denisstrizhkin/network-labs/pkg/arq"
	"github.com/denisstrizhkin/network-labs/pkg/pipe"
)

const bufferDegree = 8

func segmentLess(a, b arq.Segment) bool { return a.Seq < b.Seq }

// Receiver is the Selective-Repeat receiving side. Segments inside the receive
// window are acknowledged and buffered even when they arrive out of order.
type Receiver struct {
	tx         *pipe.Tx[arq.SeqNum]
	rx         *pipe.Rx[arq.Segment]
	windowSize int
	conf       arq.Config
	log        *logging.Logger

	expected arq.SeqNum
	buffer   *btree.BTreeG[arq.Segment]
}

// NewReceiver constructs a Receiver with a receive window of windowSize segments.
func NewReceiver(tx *pipe.Tx[arq.SeqNum], rx *pipe.Rx[arq.Segment], windowSize int, conf arq.Config) *Receiver {
	if windowSize < 1 {
		windowSize = 1
	}
	return &Receiver{
		tx:         tx,
		rx:         rx,
		windowSize: windowSize,
		conf:       conf,
		log:        log,
		buffer:     btree.NewG[arq.Segment](bufferDegree, segmentLess),
	}
}

// SetLogger replaces the package logger.
func (r *Receiver) SetLogger(l *logging.Logger) { r.log = l }

func (r *Receiver) windowEnd() arq.SeqNum {
	return r.expected + arq.SeqNum(r.windowSize)
}

// Read assembles one message. Once the last segment is delivered the receiver
// lingers, re-acknowledging retransmissions, until the link has been quiet
// for Config.Linger.
func (r *Receiver) Read() (string, error) {
	r.expected = 0
	r.buffer.Clear(false)

	var (
		data         []byte
		finished     bool
		lastActivity time.Time
		start        = time.Now()
		linger       = r.conf.Linger.Std()
	)

	for {
		if finished && time.Since(lastActivity) >= linger {
			break
		}
		if time.Since(start) > r.conf.TransferTimeout.Std() {
			if finished {
				break
			}
			return "", errors.Wrapf(arq.ErrReadTimeout, "expecting segment %d, %d buffered",
				r.expected, r.buffer.Len())
		}

		wait := r.conf.RoundTimeout.Std()
		if finished {
			wait = linger - time.Since(lastActivity)
		}

		seg, err := r.rx.RecvTimeout(wait)
		if err == pipe.ErrTimeout {
			continue
		}
		if err != nil {
			if finished {
				break
			}
			return "", errors.Wrapf(arq.ErrChannelClosed, "expecting segment %d", r.expected)
		}
		if finished {
			lastActivity = time.Now()
		}

		if seg.Seq < r.expected {
			r.log.Debugf("Re-ack delivered %d", seg.Seq)
			if err := r.sendAck(seg.Seq); err != nil {
				if finished {
					break
				}
				return "", err
			}
			continue
		}
		if seg.Seq >= r.windowEnd() {
			r.log.Debugf("Drop %d outside window [%d, %d)", seg.Seq, r.expected, r.windowEnd())
			continue
		}

		if err := r.sendAck(seg.Seq); err != nil {
			return "", err
		}
		if !r.buffer.Has(seg) {
			if err := arq.CheckPosition(seg.Seq, seg.Position); err != nil {
				return "", err
			}
			r.buffer.ReplaceOrInsert(seg)
		}

		for {
			next, ok := r.buffer.Min()
			if !ok || next.Seq != r.expected {
				break
			}
			r.buffer.DeleteMin()
			data = append(data, next.Data...)
			r.log.Debugf("Deliver %s", next)
			r.expected++

			if next.Position == arq.Last {
				finished = true
				lastActivity = time.Now()
			}
		}
	}

	if !utf8.Valid(data) {
		return "", errors.Wrapf(arq.ErrEncoding, "%d bytes", len(data))
	}
	return string(data), nil
}

func (r *Receiver) sendAck(n arq.SeqNum) error {
	if err := r.tx.Send(n); err != nil {
		return errors.Wrapf(arq.ErrChannelClosed, "send ack %d", n)
	}
	return nil
}

// Expected returns the next sequence number to be delivered.
// It must not be called concurrently with Read.
func (r *Receiver) Expected() arq.SeqNum { return r.expected }

// Buffered returns the number of out-of-order segments held.
// It must not be called concurrently with Read.
func (r *Receiver) Buffered() int { return r.buffer.Len() }
