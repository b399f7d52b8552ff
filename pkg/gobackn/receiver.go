package gobackn

import (
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/denisstrizhkin/network-labs/pkg/arq"
	"github.com/denisstrizhkin/network-labs/pkg/pipe"
)

// Receiver is the Go-Back-N receiving side.
type Receiver struct {
	tx   *pipe.Tx[arq.SeqNum]
	rx   *pipe.Rx[arq.Segment]
	conf arq.Config
	log  *logging.Logger

	expected arq.SeqNum
}

// NewReceiver constructs a Receiver that reads segments from rx and writes acks to tx.
func NewReceiver(tx *pipe.Tx[arq.SeqNum], rx *pipe.Rx[arq.Segment], conf arq.Config) *Receiver {
	return &Receiver{
		tx:   tx,
		rx:   rx,
		conf: conf,
		log:  log,
	}
}

// SetLogger replaces the package logger.
func (r *Receiver) SetLogger(l *logging.Logger) { r.log = l }

// Read assembles one message. After the last segment is delivered the
// receiver keeps re-acknowledging duplicates until the link has been quiet
// for Config.Linger.
func (r *Receiver) Read() (string, error) {
	r.expected = 0

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
			return "", errors.Wrapf(arq.ErrReadTimeout, "expecting segment %d", r.expected)
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
			r.log.Debugf("Re-ack duplicate %d", seg.Seq)
			if err := r.sendAck(seg.Seq); err != nil {
				if finished {
					break
				}
				return "", err
			}
			continue
		}
		if seg.Seq > r.expected {
			r.log.Debugf("Drop out of order %d, expecting %d", seg.Seq, r.expected)
			continue
		}

		if err := arq.CheckPosition(seg.Seq, seg.Position); err != nil {
			return "", err
		}
		data = append(data, seg.Data...)
		if err := r.sendAck(r.expected); err != nil {
			return "", err
		}
		r.log.Debugf("Deliver %s", seg)
		r.expected++

		if seg.Position == arq.Last {
			finished = true
			lastActivity = time.Now()
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

// Expected returns the next sequence number the receiver will accept.
// It must not be called concurrently with Read.
func (r *Receiver) Expected() arq.SeqNum { return r.expected }
