// Package transfer runs one simulated message transfer: a sender and a
// receiver of the same ARQ variant connected by two pipes, with an optional
// lossy link in between.
package transfer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/denisstrizhkin/network-labs/internal/metrics"
	"github.com/denisstrizhkin/network-labs/pkg/arq"
	"github.com/denisstrizhkin/network-labs/pkg/gobackn"
	"github.com/denisstrizhkin/network-labs/pkg/lossylink"
	"github.com/denisstrizhkin/network-labs/pkg/pipe"
	"github.com/denisstrizhkin/network-labs/pkg/selectiverepeat"
)

// Link direction labels.
const (
	DirectionSegments = "segments"
	DirectionAcks     = "acks"
)

var log = logging.MustGetLogger("transfer")

// Params describe one transfer.
type Params struct {
	Protocol   arq.Protocol
	WindowSize int
	Loss       float64

	// Direct connects the endpoints without a lossy link.
	Direct bool
}

// Validate checks the window size and, unless the transfer is direct, the
// loss probability.
func (p Params) Validate() error {
	if p.WindowSize < 1 {
		return errors.Wrapf(arq.ErrInvalidWindow, "got %d", p.WindowSize)
	}
	if !p.Direct && (p.Loss < 0 || p.Loss > 1) {
		return errors.Wrapf(arq.ErrInvalidLoss, "got %v", p.Loss)
	}
	return nil
}

func (p Params) String() string {
	if p.Direct {
		return fmt.Sprintf("%s w=%d direct", p.Protocol, p.WindowSize)
	}
	return fmt.Sprintf("%s w=%d loss=%.2f", p.Protocol, p.WindowSize, p.Loss)
}

// Result is the outcome of a transfer.
type Result struct {
	ID       uuid.UUID
	Params   Params
	Received string
	Stats    arq.Stats
	Link     lossylink.Stats
	Duration time.Duration
	SendErr  error
	ReadErr  error

	// Reacked counts retransmissions acknowledged after the receiver returned.
	Reacked int
}

// Efficiency returns the sender efficiency coefficient.
func (r *Result) Efficiency() float64 { return r.Stats.Efficiency() }

// Err returns the read error if any, otherwise the send error.
func (r *Result) Err() error {
	if r.ReadErr != nil {
		return r.ReadErr
	}
	return r.SendErr
}

// Option configures Run.
type Option func(*options)

type options struct {
	seed         *int64
	recorder     metrics.Recorder
	linkRecorder metrics.LinkRecorder
	log          *logging.Logger
}

// WithSeed makes the link drops reproducible.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = &seed }
}

// WithRecorder records the transfer outcome.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithLinkRecorder records every link decision.
func WithLinkRecorder(r metrics.LinkRecorder) Option {
	return func(o *options) { o.linkRecorder = r }
}

// WithLogger sets the logger used by the transfer and both endpoints.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.log = l }
}

type endpoints struct {
	sender   arq.Sender
	receiver arq.Receiver
}

func newEndpoints(p Params, conf arq.Config, l *logging.Logger,
	segTx *pipe.Tx[arq.Segment], segRx *pipe.Rx[arq.Segment],
	ackTx *pipe.Tx[arq.SeqNum], ackRx *pipe.Rx[arq.SeqNum]) (*endpoints, error) {

	switch p.Protocol {
	case arq.GoBackN:
		s := gobackn.NewSender(segTx, ackRx, conf)
		r := gobackn.NewReceiver(ackTx, segRx, conf)
		if l != nil {
			s.SetLogger(l)
			r.SetLogger(l)
		}
		return &endpoints{s, r}, nil
	case arq.SelectiveRepeat:
		s := selectiverepeat.NewSender(segTx, ackRx, conf)
		r := selectiverepeat.NewReceiver(ackTx, segRx, p.WindowSize, conf)
		if l != nil {
			s.SetLogger(l)
			r.SetLogger(l)
		}
		return &endpoints{s, r}, nil
	default:
		return nil, fmt.Errorf("unknown protocol %q", p.Protocol)
	}
}

// Run transfers message once. Sender and receiver run in their own
// goroutines and close their pipe ends when they return, so a failing side
// is observed by its peer as a closed channel. After a successful read the
// receiving side keeps acknowledging retransmissions until the sender
// returns. The returned error is Result.Err().
func Run(conf arq.Config, p Params, message string, opts ...Option) (*Result, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	o := options{recorder: metrics.NewDummy(), linkRecorder: metrics.NewDummy()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.log
	if logger == nil {
		logger = log
	}

	segTx, segRx := pipe.New[arq.Segment]()
	ackTx, ackRx := pipe.New[arq.SeqNum]()

	var link *lossylink.Link
	if !p.Direct {
		linkOpts := []lossylink.Option{
			lossylink.WithRecorder(o.linkRecorder),
			lossylink.WithLabels(DirectionSegments, DirectionAcks),
			lossylink.WithLogger(logger),
			lossylink.WithIdleTimeout(conf.PollInterval.Std()),
		}
		if o.seed != nil {
			linkOpts = append(linkOpts, lossylink.WithSeed(*o.seed))
		}
		// The receiver reads the link's segment output, the sender its ack output.
		var linkSegRx *pipe.Rx[arq.Segment]
		var linkAckRx *pipe.Rx[arq.SeqNum]
		linkSegRx, linkAckRx, link = lossylink.Simulate(segRx, ackRx, p.Loss, linkOpts...)
		segRx, ackRx = linkSegRx, linkAckRx
	}

	ep, err := newEndpoints(p, conf, o.log, segTx, segRx, ackTx, ackRx)
	if err != nil {
		return nil, err
	}

	res := &Result{ID: uuid.New(), Params: p}
	start := time.Now()

	sent := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(sent)
		defer ackRx.Close() //nolint:errcheck
		defer segTx.Close() //nolint:errcheck
		res.SendErr = ep.sender.Send(message, p.WindowSize)
	}()
	go func() {
		defer wg.Done()
		defer segRx.Close() //nolint:errcheck
		defer ackTx.Close() //nolint:errcheck
		res.Received, res.ReadErr = ep.receiver.Read()
		if res.ReadErr == nil {
			res.Reacked = reack(segRx, ackTx, sent, conf.PollInterval.Std())
			if res.Reacked > 0 {
				logger.Debugf("Re-acked %d segments after delivery", res.Reacked)
			}
		}
	}()
	wg.Wait()

	if link != nil {
		link.Wait()
		res.Link = link.Stats()
	}
	res.Duration = time.Since(start)
	res.Stats = ep.sender.Stats()

	err = res.Err()
	o.recorder.RecordTransfer(p.Protocol, res.Duration, res.Stats, err != nil)
	if err != nil {
		logger.WithError(err).Warnf("Transfer %s failed", p)
	} else {
		logger.Debugf("Transfer %s done in %s: %s", p, res.Duration, res.Stats)
	}
	return res, err
}

// reack acknowledges retransmissions of an already delivered message until
// done is closed or either pipe is gone. Every segment still in flight at that
// point has been delivered, so its own sequence number is the right ack.
func reack(rx *pipe.Rx[arq.Segment], tx *pipe.Tx[arq.SeqNum], done <-chan struct{}, poll time.Duration) int {
	n := 0
	for {
		select {
		case <-done:
			return n
		default:
		}
		seg, err := rx.RecvTimeout(poll)
		if err == pipe.ErrTimeout {
			continue
		}
		if err != nil {
			return n
		}
		if err := tx.Send(seg.Seq); err != nil {
			return n
		}
		n++
	}
}
