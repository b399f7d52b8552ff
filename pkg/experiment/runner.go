package experiment

import (
	"time"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"
	"go.uber.org/atomic"

	"github.com/denisstrizhkin/network-labs/internal/metrics"
	"github.com/denisstrizhkin/network-labs/internal/retry"
	"github.com/denisstrizhkin/network-labs/pkg/arq"
	"github.com/denisstrizhkin/network-labs/pkg/transfer"
)

var log = logging.MustGetLogger("experiment")

// Retry timing of failed transfers.
const (
	RetryBackoff   = 100 * time.Millisecond
	RetryThreshold = 5 * time.Minute
)

// NewRetrier returns a Retrier allowing retries extra attempts per transfer.
// Errors that a repeated transfer cannot fix are never retried.
func NewRetrier(retries int) *retry.Retrier {
	if retries < 0 {
		retries = 0
	}
	return retry.NewRetrier(RetryBackoff, RetryThreshold, 2).
		WithMaxAttempts(retries+1).
		WithErrWhitelist(arq.ErrProtocolViolation, arq.ErrEncoding, arq.ErrInvalidWindow, arq.ErrInvalidLoss)
}

// Option configures a Runner.
type Option func(*Runner)

// WithRetrier sets the Retrier used for every transfer.
func WithRetrier(r *retry.Retrier) Option {
	return func(rn *Runner) { rn.retrier = r }
}

// WithRecorder records every transfer.
func WithRecorder(r metrics.Recorder) Option {
	return func(rn *Runner) { rn.recorder = r }
}

// WithLinkRecorder records every link decision.
func WithLinkRecorder(r metrics.LinkRecorder) Option {
	return func(rn *Runner) { rn.linkRecorder = r }
}

// WithSeed makes link drops reproducible. Transfer n uses seed+n.
func WithSeed(seed int64) Option {
	return func(rn *Runner) { rn.seed = &seed }
}

// WithLogger replaces the package logger.
func WithLogger(l *logging.Logger) Option {
	return func(rn *Runner) { rn.log = l }
}

// Runner runs transfers and stores a Record for each of them.
type Runner struct {
	conf         arq.Config
	store        Store
	retrier      *retry.Retrier
	recorder     metrics.Recorder
	linkRecorder metrics.LinkRecorder
	seed         *int64
	runs         atomic.Int64
	log          *logging.Logger
}

// NewRunner constructs a Runner. A nil store keeps records in memory.
func NewRunner(conf arq.Config, store Store, opts ...Option) *Runner {
	if store == nil {
		store = InMemoryStore()
	}
	rn := &Runner{
		conf:         conf,
		store:        store,
		retrier:      NewRetrier(0),
		recorder:     metrics.NewDummy(),
		linkRecorder: metrics.NewDummy(),
		log:          log,
	}
	for _, opt := range opts {
		opt(rn)
	}
	return rn
}

// Store returns the record store.
func (rn *Runner) Store() Store { return rn.store }

// Run transfers message with p, retrying failed transfers, and stores the
// record of the last attempt. A failed transfer yields both a record and the
// transfer error.
func (rn *Runner) Run(p transfer.Params, message string) (*Record, error) {
	rec, err, fatalErr := rn.run(p, message)
	if fatalErr != nil {
		return rec, fatalErr
	}
	return rec, err
}

// run returns the transfer error separately from errors that must stop a sweep.
func (rn *Runner) run(p transfer.Params, message string) (rec *Record, err, fatalErr error) {
	if err := rn.conf.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid config")
	}
	proto, err := arq.ParseProtocol(string(p.Protocol))
	if err != nil {
		return nil, nil, err
	}
	p.Protocol = proto
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		res      *transfer.Result
		attempts int
	)
	err = rn.retrier.Do(func() error {
		attempts++
		opts := []transfer.Option{
			transfer.WithRecorder(rn.recorder),
			transfer.WithLinkRecorder(rn.linkRecorder),
		}
		if rn.seed != nil {
			opts = append(opts, transfer.WithSeed(*rn.seed+rn.runs.Inc()-1))
		}
		r, err := transfer.Run(rn.conf, p, message, opts...)
		if r != nil {
			res = r
		}
		return err
	})
	if res == nil {
		return nil, nil, err
	}

	rec = NewRecord(res)
	rec.Attempts = attempts
	if err != nil {
		rec.Err = err.Error()
		rn.log.WithError(err).Warnf("Transfer %s failed after %d attempts", p, attempts)
	} else {
		rn.log.Infof("%s: efficiency %.4f", p, rec.Efficiency)
	}

	if putErr := rn.store.Put(rec); putErr != nil {
		return rec, err, errors.Wrap(putErr, "failed to store record")
	}
	return rec, err, nil
}

// LossSweep runs every protocol at a fixed window size for each loss rate.
// Failed transfers are recorded and the sweep continues. The returned error
// is the first one that stopped the sweep.
func (rn *Runner) LossSweep(window int, losses []float64, message string) ([]*Record, error) {
	points := make([]transfer.Params, 0, len(losses))
	for _, loss := range losses {
		points = append(points, transfer.Params{WindowSize: window, Loss: loss})
	}
	rn.log.Infof("Efficiency vs loss rate, window size %d", window)
	return rn.sweep(points, message)
}

// WindowSweep runs every protocol at a fixed loss rate for each window size.
func (rn *Runner) WindowSweep(loss float64, windows []int, message string) ([]*Record, error) {
	points := make([]transfer.Params, 0, len(windows))
	for _, w := range windows {
		points = append(points, transfer.Params{WindowSize: w, Loss: loss})
	}
	rn.log.Infof("Efficiency vs window size, loss rate %.2f", loss)
	return rn.sweep(points, message)
}

func (rn *Runner) sweep(points []transfer.Params, message string) ([]*Record, error) {
	records := make([]*Record, 0, len(points)*len(arq.Protocols()))
	for _, p := range points {
		for _, proto := range arq.Protocols() {
			p.Protocol = proto
			rec, _, fatalErr := rn.run(p, message)
			if fatalErr != nil {
				return records, fatalErr
			}
			records = append(records, rec)
		}
	}
	return records, nil
}
