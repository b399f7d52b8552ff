// Package lossylink relays two independent streams and drops each unit with a
// fixed probability.
package lossylink

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"
	"go.uber.org/atomic"

	"github.com/denisstrizhkin/network-labs/internal/metrics"
	"github.com/denisstrizhkin/network-labs/pkg/pipe"
)

// Direction labels used for logging and metrics.
const (
	DirectionA = "a"
	DirectionB = "b"
)

// DefaultIdleTimeout is how long the relay waits for input before re-polling.
const DefaultIdleTimeout = 10 * time.Millisecond

var log = logging.MustGetLogger("lossylink")

// Stats counts relayed units per direction.
type Stats struct {
	ForwardedA int64
	DroppedA   int64
	ForwardedB int64
	DroppedB   int64
}

// Link is the completion handle of a running relay.
type Link struct {
	loss float64
	done chan struct{}

	forwardedA atomic.Int64
	droppedA   atomic.Int64
	forwardedB atomic.Int64
	droppedB   atomic.Int64
}

// Option configures Simulate.
type Option func(*options)

type options struct {
	rnd      *rand.Rand
	idle     time.Duration
	log      *logging.Logger
	recorder metrics.LinkRecorder
	labelA   string
	labelB   string
}

// WithRand sets the random source. It is used by the relay goroutine only.
func WithRand(rnd *rand.Rand) Option {
	return func(o *options) { o.rnd = rnd }
}

// WithSeed seeds a private random source.
func WithSeed(seed int64) Option {
	return WithRand(rand.New(rand.NewSource(seed))) //nolint:gosec
}

// WithIdleTimeout sets how long the relay blocks when both inputs are empty.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idle = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRecorder reports every forwarded or dropped unit.
func WithRecorder(r metrics.LinkRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithLabels names the two directions for logs and metrics.
func WithLabels(a, b string) Option {
	return func(o *options) { o.labelA, o.labelB = a, b }
}

// Simulate starts a relay from a and b to the returned outputs. Every unit is
// dropped independently with probability loss; surviving units keep their
// per-direction order. An exhausted input closes its output, and a closed
// output closes its input. The relay ends once both directions are done.
//
// Simulate panics if loss is outside [0, 1].
func Simulate[A, B any](a *pipe.Rx[A], b *pipe.Rx[B], loss float64, opts ...Option) (*pipe.Rx[A], *pipe.Rx[B], *Link) {
	if loss < 0 || loss > 1 {
		panic(fmt.Sprintf("lossylink: loss probability %v is outside [0, 1]", loss))
	}

	o := options{
		idle:     DefaultIdleTimeout,
		log:      log,
		recorder: metrics.NewDummy(),
		labelA:   DirectionA,
		labelB:   DirectionB,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rnd == nil {
		o.rnd = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}

	txA, outA := pipe.New[A]()
	txB, outB := pipe.New[B]()
	l := &Link{loss: loss, done: make(chan struct{})}

	go func() {
		defer close(l.done)
		ra := &relay[A]{in: a, out: txA, label: o.labelA, forwarded: &l.forwardedA, dropped: &l.droppedA}
		rb := &relay[B]{in: b, out: txB, label: o.labelB, forwarded: &l.forwardedB, dropped: &l.droppedB}
		l.serve(ra, rb, &o)
	}()

	return outA, outB, l
}

type relayer interface {
	step(l *Link, o *options) bool
	stop()
	isDead() bool
	ready() <-chan struct{}
	closed() <-chan struct{}
	downstreamClosed() <-chan struct{}
}

type relay[T any] struct {
	in    *pipe.Rx[T]
	out   *pipe.Tx[T]
	label string
	dead  bool

	forwarded *atomic.Int64
	dropped   *atomic.Int64
}

// step moves at most one unit. It reports whether any work was done.
func (r *relay[T]) step(l *Link, o *options) bool {
	if r.dead {
		return false
	}

	v, ok, err := r.in.TryRecv()
	if err != nil {
		o.log.Debugf("Direction %s: input exhausted", r.label)
		r.stop()
		return false
	}
	if !ok {
		return false
	}

	if o.rnd.Float64() < l.loss {
		r.dropped.Inc()
		o.recorder.Dropped(r.label)
		return true
	}

	if err := r.out.Send(v); err != nil {
		o.log.Debugf("Direction %s: output closed", r.label)
		r.stop()
		return true
	}
	r.forwarded.Inc()
	o.recorder.Forwarded(r.label)
	return true
}

func (r *relay[T]) isDead() bool { return r.dead }

func (r *relay[T]) stop() {
	r.dead = true
	r.out.Close() //nolint:errcheck
	r.in.Close()  //nolint:errcheck
}

// ready returns the input notification channel, or nil once the direction is dead.
func (r *relay[T]) ready() <-chan struct{} {
	if r.dead {
		return nil
	}
	return r.in.Ready()
}

func (r *relay[T]) closed() <-chan struct{} {
	if r.dead {
		return nil
	}
	return r.in.Closed()
}

func (r *relay[T]) downstreamClosed() <-chan struct{} {
	if r.dead {
		return nil
	}
	return r.out.Closed()
}

func (l *Link) serve(a relayer, b relayer, o *options) {
	timer := time.NewTimer(o.idle)
	defer timer.Stop()

	for !a.isDead() || !b.isDead() {
		didWork := a.step(l, o)
		didWork = b.step(l, o) || didWork
		if didWork {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(o.idle)

		select {
		case <-a.ready():
		case <-b.ready():
		case <-a.closed():
		case <-b.closed():
		case <-a.downstreamClosed():
			a.stop()
		case <-b.downstreamClosed():
			b.stop()
		case <-timer.C:
		}
	}

	s := l.Stats()
	o.log.Debugf("Relay finished: a %d/%d dropped, b %d/%d dropped",
		s.DroppedA, s.DroppedA+s.ForwardedA, s.DroppedB, s.DroppedB+s.ForwardedB)
}

// Done returns a channel that is closed once the relay has finished.
func (l *Link) Done() <-chan struct{} { return l.done }

// Wait blocks until the relay has finished.
func (l *Link) Wait() {
	<-l.done
}

// Stats returns the relay counters.
func (l *Link) Stats() Stats {
	return Stats{
		ForwardedA: l.forwardedA.Load(),
		DroppedA:   l.droppedA.Load(),
		ForwardedB: l.forwardedB.Load(),
		DroppedB:   l.droppedB.Load(),
	}
}
