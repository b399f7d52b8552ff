package selectiverepeat_test

import (
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denisstrizhkin/network-labs/internal/testhelpers"
	"github.com/denisstrizhkin/network-labs/pkg/arq"
	"github.com/denisstrizhkin/network-labs/pkg/lossylink"
	"github.com/denisstrizhkin/network-labs/pkg/pipe"
	"github.com/denisstrizhkin/network-labs/pkg/selectiverepeat"
)

func TestMain(m *testing.M) {
	loggingLevel, ok := os.LookupEnv("TEST_LOGGING_LEVEL")
	if ok {
		lvl, err := logging.LevelFromString(loggingLevel)
		if err != nil {
			log.Fatal(err)
		}
		logging.SetLevel(lvl)
	} else {
		logging.Disable()
	}

	os.Exit(m.Run())
}

func testConfig() arq.Config {
	c := arq.DefaultConfig()
	c.TransferTimeout = arq.Duration(10 * time.Second)
	c.PollInterval = arq.Duration(2 * time.Millisecond)
	c.Linger = 0
	return c
}

func seg(seq arq.SeqNum, data string, p arq.Position) arq.Segment {
	return arq.Segment{Seq: seq, Data: []byte(data), Position: p}
}

func drain[T any](rx *pipe.Rx[T]) []T {
	var out []T
	for {
		v, ok, err := rx.TryRecv()
		if err != nil || !ok {
			return out
		}
		out = append(out, v)
	}
}

func newReceiver(t *testing.T, window int, conf arq.Config, segs ...arq.Segment) (*selectiverepeat.Receiver, *pipe.Tx[arq.Segment], *pipe.Rx[arq.SeqNum]) {
	t.Helper()
	segTx, segRx := pipe.New[arq.Segment]()
	ackTx, ackRx := pipe.New[arq.SeqNum]()
	for _, s := range segs {
		require.NoError(t, segTx.Send(s))
	}
	return selectiverepeat.NewReceiver(ackTx, segRx, window, conf), segTx, ackRx
}

func TestReceiver_Reorders(t *testing.T) {
	r, _, ackRx := newReceiver(t, 2, testConfig(),
		seg(2, "c", arq.Last),   // outside [0, 2): dropped silently
		seg(1, "b", arq.Middle), // buffered
		seg(1, "b", arq.Middle), // buffered duplicate
		seg(0, "a", arq.First),
		seg(2, "c", arq.Last),
	)

	msg, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "abc", msg)
	assert.Equal(t, []arq.SeqNum{1, 1, 0, 2}, drain(ackRx))
	assert.Equal(t, arq.SeqNum(3), r.Expected())
	assert.Zero(t, r.Buffered())
}

func TestReceiver_OutOfWindowKeepsState(t *testing.T) {
	conf := testConfig()
	conf.RoundTimeout = arq.Duration(10 * time.Millisecond)
	conf.TransferTimeout = arq.Duration(50 * time.Millisecond)

	r, _, ackRx := newReceiver(t, 3, conf,
		seg(1, "b", arq.Middle),
		seg(7, "h", arq.Last),
	)

	_, err := r.Read()
	require.ErrorIs(t, err, arq.ErrReadTimeout)
	assert.Equal(t, []arq.SeqNum{1}, drain(ackRx))
	assert.Equal(t, arq.SeqNum(0), r.Expected())
	assert.Equal(t, 1, r.Buffered())
}

func TestReceiver_ReacksDelivered(t *testing.T) {
	r, _, ackRx := newReceiver(t, 4, testConfig(),
		seg(0, "a", arq.First),
		seg(0, "a", arq.First),
		seg(1, "b", arq.Last),
	)

	msg, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "ab", msg)
	assert.Equal(t, []arq.SeqNum{0, 0, 1}, drain(ackRx))
}

func TestReceiver_ProtocolViolation(t *testing.T) {
	r, _, _ := newReceiver(t, 4, testConfig(), seg(0, "a", arq.Last))
	_, err := r.Read()
	require.ErrorIs(t, err, arq.ErrProtocolViolation)

	r, _, _ = newReceiver(t, 4, testConfig(), seg(2, "c", arq.First))
	_, err = r.Read()
	require.ErrorIs(t, err, arq.ErrProtocolViolation)
}

func TestReceiver_Encoding(t *testing.T) {
	r, _, _ := newReceiver(t, 2, testConfig(), seg(1, "\xc3", arq.Last), seg(0, "\xff", arq.First))
	_, err := r.Read()
	require.ErrorIs(t, err, arq.ErrEncoding)
}

func TestReceiver_ChannelClosed(t *testing.T) {
	r, segTx, _ := newReceiver(t, 2, testConfig(), seg(1, "b", arq.Last))
	require.NoError(t, segTx.Close())
	_, err := r.Read()
	require.ErrorIs(t, err, arq.ErrChannelClosed)
}

func TestReceiver_LingerReacks(t *testing.T) {
	conf := testConfig()
	conf.Linger = arq.Duration(200 * time.Millisecond)

	r, segTx, ackRx := newReceiver(t, 2, conf, seg(0, "a", arq.First), seg(1, "b", arq.Last))

	type result struct {
		msg string
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		msg, err := r.Read()
		resCh <- result{msg, err}
	}()

	// A retransmission arriving while lingering is acknowledged again.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, segTx.Send(seg(1, "b", arq.Last)))

	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		assert.Equal(t, "ab", res.msg)
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not stop lingering")
	}
	assert.Equal(t, []arq.SeqNum{0, 1, 1}, drain(ackRx))
}

func TestSender_RetransmitsOnlyUnacked(t *testing.T) {
	conf := testConfig()
	conf.RoundTimeout = arq.Duration(200 * time.Millisecond)

	segTx, segRx := pipe.New[arq.Segment]()
	ackTx, ackRx := pipe.New[arq.SeqNum]()
	s := selectiverepeat.NewSender(segTx, ackRx, conf)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Send(strings.Repeat("A", 1000), 3) }()

	next := func() arq.SeqNum {
		v, err := segRx.RecvTimeout(2 * time.Second)
		require.NoError(t, err)
		return v.Seq
	}

	for want := arq.SeqNum(0); want < 3; want++ {
		require.Equal(t, want, next())
	}

	require.NoError(t, ackTx.Send(0))
	require.NoError(t, ackTx.Send(2))
	require.Equal(t, arq.SeqNum(3), next())
	require.NoError(t, ackTx.Send(3))
	assert.Equal(t, arq.SeqNum(1), s.Base())

	// Only segment 1 times out.
	require.Equal(t, arq.SeqNum(1), next())
	require.NoError(t, ackTx.Send(1))

	require.NoError(t, testhelpers.ErrWithinTimeout(errCh))
	assert.Equal(t, arq.Stats{Base: 4, Total: 4, Sent: 5, Acked: 4}, s.Stats())
	assert.InDelta(t, 0.8, s.EfficiencyCoefficient(), 1e-9)
	assert.Empty(t, drain(segRx))
}

func TestSender_InvalidWindow(t *testing.T) {
	segTx, _ := pipe.New[arq.Segment]()
	_, ackRx := pipe.New[arq.SeqNum]()
	s := selectiverepeat.NewSender(segTx, ackRx, testConfig())
	require.ErrorIs(t, s.Send("x", -1), arq.ErrInvalidWindow)
	assert.Zero(t, s.EfficiencyCoefficient())
}

func TestSender_TransferTimeout(t *testing.T) {
	conf := testConfig()
	conf.RoundTimeout = arq.Duration(10 * time.Millisecond)
	conf.TransferTimeout = arq.Duration(50 * time.Millisecond)

	segTx, segRx := pipe.New[arq.Segment]()
	ackTx, ackRx := pipe.New[arq.SeqNum]()
	require.NoError(t, ackTx.Send(1))

	s := selectiverepeat.NewSender(segTx, ackRx, conf)
	require.ErrorIs(t, s.Send(strings.Repeat("A", 1000), 2), arq.ErrTransferTimeout)

	// Segment 1 was acknowledged, but the base cannot pass the unacknowledged 0.
	st := s.Stats()
	assert.Equal(t, arq.SeqNum(0), st.Base)
	assert.Equal(t, 1, st.Acked)
	assert.True(t, st.Sent > 2, "sent %d", st.Sent)
	assert.Equal(t, st.Sent, segRx.Len())
	assert.True(t, s.EfficiencyCoefficient() < 1)
}

func TestSender_AckChannelClosed(t *testing.T) {
	segTx, _ := pipe.New[arq.Segment]()
	ackTx, ackRx := pipe.New[arq.SeqNum]()
	require.NoError(t, ackTx.Close())

	s := selectiverepeat.NewSender(segTx, ackRx, testConfig())
	require.ErrorIs(t, s.Send("x", 2), arq.ErrChannelClosed)
}

func TestSender_MonotonicBase(t *testing.T) {
	conf := testConfig()
	conf.RoundTimeout = arq.Duration(10 * time.Millisecond)
	conf.Linger = arq.Duration(time.Second)
	conf.TransferTimeout = arq.Duration(30 * time.Second)

	segTx, segRx := pipe.New[arq.Segment]()
	ackTx, ackRx := pipe.New[arq.SeqNum]()
	lSegRx, lAckRx, link := lossylink.Simulate(segRx, ackRx, 0.3, lossylink.WithSeed(3))

	const window = 4
	s := selectiverepeat.NewSender(segTx, lAckRx, conf)
	r := selectiverepeat.NewReceiver(ackTx, lSegRx, window, conf)
	msg := strings.Repeat("yz", 2000)

	done := make(chan struct{})
	var (
		wg      sync.WaitGroup
		samples []arq.SeqNum
		sendErr error
		readErr error
		got     string
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				samples = append(samples, s.Base())
				time.Sleep(100 * time.Microsecond)
			}
		}
	}()
	go func() {
		defer wg.Done()
		defer close(done)
		defer lAckRx.Close() //nolint:errcheck
		defer segTx.Close()  //nolint:errcheck
		sendErr = s.Send(msg, window)
	}()
	go func() {
		defer wg.Done()
		defer lSegRx.Close() //nolint:errcheck
		defer ackTx.Close()  //nolint:errcheck
		got, readErr = r.Read()
	}()
	wg.Wait()
	link.Wait()

	testhelpers.NoErrorN(t, sendErr, readErr)
	require.Equal(t, msg, got)
	for i := 1; i < len(samples); i++ {
		require.True(t, samples[i-1] <= samples[i], "base went back from %d to %d", samples[i-1], samples[i])
	}
	st := s.Stats()
	assert.Equal(t, st.Total, st.Acked)
	assert.True(t, st.Sent >= st.Total)
}
