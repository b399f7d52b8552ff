package pipe_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denisstrizhkin/network-labs/pkg/pipe"
)

func TestPipe_FIFO(t *testing.T) {
	tx, rx := pipe.New[int]()

	for i := 0; i < 1000; i++ {
		require.NoError(t, tx.Send(i))
	}
	assert.Equal(t, 1000, rx.Len())

	for i := 0; i < 1000; i++ {
		v, ok, err := rx.TryRecv()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i, v)
	}

	_, ok, err := rx.TryRecv()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPipe_RecvTimeout(t *testing.T) {
	tx, rx := pipe.New[string]()

	_, err := rx.RecvTimeout(10 * time.Millisecond)
	require.Equal(t, pipe.ErrTimeout, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		assert.NoError(t, tx.Send("hello"))
	}()

	v, err := rx.RecvTimeout(time.Second)
	require.NoError(t, err)
	require.Equal(t, "hello", v)
}

func TestPipe_CloseTx(t *testing.T) {
	tx, rx := pipe.New[int]()
	require.NoError(t, tx.Send(1))
	require.NoError(t, tx.Close())
	require.NoError(t, tx.Close())

	require.Equal(t, pipe.ErrClosed, tx.Send(2))

	// Queued items survive the producer.
	v, err := rx.RecvTimeout(time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	_, err = rx.RecvTimeout(time.Second)
	require.Equal(t, pipe.ErrClosed, err)

	select {
	case <-rx.Closed():
	default:
		t.Fatal("producer end should be reported as closed")
	}
}

func TestPipe_CloseRx(t *testing.T) {
	tx, rx := pipe.New[int]()
	require.NoError(t, rx.Close())
	require.Equal(t, pipe.ErrClosed, tx.Send(1))

	_, _, err := rx.TryRecv()
	require.Equal(t, pipe.ErrClosed, err)
}

func TestPipe_CloseWakesReceiver(t *testing.T) {
	tx, rx := pipe.New[int]()

	errCh := make(chan error, 1)
	go func() {
		_, err := rx.RecvTimeout(5 * time.Second)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, tx.Close())

	select {
	case err := <-errCh:
		require.Equal(t, pipe.ErrClosed, err)
	case <-time.After(time.Second):
		t.Fatal("receiver was not woken by Close")
	}
}

func TestPipe_Concurrent(t *testing.T) {
	const n = 10000
	tx, rx := pipe.New[int]()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			assert.NoError(t, tx.Send(i))
		}
		assert.NoError(t, tx.Close())
	}()

	next := 0
	for {
		v, err := rx.RecvTimeout(time.Second)
		if err == pipe.ErrClosed {
			break
		}
		require.NoError(t, err)
		require.Equal(t, next, v)
		next++
	}
	wg.Wait()
	require.Equal(t, n, next)
}
