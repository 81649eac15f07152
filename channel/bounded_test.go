package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Swind/go-task-executor/core"
)

func TestBounded_SendRecvOrder(t *testing.T) {
	tx, rx := NewBounded[int](4)

	for i := range 4 {
		require.NoError(t, tx.TrySend(i))
	}
	require.ErrorIs(t, tx.TrySend(4), ErrFull)
	require.Equal(t, 4, rx.Len())
	require.Equal(t, 4, rx.Cap())

	for i := range 4 {
		v, err := rx.Recv(context.Background())
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	_, err := rx.TryRecv()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestBounded_MinimumCapacity(t *testing.T) {
	_, rx := NewBounded[int](0)
	require.Equal(t, 1, rx.Cap())
}

// TestBounded_CloseAfterBufferedValues verifies values sent before the last
// sender closes are still delivered
func TestBounded_CloseAfterBufferedValues(t *testing.T) {
	tx, rx := NewBounded[int](2)
	tx2 := tx.Clone()

	require.NoError(t, tx.TrySend(1))
	tx.Close()
	require.ErrorIs(t, tx.TrySend(2), ErrChannelClosed)
	require.NoError(t, tx2.TrySend(2))
	tx2.Close()
	tx2.Close()

	v, err := rx.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
	v, err = rx.TryRecv()
	require.NoError(t, err)
	require.Equal(t, 2, v)

	_, err = rx.Recv(context.Background())
	require.ErrorIs(t, err, ErrChannelClosed)
}

func TestBounded_SendBlocksUntilReceiverCloses(t *testing.T) {
	tx, rx := NewBounded[int](1)
	require.NoError(t, tx.TrySend(1))

	errCh := make(chan error, 1)
	go func() { errCh <- tx.Send(context.Background(), 2) }()
	time.Sleep(10 * time.Millisecond)
	rx.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrChannelClosed)
	case <-time.After(time.Second):
		t.Fatal("Send still blocked after receiver closed")
	}
}

func TestBounded_SendContext(t *testing.T) {
	tx, _ := NewBounded[int](1)
	require.NoError(t, tx.TrySend(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, tx.Send(ctx, 2), context.DeadlineExceeded)
}

// TestBounded_PollFromTask verifies a consumer task drains many producers
// Given: A consumer task polling the receiver and 8 goroutine producers sending 100 values each
// When: Every producer closes its sender after sending
// Then: The consumer sees all 800 values and then ErrChannelClosed
func TestBounded_PollFromTask(t *testing.T) {
	// Arrange
	e := newExecutor(t, 2)
	tx, rx := NewBounded[int](16)
	var sum, count int
	var endErr error

	h, err := e.Spawn(func(cx *core.Context) core.Poll {
		for {
			v, p, err := rx.Poll(cx)
			if p == core.Pending {
				return core.Pending
			}
			if err != nil {
				endErr = err
				return core.Ready
			}
			sum += v
			count++
		}
	})
	require.NoError(t, err)

	// Act
	var wg sync.WaitGroup
	for range 8 {
		s := tx.Clone()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.Close()
			for i := 1; i <= 100; i++ {
				if err := s.Send(context.Background(), i); err != nil {
					t.Errorf("Send() error = %v", err)
					return
				}
			}
		}()
	}
	tx.Close()
	wg.Wait()
	wait(t, h)

	// Assert
	require.Equal(t, 800, count)
	require.Equal(t, 8*5050, sum)
	require.ErrorIs(t, endErr, ErrChannelClosed)
}
