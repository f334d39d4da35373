package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPreservesOrder(t *testing.T) {
	tasks := make([]func(context.Context) (string, error), 8)
	for i := range tasks {
		i := i
		tasks[i] = func(context.Context) (string, error) {
			time.Sleep(time.Duration(8-i) * time.Millisecond)
			return fmt.Sprintf("r%d", i), nil
		}
	}
	out, err := Run(context.Background(), tasks, 3)
	require.NoError(t, err)
	require.Len(t, out, 8)
	for i, v := range out {
		assert.Equal(t, fmt.Sprintf("r%d", i), v)
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	var mu sync.Mutex
	var inflight, peak int

	tasks := make([]func(context.Context) (int, error), 10)
	for i := range tasks {
		tasks[i] = func(context.Context) (int, error) {
			mu.Lock()
			inflight++
			if inflight > peak {
				peak = inflight
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inflight--
			mu.Unlock()
			return 0, nil
		}
	}
	_, err := Run(context.Background(), tasks, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 2)
}

func TestRunFailFast(t *testing.T) {
	boom := errors.New("boom")
	var started int32

	tasks := make([]func(context.Context) (int, error), 6)
	tasks[0] = func(context.Context) (int, error) {
		return 0, boom
	}
	for i := 1; i < len(tasks); i++ {
		tasks[i] = func(ctx context.Context) (int, error) {
			atomic.AddInt32(&started, 1)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(50 * time.Millisecond):
				return i, nil
			}
		}
	}
	_, err := Run(context.Background(), tasks, 1)
	require.ErrorIs(t, err, boom)
	// 串行执行下第一个任务失败后不再起新任务
	assert.Equal(t, int32(0), atomic.LoadInt32(&started))
}

func TestRunEmpty(t *testing.T) {
	out, err := Run[int](context.Background(), nil, 4)
	require.NoError(t, err)
	assert.Empty(t, out)
}
