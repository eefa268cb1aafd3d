package solver

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_LimitsConcurrency(t *testing.T) {
	p := NewPool(2)
	ctx := context.Background()

	var inFlight int32
	var maxObserved int32
	done := make(chan struct{})

	for i := 0; i < 6; i++ {
		go func() {
			_, err := Run(ctx, p, func() struct{} {
				cur := atomic.AddInt32(&inFlight, 1)
				for {
					observed := atomic.LoadInt32(&maxObserved)
					if cur <= observed || atomic.CompareAndSwapInt32(&maxObserved, observed, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return struct{}{}
			})
			require.NoError(t, err)
			done <- struct{}{}
		}()
	}

	for i := 0; i < 6; i++ {
		<-done
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&maxObserved), int32(2))
}

func TestPool_CanceledContextReturnsError(t *testing.T) {
	p := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Acquire(context.Background()))
	defer p.Release()

	_, err := Run(ctx, p, func() struct{} { return struct{}{} })
	require.Error(t, err)
}
