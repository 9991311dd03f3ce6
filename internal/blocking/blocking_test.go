package blocking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExecutesOnPool(t *testing.T) {
	p := New(2)
	var ran atomic.Bool
	err := p.Run(context.Background(), func() error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestRunPropagatesError(t *testing.T) {
	p := New(1)
	wantErr := errors.New("vendor sdk fault")
	err := p.Run(context.Background(), func() error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
}

func TestRunBoundsConcurrency(t *testing.T) {
	p := New(1)
	var active atomic.Int32
	var maxActive atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Run(context.Background(), func() error {
				n := active.Add(1)
				for {
					cur := maxActive.Load()
					if n <= cur || maxActive.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestRunRespectsCancellationBeforeStart(t *testing.T) {
	p := New(1)
	// Saturate the single slot.
	release := make(chan struct{})
	go func() {
		_ = p.Run(context.Background(), func() error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Run(ctx, func() error { t.Fatal("fn must not run once ctx is already cancelled"); return nil })
	assert.Error(t, err)
	close(release)
}

func TestGroupFailsFast(t *testing.T) {
	p := New(4)
	wantErr := errors.New("boom")
	err := p.Group(context.Background(),
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return wantErr },
		func(ctx context.Context) error { return nil },
	)
	assert.ErrorIs(t, err, wantErr)
}

// TestSDKFamilyInitUninitOnceAcrossThreeInstances grounds spec.md §8
// scenario 6: three driver instances acquire and release a shared family;
// init fires exactly once on 0→1, uninit exactly once on the final 1→0.
func TestSDKFamilyInitUninitOnceAcrossThreeInstances(t *testing.T) {
	var inits, uninits atomic.Int32
	fam := NewSDKFamily(
		func() error { inits.Add(1); return nil },
		func() { uninits.Add(1) },
	)

	for i := 0; i < 3; i++ {
		require.NoError(t, fam.Acquire())
	}
	assert.Equal(t, int32(1), inits.Load())
	assert.Equal(t, 3, fam.Count())

	fam.Release()
	fam.Release()
	assert.Equal(t, int32(0), uninits.Load())
	fam.Release()
	assert.Equal(t, int32(1), uninits.Load())
	assert.Equal(t, 0, fam.Count())
}

func TestSDKFamilyInitErrorRollsBackCount(t *testing.T) {
	fam := NewSDKFamily(func() error { return errors.New("init failed") }, nil)
	err := fam.Acquire()
	require.Error(t, err)
	assert.Equal(t, 0, fam.Count())

	// A family whose init succeeds reaches count 1 on its first acquire.
	fam2 := NewSDKFamily(nil, nil)
	require.NoError(t, fam2.Acquire())
	assert.Equal(t, 1, fam2.Count())
}

func TestSDKFamilyExtraReleaseIsNoop(t *testing.T) {
	fam := NewSDKFamily(nil, nil)
	fam.Release()
	assert.Equal(t, 0, fam.Count())
}
