// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Metrological/qtwebkit/internal/playback/model"
)

func TestControlLoopRunsInPostOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l := newControlLoop()
	defer l.Close()

	var got []int
	for i := range 100 {
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Call(context.Background(), func() {}))

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestControlLoopCallRespectsContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l := newControlLoop()
	defer l.Close()

	release := make(chan struct{})
	l.Post(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Call(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestControlLoopRejectsWorkAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l := newControlLoop()
	l.Close()

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Call(context.Background(), func() {}), model.ErrClosed)
}

func TestControlLoopCloseDropsQueuedWork(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l := newControlLoop()
	started := make(chan struct{})
	release := make(chan struct{})
	l.Post(func() {
		close(started)
		<-release
	})
	<-started

	var ran atomic.Bool
	l.Post(func() { ran.Store(true) })

	errCh := make(chan error, 1)
	go func() { errCh <- l.Call(context.Background(), func() { ran.Store(true) }) }()

	closed := make(chan struct{})
	go func() {
		l.Close()
		close(closed)
	}()
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.closing
	}, time.Second, time.Millisecond)
	close(release)
	<-closed

	assert.False(t, ran.Load())
	assert.ErrorIs(t, <-errCh, model.ErrClosed)
}

func TestLoopTimerFiresUntilStopped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l := newControlLoop()
	defer l.Close()

	var fired atomic.Int32
	timer := l.NewRepeatingTimer(func() { fired.Add(1) })
	assert.False(t, timer.IsActive())

	timer.StartRepeating(time.Millisecond)
	assert.True(t, timer.IsActive())
	require.Eventually(t, func() bool { return fired.Load() >= 3 }, time.Second, time.Millisecond)

	require.NoError(t, l.Call(context.Background(), timer.Stop))
	assert.False(t, timer.IsActive())
	stopped := fired.Load()

	// Ticks already queued before Stop are discarded on the loop.
	require.NoError(t, l.Call(context.Background(), func() {}))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, l.Call(context.Background(), func() {}))
	assert.Equal(t, stopped, fired.Load())
}

func TestLoopTimerNotStartedAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l := newControlLoop()
	timer := l.NewRepeatingTimer(func() {})
	l.Close()

	timer.StartRepeating(time.Millisecond)
	assert.False(t, timer.IsActive())
}
