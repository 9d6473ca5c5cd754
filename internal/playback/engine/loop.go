// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Metrological/qtwebkit/internal/playback/model"
)

// Scheduler is the engine's view of the control loop.
type Scheduler interface {
	// Post queues fn on the control loop without waiting. It reports false
	// once the loop is closed.
	Post(fn func()) bool
	// Call runs fn on the control loop and waits for it to return or for
	// ctx to end. fn may still run after ctx ends.
	Call(ctx context.Context, fn func()) error
	// NewRepeatingTimer returns a stopped timer whose fire runs on the control loop.
	NewRepeatingTimer(fire func()) RepeatingTimer
}

// RepeatingTimer fires periodically until stopped.
type RepeatingTimer interface {
	StartRepeating(interval time.Duration)
	Stop()
	IsActive() bool
}

// controlLoop executes posted functions one at a time on its own goroutine.
// The queue is unbounded so pipeline goroutines never block on Post.
type controlLoop struct {
	mu      sync.Mutex
	queue   []func()
	closing bool
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

func newControlLoop() *controlLoop {
	l := &controlLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *controlLoop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closing {
			l.mu.Unlock()
			<-l.wake
			l.mu.Lock()
		}
		if l.closing {
			l.queue = nil
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

func (l *controlLoop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *controlLoop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return model.ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		// The loop stopped before reaching fn.
		select {
		case <-finished:
			return nil
		default:
			return model.ErrClosed
		}
	case <-ctx.Done():
		return fmt.Errorf("control loop call: %w", ctx.Err())
	}
}

// Close stops the loop after the function currently running returns. Queued
// functions are dropped. Timer goroutines are joined.
func (l *controlLoop) Close() {
	l.mu.Lock()
	l.closing = true
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
	l.wg.Wait()
}

func (l *controlLoop) NewRepeatingTimer(fire func()) RepeatingTimer {
	return &loopTimer{loop: l, fire: fire}
}

// loopTimer ticks on its own goroutine and posts fire onto the loop.
type loopTimer struct {
	loop *controlLoop
	fire func()

	mu   sync.Mutex
	stop chan struct{}
	// gen invalidates ticks posted before the last Stop.
	gen uint64
}

func (t *loopTimer) StartRepeating(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()

	t.loop.mu.Lock()
	if t.loop.closing {
		t.loop.mu.Unlock()
		return
	}
	t.loop.wg.Add(1)
	t.loop.mu.Unlock()

	stop := make(chan struct{})
	t.stop = stop
	gen := t.gen
	go func() {
		defer t.loop.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.loop.done:
				return
			case <-ticker.C:
				t.loop.Post(func() {
					t.mu.Lock()
					current := t.gen == gen && t.stop != nil
					t.mu.Unlock()
					if current {
						t.fire()
					}
				})
			}
		}
	}()
}

func (t *loopTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *loopTimer) stopLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.gen++
}

func (t *loopTimer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}
