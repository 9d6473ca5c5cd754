// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !gstreamer

package main

import (
	"context"
	"sync"
	"time"

	"github.com/Metrological/qtwebkit/internal/playback/ports"
	"github.com/Metrological/qtwebkit/internal/playback/sim"
)

const (
	backendName = "sim"
	simTick     = 20 * time.Millisecond
)

// newPipelineFactory serves every URL from the in-memory pipeline. Each
// pipeline is driven by its own goroutine until stop is called.
func newPipelineFactory(ctx context.Context) (ports.Factory, func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	factory := sim.NewFactory(sim.DefaultLibrary(), func(p *sim.Pipeline) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx, simTick)
		}()
	})
	return factory, func() {
		cancel()
		wg.Wait()
	}
}
