// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build gstreamer

package main

import (
	"context"

	"github.com/Metrological/qtwebkit/internal/playback/gstreamer"
	"github.com/Metrological/qtwebkit/internal/playback/ports"
)

const backendName = "gstreamer"

// newPipelineFactory creates playbin pipelines. Their bus readers stop
// when the player closes them.
func newPipelineFactory(context.Context) (ports.Factory, func()) {
	return gstreamer.NewFactory(), func() {}
}
