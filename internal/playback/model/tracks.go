// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// Tracks counts the elementary streams the pipeline exposes.
type Tracks struct {
	Video int `json:"video"`
	Audio int `json:"audio"`
	Text  int `json:"text"`
}

func (t Tracks) HasVideo() bool { return t.Video > 0 }
func (t Tracks) HasAudio() bool { return t.Audio > 0 }
