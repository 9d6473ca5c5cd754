// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mime answers which media types and key systems the player can
// handle. The tables are built once at package initialization and never
// modified, so lookups need no locking.
package mime

import (
	"strings"

	"github.com/samber/lo"

	"github.com/Metrological/qtwebkit/internal/playback/model"
)

var supportedTypes = lo.SliceToMap([]string{
	"application/ogg",
	"application/vnd.apple.mpegurl",
	"application/vnd.rn-realmedia",
	"application/x-3gp",
	"application/x-mpegurl",
	"application/x-pn-realaudio",
	"audio/3gpp",
	"audio/aac",
	"audio/flac",
	"audio/mp3",
	"audio/mp4",
	"audio/mpeg",
	"audio/mpegurl",
	"audio/ogg",
	"audio/opus",
	"audio/vorbis",
	"audio/wav",
	"audio/x-aac",
	"audio/x-flac",
	"audio/x-m4a",
	"audio/x-mp3",
	"audio/x-mpeg",
	"audio/x-mpegurl",
	"audio/x-ms-wma",
	"audio/x-wav",
	"video/3gpp",
	"video/mp2t",
	"video/mp4",
	"video/mpeg",
	"video/mpegts",
	"video/ogg",
	"video/quicktime",
	"video/x-flv",
	"video/x-matroska",
	"video/x-ms-asf",
	"video/x-ms-wmv",
	"video/x-msvideo",
}, func(t string) (string, struct{}) { return t, struct{}{} })

const ClearKey = "org.w3.clearkey"

var builtinKeySystems = []string{
	ClearKey,
	"com.microsoft.playready",
	"com.youtube.playready",
}

// Types returns the supported MIME types in no particular order.
func Types() []string {
	return lo.Keys(supportedTypes)
}

// SupportsType answers a canPlayType query. Without codecs the answer is
// never better than "maybe".
func SupportsType(contentType, codecs string) model.SupportsType {
	t := normalize(contentType)
	if t == "" {
		return model.NotSupported
	}
	// WebM is left to other media engines.
	if t == "video/webm" || t == "audio/webm" {
		return model.NotSupported
	}
	if _, ok := supportedTypes[t]; !ok {
		return model.NotSupported
	}
	if strings.TrimSpace(codecs) == "" {
		return model.MayBeSupported
	}
	return model.IsSupported
}

// SupportsKeySystem reports whether keySystem is usable, optionally for a
// given MIME type. extra lists key systems enabled by configuration.
func SupportsKeySystem(keySystem, mimeType string, extra ...string) bool {
	ks := strings.ToLower(strings.TrimSpace(keySystem))
	if ks == "" {
		return false
	}
	known := lo.SomeBy(builtinKeySystems, func(s string) bool { return s == ks }) ||
		lo.SomeBy(extra, func(s string) bool { return strings.EqualFold(s, ks) })
	if !known {
		return false
	}
	if mimeType == "" {
		return true
	}
	return SupportsType(mimeType, "") != model.NotSupported
}

func normalize(contentType string) string {
	t, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(t))
}
