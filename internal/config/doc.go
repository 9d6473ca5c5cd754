// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for the player daemon.
//
// Precedence is ENV > file > defaults. The file is parsed strictly, so
// unknown keys are rejected instead of silently ignored.
package config
