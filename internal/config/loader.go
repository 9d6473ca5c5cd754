// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. An empty path loads defaults and ENV only.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Path returns the configured file path.
func (l *Loader) Path() string {
	return l.configPath
}

// Load enforces the order: defaults -> strict file parse -> merge -> env -> validate.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride, mergo.WithoutDereference); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (l *Loader) loadFile(path string) (Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	return parseYAML(data)
}

func parseYAML(data []byte) (Config, error) {
	var fileCfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return Config{}, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return Config{}, fmt.Errorf("strict config parse error: %w", err)
	}
	return fileCfg, nil
}

// Load is a shorthand for NewLoader(path).Load().
func Load(path string) (Config, error) {
	return NewLoader(path).Load()
}
