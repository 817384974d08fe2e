// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging builds the zap loggers the CLI and services use,
// selected by a level and an output style.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a named verbosity: debug, info, warn, error.
type Level string

// Style selects the output encoding.
type Style string

const (
	// StyleTerminal is human-readable console output with colored levels.
	StyleTerminal Style = "terminal"
	// StyleJSON is structured output for log aggregation.
	StyleJSON Style = "json"
	// StyleNoop discards everything.
	StyleNoop Style = "noop"
)

// Config selects the logger to build.
type Config struct {
	Level Level
	Style Style
}

// NewLogger builds a logger from the config. Unknown levels fall back to
// info, unknown styles to terminal.
func NewLogger(cfg *Config) *zap.Logger {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Style == StyleNoop {
		return zap.NewNop()
	}

	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(string(cfg.Level)); err == nil && cfg.Level != "" {
		level = parsed
	}

	var zcfg zap.Config
	if cfg.Style == StyleJSON {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
