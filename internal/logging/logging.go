// Package logging configures the global zerolog logger. Output always goes to
// stderr because stdout carries the stdio protocol.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/golovatskygroup/mcp-toolkit/internal/config"
)

// Setup installs the global logger described by cfg and returns a function
// that flushes and closes the log file, if any.
func Setup(cfg config.LogConfig) (func() error, error) {
	return setup(cfg, os.Stderr)
}

func setup(cfg config.LogConfig, console io.Writer) (func() error, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	}

	writer := console
	closer := func() error { return nil }

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		writer = zerolog.MultiLevelWriter(console, rotator)
		closer = rotator.Close
	}

	log.Logger = zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("service", "mcp-toolkit").
		Logger()

	return closer, nil
}
