// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package applog configures the global zerolog logger.
package applog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Thermoquad/finisher/pkg/syncutil"
	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the rotating log file inside the state directory.
const LogFileName = "finisher.log"

// Options selects where log output goes.
type Options struct {
	// File is the rotating log file. Empty disables file logging.
	File string
	// Console, when set, receives human-readable output. The control TUI
	// leaves it nil since it owns the terminal.
	Console io.Writer
	Debug   bool
}

// DefaultLogFile returns $XDG_STATE_HOME/finisher/finisher.log.
func DefaultLogFile() string {
	return filepath.Join(xdg.StateHome, "finisher", LogFileName)
}

// Init replaces the global logger.
func Init(opts Options) error {
	var writers []io.Writer

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o750); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    1,
			MaxBackups: 2,
		})
	}

	if opts.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        opts.Console,
			TimeFormat: time.TimeOnly,
		})
	}

	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()

	log.Debug().Bool("deadlock_detection", syncutil.DeadlockEnabled).Msg("logging initialized")
	return nil
}
