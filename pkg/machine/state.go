// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package machine mirrors the finishing machine's state locally: spindle
// speeds, the run countdown and the abrasive-life counter, reconciled with
// telemetry from the controller.
package machine

import (
	"fmt"
	"time"

	"github.com/Thermoquad/finisher/pkg/protocol"
)

const (
	// TickInterval drives the countdown and abrasive timers.
	TickInterval = time.Second

	// RPMStep is the change applied by one speed adjustment.
	RPMStep = 10

	// AbrasiveLifeMs is the abrasive life of a fresh charge: 12 hours.
	AbrasiveLifeMs int64 = 12 * 60 * 60 * 1000

	tickMs int64 = 1000
)

// State is the locally mirrored machine state.
type State struct {
	CentralRPM  int
	PlanetRPM   int
	TimeMins    int
	Running     bool
	CountdownMs int64
	AbrasiveMs  int64
	Connected   bool

	// LastCommand is the most recent command sent, successfully or not.
	LastCommand protocol.Command
}

// InitialState returns the state at startup: everything zero except a full
// abrasive counter.
func InitialState() State {
	return State{AbrasiveMs: AbrasiveLifeMs}
}

// CanStart reports whether a run may be started.
func (s State) CanStart() bool {
	return !s.Running
}

func (s State) String() string {
	run := "stopped"
	if s.Running {
		run = "running"
	}
	return fmt.Sprintf("central=%d planet=%d time=%dm %s countdown=%s abrasive=%s",
		s.CentralRPM, s.PlanetRPM, s.TimeMins, run,
		FormatMMSS(s.CountdownMs), FormatHHMMSS(s.AbrasiveMs))
}

// FormatMMSS renders ms as MM:SS. Minutes are not wrapped at 60.
func FormatMMSS(ms int64) string {
	total := wholeSeconds(ms)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatHHMMSS renders ms as HH:MM:SS.
func FormatHHMMSS(ms int64) string {
	total := wholeSeconds(ms)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

func wholeSeconds(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	return ms / 1000
}
