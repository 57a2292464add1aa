// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

// Framing
const (
	LineDelimiter = '\n'

	// MaxLineLength bounds a buffered partial line. Controller lines are a
	// few dozen bytes; anything longer is noise on the wire.
	MaxLineLength = 512
)

// Telemetry
const (
	StatusPrefix = "STATUS "

	KeyCentralRPM = "centralRPM"
	KeyPlanetRPM  = "planetRPM"
	KeyState      = "state"
)

// Run state tokens the controller reports for a machine that is not running.
// Matching is case-insensitive; every other value means running.
var stoppedStates = []string{"STOPPED", "IDLE"}

// DefaultBaudRate is the controller's serial speed.
const DefaultBaudRate = 115200
