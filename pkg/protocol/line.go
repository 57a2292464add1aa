// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import "time"

// Line is one trimmed, non-empty line received from the controller.
type Line struct {
	text      string
	status    bool
	timestamp time.Time
}

// NewLine classifies text and stamps it with the current time.
func NewLine(text string) *Line {
	return &Line{
		text:      text,
		status:    IsStatusLine(text),
		timestamp: time.Now(),
	}
}

// Text returns the line without its delimiter or surrounding whitespace.
func (l *Line) Text() string {
	return l.text
}

// IsStatus reports whether the line is telemetry.
func (l *Line) IsStatus() bool {
	return l.status
}

// Timestamp returns when the line was decoded.
func (l *Line) Timestamp() time.Time {
	return l.timestamp
}
