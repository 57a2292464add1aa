// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"fmt"
	"math"
	"strings"
)

// FormatLine formats a line into a human-readable string
func FormatLine(l *Line) string {
	timestamp := l.Timestamp().Format("15:04:05.000")
	if !l.IsStatus() {
		return fmt.Sprintf("[%s] LOG    %s\n", timestamp, l.Text())
	}

	result := fmt.Sprintf("[%s] STATUS %s\n", timestamp, l.Text()[len(StatusPrefix):])
	snap, _ := ParseStatus(l.Text())
	result += FormatSnapshot(snap)
	for _, err := range ValidateStatus(l.Text()) {
		result += fmt.Sprintf("  ! %s\n", err.Message)
	}
	return result
}

// FormatSnapshot renders the decoded fields of a snapshot, one per line
func FormatSnapshot(s StatusSnapshot) string {
	if s.IsEmpty() {
		return "  (no recognized fields)\n"
	}

	var b strings.Builder
	if s.CentralRPM != nil {
		fmt.Fprintf(&b, "  Central: %d RPM\n", int(math.Round(*s.CentralRPM)))
	}
	if s.PlanetRPM != nil {
		fmt.Fprintf(&b, "  Planet:  %d RPM\n", int(math.Round(*s.PlanetRPM)))
	}
	if s.RunState != nil {
		fmt.Fprintf(&b, "  State:   %s\n", s.RunState)
	}
	return b.String()
}
