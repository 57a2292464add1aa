// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"math"
	"strconv"
	"strings"
)

// RunState is the controller's coarse machine state.
type RunState int

const (
	RunStateRunning RunState = iota
	RunStateStopped
)

func (s RunState) String() string {
	if s == RunStateStopped {
		return "STOPPED"
	}
	return "RUNNING"
}

// StatusSnapshot is the decoded content of one STATUS line. Each field is
// nil when the line did not carry a usable value for it.
type StatusSnapshot struct {
	CentralRPM *float64
	PlanetRPM  *float64
	RunState   *RunState
}

// IsEmpty reports whether no field was decoded.
func (s StatusSnapshot) IsEmpty() bool {
	return s.CentralRPM == nil && s.PlanetRPM == nil && s.RunState == nil
}

// IsStatusLine reports whether line is telemetry. The prefix is case
// sensitive and takes exactly one space.
func IsStatusLine(line string) bool {
	return strings.HasPrefix(line, StatusPrefix)
}

// SplitKeyValues splits space separated key=value tokens. Each token is cut
// at its first '='; tokens without one are skipped. Later keys win.
func SplitKeyValues(s string) map[string]string {
	kv := make(map[string]string)
	for _, token := range strings.Split(s, " ") {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}
		kv[key] = value
	}
	return kv
}

// ParseStatus decodes a STATUS line. It returns false when line is not
// telemetry. Malformed fields are skipped without affecting the others.
func ParseStatus(line string) (StatusSnapshot, bool) {
	if !IsStatusLine(line) {
		return StatusSnapshot{}, false
	}

	kv := SplitKeyValues(line[len(StatusPrefix):])

	var snap StatusSnapshot
	if v, ok := parseNumber(kv, KeyCentralRPM); ok {
		snap.CentralRPM = &v
	}
	if v, ok := parseNumber(kv, KeyPlanetRPM); ok {
		snap.PlanetRPM = &v
	}
	if raw, ok := kv[KeyState]; ok && raw != "" {
		st := ClassifyRunState(raw)
		snap.RunState = &st
	}
	return snap, true
}

// ClassifyRunState maps a controller state token to a RunState.
func ClassifyRunState(raw string) RunState {
	for _, s := range stoppedStates {
		if strings.EqualFold(raw, s) {
			return RunStateStopped
		}
	}
	return RunStateRunning
}

func parseNumber(kv map[string]string, key string) (float64, bool) {
	raw, ok := kv[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
