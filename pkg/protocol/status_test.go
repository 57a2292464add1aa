// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import "testing"

func ptr[T any](v T) *T { return &v }

func TestIsStatusLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"STATUS centralRPM=1", true},
		{"STATUS ", true},
		{"STATUS", false},
		{"status centralRPM=1", false},
		{"STATUS\tcentralRPM=1", false},
		{" STATUS centralRPM=1", false},
		{"BOOT OK", false},
	}

	for _, tt := range tests {
		if got := IsStatusLine(tt.line); got != tt.want {
			t.Errorf("IsStatusLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestSplitKeyValues(t *testing.T) {
	kv := SplitKeyValues("a=1 b c=x=y  d= =e")

	want := map[string]string{"a": "1", "c": "x=y", "d": "", "": "e"}
	if len(kv) != len(want) {
		t.Fatalf("SplitKeyValues returned %d keys, want %d: %v", len(kv), len(want), kv)
	}
	for k, v := range want {
		if kv[k] != v {
			t.Errorf("kv[%q] = %q, want %q", k, kv[k], v)
		}
	}
	if _, ok := kv["b"]; ok {
		t.Error("token without '=' should be ignored")
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantOK      bool
		wantCentral *float64
		wantPlanet  *float64
		wantState   *RunState
	}{
		{
			name:        "bad planet number is skipped",
			line:        "STATUS centralRPM=120 planetRPM=abc state=RUNNING",
			wantOK:      true,
			wantCentral: ptr(120.0),
			wantState:   ptr(RunStateRunning),
		},
		{
			name:      "idle is stopped regardless of case",
			line:      "STATUS state=Idle",
			wantOK:    true,
			wantState: ptr(RunStateStopped),
		},
		{
			name:      "stopped",
			line:      "STATUS state=stopped",
			wantOK:    true,
			wantState: ptr(RunStateStopped),
		},
		{
			name:      "unknown state means running",
			line:      "STATUS state=HOMING",
			wantOK:    true,
			wantState: ptr(RunStateRunning),
		},
		{
			name:        "fractional rpm",
			line:        "STATUS centralRPM=99.6 planetRPM=-3",
			wantOK:      true,
			wantCentral: ptr(99.6),
			wantPlanet:  ptr(-3.0),
		},
		{
			name:   "unknown keys and bare tokens",
			line:   "STATUS temp=40 hello",
			wantOK: true,
		},
		{
			name:   "empty and non-finite numbers are skipped",
			line:   "STATUS centralRPM= planetRPM=NaN",
			wantOK: true,
		},
		{
			name:   "not a status line",
			line:   "READY",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, ok := ParseStatus(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ParseStatus ok = %v, want %v", ok, tt.wantOK)
			}
			checkFloat(t, "CentralRPM", snap.CentralRPM, tt.wantCentral)
			checkFloat(t, "PlanetRPM", snap.PlanetRPM, tt.wantPlanet)

			switch {
			case tt.wantState == nil && snap.RunState != nil:
				t.Errorf("RunState = %v, want nil", *snap.RunState)
			case tt.wantState != nil && snap.RunState == nil:
				t.Errorf("RunState = nil, want %v", *tt.wantState)
			case tt.wantState != nil && *snap.RunState != *tt.wantState:
				t.Errorf("RunState = %v, want %v", *snap.RunState, *tt.wantState)
			}
		})
	}
}

func checkFloat(t *testing.T, name string, got, want *float64) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Errorf("%s = %v, want nil", name, *got)
	case want != nil && got == nil:
		t.Errorf("%s = nil, want %v", name, *want)
	case want != nil && *got != *want:
		t.Errorf("%s = %v, want %v", name, *got, *want)
	}
}
