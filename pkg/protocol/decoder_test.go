// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"errors"
	"strings"
	"testing"
)

func lineTexts(lines []*Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text()
	}
	return out
}

func TestDecoder_SplitsAndTrims(t *testing.T) {
	d := NewDecoder()

	lines, err := d.Decode([]byte("  BOOT OK \r\n\n   \nSTATUS centralRPM=10\r\nREA"))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	got := lineTexts(lines)
	want := []string{"BOOT OK", "STATUS centralRPM=10"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("lines = %q, want %q", got, want)
	}
	if !lines[1].IsStatus() || lines[0].IsStatus() {
		t.Error("status classification wrong")
	}
	if d.Pending() != 3 {
		t.Errorf("Pending() = %d, want 3", d.Pending())
	}

	lines, _ = d.Decode([]byte("DY\n"))
	if len(lines) != 1 || lines[0].Text() != "READY" {
		t.Errorf("partial line not completed: %q", lineTexts(lines))
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	d := NewDecoder()
	input := "STATUS state=IDLE\nSTOPPED\n"

	var got []string
	for i := 0; i < len(input); i++ {
		line, err := d.DecodeByte(input[i])
		if err != nil {
			t.Fatalf("DecodeByte error: %v", err)
		}
		if line != nil {
			got = append(got, line.Text())
		}
	}

	if len(got) != 2 || got[0] != "STATUS state=IDLE" || got[1] != "STOPPED" {
		t.Errorf("lines = %q", got)
	}
}

func TestDecoder_Overflow(t *testing.T) {
	d := NewDecoder()

	long := strings.Repeat("x", MaxLineLength+10)
	lines, err := d.Decode([]byte(long + "\nOK\n"))
	if !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("err = %v, want ErrLineTooLong", err)
	}
	if len(lines) != 1 || lines[0].Text() != "OK" {
		t.Errorf("decoder did not resync after overflow: %q", lineTexts(lines))
	}
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	_, _ = d.Decode([]byte("partial"))
	d.Reset()

	lines, _ := d.Decode([]byte("\n"))
	if len(lines) != 0 {
		t.Errorf("Reset did not drop partial line: %q", lineTexts(lines))
	}
}
