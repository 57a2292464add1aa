// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"errors"
	"strings"
)

// ErrLineTooLong is returned when a partial line outgrows MaxLineLength. The
// partial line is discarded and decoding resumes at the next delimiter.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// Decoder splits a raw byte stream into lines.
type Decoder struct {
	buffer     []byte
	overflowed bool
}

// NewDecoder creates a new line decoder
func NewDecoder() *Decoder {
	return &Decoder{
		buffer: make([]byte, 0, MaxLineLength),
	}
}

// Reset drops any buffered partial line
func (d *Decoder) Reset() {
	d.buffer = d.buffer[:0]
	d.overflowed = false
}

// Pending returns the number of buffered bytes not yet terminated by a
// delimiter
func (d *Decoder) Pending() int {
	return len(d.buffer)
}

// DecodeByte processes a single byte.
// Returns a completed line, or nil if the line is incomplete or blank.
// Returns ErrLineTooLong once per oversized line.
func (d *Decoder) DecodeByte(b byte) (*Line, error) {
	if b == LineDelimiter {
		if d.overflowed {
			d.Reset()
			return nil, nil
		}
		text := strings.TrimSpace(string(d.buffer))
		d.buffer = d.buffer[:0]
		if text == "" {
			return nil, nil
		}
		return NewLine(text), nil
	}

	if d.overflowed {
		return nil, nil
	}

	if len(d.buffer) >= MaxLineLength {
		d.buffer = d.buffer[:0]
		d.overflowed = true
		return nil, ErrLineTooLong
	}

	d.buffer = append(d.buffer, b)
	return nil, nil
}

// Decode runs DecodeByte over p and collects the completed lines. Errors do
// not stop decoding; the first one is returned alongside the lines.
func (d *Decoder) Decode(p []byte) ([]*Line, error) {
	var (
		lines    []*Line
		firstErr error
	)
	for _, b := range p {
		line, err := d.DecodeByte(b)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if line != nil {
			lines = append(lines, line)
		}
	}
	return lines, firstErr
}
