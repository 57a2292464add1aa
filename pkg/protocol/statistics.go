// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"fmt"
	"time"
)

// Statistics tracks line counts and anomaly rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalLines      uint64
	StatusLines     uint64
	OtherLines      uint64
	ValidStatus     uint64
	DecodeErrors    uint64
	Anomalies       uint64
	InvalidNumbers  uint64
	UnknownKeys     uint64
	MalformedTokens uint64
	LongLines       uint64

	// Rates (calculated)
	LineRate    float64 // lines/sec
	AnomalyRate float64 // anomalies/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one decoded line or one decode error
func (s *Statistics) Update(line *Line, decodeErr error, validationErrors []ValidationError) {
	if decodeErr != nil {
		s.DecodeErrors++
		if anomaly, ok := DecodeAnomaly(decodeErr); ok {
			s.countAnomaly(anomaly)
		}
		s.LastUpdateTime = time.Now()
		return
	}
	if line == nil {
		return
	}

	s.TotalLines++
	if !line.IsStatus() {
		s.OtherLines++
		s.LastUpdateTime = time.Now()
		return
	}

	s.StatusLines++
	if len(validationErrors) == 0 {
		s.ValidStatus++
	}
	for _, err := range validationErrors {
		s.countAnomaly(err)
	}

	s.LastUpdateTime = time.Now()
}

func (s *Statistics) countAnomaly(v ValidationError) {
	s.Anomalies++
	switch v.Type {
	case AnomalyInvalidNumber, AnomalyNegativeRPM:
		s.InvalidNumbers++
	case AnomalyUnknownKey:
		s.UnknownKeys++
	case AnomalyMissingSeparator, AnomalyEmptyValue:
		s.MalformedTokens++
	case AnomalyLineTooLong:
		s.LongLines++
	}
}

// CalculateRates calculates line and anomaly rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.LineRate = float64(s.TotalLines) / elapsed
		s.AnomalyRate = float64(s.Anomalies) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.StatusLines > 0 {
		validPercent = float64(s.ValidStatus) * 100.0 / float64(s.StatusLines)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Lines:     %8d\n", s.TotalLines)
	result += fmt.Sprintf("Status Lines:    %8d (%.1f%% clean)\n", s.StatusLines, validPercent)
	result += fmt.Sprintf("Other Lines:     %8d\n", s.OtherLines)

	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d\n", s.Anomalies)
		if s.InvalidNumbers > 0 {
			result += fmt.Sprintf("  Bad Numbers:      %5d\n", s.InvalidNumbers)
		}
		if s.UnknownKeys > 0 {
			result += fmt.Sprintf("  Unknown Keys:     %5d\n", s.UnknownKeys)
		}
		if s.MalformedTokens > 0 {
			result += fmt.Sprintf("  Malformed Tokens: %5d\n", s.MalformedTokens)
		}
		if s.LongLines > 0 {
			result += fmt.Sprintf("  Long Lines:       %5d\n", s.LongLines)
		}
	}

	result += fmt.Sprintf("Line Rate:       %8.1f lines/sec\n", s.LineRate)
	result += fmt.Sprintf("Anomaly Rate:    %8.1f anomalies/sec\n", s.AnomalyRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
