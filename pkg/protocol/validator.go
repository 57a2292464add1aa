// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AnomalyType represents different kinds of telemetry anomalies
type AnomalyType int

const (
	AnomalyMissingSeparator AnomalyType = iota
	AnomalyUnknownKey
	AnomalyInvalidNumber
	AnomalyEmptyValue
	AnomalyNegativeRPM
	AnomalyLineTooLong
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyMissingSeparator:
		return "missing separator"
	case AnomalyUnknownKey:
		return "unknown key"
	case AnomalyInvalidNumber:
		return "invalid number"
	case AnomalyEmptyValue:
		return "empty value"
	case AnomalyNegativeRPM:
		return "negative rpm"
	case AnomalyLineTooLong:
		return "line too long"
	default:
		return "unknown"
	}
}

// ValidationError describes one anomaly found in a status line. Anomalies
// never stop decoding; ParseStatus already skips the affected field.
type ValidationError struct {
	Type    AnomalyType
	Token   string
	Message string
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// DecodeAnomaly classifies an error returned by the Decoder.
func DecodeAnomaly(err error) (ValidationError, bool) {
	if errors.Is(err, ErrLineTooLong) {
		return ValidationError{Type: AnomalyLineTooLong, Message: err.Error()}, true
	}
	return ValidationError{}, false
}

// ValidateStatus checks a STATUS line token by token. Non-status lines are
// opaque and always valid.
func ValidateStatus(line string) []ValidationError {
	if !IsStatusLine(line) {
		return nil
	}

	var errs []ValidationError
	for _, token := range strings.Split(line[len(StatusPrefix):], " ") {
		if token == "" {
			continue
		}
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			errs = append(errs, ValidationError{
				Type:    AnomalyMissingSeparator,
				Token:   token,
				Message: fmt.Sprintf("token %q has no '='", token),
			})
			continue
		}
		if value == "" {
			errs = append(errs, ValidationError{
				Type:    AnomalyEmptyValue,
				Token:   token,
				Message: fmt.Sprintf("key %s has an empty value", key),
			})
			continue
		}

		switch key {
		case KeyCentralRPM, KeyPlanetRPM:
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				errs = append(errs, ValidationError{
					Type:    AnomalyInvalidNumber,
					Token:   token,
					Message: fmt.Sprintf("%s=%s is not a number", key, value),
				})
				continue
			}
			if v < 0 {
				errs = append(errs, ValidationError{
					Type:    AnomalyNegativeRPM,
					Token:   token,
					Message: fmt.Sprintf("%s=%s is negative", key, value),
				})
			}
		case KeyState:
		default:
			errs = append(errs, ValidationError{
				Type:    AnomalyUnknownKey,
				Token:   token,
				Message: fmt.Sprintf("unknown key %s", key),
			})
		}
	}
	return errs
}
