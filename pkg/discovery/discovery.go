// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package discovery

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// ArduinoHint is the vendor substring auto-connect prefers.
const ArduinoHint = "arduino"

// PortDescriptor describes one serial port found on the host.
type PortDescriptor struct {
	Identifier   string // platform path, e.g. /dev/ttyACM0 or COM3
	Manufacturer string // empty when unknown
	FriendlyName string // USB product string, empty when unknown
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
}

// Label returns a short human-readable description of the port.
func (p PortDescriptor) Label() string {
	parts := []string{}
	if p.Manufacturer != "" {
		parts = append(parts, p.Manufacturer)
	}
	if p.FriendlyName != "" {
		parts = append(parts, p.FriendlyName)
	}
	if p.IsUSB && p.VID != "" {
		parts = append(parts, fmt.Sprintf("[%s:%s]", p.VID, p.PID))
	}
	if len(parts) == 0 {
		return p.Identifier
	}
	return p.Identifier + " (" + strings.Join(parts, " ") + ")"
}

// Enumerator lists the detailed ports. Swapped out in tests.
type Enumerator func() ([]*enumerator.PortDetails, error)

// usbVendors maps USB vendor IDs (upper case) to vendor names. The
// enumerator has no manufacturer string, so this is how Arduino-like boards
// are recognized.
var usbVendors = map[string]string{
	"2341": "Arduino LLC",
	"2A03": "Arduino SRL",
	"0403": "FTDI",
	"10C4": "Silicon Labs",
	"1A86": "QinHeng Electronics",
	"239A": "Adafruit",
	"2E8A": "Raspberry Pi",
	"1B4F": "SparkFun",
}

// ListPorts enumerates the serial ports currently present.
func ListPorts() ([]PortDescriptor, error) {
	return ListPortsWith(enumerator.GetDetailedPortsList)
}

// ListPortsWith enumerates ports using the given enumerator. Each call
// enumerates afresh.
func ListPortsWith(enumerate Enumerator) ([]PortDescriptor, error) {
	details, err := enumerate()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]PortDescriptor, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		ports = append(ports, describe(d))
	}
	return ports, nil
}

func describe(d *enumerator.PortDetails) PortDescriptor {
	p := PortDescriptor{
		Identifier:   d.Name,
		IsUSB:        d.IsUSB,
		VID:          strings.ToUpper(d.VID),
		PID:          strings.ToUpper(d.PID),
		SerialNumber: d.SerialNumber,
		FriendlyName: strings.TrimSpace(d.Product),
	}
	if p.IsUSB {
		p.Manufacturer = usbVendors[p.VID]
	}
	return p
}

// VendorMatches reports whether the port's manufacturer or friendly name
// contains hint, ignoring case.
func VendorMatches(p PortDescriptor, hint string) bool {
	if hint == "" {
		return false
	}
	hint = strings.ToLower(hint)
	return strings.Contains(strings.ToLower(p.Manufacturer), hint) ||
		strings.Contains(strings.ToLower(p.FriendlyName), hint)
}
