// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"

	"github.com/Thermoquad/finisher/pkg/link"
	"github.com/stretchr/testify/assert"
)

func TestEffectiveBaud(t *testing.T) {
	saved := baudRate
	t.Cleanup(func() { baudRate = saved })

	baudRate = 0
	assert.Equal(t, 115200, effectiveBaud(0))
	assert.Equal(t, 9600, effectiveBaud(9600))

	baudRate = 57600
	assert.Equal(t, 57600, effectiveBaud(9600))
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		info link.ConnectionInfo
		want string
	}{
		{"disconnected", link.ConnectionInfo{}, "not connected"},
		{"serial", link.ConnectionInfo{Connected: true, Identifier: "/dev/ttyACM0"}, "Serial: /dev/ttyACM0"},
		{"auto", link.ConnectionInfo{Connected: true, Identifier: "COM3", Auto: true}, "Serial (auto): COM3"},
		{"websocket", link.ConnectionInfo{Connected: true, Identifier: "ws://bridge/serial"}, "WebSocket: ws://bridge/serial"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(tt.info))
		})
	}
}

func TestFlagBaudPrefs_OverridesSavedBaud(t *testing.T) {
	store := openTestStore(t)
	store.Save(prefWith("/dev/ttyUSB0", 9600))

	got := flagBaudPrefs{loader: store, baud: 57600}.Load()
	assert.Equal(t, "/dev/ttyUSB0", got.LastPortIdentifier)
	assert.Equal(t, 57600, got.BaudRate)
}
