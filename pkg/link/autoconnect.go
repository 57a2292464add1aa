// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"

	"github.com/Thermoquad/finisher/pkg/discovery"
	"github.com/Thermoquad/finisher/pkg/protocol"
	"github.com/Thermoquad/finisher/pkg/settings"
	"github.com/rs/zerolog/log"
)

// PreferenceLoader returns the saved connection preference.
type PreferenceLoader interface {
	Load() settings.Preference
}

// Candidates orders the identifiers auto-connect tries: the saved port,
// then ports whose metadata matches hint, then every port. Duplicates keep
// their first position and empty identifiers are dropped.
func Candidates(pref settings.Preference, ports []discovery.PortDescriptor, hint string) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	add(pref.LastPortIdentifier)
	for _, p := range ports {
		if discovery.VendorMatches(p, hint) {
			add(p.Identifier)
		}
	}
	for _, p := range ports {
		add(p.Identifier)
	}
	return out
}

// AutoConnector finds and connects to the controller without operator
// input.
type AutoConnector struct {
	Manager    *Manager
	Prefs      PreferenceLoader
	ListPorts  func() ([]discovery.PortDescriptor, error)
	VendorHint string
}

// NewAutoConnector wires an AutoConnector with live port discovery and the
// Arduino vendor hint.
func NewAutoConnector(m *Manager, prefs PreferenceLoader) *AutoConnector {
	return &AutoConnector{
		Manager:    m,
		Prefs:      prefs,
		ListPorts:  discovery.ListPorts,
		VendorHint: discovery.ArduinoHint,
	}
}

// Run tries each candidate in order and stops at the first successful
// connect. Per-candidate failures are logged and skipped. The returned info
// always has Auto set; the error is non-nil only when ctx is done.
func (a *AutoConnector) Run(ctx context.Context) (ConnectionInfo, error) {
	if info := a.Manager.ConnectionInfo(); info.Connected {
		info.Auto = true
		return info, nil
	}

	var pref settings.Preference
	if a.Prefs != nil {
		pref = a.Prefs.Load()
	}
	baud := pref.BaudRate
	if baud <= 0 {
		baud = protocol.DefaultBaudRate
	}

	var ports []discovery.PortDescriptor
	if a.ListPorts != nil {
		var err error
		ports, err = a.ListPorts()
		if err != nil {
			log.Warn().Err(err).Msg("auto-connect: port discovery failed")
		}
	}

	candidates := Candidates(pref, ports, a.VendorHint)
	log.Debug().Strs("candidates", candidates).Msg("auto-connect")

	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			info := a.Manager.ConnectionInfo()
			info.Auto = true
			return info, err
		}

		info, err := a.Manager.Connect(ctx, id, baud)
		if err != nil {
			log.Debug().Err(err).Str("port", id).Msg("auto-connect candidate failed")
			continue
		}
		if info.Connected {
			log.Info().Str("port", info.Identifier).Msg("auto-connected")
			info.Auto = true
			return info, nil
		}
	}

	info := a.Manager.ConnectionInfo()
	info.Auto = true
	if !info.Connected {
		log.Info().Int("candidates", len(candidates)).Msg("auto-connect found no controller")
	}
	return info, nil
}
