// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/Thermoquad/finisher/pkg/link"
	"github.com/Thermoquad/finisher/pkg/settings"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// ErrNoController is returned when no port could be opened.
var ErrNoController = errors.New("no controller found; use --port or --url to pick one")

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("FINISHER_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// session bundles the preference store and the connection manager built
// from the persistent flags.
type session struct {
	store   *settings.Store
	manager *link.Manager
}

// newSession builds a session. password is consulted only when a
// WebSocket bridge is dialed with --username set.
func newSession(password func() (string, error)) *session {
	store := openStore()

	opener := link.NewOpener(link.WebSocketOptions{
		Username:      wsUsername,
		SkipSSLVerify: wsNoSSLVerify,
		Password:      password,
	})

	return &session{
		store:   store,
		manager: link.NewManager(opener, store),
	}
}

// openStore opens the preference store in --config-dir or the default
// location.
func openStore() *settings.Store {
	dir := configDir
	if dir == "" {
		dir = settings.DefaultDir()
	}
	return settings.NewStore(dir)
}

// target returns the identifier named by --url or --port, or "" for
// auto-connect.
func target() string {
	if wsURL != "" {
		return wsURL
	}
	return portName
}

// connect opens the flagged target, or auto-connects when none is given.
// It does not fail when auto-connect finds nothing; the caller checks
// info.Connected.
func (s *session) connect(ctx context.Context) (link.ConnectionInfo, error) {
	if id := target(); id != "" {
		return s.manager.Connect(ctx, id, effectiveBaud(s.store.Load().BaudRate))
	}

	auto := link.NewAutoConnector(s.manager, s.store)
	if baudRate > 0 {
		// an explicit --baud overrides the saved one during auto-connect
		auto.Prefs = flagBaudPrefs{loader: s.store, baud: baudRate}
	}
	return auto.Run(ctx)
}

// mustConnect is connect for commands that need a live controller.
func (s *session) mustConnect(ctx context.Context) (link.ConnectionInfo, error) {
	info, err := s.connect(ctx)
	if err != nil {
		return info, err
	}
	if !info.Connected {
		return info, ErrNoController
	}
	return info, nil
}

func (s *session) close() {
	if err := s.manager.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing connection")
	}
}

type flagBaudPrefs struct {
	loader link.PreferenceLoader
	baud   int
}

func (f flagBaudPrefs) Load() settings.Preference {
	pref := f.loader.Load()
	pref.BaudRate = f.baud
	return pref
}

func describe(info link.ConnectionInfo) string {
	if !info.Connected {
		return "not connected"
	}
	if link.IsWebSocketURL(info.Identifier) {
		return "WebSocket: " + info.Identifier
	}
	mode := "Serial"
	if info.Auto {
		mode = "Serial (auto)"
	}
	return fmt.Sprintf("%s: %s", mode, info.Identifier)
}

// cachedPassword resolves the password once, up front. The control TUI
// uses it since the terminal cannot be prompted once the TUI owns it.
func cachedPassword() (func() (string, error), error) {
	if wsURL == "" || wsUsername == "" {
		return GetPassword, nil
	}
	pw, err := GetPassword()
	if err != nil {
		return nil, err
	}
	return func() (string, error) { return pw, nil }, nil
}
