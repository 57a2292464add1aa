// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package settings persists the serial connection preference between runs.
//
// The store is best effort: a missing or corrupt file reads back as an empty
// Preference and write failures are dropped after logging. Nothing in here
// may stop a connection attempt.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	AppName  = "finisher"
	FileName = "serial-settings.toml"
)

var (
	ErrNotFound = errors.New("settings file not found")
	ErrCorrupt  = errors.New("settings file corrupt")
)

// Preference is the last successful connection. Zero values mean "no
// preference".
type Preference struct {
	LastPortIdentifier string `toml:"last_port,omitempty"`
	BaudRate           int    `toml:"baud_rate,omitempty"`
}

// IsEmpty reports whether the preference carries no information.
func (p Preference) IsEmpty() bool {
	return p.LastPortIdentifier == "" && p.BaudRate == 0
}

// Store reads and writes a Preference file.
type Store struct {
	fs   afero.Fs
	path string
}

// DefaultDir returns the application-private config directory.
func DefaultDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// NewStore creates a store backed by the OS file system. An empty dir uses
// DefaultDir.
func NewStore(dir string) *Store {
	return NewStoreFs(afero.NewOsFs(), dir)
}

// NewStoreFs creates a store on the given file system.
func NewStoreFs(fs afero.Fs, dir string) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{
		fs:   fs,
		path: filepath.Join(dir, FileName),
	}
}

// Path returns the preference file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored preference, or an empty one if the file is missing
// or cannot be parsed.
func (s *Store) Load() Preference {
	pref, err := s.read()
	switch {
	case err == nil:
		return pref
	case errors.Is(err, ErrNotFound):
		log.Debug().Str("path", s.path).Msg("no saved serial preference")
	default:
		log.Warn().Err(err).Str("path", s.path).Msg("ignoring serial preference")
	}
	return Preference{}
}

// Save writes the preference. Failures are logged and otherwise ignored.
func (s *Store) Save(pref Preference) {
	if err := s.write(pref); err != nil {
		log.Debug().Err(err).Str("path", s.path).Msg("failed to save serial preference")
	}
}

func (s *Store) read() (Preference, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Preference{}, ErrNotFound
		}
		return Preference{}, fmt.Errorf("failed to read settings file: %w", err)
	}

	var pref Preference
	if err := toml.Unmarshal(data, &pref); err != nil {
		return Preference{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if pref.BaudRate < 0 {
		return Preference{}, fmt.Errorf("%w: negative baud rate %d", ErrCorrupt, pref.BaudRate)
	}
	return pref, nil
}

func (s *Store) write(pref Preference) error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := toml.Marshal(pref)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	// Write to a sibling file first so a crash mid-write leaves the old
	// preference in place.
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}
