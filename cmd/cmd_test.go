// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"io"
	"testing"

	"github.com/Thermoquad/finisher/pkg/link"
	"github.com/Thermoquad/finisher/pkg/settings"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// pipePort feeds the manager whatever is written to its pipe writer and
// discards outbound data.
type pipePort struct {
	*io.PipeReader
}

func (pipePort) Write(p []byte) (int, error) { return len(p), nil }

// connectedManager returns a manager connected to a pipe port, plus the
// writer that feeds it.
func connectedManager(t *testing.T) (*link.Manager, *io.PipeWriter, *link.Subscription) {
	t.Helper()

	pr, pw := io.Pipe()
	opener := func(context.Context, string, int) (link.Port, error) {
		return pipePort{pr}, nil
	}

	m := link.NewManager(opener, settings.NewStoreFs(afero.NewMemMapFs(), "/config"))
	t.Cleanup(func() {
		_ = pw.Close()
		_ = m.Close()
	})

	sub := m.Subscribe(16)
	info, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)
	require.True(t, info.Connected)
	return m, pw, sub
}

// feed writes text to pw without blocking the test on the reader.
func feed(pw *io.PipeWriter, text string) {
	go func() {
		_, _ = pw.Write([]byte(text))
	}()
}

func openTestStore(t *testing.T) *settings.Store {
	t.Helper()
	return settings.NewStoreFs(afero.NewMemMapFs(), "/config")
}

func prefWith(port string, baud int) settings.Preference {
	return settings.Preference{LastPortIdentifier: port, BaudRate: baud}
}
