// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/Thermoquad/finisher/pkg/link"
	"github.com/Thermoquad/finisher/pkg/machine"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var noReconnect bool

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for running the finishing machine",
	Long: `Run the finishing machine from an interactive terminal UI.

The UI mirrors the machine locally:
  - central and planet spindle speeds
  - the run length and the countdown of the current run
  - the remaining abrasive life, which only counts down while running

Speeds and run state are corrected from STATUS lines as they arrive. The
run stops automatically when the countdown reaches zero.

Without --port or --url the controller is found by auto-connect. The UI
keeps working without a controller attached; commands are then dropped.
A connection lost on its own is retried with exponential backoff.

Keys:
  s=start  o=start SOP  x=stop
  tab=next field  up/down=adjust field
  c=connect  d=disconnect  q=quit`,
	Annotations: map[string]string{annotationTUI: "true"},
	RunE:        runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().BoolVar(&noReconnect, "no-reconnect", false, "Do not reconnect after the connection is lost")
}

func runControl(cmd *cobra.Command, args []string) error {
	password, err := cachedPassword()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s := newSession(password)
	defer s.close()

	synchronizer := machine.NewSynchronizer(s.manager)

	// Subscribe before the TUI starts connecting so no event is missed
	stateSub := s.manager.Subscribe(64)
	logSub := s.manager.Subscribe(64)

	m := initialControlModel(ctx, s, synchronizer)
	p := tea.NewProgram(m, tea.WithAltScreen())

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = synchronizer.Run(ctx, stateSub.C(), func(machine.State) {
			p.Send(stateMsg{})
		})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		forwardEvents(p, logSub)
	}()

	if !noReconnect {
		r := link.NewReconnector(s.manager, effectiveBaud(s.store.Load().BaudRate))
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	}

	_, runErr := p.Run()

	cancel()
	logSub.Unsubscribe()
	stateSub.Unsubscribe()
	wg.Wait()

	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}
