// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/finisher/pkg/link"
	"github.com/Thermoquad/finisher/pkg/protocol"
	"github.com/spf13/cobra"
)

var (
	anomaliesOnly bool
	statsInterval int
	monitorTUI    bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display controller output in human-readable form",
	Long: `Continuously display lines from the controller as they arrive.

STATUS lines are decoded into spindle speeds and run state and checked for
anomalies:
  - tokens without '='
  - unknown keys
  - numbers that do not parse, and negative speeds
  - empty values
Other lines are shown as log output. Lines longer than the decoder limit
are discarded and counted.

Statistics are printed periodically; --stats-interval 0 disables them.
Use --tui for a full-screen view.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&anomaliesOnly, "anomalies-only", false, "Only show status lines with anomalies")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics interval in seconds (0 to disable)")
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "Use terminal UI")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	s := newSession(GetPassword)
	defer s.close()

	sub := s.manager.Subscribe(64)
	defer sub.Unsubscribe()

	info, err := s.mustConnect(cmd.Context())
	if err != nil {
		return err
	}

	if monitorTUI {
		return runMonitorTUI(sub, info)
	}

	fmt.Printf("Finisher - Line Monitor\n")
	fmt.Printf("Connection: %s\n", describe(info))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	return monitorText(cmd.Context(), os.Stdout, sub, time.Duration(statsInterval)*time.Second)
}

// monitorText prints events from sub until ctx is done or the connection
// ends. A zero interval disables periodic statistics.
func monitorText(ctx context.Context, w io.Writer, sub *link.Subscription, interval time.Duration) error {
	stats := protocol.NewStatistics()

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w)
			fmt.Fprint(w, stats.String())
			return nil

		case <-tick:
			fmt.Fprintln(w)
			fmt.Fprint(w, stats.String())
			fmt.Fprintln(w)

		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := printEvent(w, stats, ev); err != nil {
				return err
			}
		}
	}
}

// printEvent renders one event and records it in stats. It returns an
// error when the connection was lost.
func printEvent(w io.Writer, stats *protocol.Statistics, ev link.Event) error {
	switch ev.Kind {
	case link.EventLine:
		validationErrors := protocol.ValidateStatus(ev.Line.Text())
		stats.Update(ev.Line, nil, validationErrors)
		if anomaliesOnly && len(validationErrors) == 0 {
			return nil
		}
		fmt.Fprint(w, protocol.FormatLine(ev.Line))

	case link.EventDiscard:
		stats.Update(nil, ev.Err, nil)
		fmt.Fprintf(w, "[%s] \033[1;31mDISCARDED:\033[0m %v\n", time.Now().Format("15:04:05.000"), ev.Err)

	case link.EventConnection:
		if ev.Reason == link.ReasonLost {
			if ev.Err != nil {
				return fmt.Errorf("connection lost: %w", ev.Err)
			}
			return errors.New("connection lost")
		}
	}
	return nil
}
