// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/finisher/pkg/link"
	"github.com/spf13/cobra"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Print controller lines exactly as received",
	Long: `Continuously print every line from the controller with a timestamp and
no decoding. Discarded overlong lines are reported in place.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	s := newSession(GetPassword)
	defer s.close()

	sub := s.manager.Subscribe(64)
	defer sub.Unsubscribe()

	info, err := s.mustConnect(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Finisher - Raw Line Log\n")
	fmt.Printf("Connection: %s\n", describe(info))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if done := printRaw(os.Stdout, ev); done {
				return nil
			}
		}
	}
}

// printRaw writes one event and reports whether the connection ended.
func printRaw(w io.Writer, ev link.Event) bool {
	switch ev.Kind {
	case link.EventLine:
		fmt.Fprintf(w, "[%s] %s\n", ev.Line.Timestamp().Format("15:04:05.000"), ev.Line.Text())
	case link.EventDiscard:
		fmt.Fprintf(w, "[%s] [DISCARDED] %v\n", time.Now().Format("15:04:05.000"), ev.Err)
	case link.EventConnection:
		if ev.Reason == link.ReasonLost {
			fmt.Fprintf(w, "Connection closed\n")
			return true
		}
	}
	return false
}
