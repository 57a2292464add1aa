// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/finisher/pkg/link"
	"github.com/Thermoquad/finisher/pkg/protocol"
	"github.com/spf13/cobra"
)

var statusTimeout int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Wait for one STATUS line and print it",
	Long: `Connect, wait for the next STATUS line from the controller and print it
both raw and decoded.

Exit codes:
  0 - Status received
  1 - Connection failed, lost, or no status within --timeout`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusTimeout, "timeout", 5, "Seconds to wait for a status line")
}

func runStatus(cmd *cobra.Command, args []string) error {
	s := newSession(GetPassword)
	defer s.close()

	// subscribe before connecting so the first line is not missed
	sub := s.manager.Subscribe(16)
	defer sub.Unsubscribe()

	info, err := s.mustConnect(cmd.Context())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(statusTimeout)*time.Second)
	defer cancel()

	line, err := waitForStatus(ctx, sub)
	if err != nil {
		return err
	}

	fmt.Printf("Connection: %s\n", describe(info))
	fmt.Println(line.Text())
	snap, _ := protocol.ParseStatus(line.Text())
	fmt.Print(protocol.FormatSnapshot(snap))
	return nil
}

func waitForStatus(ctx context.Context, sub *link.Subscription) (*protocol.Line, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no status line received: %w", ctx.Err())
		case ev, ok := <-sub.C():
			if !ok {
				return nil, errors.New("connection closed before a status line arrived")
			}
			switch {
			case ev.Kind == link.EventConnection && ev.Reason == link.ReasonLost:
				if ev.Err != nil {
					return nil, fmt.Errorf("connection lost: %w", ev.Err)
				}
				return nil, errors.New("connection lost")
			case ev.Kind == link.EventLine && ev.Line.IsStatus():
				return ev.Line, nil
			}
		}
	}
}
