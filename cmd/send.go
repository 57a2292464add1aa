// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/finisher/pkg/protocol"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <command...>",
	Short: "Send one command to the controller",
	Long: `Send a single protocol command and exit.

Commands:
  START     start a run
  SOP       start a run in special operating mode
  STOP      stop the machine
  C UP      raise central spindle speed
  C DOWN    lower central spindle speed
  P UP      raise planet spindle speed
  P DOWN    lower planet spindle speed

Case and spacing are normalized, so "c up" and "C  UP" both work. The
controller does not acknowledge commands.

Examples:
  finisher send start
  finisher send p down --port /dev/ttyACM0`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	command, ok := protocol.ParseCommand(text)
	if !ok {
		return fmt.Errorf("unknown command %q", text)
	}

	s := newSession(GetPassword)
	defer s.close()

	info, err := s.mustConnect(cmd.Context())
	if err != nil {
		return err
	}

	if err := s.manager.Send(command); err != nil {
		return err
	}

	fmt.Printf("Sent %s via %s\n", command, describe(info))
	return nil
}
