// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var connectJSON bool

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to the controller and report the result",
	Long: `Open a connection, report it and close it again.

Without --port or --url this runs auto-connect. A successful connection is
remembered, so the next auto-connect tries the same port first.

Exit codes:
  0 - Connected
  1 - No controller found or the connection failed`,
	RunE: runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)
	connectCmd.Flags().BoolVar(&connectJSON, "json", false, "Print the connection info as JSON")
}

func runConnect(cmd *cobra.Command, args []string) error {
	s := newSession(GetPassword)
	defer s.close()

	info, err := s.mustConnect(cmd.Context())
	if err != nil {
		return err
	}

	if connectJSON {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(info)
	}

	fmt.Printf("Connected: %s\n", describe(info))
	fmt.Printf("Saved to:  %s\n", s.store.Path())
	return nil
}
