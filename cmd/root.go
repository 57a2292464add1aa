// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/finisher/pkg/applog"
	"github.com/Thermoquad/finisher/pkg/protocol"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Local state
	configDir string
	logFile   string
	debug     bool
)

// annotationTUI marks commands that own the terminal, so logs go to the
// file only.
const annotationTUI = "tui"

var rootCmd = &cobra.Command{
	Use:   "finisher",
	Short: "Centrifugal disc finishing machine controller",
	Long: `Finisher - controls a centrifugal disc finishing machine over a serial link.

The controller speaks a line-based text protocol: commands such as START,
STOP, SOP, C UP and P DOWN go out, and STATUS lines with spindle speeds and
the run state come back.

Connection modes:
  Auto:      no flags; tries the last used port, then Arduino-like ports,
             then every other port
  Serial:    --port /dev/ttyACM0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the FINISHER_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      "1.0.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts := applog.Options{File: logFile, Debug: debug}
		if cmd.Annotations[annotationTUI] == "" {
			opts.Console = os.Stderr
		}
		return applog.Init(opts)
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device (default: auto-connect)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (default: saved preference or 115200)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket serial bridge URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Local state
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory for the saved connection preference")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", applog.DefaultLogFile(), "Rotating log file (empty to disable)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// effectiveBaud returns the --baud flag, falling back to the saved
// preference and then the protocol default.
func effectiveBaud(saved int) int {
	switch {
	case baudRate > 0:
		return baudRate
	case saved > 0:
		return saved
	default:
		return protocol.DefaultBaudRate
	}
}

// Execute runs the root command. Interrupt and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
