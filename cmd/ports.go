// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/finisher/pkg/discovery"
	"github.com/Thermoquad/finisher/pkg/link"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports present on this host.

Ports are printed in the order auto-connect tries them:
  *  the last port a connection succeeded on
  A  ports whose USB metadata looks like an Arduino
     every other port

Exit codes:
  0 - Listing succeeded (possibly empty)
  1 - Enumeration failed`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := discovery.ListPorts()
	if err != nil {
		return err
	}

	pref := openStore().Load()
	order := link.Candidates(pref, ports, discovery.ArduinoHint)

	byID := make(map[string]discovery.PortDescriptor, len(ports))
	for _, p := range ports {
		byID[p.Identifier] = p
	}

	if len(order) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	for _, id := range order {
		mark := " "
		switch {
		case id == pref.LastPortIdentifier:
			mark = "*"
		case discovery.VendorMatches(byID[id], discovery.ArduinoHint):
			mark = "A"
		}

		p, present := byID[id]
		if !present {
			fmt.Printf("%s %s (saved, not present)\n", mark, id)
			continue
		}
		fmt.Printf("%s %s\n", mark, p.Label())
		if p.SerialNumber != "" {
			fmt.Printf("    serial number: %s\n", p.SerialNumber)
		}
	}
	return nil
}
