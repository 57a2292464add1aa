// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Finisher - centrifugal disc finishing machine controller
//
// A CLI and terminal UI for running a finishing machine through its
// serial controller.

package main

import (
	"os"

	"github.com/Thermoquad/finisher/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
