// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"fmt"
	"strings"
)

// Command is a literal line sent to the controller. Commands take no
// arguments and get no reply.
type Command string

const (
	CmdStart     Command = "START"
	CmdStop      Command = "STOP"
	CmdSOP       Command = "SOP"
	CmdCentralUp Command = "C UP"
	CmdCentralDn Command = "C DOWN"
	CmdPlanetUp  Command = "P UP"
	CmdPlanetDn  Command = "P DOWN"
)

// Commands lists every command the controller understands.
var Commands = []Command{
	CmdStart, CmdStop, CmdSOP,
	CmdCentralUp, CmdCentralDn,
	CmdPlanetUp, CmdPlanetDn,
}

// Target selects one of the two spindles.
type Target int

const (
	TargetCentral Target = iota
	TargetPlanet
)

func (t Target) String() string {
	switch t {
	case TargetCentral:
		return "central"
	case TargetPlanet:
		return "planet"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// Direction is an adjustment direction.
type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// SpeedCommand returns the command that nudges target in dir.
func SpeedCommand(target Target, dir Direction) (Command, error) {
	switch target {
	case TargetCentral:
		if dir == Up {
			return CmdCentralUp, nil
		}
		return CmdCentralDn, nil
	case TargetPlanet:
		if dir == Up {
			return CmdPlanetUp, nil
		}
		return CmdPlanetDn, nil
	default:
		return "", fmt.Errorf("unknown speed target: %v", target)
	}
}

// ParseCommand matches text against the known commands, ignoring case and
// extra whitespace.
func ParseCommand(text string) (Command, bool) {
	norm := strings.ToUpper(strings.Join(strings.Fields(text), " "))
	for _, c := range Commands {
		if string(c) == norm {
			return c, true
		}
	}
	return "", false
}

// EncodeCommand returns the wire form of c.
func EncodeCommand(c Command) []byte {
	return append([]byte(c), LineDelimiter)
}
