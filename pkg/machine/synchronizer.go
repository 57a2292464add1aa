// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package machine

import (
	"context"
	"errors"
	"math"

	"github.com/Thermoquad/finisher/pkg/link"
	"github.com/Thermoquad/finisher/pkg/protocol"
	"github.com/Thermoquad/finisher/pkg/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Sender delivers a command to the controller. *link.Manager satisfies it.
type Sender interface {
	Send(cmd protocol.Command) error
}

// Synchronizer owns the machine State. Operator actions, telemetry and the
// tick may arrive from different goroutines; every method returns the
// state as it stands after the call.
type Synchronizer struct {
	mu     syncutil.Mutex
	state  State
	sender Sender
	clock  clockwork.Clock
}

// NewSynchronizer creates a synchronizer in the initial state. sender may
// be nil, in which case commands are only recorded.
func NewSynchronizer(sender Sender) *Synchronizer {
	return NewSynchronizerWithClock(sender, clockwork.NewRealClock())
}

// NewSynchronizerWithClock is NewSynchronizer with an explicit clock for
// the tick loop.
func NewSynchronizerWithClock(sender Sender, clock clockwork.Clock) *Synchronizer {
	return &Synchronizer{
		state:  InitialState(),
		sender: sender,
		clock:  clock,
	}
}

// Snapshot returns a copy of the current state.
func (s *Synchronizer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins a normal run.
func (s *Synchronizer) Start() State {
	return s.start(protocol.CmdStart)
}

// StartSOP begins a run in the controller's special operating mode.
func (s *Synchronizer) StartSOP() State {
	return s.start(protocol.CmdSOP)
}

func (s *Synchronizer) start(cmd protocol.Command) State {
	s.mu.Lock()
	s.state.Running = true
	s.state.CountdownMs = int64(s.state.TimeMins) * 60 * 1000
	s.state.LastCommand = cmd
	st := s.state
	s.mu.Unlock()

	s.send(cmd)
	return st
}

// Stop ends the run and clears the countdown.
func (s *Synchronizer) Stop() State {
	s.mu.Lock()
	s.stopLocked()
	st := s.state
	s.mu.Unlock()

	s.send(protocol.CmdStop)
	return st
}

func (s *Synchronizer) stopLocked() {
	s.state.Running = false
	s.state.CountdownMs = 0
	s.state.LastCommand = protocol.CmdStop
}

// AdjustSpeed moves target by RPMStep in dir, never below zero, and sends
// the matching command.
func (s *Synchronizer) AdjustSpeed(target protocol.Target, dir protocol.Direction) (State, error) {
	cmd, err := protocol.SpeedCommand(target, dir)
	if err != nil {
		return s.Snapshot(), err
	}

	delta := RPMStep
	if dir == protocol.Down {
		delta = -RPMStep
	}

	s.mu.Lock()
	switch target {
	case protocol.TargetCentral:
		s.state.CentralRPM = max(0, s.state.CentralRPM+delta)
	case protocol.TargetPlanet:
		s.state.PlanetRPM = max(0, s.state.PlanetRPM+delta)
	}
	s.state.LastCommand = cmd
	st := s.state
	s.mu.Unlock()

	s.send(cmd)
	return st, nil
}

// AdjustTime changes the run length by one minute, never below zero. It
// only takes effect on the next start and sends nothing.
func (s *Synchronizer) AdjustTime(dir protocol.Direction) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir == protocol.Down {
		s.state.TimeMins = max(0, s.state.TimeMins-1)
	} else {
		s.state.TimeMins++
	}
	return s.state
}

// Tick advances the timers by one interval. Both timers move only while a
// run with time remaining is active; a countdown reaching zero stops the
// run in the same tick.
func (s *Synchronizer) Tick() State {
	s.mu.Lock()
	if !s.state.Running || s.state.CountdownMs <= 0 {
		st := s.state
		s.mu.Unlock()
		return st
	}

	s.state.CountdownMs = max(0, s.state.CountdownMs-tickMs)
	s.state.AbrasiveMs = max(0, s.state.AbrasiveMs-tickMs)

	expired := s.state.CountdownMs == 0
	if expired {
		s.stopLocked()
	}
	st := s.state
	s.mu.Unlock()

	if expired {
		log.Info().Msg("run time elapsed, stopping")
		s.send(protocol.CmdStop)
	}
	return st
}

// ApplyStatus overwrites the fields the controller reported. Speeds are
// rounded to the nearest integer. A reported stop does not clear the local
// countdown.
func (s *Synchronizer) ApplyStatus(snap protocol.StatusSnapshot) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.CentralRPM != nil {
		s.state.CentralRPM = roundRPM(*snap.CentralRPM)
	}
	if snap.PlanetRPM != nil {
		s.state.PlanetRPM = roundRPM(*snap.PlanetRPM)
	}
	if snap.RunState != nil {
		s.state.Running = *snap.RunState == protocol.RunStateRunning
	}
	return s.state
}

// SetConnected records the link state. Nothing else changes.
func (s *Synchronizer) SetConnected(connected bool) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Connected = connected
	return s.state
}

// HandleEvent applies a link event. changed is false for lines that carry
// no telemetry.
func (s *Synchronizer) HandleEvent(ev link.Event) (st State, changed bool) {
	switch ev.Kind {
	case link.EventConnection:
		return s.SetConnected(ev.Info.Connected), true
	case link.EventLine:
		if ev.Line == nil {
			return s.Snapshot(), false
		}
		snap, ok := protocol.ParseStatus(ev.Line.Text())
		if !ok || snap.IsEmpty() {
			return s.Snapshot(), false
		}
		return s.ApplyStatus(snap), true
	default:
		return s.Snapshot(), false
	}
}

// Run drives the tick and applies events until ctx is done. notify is
// called with the new state after every tick and every event that changed
// it. A closed events channel stops event handling but not the tick.
func (s *Synchronizer) Run(ctx context.Context, events <-chan link.Event, notify func(State)) error {
	ticker := s.clock.NewTicker(TickInterval)
	defer ticker.Stop()

	if notify == nil {
		notify = func(State) {}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			notify(s.Tick())
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if st, changed := s.HandleEvent(ev); changed {
				notify(st)
			}
		}
	}
}

func (s *Synchronizer) send(cmd protocol.Command) {
	if s.sender == nil {
		return
	}
	if err := s.sender.Send(cmd); err != nil {
		// the UI keeps working without a controller attached
		if errors.Is(err, link.ErrNotConnected) {
			log.Debug().Str("command", string(cmd)).Msg("not connected, command dropped")
			return
		}
		log.Warn().Err(err).Str("command", string(cmd)).Msg("failed to send command")
		return
	}
	log.Debug().Str("command", string(cmd)).Msg("command sent")
}

// roundRPM rounds half up and floors at zero.
func roundRPM(v float64) int {
	r := math.Floor(v + 0.5)
	if r < 0 {
		return 0
	}
	if r > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(r)
}
