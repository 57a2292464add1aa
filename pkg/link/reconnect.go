// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// Reconnector reopens the last port after the connection is lost on its
// own. An explicit Disconnect is left alone, and so is one issued while a
// retry is pending.
type Reconnector struct {
	Manager *Manager
	Clock   clockwork.Clock

	// BaudRate is used when the lost connection's rate is unknown.
	BaudRate int
}

// NewReconnector returns a Reconnector on the real clock.
func NewReconnector(m *Manager, baudRate int) *Reconnector {
	return &Reconnector{Manager: m, Clock: clockwork.NewRealClock(), BaudRate: baudRate}
}

// Run watches manager events until ctx is done.
func (r *Reconnector) Run(ctx context.Context) {
	sub := r.Manager.Subscribe(16)
	defer sub.Unsubscribe()

	last := r.Manager.ConnectionInfo()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if ev.Kind != EventConnection {
				continue
			}
			switch ev.Reason {
			case ReasonOpened:
				last = ev.Info
			case ReasonLost:
				if last.Identifier != "" {
					r.recover(ctx, sub, last)
				}
				if info := r.Manager.ConnectionInfo(); info.Connected {
					last = info
				}
			case ReasonClosed:
			}
		}
	}
}

// recover retries with exponential backoff until connected or ctx is done.
// It gives up as soon as anyone else opens or closes the connection.
func (r *Reconnector) recover(ctx context.Context, sub *Subscription, last ConnectionInfo) {
	identifier := last.Identifier
	baud := last.BaudRate
	if baud <= 0 {
		baud = r.BaudRate
	}
	backoff := initialBackoff

	for {
		if !r.wait(ctx, sub, backoff) {
			return
		}

		if r.Manager.ConnectionInfo().Connected {
			return
		}

		info, err := r.Manager.Connect(ctx, identifier, baud)
		if err == nil && info.Connected {
			log.Info().Str("port", identifier).Msg("reconnected")
			return
		}
		log.Debug().Err(err).Str("port", identifier).Dur("backoff", backoff).Msg("reconnect failed")

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// wait sleeps for d. It returns false when ctx is done or when the
// connection was opened or closed by someone else in the meantime.
func (r *Reconnector) wait(ctx context.Context, sub *Subscription, d time.Duration) bool {
	timer := r.Clock.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.Chan():
			return true
		case ev, ok := <-sub.C():
			if !ok {
				return false
			}
			if ev.Kind == EventConnection && ev.Reason != ReasonLost {
				log.Debug().Stringer("reason", ev.Reason).Msg("reconnect abandoned")
				return false
			}
		}
	}
}
