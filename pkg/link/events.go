// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"github.com/Thermoquad/finisher/pkg/protocol"
	"github.com/Thermoquad/finisher/pkg/syncutil"
)

// EventKind distinguishes the event streams.
type EventKind int

const (
	EventLine EventKind = iota
	EventConnection
	// EventDiscard reports inbound data the line decoder dropped. Err says
	// why.
	EventDiscard
)

// Reason explains a connection event.
type Reason int

const (
	ReasonOpened Reason = iota // Connect succeeded
	ReasonClosed               // Disconnect was called
	ReasonLost                 // the transport failed or closed on its own
)

func (r Reason) String() string {
	switch r {
	case ReasonOpened:
		return "opened"
	case ReasonClosed:
		return "closed"
	case ReasonLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. Line is set for EventLine; Info and
// Reason for EventConnection. Err carries the transport error behind
// ReasonLost, if any, and the decode error for EventDiscard.
type Event struct {
	Kind   EventKind
	Line   *protocol.Line
	Info   ConnectionInfo
	Reason Reason
	Err    error
}

// Subscription receives manager events in publish order. Publishing never
// blocks: events queue until the subscriber reads them or unsubscribes.
type Subscription struct {
	out    chan Event
	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}

	mu      syncutil.Mutex
	queue   []Event
	stopped bool

	bus *bus
}

// C returns the event channel. It is closed after Unsubscribe.
func (s *Subscription) C() <-chan Event {
	return s.out
}

// Unsubscribe stops delivery and drops queued events. Safe to call more
// than once.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.exited
		return
	}
	s.stopped = true
	s.queue = nil
	s.mu.Unlock()

	close(s.done)
	<-s.exited
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.exited)
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

type bus struct {
	mu   syncutil.RWMutex
	subs map[*Subscription]struct{}
}

func newBus() *bus {
	return &bus{subs: make(map[*Subscription]struct{})}
}

func (b *bus) subscribe(buffer int) *Subscription {
	if buffer < 0 {
		buffer = 0
	}
	s := &Subscription{
		out:    make(chan Event, buffer),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		bus:    b,
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump()
	return s
}

func (b *bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

func (b *bus) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		s.push(ev)
	}
}

func (b *bus) closeAll() {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}
