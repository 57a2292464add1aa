// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link owns the single connection to the finishing machine's
// controller: opening and closing it, writing command lines, splitting the
// inbound stream into lines and publishing line and connection events.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Thermoquad/finisher/pkg/protocol"
	"github.com/Thermoquad/finisher/pkg/settings"
	"github.com/Thermoquad/finisher/pkg/syncutil"
	"github.com/rs/zerolog/log"
)

// ErrNotConnected is returned by SendLine when no connection is open.
var ErrNotConnected = errors.New("serial not connected")

// Phase is the connection lifecycle state.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseOpening
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseOpening:
		return "opening"
	case PhaseConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ConnectionInfo is a snapshot of the connection. Auto is set only on
// results returned by AutoConnector.
type ConnectionInfo struct {
	Connected  bool   `json:"connected"`
	Identifier string `json:"path,omitempty"`
	BaudRate   int    `json:"baud_rate,omitempty"`
	Auto       bool   `json:"auto,omitempty"`
}

func (c ConnectionInfo) String() string {
	if !c.Connected {
		return "disconnected"
	}
	return "connected to " + c.Identifier
}

// PreferenceSaver persists the last successful connection.
type PreferenceSaver interface {
	Save(pref settings.Preference)
}

// Manager owns at most one open connection.
//
// Connect and Disconnect are serialized: a Connect issued while another
// open is in flight waits for it and then returns the resulting state
// without opening again, and a Disconnect issued during an open waits for
// the open to settle and then closes the new connection. SendLine calls are
// serialized so command lines never interleave on the wire.
type Manager struct {
	opener Opener
	prefs  PreferenceSaver

	opMu    syncutil.Mutex // serializes Connect, Disconnect and loss handling
	writeMu syncutil.Mutex // one writer at a time

	mu         syncutil.RWMutex // guards the fields below
	conn       Port
	identifier string
	baudRate   int
	phase      Phase
	gen        uint64
	lastStatus string
	hasStatus  bool

	bus     *bus
	readers sync.WaitGroup
}

// NewManager creates a manager. prefs may be nil.
func NewManager(opener Opener, prefs PreferenceSaver) *Manager {
	return &Manager{
		opener: opener,
		prefs:  prefs,
		bus:    newBus(),
	}
}

// Subscribe registers for line and connection events. buffer sizes the
// delivery channel; events beyond it wait in an unbounded queue.
func (m *Manager) Subscribe(buffer int) *Subscription {
	return m.bus.subscribe(buffer)
}

// ConnectionInfo returns the current connection state.
func (m *Manager) ConnectionInfo() ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.infoLocked()
}

// Phase returns the lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// LastStatus returns the most recent STATUS line, if any has arrived.
func (m *Manager) LastStatus() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastStatus, m.hasStatus
}

func (m *Manager) infoLocked() ConnectionInfo {
	return ConnectionInfo{
		Connected:  m.phase == PhaseConnected && m.conn != nil,
		Identifier: m.identifier,
		BaudRate:   m.baudRate,
	}
}

// Connect opens identifier at baudRate (protocol.DefaultBaudRate when not
// positive). When a connection is already open it returns its info without
// reopening or switching ports.
func (m *Manager) Connect(ctx context.Context, identifier string, baudRate int) (ConnectionInfo, error) {
	if baudRate <= 0 {
		baudRate = protocol.DefaultBaudRate
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.phase == PhaseConnected {
		info := m.infoLocked()
		m.mu.Unlock()
		return info, nil
	}
	if identifier == "" {
		info := m.infoLocked()
		m.mu.Unlock()
		return info, errors.New("no port identifier given")
	}
	m.phase = PhaseOpening
	m.mu.Unlock()

	log.Debug().Str("port", identifier).Int("baud", baudRate).Msg("opening connection")

	conn, err := m.opener(ctx, identifier, baudRate)
	if err != nil {
		m.mu.Lock()
		m.phase = PhaseDisconnected
		info := m.infoLocked()
		m.mu.Unlock()
		return info, fmt.Errorf("failed to connect to %s: %w", identifier, err)
	}

	m.mu.Lock()
	m.conn = conn
	m.identifier = identifier
	m.baudRate = baudRate
	m.phase = PhaseConnected
	m.gen++
	gen := m.gen
	info := m.infoLocked()
	m.mu.Unlock()

	log.Info().Str("port", identifier).Int("baud", baudRate).Msg("connected")

	if m.prefs != nil {
		m.prefs.Save(settings.Preference{LastPortIdentifier: identifier, BaudRate: baudRate})
	}

	m.bus.publish(Event{Kind: EventConnection, Info: info, Reason: ReasonOpened})

	m.readers.Add(1)
	go m.readLoop(conn, gen)

	return info, nil
}

// Disconnect closes the open connection and waits for the close to finish.
func (m *Manager) Disconnect(_ context.Context) (ConnectionInfo, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.conn == nil {
		info := m.infoLocked()
		m.mu.Unlock()
		return info, nil
	}
	conn := m.conn
	identifier := m.identifier
	m.conn = nil
	m.identifier = ""
	m.baudRate = 0
	m.phase = PhaseDisconnected
	m.gen++
	info := m.infoLocked()
	m.mu.Unlock()

	// Hold the writer lock so an in-flight SendLine finishes before the
	// port goes away.
	m.writeMu.Lock()
	err := conn.Close()
	m.writeMu.Unlock()

	log.Info().Str("port", identifier).Msg("disconnected")
	m.bus.publish(Event{Kind: EventConnection, Info: info, Reason: ReasonClosed})

	if err != nil {
		return info, fmt.Errorf("failed to close %s: %w", identifier, err)
	}
	return info, nil
}

// SendLine writes text followed by a newline. There is no acknowledgment.
func (m *Manager) SendLine(text string) error {
	return m.Send(protocol.Command(text))
}

// Send writes a protocol command.
func (m *Manager) Send(cmd protocol.Command) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	conn := m.conn
	identifier := m.identifier
	m.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	if _, err := conn.Write(protocol.EncodeCommand(cmd)); err != nil {
		return fmt.Errorf("failed to write to %s: %w", identifier, err)
	}
	log.Debug().Str("port", identifier).Str("line", string(cmd)).Msg("sent")
	return nil
}

// Close disconnects, waits for reader goroutines and ends all
// subscriptions.
func (m *Manager) Close() error {
	_, err := m.Disconnect(context.Background())
	m.readers.Wait()
	m.bus.closeAll()
	return err
}

// readLoop decodes lines from conn until a read fails.
func (m *Manager) readLoop(conn Port, gen uint64) {
	defer m.readers.Done()

	decoder := protocol.NewDecoder()
	buf := make([]byte, 256)

	for {
		n, err := conn.Read(buf)
		for i := 0; i < n; i++ {
			line, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				log.Warn().Err(decodeErr).Msg("discarding inbound data")
				m.bus.publish(Event{Kind: EventDiscard, Err: decodeErr})
				continue
			}
			if line != nil {
				m.deliver(line)
			}
		}
		if err != nil {
			m.connectionLost(gen, err)
			return
		}
	}
}

func (m *Manager) deliver(line *protocol.Line) {
	if line.IsStatus() {
		m.mu.Lock()
		m.lastStatus = line.Text()
		m.hasStatus = true
		m.mu.Unlock()
	}
	m.bus.publish(Event{Kind: EventLine, Line: line})
}

// connectionLost handles a read failure. It is a no-op when the
// connection it belongs to was already closed by Disconnect.
func (m *Manager) connectionLost(gen uint64, cause error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.gen != gen || m.conn == nil {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	identifier := m.identifier
	m.conn = nil
	m.identifier = ""
	m.baudRate = 0
	m.phase = PhaseDisconnected
	m.gen++
	info := m.infoLocked()
	m.mu.Unlock()

	_ = conn.Close()

	if errors.Is(cause, io.EOF) {
		cause = nil
	}
	log.Warn().Err(cause).Str("port", identifier).Msg("connection lost")
	m.bus.publish(Event{Kind: EventConnection, Info: info, Reason: ReasonLost, Err: cause})
}
