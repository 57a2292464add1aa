// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/finisher/pkg/protocol"
	"github.com/Thermoquad/finisher/pkg/settings"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_OpensAndReportsInfo(t *testing.T) {
	opener := newFakeOpener()
	m := newTestManager(t, opener, nil)

	info, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)

	assert.Equal(t, ConnectionInfo{Connected: true, Identifier: "/dev/ttyACM0", BaudRate: 115200}, info)
	assert.Equal(t, info, m.ConnectionInfo())
	assert.Equal(t, PhaseConnected, m.Phase())
	assert.Equal(t, []int{115200}, opener.Bauds())
}

func TestConnect_WhileOpenIsNoOp(t *testing.T) {
	opener := newFakeOpener()
	m := newTestManager(t, opener, nil)

	_, err := m.Connect(context.Background(), "/dev/ttyACM0", 9600)
	require.NoError(t, err)

	info, err := m.Connect(context.Background(), "/dev/ttyUSB0", 9600)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", info.Identifier)
	assert.Equal(t, []string{"/dev/ttyACM0"}, opener.Attempts())
}

func TestConnect_ConcurrentCallsOpenOnce(t *testing.T) {
	opener := newFakeOpener()
	opener.gate = make(chan struct{})
	m := newTestManager(t, opener, nil)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]ConnectionInfo, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Connect(context.Background(), "/dev/ttyACM0", 0)
		}(i)
	}

	close(opener.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Connected)
	}
	assert.Len(t, opener.Attempts(), 1)
}

func TestConnect_FailureStaysDisconnected(t *testing.T) {
	opener := newFakeOpener("/dev/ttyACM0")
	store := settings.NewStoreFs(afero.NewMemMapFs(), "/config")
	m := newTestManager(t, opener, store)
	sub := m.Subscribe(4)

	info, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.Error(t, err)

	assert.False(t, info.Connected)
	assert.Equal(t, PhaseDisconnected, m.Phase())
	assert.True(t, store.Load().IsEmpty())
	requireNoEvent(t, sub)
}

func TestConnect_EmptyIdentifier(t *testing.T) {
	opener := newFakeOpener()
	m := newTestManager(t, opener, nil)

	_, err := m.Connect(context.Background(), "", 0)
	require.Error(t, err)
	assert.Empty(t, opener.Attempts())
}

func TestConnect_SavesPreference(t *testing.T) {
	store := settings.NewStoreFs(afero.NewMemMapFs(), "/config")
	m := newTestManager(t, newFakeOpener(), store)

	_, err := m.Connect(context.Background(), "/dev/ttyACM0", 57600)
	require.NoError(t, err)

	assert.Equal(t, settings.Preference{LastPortIdentifier: "/dev/ttyACM0", BaudRate: 57600}, store.Load())
}

func TestConnect_UnwritablePreferenceDoesNotFail(t *testing.T) {
	store := settings.NewStoreFs(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/config")
	m := newTestManager(t, newFakeOpener(), store)

	info, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)
	assert.True(t, info.Connected)
}

func TestConnect_PublishesOneEvent(t *testing.T) {
	m := newTestManager(t, newFakeOpener(), nil)
	sub := m.Subscribe(4)

	_, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)
	_, err = m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)

	ev := nextEvent(t, sub)
	assert.Equal(t, EventConnection, ev.Kind)
	assert.Equal(t, ReasonOpened, ev.Reason)
	assert.True(t, ev.Info.Connected)
	requireNoEvent(t, sub)
}

func TestDisconnect(t *testing.T) {
	opener := newFakeOpener()
	m := newTestManager(t, opener, nil)
	sub := m.Subscribe(4)

	_, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)
	nextEvent(t, sub)

	info, err := m.Disconnect(context.Background())
	require.NoError(t, err)

	assert.False(t, info.Connected)
	assert.Empty(t, info.Identifier)
	assert.Equal(t, 1, opener.Port("/dev/ttyACM0").CloseCalls())

	ev := nextEvent(t, sub)
	assert.Equal(t, ReasonClosed, ev.Reason)
	assert.False(t, ev.Info.Connected)

	// second disconnect is a no-op
	_, err = m.Disconnect(context.Background())
	require.NoError(t, err)
	requireNoEvent(t, sub)
}

func TestDisconnect_DuringOpenClosesNewConnection(t *testing.T) {
	opener := newFakeOpener()
	opener.gate = make(chan struct{})
	m := newTestManager(t, opener, nil)

	connected := make(chan struct{})
	go func() {
		defer close(connected)
		_, _ = m.Connect(context.Background(), "/dev/ttyACM0", 0)
	}()

	require.Eventually(t, func() bool { return m.Phase() == PhaseOpening }, time.Second, time.Millisecond)

	disconnected := make(chan ConnectionInfo)
	go func() {
		info, _ := m.Disconnect(context.Background())
		disconnected <- info
	}()

	close(opener.gate)
	<-connected
	info := <-disconnected

	assert.False(t, info.Connected)
	assert.False(t, m.ConnectionInfo().Connected)
	assert.Equal(t, 1, opener.Port("/dev/ttyACM0").CloseCalls())
}

func TestSendLine(t *testing.T) {
	opener := newFakeOpener()
	m := newTestManager(t, opener, nil)

	err := m.SendLine("START")
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)

	require.NoError(t, m.SendLine("START"))
	require.NoError(t, m.SendLine("C UP"))

	assert.Equal(t, "START\nC UP\n", opener.Port("/dev/ttyACM0").Written())
}

func TestSend_WritesEncodedCommand(t *testing.T) {
	opener := newFakeOpener()
	m := newTestManager(t, opener, nil)
	_, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)

	require.NoError(t, m.Send(protocol.CmdPlanetDn))
	require.NoError(t, m.Send(protocol.CmdStop))

	want := string(protocol.EncodeCommand(protocol.CmdPlanetDn)) + string(protocol.EncodeCommand(protocol.CmdStop))
	assert.Equal(t, want, opener.Port("/dev/ttyACM0").Written())
	assert.Equal(t, "P DOWN\nSTOP\n", want)
}

func TestConnectionInfo_CarriesBaudRate(t *testing.T) {
	opener := newFakeOpener()
	m := newTestManager(t, opener, nil)

	info, err := m.Connect(context.Background(), "/dev/ttyACM0", 57600)
	require.NoError(t, err)
	assert.Equal(t, 57600, info.BaudRate)

	info, err = m.Disconnect(context.Background())
	require.NoError(t, err)
	assert.Zero(t, info.BaudRate)
}

func TestSendLine_ConcurrentWritesDoNotInterleave(t *testing.T) {
	opener := newFakeOpener()
	m := newTestManager(t, opener, nil)
	_, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.SendLine("P DOWN")
		}()
	}
	wg.Wait()

	written := opener.Port("/dev/ttyACM0").Written()
	assert.Equal(t, 20, strings.Count(written, "P DOWN\n"))
}

func TestSendLine_AfterDisconnect(t *testing.T) {
	m := newTestManager(t, newFakeOpener(), nil)
	_, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)
	_, err = m.Disconnect(context.Background())
	require.NoError(t, err)

	require.ErrorIs(t, m.SendLine("STOP"), ErrNotConnected)
}

func TestLines_PublishedInOrder(t *testing.T) {
	opener := newFakeOpener()
	m := newTestManager(t, opener, nil)
	sub := m.Subscribe(0)

	_, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)
	nextEvent(t, sub)

	port := opener.Port("/dev/ttyACM0")
	port.feed("hello\r\n\nSTAT")
	port.feed("US centralRPM=120 state=RUNNING\n")

	ev := nextEvent(t, sub)
	require.Equal(t, EventLine, ev.Kind)
	assert.Equal(t, "hello", ev.Line.Text())
	assert.False(t, ev.Line.IsStatus())

	ev = nextEvent(t, sub)
	require.Equal(t, EventLine, ev.Kind)
	assert.Equal(t, "STATUS centralRPM=120 state=RUNNING", ev.Line.Text())
}

func TestLastStatus_UpdatedBeforeLineEvent(t *testing.T) {
	opener := newFakeOpener()
	m := newTestManager(t, opener, nil)
	sub := m.Subscribe(4)

	_, ok := m.LastStatus()
	assert.False(t, ok)

	_, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)
	nextEvent(t, sub)

	port := opener.Port("/dev/ttyACM0")
	port.feed("STATUS planetRPM=40\n")

	ev := nextEvent(t, sub)
	last, ok := m.LastStatus()
	require.True(t, ok)
	assert.Equal(t, ev.Line.Text(), last)

	port.feed("OK\n")
	nextEvent(t, sub)
	last, _ = m.LastStatus()
	assert.Equal(t, "STATUS planetRPM=40", last)
}

func TestConnectionLost_OneEvent(t *testing.T) {
	opener := newFakeOpener()
	m := newTestManager(t, opener, nil)
	sub := m.Subscribe(4)

	_, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)
	nextEvent(t, sub)

	cause := errors.New("device unplugged")
	opener.Port("/dev/ttyACM0").fail(cause)

	ev := nextEvent(t, sub)
	assert.Equal(t, EventConnection, ev.Kind)
	assert.Equal(t, ReasonLost, ev.Reason)
	require.ErrorIs(t, ev.Err, cause)
	assert.False(t, m.ConnectionInfo().Connected)
	requireNoEvent(t, sub)

	// a later Connect opens again
	info, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)
	assert.True(t, info.Connected)
	assert.Len(t, opener.Attempts(), 2)
}

func TestConnectionLost_RacingDisconnect(t *testing.T) {
	for i := 0; i < 20; i++ {
		opener := newFakeOpener()
		m := NewManager(opener.Open, nil)
		sub := m.Subscribe(8)

		_, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
		require.NoError(t, err)
		nextEvent(t, sub)

		port := opener.Port("/dev/ttyACM0")
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			port.fail(errors.New("read failed"))
		}()
		go func() {
			defer wg.Done()
			_, _ = m.Disconnect(context.Background())
		}()
		wg.Wait()

		ev := nextEvent(t, sub)
		assert.Contains(t, []Reason{ReasonClosed, ReasonLost}, ev.Reason)
		requireNoEvent(t, sub)

		require.NoError(t, m.Close())
	}
}

func TestClose_EndsSubscriptions(t *testing.T) {
	m := NewManager(newFakeOpener().Open, nil)
	sub := m.Subscribe(1)

	_, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	for range sub.C() {
	}
	sub.Unsubscribe()
}

func TestOverlongLine_Discarded(t *testing.T) {
	opener := newFakeOpener()
	m := newTestManager(t, opener, nil)
	sub := m.Subscribe(4)

	_, err := m.Connect(context.Background(), "/dev/ttyACM0", 0)
	require.NoError(t, err)
	nextEvent(t, sub)

	port := opener.Port("/dev/ttyACM0")
	chunk := strings.Repeat("x", 200)
	for i := 0; i < 3; i++ {
		port.feed(chunk)
	}
	port.feed("\nSTATUS state=IDLE\n")

	ev := nextEvent(t, sub)
	assert.Equal(t, EventDiscard, ev.Kind)
	require.ErrorIs(t, ev.Err, protocol.ErrLineTooLong)

	ev = nextEvent(t, sub)
	require.Equal(t, EventLine, ev.Kind)
	assert.Equal(t, "STATUS state=IDLE", ev.Line.Text())
}
