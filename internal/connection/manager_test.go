package connection

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hj91/node-nutrunner-open-library/internal/command"
	"github.com/hj91/node-nutrunner-open-library/internal/event"
	"github.com/hj91/node-nutrunner-open-library/internal/state"
	"github.com/hj91/node-nutrunner-open-library/internal/wireframe"
)

// fakeController accepts exactly one connection and lets the caller
// drive the handshake/result exchange by hand, mirroring how a real
// controller would script a test rig.
type fakeController struct {
	t       *testing.T
	conn    net.Conn
	decoder *wireframe.Decoder
	queued  []wireframe.Frame
}

func listenFakeController(t *testing.T) (net.Listener, chan *fakeController) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ready := make(chan *fakeController, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		ready <- &fakeController{t: t, conn: conn, decoder: wireframe.NewDecoder(true)}
	}()
	return ln, ready
}

// nextFrame blocks until one full frame has arrived from the client.
// Frames that arrive together in one read are queued and returned in
// order by later calls.
func (f *fakeController) nextFrame() wireframe.Frame {
	buf := make([]byte, 4096)
	for {
		frames, errs := f.decoder.Decode()
		require.Empty(f.t, errs)
		f.queued = append(f.queued, frames...)
		if len(f.queued) > 0 {
			next := f.queued[0]
			f.queued = f.queued[1:]
			return next
		}
		n, err := f.conn.Read(buf)
		require.NoError(f.t, err)
		f.decoder.Feed(buf[:n])
	}
}

func (f *fakeController) send(mid string, payload []byte, expectAck bool) {
	frame, err := wireframe.Encode(mid, payload, expectAck)
	require.NoError(f.t, err)
	_, err = f.conn.Write(frame)
	require.NoError(f.t, err)
}

func (f *fakeController) acceptCommand(mid string) {
	got := f.nextFrame()
	require.Equal(f.t, mid, got.Header.MID)
	f.send("0005", []byte(mid), false)
}

func addrParts(t *testing.T, ln net.Listener) (string, int) {
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func newTestManager(t *testing.T, host string, port int) (*Manager, *state.Store, *event.Bus) {
	store := state.NewStore()
	bus := event.NewBus()
	tracker := command.New(bus, store, false)
	projector := state.NewProjector(store, bus, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(Config{Host: host, Port: port, AutoReconnect: false, ValidateFrames: true}, store, bus, tracker, projector, logger)
	return m, store, bus
}

func waitForEvent(t *testing.T, bus *event.Bus, typ event.Type) event.Event {
	ch := make(chan event.Event, 4)
	bus.Subscribe(typ, func(e event.Event) { ch <- e })
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event %q", typ)
		return event.Event{}
	}
}

func TestHandshakeEstablishesLinkAndAutoSubscribes(t *testing.T) {
	ln, ready := listenFakeController(t)
	t.Cleanup(func() { ln.Close() })
	host, port := addrParts(t, ln)

	m, _, bus := newTestManager(t, host, port)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)

	fc := <-ready
	require.Equal(t, "0001", fc.nextFrame().Header.MID)
	fc.send("0002", nil, false)

	link := waitForEvent(t, bus, event.LinkEstablished)
	require.Equal(t, 1, link.Revision)

	fc.acceptCommand("0060")
	fc.acceptCommand("0070")
}

func TestSingleSpindleCycleCompletesAndAcksResult(t *testing.T) {
	ln, ready := listenFakeController(t)
	t.Cleanup(func() { ln.Close() })
	host, port := addrParts(t, ln)

	m, store, bus := newTestManager(t, host, port)
	store.Update(func(s *state.Snapshot) { s.Tool.SpindleCount = 1 })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)

	fc := <-ready
	fc.nextFrame() // comm start
	fc.send("0002", nil, false)
	fc.acceptCommand("0060")
	fc.acceptCommand("0070")

	completed := make(chan event.Event, 1)
	bus.Subscribe(event.TighteningCycleCompleted, func(e event.Event) { completed <- e })

	payload := make([]byte, 24)
	for i := range payload {
		payload[i] = ' '
	}
	copy(payload[10:], "001234")
	copy(payload[16:], "000090")
	payload[22] = '1'
	payload[23] = '1'
	fc.send("0061", payload, false)

	select {
	case e := <-completed:
		require.True(t, e.OverallOK)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tighteningCycleCompleted")
	}

	ack := fc.nextFrame()
	require.Equal(t, "0062", ack.Header.MID)
}
