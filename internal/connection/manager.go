// Package connection implements the Connection Manager (§4.D): TCP
// lifecycle, heartbeat scheduling, exponential-backoff reconnect, and
// the frame-routing glue between the wire codec, the command tracker,
// the state projector and the cycle aggregator.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/hj91/node-nutrunner-open-library/internal/command"
	"github.com/hj91/node-nutrunner-open-library/internal/cycle"
	"github.com/hj91/node-nutrunner-open-library/internal/event"
	"github.com/hj91/node-nutrunner-open-library/internal/metrics"
	"github.com/hj91/node-nutrunner-open-library/internal/protocol"
	"github.com/hj91/node-nutrunner-open-library/internal/state"
	"github.com/hj91/node-nutrunner-open-library/internal/wireframe"
)

const (
	heartbeatTick     = 1 * time.Second
	heartbeatIdle     = 7 * time.Second
	initialBackoff    = 1 * time.Second
	maxBackoff        = 30 * time.Second
	backoffMultiplier = 2
)

// Config is the subset of the client's configuration the manager
// needs directly.
type Config struct {
	Host           string
	Port           int
	AutoReconnect  bool
	ValidateFrames bool
}

var errNotConnected = errors.New("connection: not connected")

// Manager owns the socket, the frame decoder, and the wiring between
// the command tracker, the state projector and the cycle aggregator.
// Per §5, exactly one goroutine (the read loop) drives all state
// mutation arising from the wire; the heartbeat ticker, which also
// triggers the command-timeout sweep, runs on its own goroutine but only
// ever calls into the mutex-guarded
// Tracker and Store and never touches the socket except to write.
type Manager struct {
	cfg        Config
	store      *state.Store
	bus        *event.Bus
	tracker    *command.Tracker
	projector  *state.Projector
	aggregator *cycle.Aggregator
	logger     *slog.Logger

	connMu    sync.Mutex
	conn      net.Conn
	decoder   *wireframe.Decoder
	lastIOMu  sync.Mutex
	lastIO    time.Time

	wg sync.WaitGroup
}

// New returns a manager wired to the given store, bus, tracker and
// projector. It builds its own cycle aggregator since the aggregator
// needs a send function only the manager can provide (the mandatory,
// untracked MID 0062 ACK).
func New(cfg Config, store *state.Store, bus *event.Bus, tracker *command.Tracker, projector *state.Projector, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:       cfg,
		store:     store,
		bus:       bus,
		tracker:   tracker,
		projector: projector,
		logger:    logger.With("component", "connection"),
		decoder:   wireframe.NewDecoder(cfg.ValidateFrames),
	}
	m.aggregator = cycle.New(store, bus, m.sendResultAck)
	return m
}

// Aggregator exposes the cycle aggregator for callers that need its
// State() for diagnostics.
func (m *Manager) Aggregator() *cycle.Aggregator { return m.aggregator }

// Run drives the connect/reconnect loop until ctx is cancelled or, with
// auto_reconnect disabled, until the first connection attempt ends
// (a failed dial or a dropped connection). It blocks.
func (m *Manager) Run(ctx context.Context) {
	backoff := initialBackoff
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := m.runConnection(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = initialBackoff
			attempt = 0
		}
		if err != nil {
			m.logger.Warn("connection lost", "error", err)
		}
		if !m.cfg.AutoReconnect {
			return
		}

		attempt++
		metrics.ReconnectAttemptsTotal.Inc()
		m.bus.Publish(event.Event{Type: event.Reconnecting, Attempt: attempt, Delay: backoff})

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= backoffMultiplier
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runConnection dials once, runs the heartbeat/sweep tickers and the
// read loop until the connection drops or ctx is cancelled, and
// cleans up on the way out. It reports whether the dial succeeded
// (the comm-start handshake is not waited for), so Run knows whether to
// reset its backoff.
func (m *Manager) runConnection(ctx context.Context) (connected bool, err error) {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	dialer := net.Dialer{}
	conn, dialErr := dialer.DialContext(ctx, "tcp", addr)
	if dialErr != nil {
		return false, dialErr
	}

	m.connMu.Lock()
	m.conn = conn
	m.decoder.Reset()
	m.connMu.Unlock()
	m.touchIO()

	snap := m.store.Update(func(s *state.Snapshot) {
		s.Connection.Connected = true
		s.Connection.Reconnecting = false
		s.Connection.ReconnectAttempts = 0
	})
	metrics.Connected.Set(1)
	m.bus.Publish(event.Event{Type: event.StateChanged, Snapshot: &snap})
	m.bus.Publish(event.Event{Type: event.Connected})

	if err := m.writeRaw(protocol.MIDCommStart, nil, true); err != nil {
		m.teardown()
		return true, err
	}

	tickerCtx, cancelTickers := context.WithCancel(ctx)
	defer cancelTickers()
	m.wg.Add(1)
	go m.heartbeatLoop(tickerCtx)

	readErr := m.readLoop(conn)
	m.teardown()
	return true, readErr
}

func (m *Manager) teardown() {
	m.connMu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.decoder.Reset()
	m.connMu.Unlock()

	m.tracker.AbortAll()

	snap := m.store.Update(func(s *state.Snapshot) {
		s.Connection.Connected = false
		s.Connection.LinkReady = false
	})
	metrics.Connected.Set(0)
	m.bus.Publish(event.Event{Type: event.StateChanged, Snapshot: &snap})
	m.bus.Publish(event.Event{Type: event.Disconnected})
	m.wg.Wait()
}

// Disconnect sends MID 0002, disables reconnect and tears down the
// socket. Meant to be called once; Run then returns on its own.
func (m *Manager) Disconnect() {
	_ = m.writeRaw(protocol.MIDCommStop, nil, false)
	m.cfg.AutoReconnect = false
	m.connMu.Lock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.connMu.Unlock()
}

func (m *Manager) heartbeatLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(heartbeatTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.tracker.Sweep(now)
			if now.Sub(m.lastIOTime()) >= heartbeatIdle {
				if err := m.writeRaw(protocol.MIDHeartbeat, nil, false); err != nil {
					return
				}
			}
		}
	}
}

func (m *Manager) touchIO() {
	m.lastIOMu.Lock()
	m.lastIO = time.Now()
	m.lastIOMu.Unlock()
}

func (m *Manager) lastIOTime() time.Time {
	m.lastIOMu.Lock()
	defer m.lastIOMu.Unlock()
	return m.lastIO
}

func (m *Manager) readLoop(conn net.Conn) error {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			m.touchIO()
			m.decoder.Feed(buf[:n])
			m.drainFrames()
		}
		if err != nil {
			return err
		}
	}
}

func (m *Manager) drainFrames() {
	frames, errs := m.decoder.Decode()
	for _, fe := range errs {
		metrics.FrameErrorsTotal.WithLabelValues(string(fe.Type)).Inc()
		m.bus.Publish(event.Event{Type: event.FrameError, FrameErrorType: string(fe.Type), Message: fe.Detail})
	}
	for _, f := range frames {
		m.handleFrame(f)
	}
}

// writeRaw encodes and writes a frame with the wire ACK flag set from
// the caller's expectAck argument alone, without consulting
// protocol.AckRequired or registering a tracker entry. It is used for
// the comm-start/stop handshake frames, the heartbeat and the result ACK.
func (m *Manager) writeRaw(mid string, payload []byte, expectAck bool) error {
	frame, err := wireframe.Encode(mid, payload, expectAck)
	if err != nil {
		return err
	}
	return m.write(frame)
}

func (m *Manager) write(frame []byte) error {
	m.connMu.Lock()
	conn := m.conn
	m.connMu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	if _, err := conn.Write(frame); err != nil {
		return err
	}
	m.touchIO()
	return nil
}

// sendResultAck sends the mandatory, untracked MID 0062.
func (m *Manager) sendResultAck() error {
	return m.writeRaw(protocol.MIDResultAck, nil, false)
}

// SendCommand encodes and writes an outbound command MID. If the MID
// is resolved through the generic tracker channel, it registers a
// pending entry first and returns a channel that receives exactly one
// Outcome; otherwise it writes fire-and-forget and returns a nil
// channel.
func (m *Manager) SendCommand(mid string, payload []byte, traceID string) (<-chan command.Outcome, error) {
	expectAck := protocol.AckRequired(mid)
	frame, err := wireframe.Encode(mid, payload, expectAck)
	if err != nil {
		return nil, err
	}

	var outcome <-chan command.Outcome
	if expectAck {
		_, ch, err := m.tracker.Track(mid, traceID)
		if err != nil {
			return nil, err
		}
		outcome = ch
		metrics.CommandsInFlight.Inc()
	}

	if err := m.write(frame); err != nil {
		return nil, err
	}
	return outcome, nil
}

// decode runs the MID codec and reports a parseError on failure,
// returning ok=false so the caller can bail out of its case.
func (m *Manager) decode(f wireframe.Frame) (any, bool) {
	v, err := protocol.Decode(f)
	if err != nil {
		metrics.FrameErrorsTotal.WithLabelValues("parse_error").Inc()
		m.bus.Publish(event.Event{Type: event.ParseError, Message: err.Error()})
		return nil, false
	}
	return v, true
}

func (m *Manager) handleFrame(f wireframe.Frame) {
	mid := f.Header.MID
	metrics.FramesDecodedTotal.WithLabelValues(mid).Inc()
	m.projector.NoteReceivedMID(mid)

	switch mid {
	case protocol.MIDCommStartAck2, protocol.MIDCommStartAck3:
		v, ok := m.decode(f)
		if !ok {
			return
		}
		ack := v.(protocol.CommStartAck)
		m.projector.ApplyLinkEstablished(ack.Revision)
		m.subscribeDefaults()

	case protocol.MIDCommandAccepted:
		v, ok := m.decode(f)
		if !ok {
			return
		}
		ca := v.(protocol.CommandAccepted)
		if m.tracker.Resolve(ca.AcceptedMID) {
			metrics.CommandsInFlight.Dec()
			metrics.CommandOutcomesTotal.WithLabelValues(ca.AcceptedMID, "success").Inc()
			if ca.AcceptedMID == protocol.MIDResetBatch {
				m.projector.ApplyBatchResetConfirmed()
			}
		}

	case protocol.MIDCommandError:
		v, ok := m.decode(f)
		if !ok {
			return
		}
		ce := v.(protocol.CommandError)
		if m.tracker.Fail(ce.FailedMID, ce.ErrorCode, ce.Message) {
			metrics.CommandsInFlight.Dec()
			metrics.CommandOutcomesTotal.WithLabelValues(ce.FailedMID, "failed").Inc()
			if ce.FailedMID == protocol.MIDResetBatch {
				m.projector.ApplyBatchResetFailed()
			}
		}

	case protocol.MIDParamSetReply:
		if v, ok := m.decode(f); ok {
			m.projector.ApplyParamSetReply(v.(protocol.ParamSetReply))
		}

	case protocol.MIDBatchReply:
		if v, ok := m.decode(f); ok {
			m.projector.ApplyBatchReply(v.(protocol.BatchReply))
		}

	case protocol.MIDJobReply:
		if v, ok := m.decode(f); ok {
			m.projector.ApplyJobReply(v.(protocol.JobReply))
		}

	case protocol.MIDToolStatus:
		v, ok := m.decode(f)
		if !ok {
			return
		}
		if m.projector.ApplyToolStatus(v.(protocol.ToolStatus)) {
			m.aggregator.Start()
		}

	case protocol.MIDVinReply:
		if v, ok := m.decode(f); ok {
			m.projector.ApplyVinReply(v.(protocol.VinReply))
		}

	case protocol.MIDVinRequired:
		if v, ok := m.decode(f); ok {
			m.projector.ApplyVinRequired(v.(protocol.VinRequired))
		}

	case protocol.MIDLastResult, protocol.MIDOldResult:
		res, err := protocol.DecodeResult(f.Header, f.Payload)
		if err != nil {
			metrics.FrameErrorsTotal.WithLabelValues("parse_error").Inc()
			m.bus.Publish(event.Event{Type: event.ParseError, Message: err.Error()})
			// §7: the ACK is mandatory even when aggregation (or, here,
			// decoding) fails.
			if ackErr := m.sendResultAck(); ackErr != nil {
				m.bus.Publish(event.Event{Type: event.Error, Err: ackErr})
			}
			return
		}
		m.aggregator.ProcessResult(res)

	case protocol.MIDAlarm:
		if v, ok := m.decode(f); ok {
			m.projector.ApplyAlarm(v.(protocol.Alarm))
		}

	case protocol.MIDAlarmStatus:
		if v, ok := m.decode(f); ok {
			m.projector.ApplyAlarmStatus(v.(protocol.AlarmStatus))
		}

	case protocol.MIDMultiSpindle:
		if v, ok := m.decode(f); ok {
			m.projector.ApplyMultiSpindleStatus(v.(protocol.MultiSpindleStatus))
		}

	case protocol.MIDBatchDecAck:
		// Informational only; the decrement command itself resolves
		// through the generic MID 0005/0004 channel.

	default:
		m.bus.Publish(event.Event{Type: event.ParseError, Message: fmt.Sprintf("unsupported mid %q", mid)})
	}
}

func (m *Manager) subscribeDefaults() {
	for _, mid := range []string{protocol.MIDSubscribeResult, protocol.MIDSubscribeAlarm} {
		if _, err := m.SendCommand(mid, protocol.EncodeEmpty(), ""); err != nil {
			m.logger.Warn("auto-subscribe failed", "mid", mid, "error", err)
		}
	}
}
