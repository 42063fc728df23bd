package nutrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hj91/node-nutrunner-open-library/internal/audit"
	"github.com/hj91/node-nutrunner-open-library/internal/classify"
	"github.com/hj91/node-nutrunner-open-library/internal/command"
	"github.com/hj91/node-nutrunner-open-library/internal/connection"
	"github.com/hj91/node-nutrunner-open-library/internal/cycle"
	"github.com/hj91/node-nutrunner-open-library/internal/dashboard"
	"github.com/hj91/node-nutrunner-open-library/internal/event"
	"github.com/hj91/node-nutrunner-open-library/internal/handlers"
	"github.com/hj91/node-nutrunner-open-library/internal/protocol"
	"github.com/hj91/node-nutrunner-open-library/internal/state"
	"github.com/hj91/node-nutrunner-open-library/internal/util"
)

// Config is the client's configuration surface (§6 of the design).
// Host has no default; everything else does.
type Config struct {
	Host                   string
	Port                   int
	AutoReconnect          bool
	ValidateFrames         bool
	SpindleCount           *int
	AllowDuplicateCommands bool

	// AuditLogPath, if non-empty, turns on the append-only JSONL audit
	// trail described in internal/audit.
	AuditLogPath string
	// EnableDashboard, if true, turns on the local diagnostics websocket
	// described in internal/dashboard. Callers own serving Dashboard's
	// ServeWs handler over HTTP; the client only feeds it.
	EnableDashboard bool

	ClassifierRules []classify.Rule

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 4545
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ClassifierRules == nil {
		c.ClassifierRules = classify.DefaultRules()
	}
	return c
}

// Client is the programmatic surface described in §6: a small set of
// operator commands guarded by the interlock gate, a queryable state
// snapshot, and a typed event stream delivered through Subscribe.
type Client struct {
	cfg Config

	store      *state.Store
	bus        *event.Bus
	tracker    *command.Tracker
	projector  *state.Projector
	manager    *connection.Manager
	auditLog   *audit.Log
	dashHub    *dashboard.Hub
	dashTrack  *dashboard.Tracker
	dashStop   chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
}

// New builds a client wired end to end — store, bus, classifier,
// projector, command tracker, connection manager, and whichever
// ambient subscribers (audit log, dashboard) cfg enables — but does
// not connect. Call Connect to start the connect/reconnect loop.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Host == "" {
		return nil, errors.New("nutrunner: host is required")
	}

	store := state.NewStore()
	if cfg.SpindleCount != nil {
		store.Update(func(s *state.Snapshot) {
			s.Tool.SpindleCount = *cfg.SpindleCount
			s.Tool.SpindleCountSource = state.SourceConfig
		})
	}

	bus := event.NewBus()

	classifier, err := classify.New(cfg.ClassifierRules)
	if err != nil {
		return nil, fmt.Errorf("nutrunner: classifier: %w", err)
	}
	projector := state.NewProjector(store, bus, classifier)
	tracker := command.New(bus, store, cfg.AllowDuplicateCommands)

	manager := connection.New(connection.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		AutoReconnect:  cfg.AutoReconnect,
		ValidateFrames: cfg.ValidateFrames,
	}, store, bus, tracker, projector, cfg.Logger)

	c := &Client{cfg: cfg, store: store, bus: bus, tracker: tracker, projector: projector, manager: manager}

	var auditLog *audit.Log
	if cfg.AuditLogPath != "" {
		auditLog, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("nutrunner: audit log: %w", err)
		}
		c.auditLog = auditLog
	}

	var dashTrack *dashboard.Tracker
	if cfg.EnableDashboard {
		hub := dashboard.NewHub(cfg.Logger)
		dashTrack = dashboard.NewTracker(hub)
		c.dashHub = hub
		c.dashTrack = dashTrack
		c.dashStop = make(chan struct{})
		go hub.Run(c.dashStop)
	}

	handlers.Register(bus, auditLog, dashTrack, cfg.Logger)

	return c, nil
}

// Connect starts the connect/reconnect loop in the background and
// returns immediately; watch for the connected event (or poll
// IsConnected) to know when the handshake finishes.
func (c *Client) Connect() {
	c.runCtx, c.runCancel = context.WithCancel(context.Background())
	go c.manager.Run(c.runCtx)
}

// Disconnect sends MID 0002, disables auto-reconnect and tears down
// the socket, then stops the connect/reconnect loop and closes the
// audit log and dashboard hub. Safe to call even if Connect was never
// called.
func (c *Client) Disconnect() {
	c.manager.Disconnect()
	if c.runCancel != nil {
		c.runCancel()
	}
	if c.dashStop != nil {
		close(c.dashStop)
	}
	if c.auditLog != nil {
		_ = c.auditLog.Close()
	}
}

// Dashboard exposes the diagnostics websocket hub's ServeWs handler
// for the caller to mount on an HTTP mux. Returns nil if the
// dashboard was not enabled.
func (c *Client) Dashboard() *dashboard.Hub { return c.dashHub }

// Subscribe registers handler for every occurrence of typ, per the
// event set in §6.
func (c *Client) Subscribe(typ event.Type, handler event.Handler) {
	c.bus.Subscribe(typ, handler)
}

// GetState returns a deep-copied snapshot of the full state tree.
func (c *Client) GetState() state.Snapshot { return c.store.Get() }

// IsConnected reports whether the socket to the controller is up.
func (c *Client) IsConnected() bool { return c.store.Get().Connection.Connected }

// IsReady reports whether the link handshake is complete and the
// controller itself reports ready — the minimum bar for any operator
// command to have a chance of succeeding.
func (c *Client) IsReady() bool {
	s := c.store.Get()
	return s.Connection.Connected && s.Connection.LinkReady && s.Controller.Ready
}

// GetSpindleCount returns the current spindle count, regardless of
// which source last claimed authority over it.
func (c *Client) GetSpindleCount() int { return c.store.Get().Tool.SpindleCount }

// SetSpindleCount pins the spindle count with manual authority,
// preventing MID 0101/0061 from later lowering it. Per §3, n must be
// in [1,99].
func (c *Client) SetSpindleCount(n int) error {
	if n < 1 || n > 99 {
		return fmt.Errorf("nutrunner: spindle count %d out of range [1,99]", n)
	}
	snap := c.store.Update(func(s *state.Snapshot) {
		s.Tool.SpindleCount = n
		s.Tool.SpindleCountSource = state.SourceManual
	})
	c.bus.Publish(event.Event{Type: event.StateChanged, Snapshot: &snap})
	c.bus.Publish(event.Event{Type: event.SpindleCountUpdated, SpindleCount: n, SpindleCountSource: string(state.SourceManual)})
	return nil
}

// errCommandTimedOut and errCommandAborted are the errors returned by send when a
// command resolves without a controller-reported outcome.
var (
	errCommandTimedOut = errors.New("nutrunner: command timed out")
	errCommandAborted  = errors.New("nutrunner: command aborted by disconnect")
)

// send runs the generic two-rule interlock, encodes and sends mid with
// payload, and blocks for its resolution (or ctx's cancellation),
// whichever comes first. A fire-and-forget MID (one protocol.AckRequired
// reports false for) returns nil as soon as the bytes are written.
func (c *Client) send(ctx context.Context, mid string, payload []byte) error {
	if err := cycle.CheckGeneric(c.store.Get()); err != nil {
		return err
	}
	return c.sendNoInterlock(ctx, mid, payload)
}

func (c *Client) sendNoInterlock(ctx context.Context, mid string, payload []byte) error {
	outcome, err := c.manager.SendCommand(mid, payload, util.NewTraceID())
	if err != nil {
		return err
	}
	if outcome == nil {
		return nil
	}
	select {
	case o := <-outcome:
		switch {
		case o.TimedOut:
			return errCommandTimedOut
		case o.Aborted:
			return errCommandAborted
		case !o.Success:
			return fmt.Errorf("nutrunner: command rejected: %d %s", o.ErrorCode, o.Message)
		default:
			return nil
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SelectJob sends MID 0034 (id in [0,9999]).
func (c *Client) SelectJob(ctx context.Context, id int) error {
	payload, err := protocol.EncodeSelectJob(id)
	if err != nil {
		return err
	}
	return c.send(ctx, protocol.MIDSelectJob, payload)
}

// DownloadVIN sends MID 0050 (vin up to 25 characters).
func (c *Client) DownloadVIN(ctx context.Context, vin string) error {
	payload, err := protocol.EncodeDownloadVIN(vin)
	if err != nil {
		return err
	}
	return c.send(ctx, protocol.MIDDownloadVIN, payload)
}

// SelectParameterSet sends MID 0018 (id in [0,999]).
func (c *Client) SelectParameterSet(ctx context.Context, id int) error {
	payload, err := protocol.EncodeSelectParamSet(id)
	if err != nil {
		return err
	}
	return c.send(ctx, protocol.MIDSelectParamSet, payload)
}

// EnableTool sends MID 0042.
func (c *Client) EnableTool(ctx context.Context) error {
	return c.send(ctx, protocol.MIDEnableTool, protocol.EncodeEmpty())
}

// DisableTool sends MID 0045.
func (c *Client) DisableTool(ctx context.Context) error {
	return c.send(ctx, protocol.MIDDisableTool, protocol.EncodeEmpty())
}

// StartTightening runs the full eight-rule interlock gate (§4.F) and,
// if every precondition holds, sends MID 0043.
func (c *Client) StartTightening(ctx context.Context) error {
	if err := cycle.CheckStartTightening(c.store.Get()); err != nil {
		return err
	}
	return c.sendNoInterlock(ctx, protocol.MIDStart, protocol.EncodeEmpty())
}

// ResetBatch sends MID 0020. The counter does not actually reset
// until the controller's MID 0005/0004 resolves the command; the
// client marks the reset pending immediately so callers can observe
// batch.pending_reset while it's outstanding.
func (c *Client) ResetBatch(ctx context.Context) error {
	if err := cycle.CheckGeneric(c.store.Get()); err != nil {
		return err
	}
	c.projector.MarkBatchResetPending()
	return c.sendNoInterlock(ctx, protocol.MIDResetBatch, protocol.EncodeEmpty())
}

// DecrementBatch sends MID 0021.
func (c *Client) DecrementBatch(ctx context.Context) error {
	return c.send(ctx, protocol.MIDDecrementBatch, protocol.EncodeEmpty())
}

// SubscribeTighteningResults sends MID 0060.
func (c *Client) SubscribeTighteningResults(ctx context.Context) error {
	return c.send(ctx, protocol.MIDSubscribeResult, protocol.EncodeEmpty())
}

// UnsubscribeTighteningResults sends MID 0063.
func (c *Client) UnsubscribeTighteningResults(ctx context.Context) error {
	return c.send(ctx, protocol.MIDUnsubResult, protocol.EncodeEmpty())
}

// SubscribeAlarms sends MID 0070, per the source behavior this client
// preserves (§9's open question: MID 0070 doubles as both the alarm
// subscribe command and the alarm report MID on some stacks).
func (c *Client) SubscribeAlarms(ctx context.Context) error {
	return c.send(ctx, protocol.MIDSubscribeAlarm, protocol.EncodeEmpty())
}

// UnsubscribeAlarms sends MID 0073.
func (c *Client) UnsubscribeAlarms(ctx context.Context) error {
	return c.send(ctx, protocol.MIDUnsubAlarm, protocol.EncodeEmpty())
}

// AcknowledgeAlarm sends MID 0078.
func (c *Client) AcknowledgeAlarm(ctx context.Context) error {
	return c.send(ctx, protocol.MIDAckAlarm, protocol.EncodeEmpty())
}

// WaitReady blocks until IsReady reports true or ctx is cancelled,
// polling at the given interval. Convenience for callers that want a
// synchronous connect-then-proceed flow instead of watching events.
func (c *Client) WaitReady(ctx context.Context, poll time.Duration) error {
	if c.IsReady() {
		return nil
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if c.IsReady() {
				return nil
			}
		}
	}
}
