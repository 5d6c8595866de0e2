package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ConnState is the state of the connection manager's loop
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateBackoff
	StateStatic
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoff:
		return "backoff"
	case StateStatic:
		return "static"
	default:
		return "unknown"
	}
}

// ConnectionConfig holds configuration for the server connection
type ConnectionConfig struct {
	// URL is the socket address. Empty means static mode.
	URL string
	// StaticPayload is applied once instead of connecting when URL is empty
	StaticPayload json.RawMessage

	SeedBackoff       time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
	Header           http.Header
}

// DefaultConnectionConfig returns default connection configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		SeedBackoff:       1 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    4 << 20, // init snapshots carry the whole schedule
		ReadBufferSize:    4096,
		WriteBufferSize:   1024,
	}
}

// SocketURL derives the socket address from the page origin and the server's path
// suffix. An empty suffix means there is no live connection to make.
func SocketURL(origin, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported origin scheme %q", u.Scheme)
	}
	return u.Scheme + "://" + u.Host + path, nil
}

type dialResult struct {
	conn *websocket.Conn
	err  error
}

// queuedAction is an action accepted while socket generation epoch was open
type queuedAction struct {
	Action
	epoch uint64
}

type frame struct {
	conn *websocket.Conn
	data []byte
	err  error
}

// ConnectionManager keeps one self-healing connection to the server and is the
// only goroutine that mutates the session.
type ConnectionManager struct {
	config  ConnectionConfig
	clock   clockwork.Clock
	dialer  *websocket.Dialer
	session *Session
	router  *Router
	backoff *Backoff

	state    atomic.Int32
	epoch    atomic.Uint64
	outbound chan queuedAction

	// owned by the Run loop
	conn        *websocket.Conn
	retry       clockwork.Timer
	pinger      clockwork.Ticker
	dialResults chan dialResult
	frames      chan frame
}

// NewConnectionManager creates a connection manager for session. notifier may be nil.
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock, session *Session, notifier Notifier) *ConnectionManager {
	cm := &ConnectionManager{
		config:  config,
		clock:   clock,
		session: session,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
		backoff:     NewBackoff(clock, config.SeedBackoff, config.MaxBackoff, config.BackoffMultiplier),
		outbound:    make(chan queuedAction, 64),
		dialResults: make(chan dialResult, 1),
		frames:      make(chan frame, 64),
	}
	cm.router = NewRouter(session, loopSender{cm}, notifier)
	return cm
}

// State returns the loop state
func (cm *ConnectionManager) State() ConnState {
	return ConnState(cm.state.Load())
}

// Send queues an action for the live socket. Without one the action is dropped:
// the server re-sends authoritative state on the next init. Actions never carry
// over to a later socket.
func (cm *ConnectionManager) Send(action string, payload map[string]any) error {
	epoch := cm.epoch.Load()
	if cm.State() != StateOpen {
		return ErrNotConnected
	}
	select {
	case cm.outbound <- queuedAction{Action: Action{Name: action, Payload: payload}, epoch: epoch}:
		return nil
	default:
		log.Warn().Str("action", action).Msg("outbound queue full, dropping action")
		return ErrNotConnected
	}
}

// Run drives the connection until ctx is cancelled
func (cm *ConnectionManager) Run(ctx context.Context) error {
	log.Info().
		Str("session_id", cm.session.ID()).
		Str("url", cm.config.URL).
		Msg("connection manager started")

	if cm.config.URL == "" {
		cm.setState(StateStatic)
		cm.applyStatic()
	} else {
		cm.dial(ctx)
	}

	for {
		var retryC, pingC <-chan time.Time
		if cm.retry != nil {
			retryC = cm.retry.Chan()
		}
		if cm.pinger != nil {
			pingC = cm.pinger.Chan()
		}

		select {
		case <-ctx.Done():
			cm.shutdown()
			log.Info().Msg("connection manager shutting down")
			return ctx.Err()

		case res := <-cm.dialResults:
			cm.handleDial(ctx, res)

		case <-retryC:
			cm.retry = nil
			cm.dial(ctx)

		case f := <-cm.frames:
			cm.handleFrame(ctx, f)

		case queued := <-cm.outbound:
			if err := cm.writeQueued(queued); err != nil {
				log.Debug().Err(err).Str("action", queued.Name).Msg("action dropped")
			}

		case <-pingC:
			cm.ping()

		case <-cm.session.rotator.C():
			cm.session.AdvanceScreen()
			cm.router.notify()

		case <-cm.session.flashEnded():
			cm.session.clearFlashTimer()
			cm.router.notify()
		}
	}
}

func (cm *ConnectionManager) setState(s ConnState) {
	cm.state.Store(int32(s))
	cm.session.setConnState(s)
}

// dial starts one connection attempt, its outcome arrives on dialResults
func (cm *ConnectionManager) dial(ctx context.Context) {
	cm.setState(StateConnecting)
	log.Info().Str("url", cm.config.URL).Msg("trying to connect")

	go func() {
		conn, _, err := cm.dialer.DialContext(ctx, cm.config.URL, cm.config.Header)
		if err == nil && ctx.Err() != nil {
			// Run has returned, nobody will pick this socket up
			conn.Close()
			return
		}
		select {
		case cm.dialResults <- dialResult{conn: conn, err: err}:
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		}
	}()
}

func (cm *ConnectionManager) handleDial(ctx context.Context, res dialResult) {
	if res.err != nil {
		if ctx.Err() != nil {
			return
		}
		delay := cm.backoff.Next()
		cm.retry = cm.clock.NewTimer(delay)
		cm.setState(StateBackoff)
		log.Error().
			Err(res.err).
			Str("url", cm.config.URL).
			Dur("next_attempt_in", delay).
			Msg("error opening connection")
		return
	}

	if ctx.Err() != nil {
		res.conn.Close()
		return
	}

	cm.backoff.Reset()
	cm.conn = res.conn
	cm.epoch.Add(1)
	if cm.config.PingInterval > 0 {
		cm.pinger = cm.clock.NewTicker(cm.config.PingInterval)
	}
	cm.session.markConnected()
	cm.setState(StateOpen)

	go cm.readPump(ctx, res.conn)

	log.Info().
		Str("url", cm.config.URL).
		Int("connections", cm.session.Connections()).
		Msg("connection open")
}

func (cm *ConnectionManager) handleFrame(ctx context.Context, f frame) {
	if f.conn != cm.conn {
		// a pump of an already replaced socket
		return
	}

	if f.err != nil {
		if websocket.IsUnexpectedCloseError(f.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			log.Warn().Err(f.err).Msg("unexpected close")
		}
		log.Info().Str("url", cm.config.URL).Msg("connection closed")
		cm.dropConn()
		cm.dial(ctx)
		return
	}

	err := cm.router.Route(f.data)
	switch {
	case err == nil:
	case errors.Is(err, ErrForcedReload):
		cm.reload(ctx)
	default:
		log.Warn().Err(err).Int("bytes", len(f.data)).Msg("dropping frame")
	}
}

// reload starts a fresh session: new socket, backoff from the seed
func (cm *ConnectionManager) reload(ctx context.Context) {
	if cm.config.URL == "" {
		cm.applyStatic()
		return
	}
	if cm.conn != nil {
		cm.conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
		cm.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "reload"))
		cm.dropConn()
	}
	cm.backoff.Reset()
	cm.dial(ctx)
}

func (cm *ConnectionManager) applyStatic() {
	if len(cm.config.StaticPayload) == 0 {
		log.Warn().Msg("static mode without a payload, nothing to display")
		return
	}
	err := cm.router.Route(cm.config.StaticPayload)
	switch {
	case err == nil:
		log.Info().Msg("static payload applied")
	case errors.Is(err, ErrForcedReload):
		log.Warn().Msg("static payload asks for a reload, ignoring")
	default:
		log.Error().Err(err).Msg("static payload rejected")
	}
}

func (cm *ConnectionManager) dropConn() {
	if cm.pinger != nil {
		cm.pinger.Stop()
		cm.pinger = nil
	}
	if cm.conn != nil {
		cm.conn.Close()
		cm.conn = nil
	}
	cm.dropOutbound()
}

// dropOutbound discards actions queued for a socket that is gone
func (cm *ConnectionManager) dropOutbound() {
	for {
		select {
		case queued := <-cm.outbound:
			log.Debug().Str("action", queued.Name).Msg("action dropped with its socket")
		default:
			return
		}
	}
}

func (cm *ConnectionManager) shutdown() {
	if cm.retry != nil {
		cm.retry.Stop()
		cm.retry = nil
	}
	if cm.conn != nil {
		cm.conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
		cm.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
	}
	cm.dropConn()
	cm.session.rotator.Stop()
}

// writeQueued writes an action accepted by Send unless its socket is gone
func (cm *ConnectionManager) writeQueued(queued queuedAction) error {
	if queued.epoch != cm.epoch.Load() {
		return fmt.Errorf("%w: queued for an earlier socket", ErrNotConnected)
	}
	return cm.write(queued.Action)
}

// write sends an action on the live socket, only from the Run loop
func (cm *ConnectionManager) write(action Action) error {
	if cm.conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}

	cm.conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
	if err := cm.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Error().Err(err).Str("action", action.Name).Msg("failed to write action")
		return fmt.Errorf("write action: %w", err)
	}

	log.Debug().RawJSON("message", data).Msg("action sent")
	return nil
}

func (cm *ConnectionManager) ping() {
	if cm.conn == nil {
		return
	}
	cm.conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
	if err := cm.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		// the read pump sees the broken socket and reports the close
		log.Error().Err(err).Msg("failed to send ping")
	}
}

// readPump forwards frames of one socket to the Run loop until it fails
func (cm *ConnectionManager) readPump(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(cm.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		f := frame{conn: conn, data: data, err: err}

		select {
		case cm.frames <- f:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
	}
}

// loopSender writes straight to the socket, the router only runs on the Run loop
type loopSender struct {
	cm *ConnectionManager
}

func (s loopSender) Send(action string, payload map[string]any) error {
	return s.cm.write(Action{Name: action, Payload: payload})
}
