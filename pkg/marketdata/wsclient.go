package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"marketconformance/config"
	"marketconformance/internal/poll"
	"marketconformance/internal/stream"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnState is the lifecycle state of a WSClient.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// EventKind enumerates what the receive loop reports to the client.
type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventError
	EventClose
)

func (k EventKind) String() string {
	return [...]string{"open", "message", "error", "close"}[k]
}

// Event is one transport occurrence, delivered in order to the dispatcher.
type Event struct {
	Kind      EventKind
	Frame     []byte
	Err       error
	CloseCode int
	CloseText string

	conn *websocket.Conn
}

const (
	eventQueueSize  = 1024
	writeTimeout    = 5 * time.Second
	defaultConnWait = 10 * time.Second
)

// WSClient owns one streaming connection and the inbox it fills. The receive
// loop only reads frames and queues events; a single dispatcher goroutine
// applies them to the client state, so state has exactly one writer.
type WSClient struct {
	url    string
	cfg    config.WSConfig
	dialer *websocket.Dialer
	logger *zap.Logger

	inbox  *stream.Inbox
	handle func([]byte) (stream.Message, bool)
	hook   func(Event)

	mu      sync.RWMutex
	state   ConnState
	lastErr error
	conn    *websocket.Conn
	cancel  context.CancelFunc
	closed  bool

	writeMu sync.Mutex
	nextID  atomic.Int64
}

// NewWSClient creates a streaming client for cfg.URL. Nothing is dialled
// until Connect.
func NewWSClient(cfg config.WSConfig, logger *zap.Logger) *WSClient {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnWait
	}
	inbox := stream.NewInbox()
	c := &WSClient{
		url: cfg.URL,
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
		},
		logger: logger,
		inbox:  inbox,
		handle: stream.MakeMessageHandler(logger, inbox),
	}
	c.nextID.Store(time.Now().UnixMilli())
	return c
}

// SetEventHook registers fn to observe every event after it is applied.
// It runs on the dispatcher goroutine and must return quickly.
func (c *WSClient) SetEventHook(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = fn
}

// Connect dials the server and blocks until the connection opens, fails, or
// the connect timeout elapses.
func (c *WSClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateConnecting {
		c.mu.Unlock()
		return errors.New("websocket connect already in progress")
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	c.state = StateConnecting
	c.lastErr = nil
	c.cancel = cancel
	c.mu.Unlock()

	opened := make(chan error, 1)
	events := make(chan Event, eventQueueSize)
	go c.dispatch(loopCtx, events, opened)
	go c.run(loopCtx, events)

	timer := time.NewTimer(c.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case err := <-opened:
		if err != nil {
			c.logger.Error("WebSocket connection failed", zap.String("url", c.url), zap.Error(err))
			return fmt.Errorf("connect %s: %w", c.url, err)
		}
		c.logger.Info("WebSocket connected successfully", zap.String("url", c.url))
		return nil
	case <-timer.C:
		c.logger.Error("WebSocket connection timeout", zap.String("url", c.url), zap.Duration("timeout", c.cfg.ConnectTimeout))
		c.abort(ErrConnectTimeout)
		return ErrConnectTimeout
	case <-ctx.Done():
		c.abort(ctx.Err())
		return ctx.Err()
	}
}

// abort stops a connection attempt without marking the client closed.
func (c *WSClient) abort(reason error) {
	c.mu.Lock()
	cancel, conn := c.cancel, c.conn
	c.cancel, c.conn = nil, nil
	c.state = StateDisconnected
	c.lastErr = reason
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// Disconnect closes the connection. It is idempotent, valid in any state and
// never fails. A client that was connected cannot be connected again.
func (c *WSClient) Disconnect() {
	c.mu.Lock()
	cancel, conn := c.cancel, c.conn
	if c.state == StateDisconnected && conn == nil && cancel == nil {
		c.mu.Unlock()
		return
	}
	c.cancel, c.conn = nil, nil
	c.state = StateDisconnected
	c.closed = true
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	c.logger.Info("WebSocket disconnected", zap.String("url", c.url))
}

// run is the receive loop. It is the only sender on events and closes the
// queue when the connection ends.
func (c *WSClient) run(ctx context.Context, events chan<- Event) {
	defer close(events)

	conn, err := c.dial(ctx)
	if err != nil {
		if ctx.Err() == nil {
			events <- Event{Kind: EventError, Err: err}
		}
		return
	}
	if ctx.Err() != nil {
		_ = conn.Close()
		return
	}

	idle := c.cfg.PingInterval + c.cfg.PongTimeout
	extend := func() {
		if idle > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(idle))
		}
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	events <- Event{Kind: EventOpen, conn: conn}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.keepAlive(pingCtx, conn)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			switch {
			case ctx.Err() != nil:
				events <- Event{Kind: EventClose, CloseCode: websocket.CloseNormalClosure}
			case errors.As(err, &ce):
				events <- Event{Kind: EventClose, CloseCode: ce.Code, CloseText: ce.Text}
			default:
				events <- Event{Kind: EventError, Err: err}
				events <- Event{Kind: EventClose, CloseCode: websocket.CloseAbnormalClosure}
			}
			return
		}
		extend()
		events <- Event{Kind: EventMessage, Frame: frame}
	}
}

// dial is Dialer.DialContext that also abandons a handshake in progress
// when ctx is cancelled; the dialer itself only turns ctx into a deadline.
func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	var mu sync.Mutex
	var raw net.Conn

	d := *c.dialer
	d.NetDialContext = func(dctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := (&net.Dialer{}).DialContext(dctx, network, addr)
		if err == nil {
			mu.Lock()
			raw = conn
			mu.Unlock()
		}
		return conn, err
	}
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if raw != nil {
			_ = raw.Close()
		}
	})
	defer stop()

	conn, _, err := d.DialContext(ctx, c.url, nil)
	return conn, err
}

func (c *WSClient) keepAlive(ctx context.Context, conn *websocket.Conn) {
	if c.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.PongTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Warn("WebSocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

// dispatch drains the event queue and is the single writer of client state.
// Once ctx is cancelled the attempt has been abandoned, and its remaining
// events no longer touch state.
func (c *WSClient) dispatch(ctx context.Context, events <-chan Event, opened chan<- error) {
	signalled := false
	signal := func(err error) {
		signalled = true
		select {
		case opened <- err:
		default:
		}
	}
	// a loop cancelled before it opened still releases Connect
	defer func() {
		if !signalled {
			signal(ErrClientClosed)
		}
	}()

	for ev := range events {
		switch ev.Kind {
		case EventOpen:
			c.mu.Lock()
			if ctx.Err() != nil {
				c.mu.Unlock()
				_ = ev.conn.Close()
				continue
			}
			c.conn = ev.conn
			c.state = StateConnected
			c.mu.Unlock()
			c.logger.Info("WebSocket connection opened", zap.String("url", c.url))
			signal(nil)

		case EventMessage:
			msg, ok := c.handle(ev.Frame)
			if ok && msg.Method == stream.MethodHeartbeat {
				c.respondHeartbeat(msg.ID)
			}

		case EventError:
			c.mu.Lock()
			if ctx.Err() == nil {
				c.lastErr = ev.Err
				if c.state == StateConnecting {
					c.state = StateDisconnected
				}
			}
			c.mu.Unlock()
			c.logger.Error("WebSocket error", zap.Error(ev.Err))
			signal(ev.Err)

		case EventClose:
			c.mu.Lock()
			if ctx.Err() == nil {
				c.state = StateDisconnected
			}
			c.mu.Unlock()
			c.logger.Info("WebSocket connection closed", zap.Int("code", ev.CloseCode), zap.String("reason", ev.CloseText))
		}

		c.mu.RLock()
		hook := c.hook
		c.mu.RUnlock()
		if hook != nil {
			hook(ev)
		}
	}
}

func (c *WSClient) respondHeartbeat(id int64) {
	req := stream.Request{ID: id, Method: stream.MethodRespondHeartbeat}
	if err := c.send(req); err != nil {
		c.logger.Warn("failed to respond to heartbeat", zap.Int64("id", id), zap.Error(err))
	}
}

func (c *WSClient) send(req stream.Request) error {
	c.mu.RLock()
	conn, state := c.conn, c.state
	c.mu.RUnlock()
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write %s: %w", req.Method, err)
	}
	c.logger.Debug("sent message", zap.Int64("id", req.ID), zap.String("method", req.Method), zap.Any("params", req.Params))
	return nil
}

func (c *WSClient) nextRequestID() int64 {
	return c.nextID.Add(1)
}

// SubscribeToBook subscribes to book.<instrument>.<depth>.
func (c *WSClient) SubscribeToBook(instrument string, depth int) error {
	channel := stream.BookChannel(instrument, depth)
	return c.subscribe(stream.MethodSubscribe, map[string]any{
		"channels": []string{channel},
	}, channel)
}

// SubscribeToBookUpdate subscribes to channel with an explicit book
// subscription type (e.g. SNAPSHOT_AND_UPDATE) and update frequency in ms.
func (c *WSClient) SubscribeToBookUpdate(channel, subscriptionType string, updateFrequency int) error {
	return c.subscribe(stream.MethodSubscribe, map[string]any{
		"channels":               []string{channel},
		"book_subscription_type": subscriptionType,
		"book_update_frequency":  updateFrequency,
	}, channel)
}

// UnsubscribeFromBook unsubscribes from book.<instrument>.<depth>. The
// subscription record is left as is.
func (c *WSClient) UnsubscribeFromBook(instrument string, depth int) error {
	channel := stream.BookChannel(instrument, depth)
	return c.subscribe(stream.MethodUnsubscribe, map[string]any{
		"channels": []string{channel},
	}, channel)
}

func (c *WSClient) subscribe(method string, params map[string]any, channel string) error {
	req := stream.Request{ID: c.nextRequestID(), Method: method, Params: params}
	if err := c.send(req); err != nil {
		c.logger.Error("failed to "+method, zap.String("channel", channel), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, channel, err)
	}
	c.logger.Info(method+" sent", zap.String("channel", channel), zap.Int64("id", req.ID))
	return nil
}

// IsSubscribed reports whether the server ever confirmed channel.
func (c *WSClient) IsSubscribed(channel string) bool {
	return c.inbox.IsConfirmed(channel)
}

// SubscribedChannels lists every channel the server has confirmed.
func (c *WSClient) SubscribedChannels() []string {
	return c.inbox.Confirmed()
}

// GetReceivedMessages returns a copy of the buffer, filtered by method unless
// method is empty.
func (c *WSClient) GetReceivedMessages(method string) []stream.Message {
	return c.inbox.Snapshot(method)
}

func (c *WSClient) ClearReceivedMessages() {
	c.inbox.Clear()
}

// WaitForMessages blocks until at least one message arrives after the call
// starts or timeout elapses.
func (c *WSClient) WaitForMessages(ctx context.Context, timeout time.Duration) bool {
	initial := c.inbox.Len()
	return poll.Until(ctx, timeout, poll.DefaultInterval, func() bool {
		return c.inbox.Len() > initial
	})
}

// WaitForMessage blocks until a buffered message satisfies match, checking
// the newest first.
func (c *WSClient) WaitForMessage(ctx context.Context, timeout time.Duration, match func(stream.Message) bool) (stream.Message, bool) {
	var found stream.Message
	ok := poll.Until(ctx, timeout, poll.DefaultInterval, func() bool {
		msgs := c.inbox.Snapshot("")
		for i := len(msgs) - 1; i >= 0; i-- {
			if match(msgs[i]) {
				found = msgs[i]
				return true
			}
		}
		return false
	})
	return found, ok
}

func (c *WSClient) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *WSClient) IsConnected() bool {
	return c.State() == StateConnected
}

// LastError returns the most recent transport error, if any.
func (c *WSClient) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}
