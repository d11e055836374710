package stubexchange

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"marketconformance/internal/stream"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var bookSubscriptionTypes = map[string]bool{
	"SNAPSHOT":            true,
	"SNAPSHOT_AND_UPDATE": true,
}

var bookUpdateFrequencies = map[int]bool{10: true, 100: true, 500: true}

type wsRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params struct {
		Channels             []string `json:"channels"`
		BookSubscriptionType string   `json:"book_subscription_type"`
		BookUpdateFrequency  *int     `json:"book_update_frequency"`
	} `json:"params"`
}

// session is one accepted streaming connection.
type session struct {
	srv  *Server
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	channels map[string]struct{}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	sess := &session{srv: s, conn: conn, channels: make(map[string]struct{})}
	s.track(conn, true)
	defer s.track(conn, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.push(ctx)

	s.logger.Debug("websocket session opened", zap.String("remote", r.RemoteAddr))
	sess.read()
	_ = conn.Close()
	s.logger.Debug("websocket session closed", zap.String("remote", r.RemoteAddr))
}

func (s *Server) track(conn *websocket.Conn, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if open {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (ss *session) write(v any) error {
	frame, err := codec.Marshal(v)
	if err != nil {
		return err
	}
	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()
	_ = ss.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ss.conn.WriteMessage(websocket.TextMessage, frame)
}

func (ss *session) read() {
	for {
		_, frame, err := ss.conn.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := codec.Unmarshal(frame, &req); err != nil {
			_ = ss.write(envelope{ID: -1, Method: "", Code: codeInvalidRequest, Message: "Invalid request: malformed JSON"})
			continue
		}

		switch req.Method {
		case stream.MethodSubscribe:
			ss.subscribe(req)
		case stream.MethodUnsubscribe:
			ss.unsubscribe(req)
		case stream.MethodRespondHeartbeat:
			ss.srv.heartbeats.Add(1)
		default:
			_ = ss.write(envelope{ID: req.ID, Method: req.Method, Code: codeMethodNotFound, Message: "Unknown method"})
		}
	}
}

type subscribeReply struct {
	ID      int64          `json:"id"`
	Method  string         `json:"method"`
	Code    int            `json:"code"`
	Message string         `json:"message,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

func (ss *session) subscribe(req wsRequest) {
	fail := func(code int, msg string) {
		_ = ss.write(subscribeReply{ID: req.ID, Method: req.Method, Code: code, Message: msg,
			Params: map[string]any{"channels": req.Params.Channels}})
	}

	if len(req.Params.Channels) == 0 {
		fail(codeInvalidArgument, "Invalid parameter: channels is required")
		return
	}
	if t := req.Params.BookSubscriptionType; t != "" && !bookSubscriptionTypes[t] {
		fail(codeInvalidArgument, "Invalid parameter: book_subscription_type")
		return
	}
	if f := req.Params.BookUpdateFrequency; f != nil && !bookUpdateFrequencies[*f] {
		fail(codeInvalidArgument, "Invalid parameter: book_update_frequency")
		return
	}

	for _, ch := range req.Params.Channels {
		instrument, depth, ok := stream.ParseBookChannel(ch)
		switch {
		case !ok:
			fail(codeInvalidArgument, "Unknown channel: "+ch)
			return
		case !ss.srv.market.known(instrument):
			fail(codeInvalidArgument, "Unknown symbol: "+instrument)
			return
		case depth != 10 && depth != 50:
			fail(codeInvalidArgument, "Invalid parameter: depth")
			return
		}
	}

	ss.mu.Lock()
	for _, ch := range req.Params.Channels {
		ss.channels[ch] = struct{}{}
	}
	ss.mu.Unlock()

	_ = ss.write(subscribeReply{ID: req.ID, Method: req.Method, Code: 0,
		Params: map[string]any{"channels": req.Params.Channels}})
	for _, ch := range req.Params.Channels {
		_ = ss.write(ss.srv.bookPush(ch))
	}
}

func (ss *session) unsubscribe(req wsRequest) {
	ss.mu.Lock()
	for _, ch := range req.Params.Channels {
		delete(ss.channels, ch)
	}
	ss.mu.Unlock()
	_ = ss.write(subscribeReply{ID: req.ID, Method: req.Method, Code: 0,
		Params: map[string]any{"channels": req.Params.Channels}})
}

func (ss *session) subscribed() []string {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	out := make([]string, 0, len(ss.channels))
	for ch := range ss.channels {
		out = append(out, ch)
	}
	return out
}

// push sends a book update for every subscribed channel each interval and
// a heartbeat when one is configured.
func (ss *session) push(ctx context.Context) {
	book := time.NewTicker(ss.srv.opts.PushInterval)
	defer book.Stop()

	var heartbeat <-chan time.Time
	if ss.srv.opts.HeartbeatInterval > 0 {
		t := time.NewTicker(ss.srv.opts.HeartbeatInterval)
		defer t.Stop()
		heartbeat = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-book.C:
			for _, ch := range ss.subscribed() {
				if err := ss.write(ss.srv.bookPush(ch)); err != nil {
					return
				}
			}
		case <-heartbeat:
			id := time.Now().UnixMilli()
			if err := ss.write(map[string]any{"id": id, "method": stream.MethodHeartbeat, "code": 0}); err != nil {
				return
			}
		}
	}
}

type bookFrame struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params struct {
		Channel      string            `json:"channel"`
		Subscription string            `json:"subscription"`
		Data         []json.RawMessage `json:"data"`
	} `json:"params"`
}

func (s *Server) bookPush(channel string) bookFrame {
	instrument, depth, _ := stream.ParseBookChannel(channel)
	now := s.market.nowMs()
	bids, asks := s.market.book(instrument, depth, now)

	data, _ := codec.Marshal(map[string]any{
		"instrument_name": instrument,
		"bids":            bids,
		"asks":            asks,
		"t":               now,
	})

	var p bookFrame
	p.ID = -1
	p.Method = stream.MethodBook
	p.Params.Channel = channel
	p.Params.Subscription = channel
	p.Params.Data = []json.RawMessage{data}
	return p
}
