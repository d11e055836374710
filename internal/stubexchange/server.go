// Package stubexchange runs an in-process imitation of the exchange's public
// market-data API: every REST endpoint and the book channel of the market
// stream. It backs the package tests and the --stub self-check.
package stubexchange

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	apiPrefix       = "/exchange/v1"
	RequestIDHeader = "X-Request-Id"
)

type Options struct {
	// Prices maps each listed instrument to its reference price.
	Prices map[string]float64

	PushInterval      time.Duration // book updates per subscribed channel, default 200ms
	HeartbeatInterval time.Duration // 0 disables heartbeats
	RateLimit         float64       // REST requests per second, 0 = unlimited
	Now               func() time.Time
}

type Server struct {
	opts     Options
	logger   *zap.Logger
	market   *market
	http     *httptest.Server
	upgrader websocket.Upgrader
	limiter  *rate.Limiter

	requests   atomic.Int64
	heartbeats atomic.Int64

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New starts a stub exchange on a loopback port.
func New(opts Options, logger *zap.Logger) *Server {
	if opts.PushInterval <= 0 {
		opts.PushInterval = 200 * time.Millisecond
	}
	s := &Server{
		opts:   opts,
		logger: logger.Named("stubexchange"),
		market: newMarket(opts.Prices, opts.Now),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
	if opts.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(opts.RateLimit)))
	}
	s.http = httptest.NewServer(s.Router())
	s.logger.Info("stub exchange listening", zap.String("url", s.http.URL))
	return s
}

// Router wires every endpoint under /exchange/v1.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID, s.count, s.rateLimit)

	api := r.PathPrefix(apiPrefix).Subrouter()
	api.HandleFunc("/market", s.serveWS)

	get := func(path string, h http.HandlerFunc) {
		api.HandleFunc("/"+path, h).Methods(http.MethodGet)
	}
	get("public/get-candlestick", s.handleCandlestick)
	get("public/get-instruments", s.handleInstruments)
	get("public/get-book", s.handleBook)
	get("public/get-trades", s.handleTrades)
	get("public/get-tickers", s.handleTickers)
	get("public/get-insurance", s.handleInsurance)
	get("public/get-valuations", s.handleValuations)
	get("public/get-expired-settlement-price", s.handleExpiredSettlementPrice)
	get("public/get-risk-parameters", s.handleRiskParameters)
	get("public/get-announcements", s.handleAnnouncements)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.TrimPrefix(r.URL.Path, apiPrefix+"/")
		s.reply(w, http.StatusNotFound, envelope{ID: -1, Method: method, Code: codeMethodNotFound, Message: "Method not found"})
	})
	return r
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.logger.Debug("request",
			zap.String("path", r.URL.Path),
			zap.String("query", r.URL.RawQuery),
			zap.String("request_id", w.Header().Get(RequestIDHeader)))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !websocket.IsWebSocketUpgrade(r) && !s.limiter.Allow() {
			method := strings.TrimPrefix(r.URL.Path, apiPrefix+"/")
			s.reply(w, http.StatusTooManyRequests, envelope{ID: -1, Method: method, Code: codeTooManyRequests, Message: "TOO_MANY_REQUESTS"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BaseURL is the REST base, with a trailing slash like the real one.
func (s *Server) BaseURL() string {
	return s.http.URL + apiPrefix + "/"
}

func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + apiPrefix + "/market"
}

// Requests counts REST and upgrade requests received so far.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// HeartbeatReplies counts public/respond-heartbeat messages received.
func (s *Server) HeartbeatReplies() int64 {
	return s.heartbeats.Load()
}

// Sessions returns the number of open streaming connections.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close drops every streaming session and stops the listener.
func (s *Server) Close() {
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.http.Close()
}
