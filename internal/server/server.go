package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Iron-Ham/genbridge/internal/bridge"
	"github.com/Iron-Ham/genbridge/internal/config"
	"github.com/Iron-Ham/genbridge/internal/logging"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

// rootText is served on GET / so load balancers and humans can see the
// process is up.
const rootText = "Backend server is running!"

// Generator is the part of the bridge the HTTP surface needs.
type Generator interface {
	Generate(ctx context.Context, body []byte) bridge.Outcome
	InFlight() int
	Limit() int
}

// Server wraps the HTTP listener and handlers in front of a Generator.
type Server struct {
	settings    config.ServerConfig
	gen         Generator
	logger      *logging.Logger
	clock       func() time.Time
	metrics     http.Handler
	metricsPath string
	retryAfter  time.Duration

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsHandler mounts h at path, typically the Prometheus handler.
func WithMetricsHandler(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metrics = h
	}
}

// WithRetryAfter sets the back-off suggested to clients turned away for
// lack of capacity. It is rounded up to whole seconds.
func WithRetryAfter(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.retryAfter = d
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New prepares a server using the provided settings.
func New(settings config.ServerConfig, gen Generator, opts ...Option) *Server {
	if gen == nil {
		panic("server: Generator must not be nil")
	}
	s := &Server{
		settings:   settings,
		gen:        gen,
		logger:     logging.NopLogger(),
		clock:      time.Now,
		retryAfter: time.Second,
		status:     StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the routed HTTP handler, including request-ID and access
// logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/generate", s.handleGenerate)
	mux.HandleFunc("/api/llm/generate", s.handleGenerate)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil && s.metricsPath != "" {
		mux.Handle(s.metricsPath, s.metrics)
	}
	mux.HandleFunc("/", s.handleRoot)
	return s.withRequestID(s.withAccessLog(mux))
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("server: already started")
	}
	addr := s.settings.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	server := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.settings.ReadTimeout,
		ReadHeaderTimeout: s.settings.ReadTimeout,
		WriteTimeout:      s.settings.WriteTimeout,
		IdleTimeout:       s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve error", "error", err)
		}
	}()
	s.logger.Info("listening", "addr", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight
// generations to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.listener == nil || s.server == nil {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusDraining
	server := s.server
	s.mu.Unlock()

	err := server.Shutdown(ctx)

	s.mu.Lock()
	s.listener = nil
	s.server = nil
	s.mu.Unlock()
	return err
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		addr = s.settings.Addr()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.clock().Sub(s.startTime).Seconds())
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	InFlight      int    `json:"in_flight"`
	Limit         int    `json:"limit"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodHead))
		writeJSON(w, http.StatusMethodNotAllowed, errorPayload(msgMethodNotAllowed))
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		UptimeSeconds: s.uptimeSeconds(),
		InFlight:      s.gen.InFlight(),
		Limit:         s.gen.Limit(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, errorPayload(msgNotFound))
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodHead))
		writeJSON(w, http.StatusMethodNotAllowed, errorPayload(msgMethodNotAllowed))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rootText)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorPayload(msgMethodNotAllowed))
		return
	}

	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorPayload(msgBodyTooLarge))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorPayload(msgInvalidBody))
		return
	}

	ctx := bridge.WithRequestID(r.Context(), requestIDFrom(r.Context()))
	out := s.gen.Generate(ctx, body)
	s.writeOutcome(w, out)
}

func (s *Server) writeOutcome(w http.ResponseWriter, out bridge.Outcome) {
	resp := renderOutcome(out)
	if resp.retryAfter {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(s.retryAfter)))
	}
	writeJSON(w, resp.status, resp.payload)
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}
