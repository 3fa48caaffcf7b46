package bridge

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
	"github.com/vrsc-agents/agent-sdk-go/pkg/signer"
)

/*
Server exposes one agent key over loopback HTTP for agent runtimes that cannot
link the Go SDK.

  GET  /identity         address, public key and configured identity
  POST /sign/message     { message } -> { address, signature }
  POST /sign/challenge   { challengeId, challenge, subject } -> authenticated challenge
  POST /verify/message   { address, message, signature } -> { valid }
  POST /verify/challenge { address, challenge, subject, signature } -> { valid }
  GET  /health
  GET  /metrics

When an auth token is configured every route except /health requires
"Authorization: Bearer <token>". The private key never leaves the process.
*/

const (
	DefaultHost = "127.0.0.1"

	maxRequestBytes = 64 << 10
)

// IBridgeSigner is the part of *signer.Signer the bridge serves.
type IBridgeSigner interface {
	Address() string
	PublicKeyHex() string
	NetworkParameters() *config.NetworkParameters
	SignMessage(ctx context.Context, message string) (string, error)
	CreateAuthenticatedChallenge(ctx context.Context, challengeID, challenge, identity string) (*signer.AuthenticatedChallenge, error)
}

type ServerConfig struct {
	Signer IBridgeSigner

	// Identity is used as the challenge subject when a request names none.
	Identity string

	Host string
	Port int

	// AuthToken, when set, is required as a bearer token.
	AuthToken string

	// Registry receives the bridge's metrics and backs /metrics. A fresh
	// registry is used when nil.
	Registry *prometheus.Registry

	Logger *zap.Logger
}

// Server handles HTTP requests for the bridge
type Server struct {
	signer    IBridgeSigner
	params    *config.NetworkParameters
	identity  string
	authToken string
	logger    *zap.Logger

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	factory := promauto.With(registry)
	s := &Server{
		signer:    cfg.Signer,
		params:    cfg.Signer.NetworkParameters(),
		identity:  cfg.Identity,
		authToken: cfg.AuthToken,
		logger:    cfg.Logger,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent_sdk",
			Subsystem: "bridge",
			Name:      "requests_total",
			Help:      "Bridge requests by route and status code.",
		}, []string{"route", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agent_sdk",
			Subsystem: "bridge",
			Name:      "request_duration_seconds",
			Help:      "Bridge request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.authorized(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Identity and signing endpoints
	mux.Handle("/identity", s.route("identity", http.MethodGet, s.handleIdentity))
	mux.Handle("/sign/message", s.route("sign.message", http.MethodPost, s.handleSignMessage))
	mux.Handle("/sign/challenge", s.route("sign.challenge", http.MethodPost, s.handleSignChallenge))

	// Verification endpoints
	mux.Handle("/verify/message", s.route("verify.message", http.MethodPost, s.handleVerifyMessage))
	mux.Handle("/verify/challenge", s.route("verify.challenge", http.MethodPost, s.handleVerifyChallenge))

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(cfg.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	return s, nil
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("bridge already started")
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	go func() {
		s.logger.Sugar().Infow("Starting bridge HTTP server", "address", s.signer.Address(), "listen", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Sugar().Errorw("Bridge HTTP server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Stop drains in-flight requests until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}

// route wraps h with method, auth and metrics handling.
func (s *Server) route(name, method string, h http.HandlerFunc) http.Handler {
	return s.authorized(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			s.requests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
			s.duration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}()

		if r.Method != method {
			rec.Header().Set("Allow", method)
			writeError(rec, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(rec, r.Body, maxRequestBytes)
		}
		h(rec, r)
	}))
}

func (s *Server) authorized(next http.Handler) http.Handler {
	if s.authToken == "" {
		return next
	}
	want := []byte(s.authToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(auth) < len("bearer ") || !strings.EqualFold(auth[:len("bearer ")], "bearer ") {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		got := []byte(strings.TrimSpace(auth[len("bearer "):]))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
