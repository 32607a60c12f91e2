package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Chative-rag-assistant/server/internal/agent/graph"
	"github.com/Chative-rag-assistant/server/internal/agent/model"
	errx "github.com/Chative-rag-assistant/server/internal/core/error"
	logx "github.com/Chative-rag-assistant/server/pkg/logger"
)

const (
	maxBodyBytes = 1 << 20

	errTooManyRequests = "Demasiadas solicitudes. Por favor, espera un momento."
)

type Config struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	RequestTimeout  time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
	// RateLimitRPS bounds chat requests per client address; 0 disables it.
	RateLimitRPS   float64 `envconfig:"HTTP_RATE_LIMIT_RPS" default:"2"`
	RateLimitBurst int     `envconfig:"HTTP_RATE_LIMIT_BURST" default:"5"`
}

// Server exposes the assistant over HTTP.
type Server struct {
	runner  graph.Runner
	metrics *Metrics
	cfg     Config
	router  *mux.Router
}

func New(runner graph.Runner, metrics *Metrics, cfg Config) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	s := &Server{runner: runner, metrics: metrics, cfg: cfg, router: mux.NewRouter()}

	var chat http.Handler = http.HandlerFunc(s.handleChat)
	if cfg.RateLimitRPS > 0 {
		chat = newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).middleware(chat)
	}
	s.router.Handle("/chat", chat).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.cfg.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logx.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var in model.QueryInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		logx.Warn().Err(err).Msg("invalid chat request body")
		writeError(w, errx.BadRequest(err))
		return
	}

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	resp, err := s.runner.Invoke(ctx, in)
	if err != nil {
		logx.Error().Err(err).Str("session_id", in.SessionID).Int("status", errx.StatusOf(err)).Msg("chat turn failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errx.StatusOf(err), map[string]string{"error": errx.ServiceErrorMessage})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logx.Warn().Err(err).Msg("failed to write response")
	}
}
