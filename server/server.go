// Package server exposes the currency-tracker API over HTTP.
//
// Every request works on a fresh, request-scoped ledger snapshot, so reads
// are always consistent with the files on disk and need no coordination.
// All responses share the {success, error, data} envelope expected by the
// dashboard.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/etnz/beanrates"
)

// Server serves the currency tracker HTTP API for one ledger.
type Server struct {
	cfg    *beanrates.Config
	logger *slog.Logger
	writer *beanrates.Writer
	runner beanrates.Runner // nil means the real subprocess runner
	srv    *http.Server
}

// New returns a server for the given configuration.
func New(cfg *beanrates.Config, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, logger: logger, writer: beanrates.NewWriter()}
}

// Handler builds the API routes under the configured URL prefix.
func (s *Server) Handler() http.Handler {
	p := s.cfg.Prefix
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+p+"config", s.handleConfig)
	mux.HandleFunc("GET "+p+"availability", s.handleAvailability)
	mux.HandleFunc("GET "+p+"series", s.handleSeries)
	mux.HandleFunc("GET "+p+"prices_preview", s.handlePreview)
	mux.HandleFunc("POST "+p+"prices_save", s.handleSave)
	mux.HandleFunc("GET "+p+"prices_preview_range", s.handlePreviewRange)
	mux.HandleFunc("POST "+p+"prices_save_range", s.handleSaveRange)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Handler(),
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server starting", "addr", s.cfg.Listen, "ledger", s.cfg.Ledger)
	if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// envelope is the uniform response wrapper of every endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("request failed", "status", status, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: err.Error()})
}

// load builds the request-scoped snapshot of the ledger.
func (s *Server) load() (*beanrates.Snapshot, error) {
	sn, err := beanrates.Load(s.cfg.Ledger)
	if err != nil {
		return nil, err
	}
	for _, warn := range sn.Warnings {
		s.logger.Debug("skipped directive", "at", warn.String())
	}
	return sn, nil
}
