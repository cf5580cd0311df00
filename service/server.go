// Package service exposes the streaming engine and the distributor over a
// JSON HTTP API. Callers identify themselves with the X-Fundable-Principal
// header and prove control of the principal with X-Fundable-Signature; the
// pair feeds the engine's authorization gate unchanged.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Fundable-Protocol/stellar-client/auth"
	"github.com/Fundable-Protocol/stellar-client/distributor"
	"github.com/Fundable-Protocol/stellar-client/engine"
	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/metric"
	"github.com/Fundable-Protocol/stellar-client/stream"
)

// Auth headers consumed by the API.
const (
	HeaderPrincipal = "X-Fundable-Principal"
	HeaderSignature = "X-Fundable-Signature"
	headerRequestID = "X-Request-ID"
)

// Options configures a Server.
type Options struct {
	Engine *engine.Engine
	// Distributor is optional; without it the distribution routes return 404.
	Distributor *distributor.Distributor
	// Registry is optional; without it /metrics is not mounted.
	Registry *metric.Registry
	Logger   *slog.Logger
	// ShutdownTimeout bounds graceful shutdown in Run. Zero means 10s.
	ShutdownTimeout time.Duration
}

// Server serves the HTTP API.
type Server struct {
	engine          *engine.Engine
	distributor     *distributor.Distributor
	registry        *metric.Registry
	logger          *slog.Logger
	shutdownTimeout time.Duration

	requestsTotal  atomic.Uint64
	requestsFailed atomic.Uint64
}

// NewServer creates a server. Engine is required.
func NewServer(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "service", "NewServer", "engine required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &Server{
		engine:          opts.Engine,
		distributor:     opts.Distributor,
		registry:        opts.Registry,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.registry != nil {
		mux.Handle("GET /metrics", s.registry.Handler())
	}

	mux.HandleFunc("POST /v1/protocol/initialize", s.handleInitialize)
	mux.HandleFunc("GET /v1/protocol/metrics", s.handleProtocolMetrics)
	mux.HandleFunc("GET /v1/protocol/fee", s.handleGetFee)
	mux.HandleFunc("PUT /v1/protocol/fee", s.handleSetFeeRate)
	mux.HandleFunc("PUT /v1/protocol/fee-collector", s.handleSetFeeCollector)

	mux.HandleFunc("POST /v1/streams", s.handleCreateStream)
	mux.HandleFunc("GET /v1/streams/{id}", s.handleGetStream)
	mux.HandleFunc("GET /v1/streams/{id}/withdrawable", s.handleWithdrawable)
	mux.HandleFunc("GET /v1/streams/{id}/metrics", s.handleStreamMetrics)
	mux.HandleFunc("POST /v1/streams/{id}/deposit", s.handleDeposit)
	mux.HandleFunc("POST /v1/streams/{id}/withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /v1/streams/{id}/pause", s.handlePause)
	mux.HandleFunc("POST /v1/streams/{id}/resume", s.handleResume)
	mux.HandleFunc("POST /v1/streams/{id}/cancel", s.handleCancel)

	mux.HandleFunc("GET /v1/streams/{id}/delegate", s.handleGetDelegate)
	mux.HandleFunc("PUT /v1/streams/{id}/delegate", s.handleSetDelegate)
	mux.HandleFunc("DELETE /v1/streams/{id}/delegate", s.handleRevokeDelegate)

	mux.HandleFunc("GET /v1/streams/{id}/cancel-request", s.handleGetCancelRequest)
	mux.HandleFunc("POST /v1/streams/{id}/cancel-request", s.handleRequestCancel)
	mux.HandleFunc("DELETE /v1/streams/{id}/cancel-request", s.handleRevokeCancelRequest)
	mux.HandleFunc("POST /v1/streams/{id}/cancel-consensual", s.handleCancelConsensual)

	if s.distributor != nil {
		mux.HandleFunc("POST /v1/distributor/initialize", s.handleDistInitialize)
		mux.HandleFunc("POST /v1/distributions/equal", s.handleDistributeEqual)
		mux.HandleFunc("POST /v1/distributions/weighted", s.handleDistributeWeighted)
		mux.HandleFunc("GET /v1/distributions/stats", s.handleDistStats)
		mux.HandleFunc("GET /v1/distributions/history", s.handleDistHistory)
	}

	return s.withRequestID(mux)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestsTotal.Add(1)
		reqID := r.Header.Get(headerRequestID)
		if reqID == "" {
			b := make([]byte, 8)
			if _, err := rand.Read(b); err != nil {
				reqID = fmt.Sprintf("req-%d", time.Now().UnixNano())
			} else {
				reqID = hex.EncodeToString(b)
			}
		}
		w.Header().Set(headerRequestID, reqID)
		next.ServeHTTP(w, r)
	})
}

// caller builds the auth caller from the request headers. The gate rejects
// missing or wrong proofs; the server never interprets them.
func caller(r *http.Request) auth.Caller {
	return auth.Caller{
		Principal: stream.Address(r.Header.Get(HeaderPrincipal)),
		Proof:     []byte(r.Header.Get(HeaderSignature)),
	}
}

func streamID(r *http.Request) (stream.ID, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.WrapInvalid(errors.ErrStreamNotFound, "service", "streamID", "parse id "+raw)
	}
	return stream.ID(id), nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.logger.Error("failed to encode response", "error", err)
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.requestsFailed.Add(1)
	s.writeJSON(w, status, map[string]string{
		"error":      msg,
		"request_id": w.Header().Get(headerRequestID),
	})
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", msg)
	}
}

// fail maps a domain error to an HTTP status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, errors.ErrStreamNotFound), errors.Is(err, errors.ErrKeyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrAlreadyInitialized), errors.Is(err, errors.ErrKeyExists):
		status = http.StatusConflict
	case errors.Is(err, errors.ErrNotInitialized):
		status = http.StatusServiceUnavailable
	case errors.IsInvalid(err):
		status = http.StatusBadRequest
	case errors.IsTransient(err):
		status = http.StatusServiceUnavailable
	}
	s.writeError(w, r, status, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"requests_total":  s.requestsTotal.Load(),
		"requests_failed": s.requestsFailed.Load(),
	})
}

// Run serves the API until the context is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errors.WrapTransient(err, "service", "Run", "listen and serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.WrapTransient(err, "service", "Run", "shutdown")
	}
	s.logger.Info("http server stopped")
	return nil
}
