// Package server implements the TCP front end of the tsexpr service: it
// accepts connections, decodes requests, runs the binding and evaluation
// pipeline and writes responses back.
//
// Every accepted connection is serviced by its own goroutine. The one shared,
// serialized resource is the resolver callback: it is host-exclusive and
// non-reentrant, so a single mutex guards exactly the resolver invocation and
// nothing else. Socket I/O and evaluation run unlocked and in parallel
// across connections.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hydrosight/tsexpr/pkg/codec"
	"github.com/hydrosight/tsexpr/pkg/domain"
	"github.com/hydrosight/tsexpr/pkg/eval"
	"github.com/hydrosight/tsexpr/pkg/observability"
	"github.com/hydrosight/tsexpr/pkg/ports"
)

// DefaultMaxConnections bounds concurrent client connections unless
// configured otherwise.
const DefaultMaxConnections = 32

// Server is the distributed time-series computation server.
type Server struct {
	addr     string
	maxConns int
	resolver ports.Resolver
	logger   *slog.Logger
	metrics  *observability.Metrics

	// resolverMu serializes resolver invocations system-wide. Held only for
	// the duration of one Resolve call, never across I/O or evaluation.
	resolverMu sync.Mutex

	mu      sync.Mutex
	ln      net.Listener
	cancel  context.CancelFunc
	running bool

	conns atomic.Int64
	wg    sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithResolver sets the callback used to bind unresolved references.
func WithResolver(r ports.Resolver) Option {
	return func(s *Server) { s.resolver = r }
}

// WithMaxConnections limits simultaneous client connections. Connections
// beyond the limit are refused, not queued.
func WithMaxConnections(n int) Option {
	return func(s *Server) { s.maxConns = n }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the Prometheus collectors to record into.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a server that will listen on addr (host:port; port 0 picks a
// free one).
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		maxConns: DefaultMaxConnections,
		logger:   slog.New(slog.DiscardHandler),
		metrics:  observability.NopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins listening and servicing connections in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already running on %s", s.ln.Addr())
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.ln = ln
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)
	s.logger.Info("server started", "addr", ln.Addr().String(), "max_connections", s.maxConns)
	return nil
}

// Stop gracefully shuts the server down: the listener closes immediately,
// then Stop waits for in-flight connections until ctx expires. It is
// idempotent.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	ln := s.ln
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	if err := ln.Close(); err != nil {
		s.logger.Warn("listener close", "err", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("server stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown incomplete: %w", ctx.Err())
	}
}

// Clear stops serving connections gracefully with a default deadline. It is
// the historical name for Stop and is likewise idempotent.
func (s *Server) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		s.logger.Warn("clear", "err", err)
	}
}

// IsRunning reports whether the server is listening.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Drive keeps the service alive and processing for up to d, starting it if
// necessary. It exists for embedding hosts whose event loop cannot yield
// control indefinitely; the server keeps running after Drive returns.
func (s *Server) Drive(d time.Duration) error {
	if !s.IsRunning() {
		if err := s.Start(); err != nil {
			return err
		}
	}
	time.Sleep(d)
	return nil
}

// FireResolver runs the resolver path in isolation: same exclusive lock,
// same mismatch checking, no socket involved. Intended for resolver
// correctness tests.
func (s *Server) FireResolver(ctx context.Context, ids []string, period domain.Period) ([]domain.Series, error) {
	return s.lockedResolver().Resolve(ctx, ids, period)
}

// lockedResolver wraps the configured resolver with the exclusive-execution
// guard and the invocation metric. The returned resolver enforces the
// order/count contract so callers see ResolverMismatchError instead of a
// silently padded result.
func (s *Server) lockedResolver() ports.Resolver {
	return ports.ResolverFunc(func(ctx context.Context, ids []string, period domain.Period) ([]domain.Series, error) {
		if s.resolver == nil {
			return nil, domain.ErrNoResolver
		}
		s.resolverMu.Lock()
		defer s.resolverMu.Unlock()
		s.metrics.ResolverCalls.Inc()
		series, err := s.resolver.Resolve(ctx, ids, period)
		if err != nil {
			return nil, err
		}
		if len(series) != len(ids) {
			return nil, &domain.ResolverMismatchError{Want: len(ids), Got: len(series)}
		}
		return series, nil
	})
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept", "err", err)
			continue
		}
		if n := s.conns.Add(1); int(n) > s.maxConns {
			s.conns.Add(-1)
			s.refuse(conn)
			continue
		}
		s.metrics.OpenConnections.Inc()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.metrics.OpenConnections.Dec()
			defer s.conns.Add(-1)
			s.handleConn(ctx, conn)
		}()
	}
}

// refuse tells the client why it is being turned away, then closes. Refused
// connections are never queued.
func (s *Server) refuse(conn net.Conn) {
	s.metrics.RefusedConnections.Inc()
	s.logger.Warn("connection refused", "remote", conn.RemoteAddr().String(), "max_connections", s.maxConns)
	payload, err := codec.EncodeResponse(&codec.Response{
		Code:    codec.ErrCodeConnLimit,
		Message: domain.ErrConnectionLimit.Error(),
	})
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_ = codec.WriteFrame(conn, payload)
	}
	_ = conn.Close()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	connID := uuid.NewString()
	log := s.logger.With("conn", connID, "remote", conn.RemoteAddr().String())
	log.Debug("connection accepted")

	// Unblock the read when the server shuts down.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		payload, err := codec.ReadFrame(conn)
		if err != nil {
			if err != io.EOF && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				log.Warn("read frame", "err", err)
			}
			return
		}
		req, err := codec.DecodeRequest(payload)
		if err != nil {
			// A malformed request makes the rest of the stream unreliable;
			// report and tear the connection down.
			log.Warn("decode request", "err", err)
			s.writeError(conn, log, err)
			return
		}
		if req.Op == codec.OpClose {
			log.Debug("connection closed by client")
			return
		}

		start := time.Now()
		resp := s.process(ctx, req)
		s.metrics.RequestDuration.WithLabelValues(req.Op.String()).Observe(time.Since(start).Seconds())
		status := "ok"
		if resp.Code != codec.ErrCodeNone {
			status = "error"
			log.Warn("request failed", "op", req.Op.String(), "code", int(resp.Code), "err", resp.Message)
		}
		s.metrics.Requests.WithLabelValues(req.Op.String(), status).Inc()

		out, err := codec.EncodeResponse(resp)
		if err != nil {
			log.Error("encode response", "err", err)
			return
		}
		if err := codec.WriteFrame(conn, out); err != nil {
			if ctx.Err() == nil {
				log.Warn("write frame", "err", err)
			}
			return
		}
	}
}

// process runs the bind/evaluate pipeline for one request. Errors are
// converted into error responses; they never take the server down.
func (s *Server) process(ctx context.Context, req *codec.Request) *codec.Response {
	if err := domain.Validate(req.Vector...); err != nil {
		return errResponse(err)
	}
	switch req.Op {
	case codec.OpEvaluate:
		bound, err := eval.Bind(ctx, req.Vector, req.Period, s.lockedResolver())
		if err != nil {
			return errResponse(err)
		}
		series, err := eval.EvaluateVector(bound, req.Period)
		if err != nil {
			return errResponse(err)
		}
		return okResponse(series)
	case codec.OpPercentiles:
		series, err := eval.Percentiles(ctx, req.Vector, req.Period, req.OutAxis, req.Percentiles, s.lockedResolver())
		if err != nil {
			return errResponse(err)
		}
		return okResponse(series)
	default:
		return errResponse(fmt.Errorf("unsupported operation %s", req.Op))
	}
}

func (s *Server) writeError(conn net.Conn, log *slog.Logger, err error) {
	resp := errResponse(err)
	payload, encErr := codec.EncodeResponse(resp)
	if encErr != nil {
		log.Error("encode error response", "err", encErr)
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if wErr := codec.WriteFrame(conn, payload); wErr != nil {
		log.Debug("write error response", "err", wErr)
	}
}

func okResponse(series []domain.Series) *codec.Response {
	v := make(domain.Vector, len(series))
	for i, s := range series {
		v[i] = &domain.Point{S: s}
	}
	return &codec.Response{Code: codec.ErrCodeNone, Vector: v}
}

func errResponse(err error) *codec.Response {
	code, msg := codec.ClassifyErr(err)
	return &codec.Response{Code: code, Message: msg}
}
