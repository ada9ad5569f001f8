package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/matterlog/internal/store"
)

const (
	// sseWriteTimeout bounds one event write so a stalled client cannot pin
	// its handler past shutdown.
	sseWriteTimeout = 5 * time.Second

	// sseKeepAlive is how often an idle stream sends a comment line.
	sseKeepAlive = 15 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Server exposes the status of channel workers over HTTP.
//
// Server provides four endpoints:
//   - GET /api/status: Returns all channel statuses as JSON
//   - GET /api/sse: Server-Sent Events stream of status changes
//   - GET /healthz: Liveness probe
//   - GET /metrics: Prometheus exposition (when a gatherer is configured)
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	addr       string
	gatherer   prometheus.Gatherer
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store implementation for status data
//   - addr: TCP address to listen on, e.g. ":8080" or "127.0.0.1:0"
//   - gatherer: Metrics source for /metrics; nil disables the endpoint
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	return &Server{
		store:    st,
		addr:     addr,
		gatherer: gatherer,
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout. [Server.Wait] blocks until that shutdown has finished.
//
// Returns an error if the server fails to bind to the configured address.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify address availability synchronously
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		close(s.done)
		return fmt.Errorf("failed to bind to %s: %w", s.addr, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("status server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the address the server is bound to, or the configured
// address before [Server.Start].
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Wait blocks until the server has shut down after its context was
// cancelled. It returns immediately if Start failed and must not be called
// before Start.
func (s *Server) Wait() {
	<-s.done
}

// handleStatus returns all current statuses as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	statuses := s.store.GetAll()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(statuses); err != nil {
		s.logger.Error("failed to encode status response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// handleSSE streams channel status changes as Server-Sent Events.
//
// A client first receives the current status of every channel, then one
// "status" event per worker change until it disconnects or the server shuts
// down. Each event carries an increasing id and the same JSON object
// /api/status returns for that channel.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stream := &eventStream{w: w, rc: http.NewResponseController(w)}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if err := stream.rc.Flush(); errors.Is(err, http.ErrNotSupported) {
		w.Header().Del("Connection")
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// subscribe before the snapshot so no change falls between the two
	updates := s.store.Subscribe()
	defer s.store.Unsubscribe(updates)

	for _, st := range s.store.GetAll() {
		if err := stream.status(st); err != nil {
			s.logger.Debug("sse client gone", "error", err)
			return
		}
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			// BaseContext ties this to server shutdown as well as disconnects
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			err = stream.status(st)
		case <-keepAlive.C:
			err = stream.write(": keep-alive\n\n")
		}
		if err != nil {
			s.logger.Debug("sse client gone", "error", err)
			return
		}
	}
}

// eventStream frames and flushes Server-Sent Events for one client.
type eventStream struct {
	w    http.ResponseWriter
	rc   *http.ResponseController
	next uint64
}

func (e *eventStream) status(st store.ChannelStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode status for %s: %w", st.Name, err)
	}
	e.next++
	return e.write(fmt.Sprintf("id: %d\nevent: status\ndata: %s\n\n", e.next, data))
}

func (e *eventStream) write(frame string) error {
	err := e.rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := io.WriteString(e.w, frame); err != nil {
		return err
	}
	return e.rc.Flush()
}
