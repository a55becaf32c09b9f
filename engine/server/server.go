// Package server exposes the model over HTTP: GraphQL queries and mutations as JSON POSTs,
// subscriptions over WebSocket using the graphql-transport-ws protocol, and a raw PNG of the
// current render.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine/model"
	"github.com/gorilla/websocket"
	"github.com/graph-gophers/graphql-go"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultAddress is the listen address used without WithAddress.
	DefaultAddress = "localhost:8000"
	// DefaultShutdownGrace bounds graceful shutdown without WithShutdownGrace.
	DefaultShutdownGrace = time.Second
	// DefaultInitTimeout bounds the wait for connection_init on a new WebSocket.
	DefaultInitTimeout = 3 * time.Second
)

// Server serves the GraphQL API of a model.
type Server interface {
	// Serve listens on the configured address and serves until ctx is done, then shuts down
	// gracefully within the grace period.
	//
	// Parameters:
	//   - ctx: the lifetime of the server
	//
	// Returns:
	//   - error: error if listening or serving fails; nil after a shutdown
	Serve(ctx context.Context) error

	// ServeListener is Serve on an existing listener.
	ServeListener(ctx context.Context, ln net.Listener) error

	// Handler returns the HTTP routes.
	Handler() http.Handler

	// Schema returns the executable GraphQL schema.
	Schema() *graphql.Schema
}

type serverImpl struct {
	model    model.Model
	schema   *graphql.Schema
	upgrader websocket.Upgrader

	address     string
	grace       time.Duration
	initTimeout time.Duration
}

var _ Server = &serverImpl{}

// NewServer creates a Server for m.
//
// Parameters:
//   - m: the model requests are sent to
//   - options: functional options (WithAddress, WithShutdownGrace, WithInitTimeout)
//
// Returns:
//   - Server: the server
func NewServer(m model.Model, options ...ServerBuilderOption) Server {
	s := &serverImpl{
		model:       m,
		schema:      NewSchema(m),
		address:     DefaultAddress,
		grace:       DefaultShutdownGrace,
		initTimeout: DefaultInitTimeout,
	}
	s.upgrader = websocket.Upgrader{
		Subprotocols: []string{wsProtocol},
		CheckOrigin:  func(*http.Request) bool { return true },
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *serverImpl) Schema() *graphql.Schema {
	return s.schema
}

func (s *serverImpl) Handler() http.Handler {
	return s.routes(context.Background())
}

// routes builds the mux. WebSocket connections end when sockets is done.
func (s *serverImpl) routes(sockets context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /graphql", s.handleQuery)
	mux.HandleFunc("GET /graphql", func(w http.ResponseWriter, r *http.Request) {
		s.handleWebSocket(sockets, w, r)
	})
	mux.HandleFunc("GET /image.png", s.handleImage)
	return mux
}

func (s *serverImpl) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *serverImpl) ServeListener(ctx context.Context, ln net.Listener) error {
	// Hijacked WebSocket connections are not tracked by Shutdown; they are closed when it starts.
	sockets, closeSockets := context.WithCancel(context.Background())
	defer closeSockets()

	// Requests outlive ctx so Shutdown can drain them.
	base := context.WithoutCancel(ctx)
	srv := &http.Server{
		Handler:           s.routes(sockets),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(closeSockets)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tracey.Logger().Info("server listening", "address", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			tracey.Logger().Warn("graceful shutdown expired, closing connections", "grace", s.grace, "error", err)
			return srv.Close()
		}
		tracey.Logger().Info("server stopped")
		return nil
	})
	return g.Wait()
}

type queryRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

func (s *serverImpl) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp := s.schema.Exec(r.Context(), req.Query, req.OperationName, req.Variables)
	data, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(resp.Errors) > 0 {
		tracey.Logger().Debug("graphql errors", "operation", req.OperationName, "errors", len(resp.Errors), "first", resp.Errors[0].Message)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *serverImpl) handleImage(w http.ResponseWriter, r *http.Request) {
	data, err := encodeImage(r.Context(), s.model, 0)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, model.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func (s *serverImpl) handleWebSocket(sockets context.Context, w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "expected a websocket upgrade", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		tracey.Logger().Warn("websocket upgrade failed", "error", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(sockets, cancel)
	defer stop()
	newWSConn(conn, s.schema, s.initTimeout).run(ctx)
}
