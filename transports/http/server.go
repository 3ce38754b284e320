// Package http exposes engine chains as HTTP endpoints on an httprouter.Router.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/glimte/yunas-go"
	"github.com/glimte/yunas-go/interceptors"
	"github.com/julienschmidt/httprouter"
)

// Attribute keys set on every exchange created from a request
const (
	RequestKey = "http.request"
	ParamsKey  = "http.params"
)

// Invoker dispatches exchanges on named chains. *yunas.Engine satisfies it.
type Invoker interface {
	NewContext(ctx context.Context) *interceptors.Context
	Invoke(chain string, c *interceptors.Context) (interceptors.Outcome, error)
}

// Server routes HTTP requests to chains
type Server struct {
	router          *httprouter.Router
	engine          Invoker
	logger          *slog.Logger
	addr            string
	userHeader      string
	traceHeader     string
	shutdownTimeout time.Duration
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAddress sets the listen address used by Start
func WithAddress(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithUserHeader sets the request header copied into the user attribute
func WithUserHeader(header string) Option {
	return func(s *Server) {
		s.userHeader = header
	}
}

// WithShutdownTimeout bounds the graceful shutdown in Start
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// NewServer creates a server dispatching on engine
func NewServer(engine Invoker, options ...Option) *Server {
	s := &Server{
		router:          httprouter.New(),
		engine:          engine,
		logger:          slog.Default(),
		addr:            ":8080",
		userHeader:      "X-User",
		traceHeader:     "X-Trace-Id",
		shutdownTimeout: 10 * time.Second,
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Handle binds method and path to the chain registered under chain
func (s *Server) Handle(method, path, chain string) {
	s.router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s.dispatch(w, r, ps, chain)
	})
}

// Handler mounts a plain http.Handler, such as a metrics endpoint
func (s *Server) Handler(method, path string, handler http.Handler) {
	s.router.Handler(method, path, handler)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on the configured address until ctx is done, then shuts the
// server down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, ps httprouter.Params, chain string) {
	c := s.engine.NewContext(r.Context())
	c.Set(RequestKey, r)
	c.Set(ParamsKey, ps)
	if user := r.Header.Get(s.userHeader); user != "" {
		c.Set(interceptors.UserKey, user)
	}
	if traceID := r.Header.Get(s.traceHeader); traceID != "" {
		c.Set(interceptors.TraceIDKey, traceID)
	}

	outcome, err := s.engine.Invoke(chain, c)
	if traceID, ok := c.GetString(interceptors.TraceIDKey); ok {
		w.Header().Set(s.traceHeader, traceID)
	}

	if err != nil {
		s.writeError(w, r, chain, err)
		return
	}

	s.writeResult(w, r, outcome, c.Result())
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, chain string, err error) {
	status := http.StatusInternalServerError
	message := http.StatusText(status)

	var coder StatusCoder
	switch {
	case errors.Is(err, yunas.ErrUnknownChain):
		status = http.StatusNotFound
		message = http.StatusText(status)
	case errors.As(err, &coder):
		status = coder.StatusCode()
		message = messageOf(err)
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"chain", chain,
			"error", err,
		)
	}

	s.writeJSON(w, status, errorBody{Error: message})
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, outcome interceptors.Outcome, result interface{}) {
	switch res := result.(type) {
	case *Response:
		res.write(w)
		return
	case *interceptors.ShortCircuitResult:
		if res.Result != nil {
			s.writeResult(w, r, outcome, res.Result)
			return
		}
		s.writeJSON(w, http.StatusForbidden, errorBody{Error: res.Reason})
		return
	}

	switch {
	case result != nil:
		s.writeJSON(w, http.StatusOK, result)
	case outcome.State == interceptors.StateHalted:
		s.writeJSON(w, http.StatusForbidden, errorBody{Error: http.StatusText(http.StatusForbidden)})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	payload, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		status = http.StatusInternalServerError
		payload = []byte(`{"error":"Internal Server Error"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// Request returns the request an exchange was created from
func Request(c *interceptors.Context) (*http.Request, bool) {
	return interceptors.Attribute[*http.Request](c, RequestKey)
}

// Params returns the route parameters of an exchange
func Params(c *interceptors.Context) httprouter.Params {
	ps, _ := interceptors.Attribute[httprouter.Params](c, ParamsKey)
	return ps
}
