package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/kinspect/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP bridge over a Store.
type Server struct {
	store  *store.Store
	hub    *Hub
	logger *slog.Logger
	router *gin.Engine
}

// NewServer builds the router. hub may be nil, which disables /api/events.
func NewServer(st *store.Store, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{store: st, hub: hub, logger: logger, router: r}
	r.GET("/healthz", s.handleHealth)
	s.RegisterRoutes(r.Group("/api"))
	return s
}

// RegisterRoutes mounts the bridge routes on rg.
func (s *Server) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/files", s.handleFiles)
	rg.GET("/funcs", s.handleFuncs)
	rg.GET("/funcs/:id", s.handleFunction)
	rg.GET("/funcs/:id/trials", s.handleTrials)
	rg.GET("/funcs/:id/returns", s.handleReturns)
	rg.GET("/funcs/:id/stacktraces", s.handleStacktraces)
	rg.GET("/funcs/:id/trials/:trial/inspects", s.handleInspects)
	rg.GET("/trials/:trial", s.handleTrial)
	rg.GET("/sessions", s.handleSessions)
	rg.GET("/sessions/:id/resolve", s.handleResolve)
	rg.GET("/query/default", s.handleDefaultQuery)
	rg.POST("/query", s.handleQuery)
	if s.hub != nil {
		rg.GET("/events", s.hub.ServeWS)
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is cancelled, then shuts down
// gracefully and disconnects websocket clients.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("bridge listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("bridge serve: %w", err)
	case <-ctx.Done():
	}

	if s.hub != nil {
		s.hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("bridge shutdown: %w", err)
	}
	return nil
}
