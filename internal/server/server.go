package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/i2cmctp/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const Version = "0.1.0"

const shutdownTimeout = 3 * time.Second

// Status is a point-in-time view of an endpoint.
type Status struct {
	Node      string `json:"node"`
	Kind      string `json:"kind"`
	Role      string `json:"role"`
	Socket    string `json:"socket"`
	LocalAddr string `json:"local_addr"`
	PeerAddr  string `json:"peer_addr"`
	EID       uint8  `json:"eid"`
	PEC       bool   `json:"pec"`
	Receiver  string `json:"receiver"`
	Ready     bool   `json:"ready"`
}

// Node is the endpoint a status server reports on.
type Node interface {
	Status() Status
}

// Server exposes health, readiness, status and metrics for one endpoint.
type Server struct {
	Name     string
	Addr     string
	Appeared time.Time

	node   Node
	router *gin.Engine
}

func Appear(name, addr string, corsOrigins []string, node Node) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, name))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Name:     name,
		Addr:     addr,
		Appeared: time.Now(),
		node:     node,
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens on Addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Info().Str("node", s.Name).Str("addr", ln.Addr().String()).Msg("status server listening")
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
