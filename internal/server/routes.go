package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"node":    s.Name,
			"version": Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Ready tracks the receive loop: a stopped receiver will never deliver
	// another frame.
	s.router.GET("/ready", func(c *gin.Context) {
		st := s.node.Status()
		code := http.StatusOK
		if !st.Ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":    st.Ready,
			"receiver": st.Receiver,
			"uptime":   time.Since(s.Appeared).String(),
			"node":     s.Name,
			"version":  Version,
		})
	})

	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.node.Status())
	})
}
