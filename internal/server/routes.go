package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zulandar/switchboard/internal/events"
	"github.com/zulandar/switchboard/internal/session"
)

// registerRoutes sets up all routes on the Gin engine.
func registerRoutes(engine *gin.Engine, s *server) {
	// Transport.
	engine.GET("/ws", s.handleWS)
	engine.GET("/api/events", s.handleSSE)

	// Re-fetch for reconnecting clients and dashboards.
	api := engine.Group("/api")
	api.GET("/sessions/:id", s.handleSession)
	api.GET("/queue", s.handleQueue)
	api.GET("/agents", s.handleAgents)
	api.GET("/stats", s.handleStats)

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *server) handleSession(c *gin.Context) {
	sess, err := s.desk.Session(c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	data := events.SessionStateData{Session: sess}
	if info, ok := s.desk.QueueInfo(sess.ID); ok {
		data.QueueInfo = &info
	}
	c.JSON(http.StatusOK, data)
}

func (s *server) handleQueue(c *gin.Context) {
	c.JSON(http.StatusOK, events.QueueUpdateData{Sessions: s.desk.QueueView()})
}

func (s *server) handleAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": s.desk.Agents()})
}

func (s *server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.desk.Stats(c.Request.Context()))
}

func (s *server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"clients": gin.H{
			"customer":  s.hub.Count(events.RoleCustomer),
			"agent":     s.hub.Count(events.RoleAgent),
			"dashboard": s.hub.Count(events.RoleDashboard),
		},
	})
}
