package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// GetReadiness handles GET /health/ready.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := map[string]string{"database": "memory"}
	if s.pool != nil {
		checks["database"] = "ok"
		if err := s.pool.Ping(c.Request.Context()); err != nil {
			checks["database"] = "error"
			c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Checks: checks})
			return
		}
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}
