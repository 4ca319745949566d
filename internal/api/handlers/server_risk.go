package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hseptw.io/ptw/internal/domain"
	"hseptw.io/ptw/internal/risk"
)

// EvaluateRiskRequest accepts ranks (0..3) or labels for both axes.
type EvaluateRiskRequest struct {
	Severity    *risk.Severity    `json:"severity" binding:"required"`
	Probability *risk.Probability `json:"probability" binding:"required"`
}

// EvaluateRiskResponse is the rated cell of the matrix.
type EvaluateRiskResponse struct {
	Severity    risk.Severity    `json:"severity"`
	Probability risk.Probability `json:"probability"`
	RiskLevel   risk.Level       `json:"risk_level"`
	Rank        int              `json:"rank"`
}

// EvaluateRisk handles POST /risk/evaluate.
func (s *Server) EvaluateRisk(c *gin.Context) {
	var req EvaluateRiskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	level := risk.Evaluate(*req.Severity, *req.Probability)
	c.JSON(http.StatusOK, EvaluateRiskResponse{
		Severity:    *req.Severity,
		Probability: *req.Probability,
		RiskLevel:   level,
		Rank:        level.Rank(),
	})
}

// ListStatuses handles GET /statuses.
func (s *Server) ListStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": domain.Statuses()})
}
