// Package handlers implements the HTTP API of the permit-to-work service.
//
// Handlers bind and validate the request, call the approval gateway, and
// report failures with c.Error so middleware.ErrorHandler renders them.
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"hseptw.io/ptw/internal/api/middleware"
	"hseptw.io/ptw/internal/governance/approval"
	"hseptw.io/ptw/internal/governance/workflow"
	apperrors "hseptw.io/ptw/internal/pkg/errors"
)

// Server holds the handler dependencies.
type Server struct {
	gateway *approval.Gateway
	policy  *workflow.Policy
	pool    *pgxpool.Pool // nil in memory mode
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Gateway *approval.Gateway
	Policy  *workflow.Policy
	Pool    *pgxpool.Pool
	JWTCfg  middleware.JWTConfig
}

// NewServer creates a new Server.
func NewServer(deps ServerDeps) *Server {
	useWireFieldNames()
	policy := deps.Policy
	if policy == nil {
		policy = deps.Gateway.Engine().Policy()
	}
	return &Server{
		gateway: deps.Gateway,
		policy:  policy,
		pool:    deps.Pool,
	}
}

// RegisterPublic registers routes served without authentication.
func (s *Server) RegisterPublic(rg *gin.RouterGroup) {
	rg.GET("/health/live", s.GetLiveness)
	rg.GET("/health/ready", s.GetReadiness)
	rg.GET("/statuses", s.ListStatuses)
	rg.POST("/risk/evaluate", s.EvaluateRisk)
}

// RegisterProtected registers routes that need an authenticated actor.
func (s *Server) RegisterProtected(rg *gin.RouterGroup) {
	rg.POST("/records", middleware.RequireCapability(s.policy, workflow.CapCreate), s.CreateRecord)
	rg.GET("/records", s.ListRecords)
	rg.GET("/records/:id", s.GetRecord)

	rg.POST("/records/:id/submit", s.SubmitRecord)
	rg.POST("/records/:id/manager/approve", s.ApproveAsManager)
	rg.POST("/records/:id/manager/reject", s.RejectAsManager)
	rg.POST("/records/:id/safety/approve", s.ApproveAsSafetyOfficer)
	rg.POST("/records/:id/safety/reject", s.RejectAsSafetyOfficer)
	rg.POST("/records/:id/start", s.StartRecord)
	rg.POST("/records/:id/close", s.CloseRecord)

	rg.POST("/records/:id/daily-validations", s.RecordDailyValidation)
	rg.POST("/records/:id/take5", s.RecordTake5)
}

// actorFromCtx returns the authenticated actor, or reports 401 and false.
func actorFromCtx(c *gin.Context) (workflow.Actor, bool) {
	actor, ok := middleware.GetActor(c.Request.Context())
	if !ok {
		_ = c.Error(apperrors.Unauthorized(apperrors.CodeAuthFailed, "not authenticated"))
		return workflow.Actor{}, false
	}
	return actor, true
}
