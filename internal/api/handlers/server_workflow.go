package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hseptw.io/ptw/internal/domain"
	"hseptw.io/ptw/internal/governance/workflow"
)

// CommentRequest is the optional body of approvals.
type CommentRequest struct {
	Comment string `json:"comment" binding:"max=2000"`
}

// RejectRequest is the body of both rejections.
type RejectRequest struct {
	Reason string `json:"reason" binding:"required,max=2000"`
}

// SafetyApproveRequest is the body of the HSE validation.
type SafetyApproveRequest struct {
	ReferenceNumber string `json:"reference_number" binding:"required,max=64"`
	Comment         string `json:"comment" binding:"max=2000"`
}

// CloseRequest is the body of a close.
type CloseRequest struct {
	ClosingComment string     `json:"closing_comment" binding:"max=4000"`
	ClosingDate    *time.Time `json:"closing_date" binding:"required"`
}

// DailyValidationRequest is the body of a daily validation.
type DailyValidationRequest struct {
	Date            *time.Time `json:"date" binding:"required"`
	ProgressPercent *int       `json:"progress_percent" binding:"required,min=0,max=100"`
	Comment         string     `json:"comment" binding:"max=2000"`
}

// Take5Request is the body of a Take 5.
type Take5Request struct {
	PerformedAt *time.Time         `json:"performed_at"`
	Steps       domain.Take5Steps  `json:"steps"`
	Risks       []domain.RiskEntry `json:"risks" binding:"dive"`
}

type operation func(ctx context.Context, id string, actor workflow.Actor) (domain.Record, error)

// optionalBody marks a request whose body may be absent.
type optionalBody struct{ req interface{} }

// run binds req (when non-nil), then applies op as the authenticated actor.
// An optionalBody is bound whenever a body may be present, chunked included.
func (s *Server) run(c *gin.Context, req interface{}, op operation) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	switch r := req.(type) {
	case nil:
	case optionalBody:
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(r.req); err != nil && !errors.Is(err, io.EOF) {
				_ = c.Error(bindError(err))
				return
			}
		}
	default:
		if err := c.ShouldBindJSON(req); err != nil {
			_ = c.Error(bindError(err))
			return
		}
	}
	rec, err := op(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// SubmitRecord handles POST /records/:id/submit.
func (s *Server) SubmitRecord(c *gin.Context) {
	s.run(c, nil, s.gateway.Submit)
}

// ApproveAsManager handles POST /records/:id/manager/approve. The body is optional.
func (s *Server) ApproveAsManager(c *gin.Context) {
	var req CommentRequest
	s.run(c, optionalBody{&req}, func(ctx context.Context, id string, actor workflow.Actor) (domain.Record, error) {
		return s.gateway.ApproveAsManager(ctx, id, actor, req.Comment)
	})
}

// RejectAsManager handles POST /records/:id/manager/reject.
func (s *Server) RejectAsManager(c *gin.Context) {
	var req RejectRequest
	s.run(c, &req, func(ctx context.Context, id string, actor workflow.Actor) (domain.Record, error) {
		return s.gateway.RejectAsManager(ctx, id, actor, req.Reason)
	})
}

// ApproveAsSafetyOfficer handles POST /records/:id/safety/approve.
func (s *Server) ApproveAsSafetyOfficer(c *gin.Context) {
	var req SafetyApproveRequest
	s.run(c, &req, func(ctx context.Context, id string, actor workflow.Actor) (domain.Record, error) {
		return s.gateway.ApproveAsSafetyOfficer(ctx, id, actor, req.ReferenceNumber, req.Comment)
	})
}

// RejectAsSafetyOfficer handles POST /records/:id/safety/reject.
func (s *Server) RejectAsSafetyOfficer(c *gin.Context) {
	var req RejectRequest
	s.run(c, &req, func(ctx context.Context, id string, actor workflow.Actor) (domain.Record, error) {
		return s.gateway.RejectAsSafetyOfficer(ctx, id, actor, req.Reason)
	})
}

// StartRecord handles POST /records/:id/start.
func (s *Server) StartRecord(c *gin.Context) {
	s.run(c, nil, s.gateway.Start)
}

// CloseRecord handles POST /records/:id/close.
func (s *Server) CloseRecord(c *gin.Context) {
	var req CloseRequest
	s.run(c, &req, func(ctx context.Context, id string, actor workflow.Actor) (domain.Record, error) {
		return s.gateway.Close(ctx, id, actor, req.ClosingComment, *req.ClosingDate)
	})
}

// RecordDailyValidation handles POST /records/:id/daily-validations.
func (s *Server) RecordDailyValidation(c *gin.Context) {
	var req DailyValidationRequest
	s.run(c, &req, func(ctx context.Context, id string, actor workflow.Actor) (domain.Record, error) {
		return s.gateway.RecordDailyValidation(ctx, id, actor, domain.DailyValidation{
			Date:            *req.Date,
			ProgressPercent: *req.ProgressPercent,
			Comment:         req.Comment,
		})
	})
}

// RecordTake5 handles POST /records/:id/take5.
func (s *Server) RecordTake5(c *gin.Context) {
	var req Take5Request
	s.run(c, &req, func(ctx context.Context, id string, actor workflow.Actor) (domain.Record, error) {
		t5 := domain.Take5{Steps: req.Steps, RiskEntries: req.Risks}
		if req.PerformedAt != nil {
			t5.PerformedAt = *req.PerformedAt
		}
		return s.gateway.RecordTake5(ctx, id, actor, t5)
	})
}
