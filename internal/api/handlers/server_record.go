package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"hseptw.io/ptw/internal/domain"
	apperrors "hseptw.io/ptw/internal/pkg/errors"
	"hseptw.io/ptw/internal/repository"
)

// ListRecordsParams are the query parameters of GET /records.
type ListRecordsParams struct {
	Kind      string `form:"kind" binding:"omitempty,oneof=prevention_plan general_permit height_permit electrical_permit intervention"`
	Status    string `form:"status" binding:"omitempty"`
	CreatedBy string `form:"created_by"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset    int    `form:"offset" binding:"omitempty,min=0"`
}

// CreateRecord handles POST /records.
func (s *Server) CreateRecord(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		_ = c.Error(apperrors.Validation("unreadable request body"))
		return
	}
	rec, err := decodeRecord(body)
	if err != nil {
		_ = c.Error(err)
		return
	}

	created, err := s.gateway.Create(c.Request.Context(), actor, rec)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListRecords handles GET /records.
func (s *Server) ListRecords(c *gin.Context) {
	var params ListRecordsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	limit := params.Limit
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}

	items, total, err := s.gateway.List(c.Request.Context(), repository.Filter{
		Kind:      domain.Kind(params.Kind),
		Status:    domain.Status(params.Status),
		CreatedBy: params.CreatedBy,
		Limit:     limit,
		Offset:    params.Offset,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	if items == nil {
		items = []domain.Record{}
	}
	c.JSON(http.StatusOK, RecordListResponse{Items: items, Total: total, Limit: limit, Offset: params.Offset})
}

// GetRecord handles GET /records/:id.
func (s *Server) GetRecord(c *gin.Context) {
	rec, err := s.gateway.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
