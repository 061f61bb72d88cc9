// Package handlers implements the gin handlers behind AShareInsight's HTTP
// API: the C9 search endpoint and the health/readiness probes, following the
// reference codebase's constructor-injected handler shape
// (pkg/server/handlers.NewHealthHandler/NewRetrieveHandler).
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/server/dto"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// searcher is the subset of *retrieval.Service SearchHandler depends on.
type searcher interface {
	Search(ctx context.Context, req types.SearchRequest) (types.SearchResponse, error)
}

// SearchHandler serves the concept-similarity search endpoint (§6.1).
type SearchHandler struct {
	svc searcher
	log *slog.Logger
}

// NewSearchHandler builds a SearchHandler.
func NewSearchHandler(svc searcher, log *slog.Logger) *SearchHandler {
	return &SearchHandler{svc: svc, log: log}
}

// Search handles POST /api/v1/search/similar-companies.
func (h *SearchHandler) Search(c *gin.Context) {
	var body dto.SearchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		WriteError(c, apperr.NewValidation("body", err.Error()))
		return
	}
	if body.QueryIdentifier == "" {
		WriteError(c, apperr.NewValidation("query_identifier", "must not be empty"))
		return
	}

	resp, err := h.svc.Search(c.Request.Context(), body.ToTypes())
	if err != nil {
		if !errors.Is(err, apperr.ErrCompanyNotFound) && !errors.Is(err, apperr.ErrValidation) {
			h.log.Error("search failed", "error", err)
		}
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromTypes(resp))
}

// WriteError writes the §7 uniform error envelope, echoing the request id
// the context middleware attached.
func WriteError(c *gin.Context, err error) {
	requestID, _ := c.Request.Context().Value(types.ContextKeyRequestID).(string)
	c.JSON(apperr.StatusCode(err), dto.ErrorEnvelope{
		Error: dto.ErrorBody{
			Code:      errorCode(err),
			Message:   err.Error(),
			RequestID: requestID,
		},
	})
}
