package handler

import (
	"errors"
	"io"
	"net/http"

	"lead_portal_backend/internal/search/query"
	"lead_portal_backend/internal/search/service"
	"lead_portal_backend/platform/apperr"
	"lead_portal_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest = "invalid request"
	maxBodyBytes      = 64 << 10
)

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("/search", h.Search)
	rg.GET("/search/stats", httpkit.RequireRole("admin"), h.Stats)
}

// List serves GET /leads with filters taken from the query string.
func (h *Handler) List(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	result, err := h.svc.Search(c.Request.Context(), tenantID, query.FromValues(c.Request.URL.Query()))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

// Search serves POST /leads/search with filters taken from a JSON body.
func (h *Handler) Search(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if len(body) > maxBodyBytes {
		httpkit.Error(c, http.StatusRequestEntityTooLarge, "request body too large", nil)
		return
	}

	raw, err := query.DecodeJSON(body)
	if err != nil {
		var validationErr *query.ValidationError
		if errors.As(err, &validationErr) {
			err = apperr.Validation(validationErr.Reason).WithOp("search.Search")
		}
		httpkit.HandleError(c, err)
		return
	}

	result, err := h.svc.Search(c.Request.Context(), tenantID, raw)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

// Stats serves cache counters and the index catalog to administrators.
func (h *Handler) Stats(c *gin.Context) {
	httpkit.OK(c, h.svc.Stats())
}
