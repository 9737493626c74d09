package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"skytrace-backend/internal/model"
	"skytrace-backend/internal/mw"
	"skytrace-backend/internal/scheduler"
	"skytrace-backend/internal/source"
	"skytrace-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store         store.Store
	scheduler     *scheduler.Scheduler
	webpush       *webpush.Options
	defaultTenant string
}

// NewHandler creates a new API handler. Requests without an X-Tenant header act on defaultTenant.
func NewHandler(s store.Store, sched *scheduler.Scheduler, webpushOptions *webpush.Options, defaultTenant string) *Handler {
	return &Handler{
		store:         s,
		scheduler:     sched,
		webpush:       webpushOptions,
		defaultTenant: defaultTenant,
	}
}

// tenant resolves the request's tenant, writing the error response itself when it cannot.
func (h *Handler) tenant(c *gin.Context) (model.Tenant, bool) {
	ref := c.GetHeader(mw.TenantHeader)
	if ref == "" {
		ref = h.defaultTenant
	}
	t, err := h.store.ResolveTenant(c.Request.Context(), ref)
	if err != nil {
		respondError(c, err)
		return model.Tenant{}, false
	}
	if !t.IsActive {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "tenant is inactive"})
		return model.Tenant{}, false
	}
	return t, true
}

// respondError maps domain errors to HTTP status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrTenantNotFound),
		errors.Is(err, store.ErrAircraftNotFound),
		errors.Is(err, store.ErrSubscriptionNotFound),
		errors.Is(err, scheduler.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scheduler.ErrJobRunning), errors.Is(err, scheduler.ErrJobExists):
		status = http.StatusConflict
	case errors.Is(err, scheduler.ErrInvalidJob),
		errors.Is(err, source.ErrUnknownClient),
		errors.Is(err, source.ErrInvalidConfig):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
