package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"skytrace-backend/internal/scheduler"
)

type createJobRequest struct {
	ID              string         `json:"id"`
	Name            string         `json:"name" binding:"required"`
	ClientType      string         `json:"client_type" binding:"required"`
	Config          map[string]any `json:"config" binding:"required"`
	IntervalMinutes int            `json:"interval_minutes" binding:"required,min=1"`
	Tenant          string         `json:"tenant" binding:"required"`
	Enabled         *bool          `json:"enabled"`
}

type patchJobRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// ListJobs handles GET /api/scheduler/jobs.
func (h *Handler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.List())
}

// CreateJob handles POST /api/scheduler/jobs. Unknown client types are rejected here, not at run time.
func (h *Handler) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := h.scheduler.AddJob(c.Request.Context(), scheduler.JobSpec{
		ID:              req.ID,
		Name:            req.Name,
		ClientType:      req.ClientType,
		Config:          req.Config,
		IntervalMinutes: req.IntervalMinutes,
		Tenant:          req.Tenant,
		Enabled:         req.Enabled,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

// GetJob handles GET /api/scheduler/jobs/:id.
func (h *Handler) GetJob(c *gin.Context) {
	info, err := h.scheduler.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// PatchJob handles PATCH /api/scheduler/jobs/:id. Only the enabled flag can change.
func (h *Handler) PatchJob(c *gin.Context) {
	var req patchJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := h.scheduler.SetEnabled(c.Request.Context(), c.Param("id"), *req.Enabled)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// DeleteJob handles DELETE /api/scheduler/jobs/:id.
func (h *Handler) DeleteJob(c *gin.Context) {
	if err := h.scheduler.Remove(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RunJob handles POST /api/scheduler/jobs/:id/run. A failed run is still a 200 carrying success false.
func (h *Handler) RunJob(c *gin.Context) {
	result, err := h.scheduler.RunNow(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) EnableJob(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *Handler) DisableJob(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *Handler) setEnabled(c *gin.Context, enabled bool) {
	info, err := h.scheduler.SetEnabled(c.Request.Context(), c.Param("id"), enabled)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// SchedulerStatus handles GET /api/scheduler/status.
func (h *Handler) SchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status())
}
