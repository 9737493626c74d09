package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"skytrace-backend/internal/model"
	"skytrace-backend/internal/source"
	"skytrace-backend/internal/store"
)

// bulkSource tags records ingested through the bulk endpoint.
const bulkSource = "bulk_api"

type listAircraftQuery struct {
	Skip   int    `form:"skip" binding:"min=0"`
	Limit  *int   `form:"limit" binding:"omitempty,min=1,max=1000"`
	Hex    string `form:"hex"`
	Flight string `form:"flight"`
}

// ListAircraft handles GET /api/aircraft.
func (h *Handler) ListAircraft(c *gin.Context) {
	var q listAircraftQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := store.DefaultPageSize
	if q.Limit != nil {
		limit = *q.Limit
	}

	tenant, ok := h.tenant(c)
	if !ok {
		return
	}

	aircraft, total, err := h.store.ListAircraft(c.Request.Context(), tenant.ID, store.AircraftFilter{
		Hex:    q.Hex,
		Flight: q.Flight,
		Skip:   q.Skip,
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"aircraft": aircraft,
		"total":    total,
		"page":     q.Skip/limit + 1,
		"size":     limit,
	})
}

// GetAircraft handles GET /api/aircraft/:id.
func (h *Handler) GetAircraft(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid aircraft id"})
		return
	}

	tenant, ok := h.tenant(c)
	if !ok {
		return
	}

	aircraft, err := h.store.GetAircraft(c.Request.Context(), tenant.ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, aircraft)
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	Geometry   point          `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func newFeature(a model.Aircraft) feature {
	return feature{
		Type: "Feature",
		Geometry: point{
			Type:        "Point",
			Coordinates: [2]float64{*a.Longitude, *a.Latitude},
		},
		Properties: map[string]any{
			"id":            a.ID,
			"hex":           a.Hex,
			"flight":        a.Flight,
			"registration":  a.Registration,
			"aircraft_type": a.AircraftTypeCode,
			"altitude":      a.AltitudeBaro,
			"speed":         a.GroundSpeed,
			"track":         a.Track,
			"squawk":        a.Squawk,
			"emergency":     a.Emergency,
			"category":      a.Category,
			"updated_at":    a.UpdatedAt,
		},
	}
}

// GetAircraftGeoJSON handles GET /api/aircraft/geojson.
func (h *Handler) GetAircraftGeoJSON(c *gin.Context) {
	tenant, ok := h.tenant(c)
	if !ok {
		return
	}

	aircraft, err := h.store.ListPositioned(c.Request.Context(), tenant.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(aircraft))}
	for _, a := range aircraft {
		fc.Features = append(fc.Features, newFeature(a))
	}
	c.JSON(http.StatusOK, fc)
}

// BulkIngest handles POST /api/aircraft/bulk. Records go through the same
// validate, transform and upsert path as scheduled collection. Array elements
// that are not objects count as errors.
func (h *Handler) BulkIngest(c *gin.Context) {
	var items []any
	if err := c.ShouldBindJSON(&items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenant, ok := h.tenant(c)
	if !ok {
		return
	}

	result, err := source.Ingest(c.Request.Context(),
		source.AircraftCodec{Source: bulkSource},
		source.DatasetWriter{Dataset: h.store},
		tenant.ID, source.Objects(bulkSource, items))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"processed": len(items),
		"created":   result.Created,
		"updated":   result.Updated,
		// Records rejected by validation count as errors alongside failed writes.
		"errors": len(items) - result.Created - result.Updated,
	})
}

// ListArchive handles GET /api/aircraft/archive.
func (h *Handler) ListArchive(c *gin.Context) {
	limit := store.DefaultPageSize
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > store.MaxPageSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}

	tenant, ok := h.tenant(c)
	if !ok {
		return
	}

	rows, err := h.store.ListArchive(c.Request.Context(), tenant.ID, c.Query("hex"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"archive": rows, "count": len(rows)})
}
