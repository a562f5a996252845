package handler

import (
	"context"
	"net/http"

	"crawlfleet/internal/model"
	"crawlfleet/pkg/interfaces"
	"crawlfleet/pkg/logger"
	"crawlfleet/pkg/status"

	"github.com/gin-gonic/gin"
)

// FleetSource provides the fleet snapshot served by the API
type FleetSource interface {
	Snapshot(ctx context.Context) (*model.Fleet, error)
}

// StoreSource reads the fleet from the store on every request
type StoreSource struct {
	Store interfaces.FleetStore
}

// Snapshot loads the persisted fleet
func (s StoreSource) Snapshot(ctx context.Context) (*model.Fleet, error) {
	return s.Store.Load(ctx)
}

// FleetHandler handles fleet-related HTTP requests
type FleetHandler struct {
	source FleetSource
}

// NewFleetHandler creates a new fleet handler
func NewFleetHandler(source FleetSource) *FleetHandler {
	return &FleetHandler{source: source}
}

// Health liveness probe
// @Summary Health check
// @Tags health
// @Produce json
// @Router /health [get]
func (h *FleetHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetFleet returns the fleet summary and every worker
// @Summary Get fleet status
// @Tags fleet
// @Produce json
// @Success 200 {object} status.Report
// @Router /v1/fleet [get]
func (h *FleetHandler) GetFleet(c *gin.Context) {
	fleet, err := h.source.Snapshot(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to get fleet: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status.Build(fleet))
}

// GetWorker returns one worker by name
// @Summary Get worker status
// @Tags fleet
// @Produce json
// @Param name path string true "Worker name"
// @Success 200 {object} status.WorkerView
// @Router /v1/fleet/{name} [get]
func (h *FleetHandler) GetWorker(c *gin.Context) {
	name := c.Param("name")

	fleet, err := h.source.Snapshot(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to get fleet: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	w, err := fleet.Get(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "worker not found: " + name})
		return
	}
	c.JSON(http.StatusOK, status.NewWorkerView(w))
}
