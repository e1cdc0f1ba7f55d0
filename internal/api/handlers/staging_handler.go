package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rspy/rs-staging/internal/cluster"
	"github.com/rspy/rs-staging/internal/config"
	"github.com/rspy/rs-staging/internal/jobs"
	"github.com/rspy/rs-staging/internal/staging"
)

// StagingHandler exposes the staging entry point and the job polling
// endpoints.
type StagingHandler struct {
	tracker    *jobs.Tracker
	catalog    staging.CatalogAPI
	settings   staging.Settings
	clusterCfg config.ClusterConfig
}

func NewStagingHandler(tracker *jobs.Tracker, catalogClient staging.CatalogAPI, settings staging.Settings, clusterCfg config.ClusterConfig) *StagingHandler {
	return &StagingHandler{
		tracker:    tracker,
		catalog:    catalogClient,
		settings:   settings,
		clusterCfg: clusterCfg,
	}
}

// Execute accepts an item collection and starts a staging request.
// The response carries only the job id; progress is polled later.
func (h *StagingHandler) Execute(c *gin.Context) {
	collection := c.Query("collection")
	if collection == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection query parameter is required"})
		return
	}
	station := c.DefaultQuery("station", "adgs")

	var items staging.ItemCollection
	if err := c.ShouldBindJSON(&items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item collection: " + err.Error()})
		return
	}

	req := staging.Request{
		JobID:      uuid.NewString(),
		Items:      &items,
		Collection: collection,
		Station:    station,
		Cookie:     c.GetHeader("Cookie"),
	}

	clusterCfg := h.clusterCfg
	orchestrator := staging.NewOrchestrator(req, h.settings, h.tracker, h.catalog,
		func(ctx context.Context) (cluster.Client, error) {
			client, err := cluster.Connect(ctx, clusterCfg)
			if err != nil {
				return nil, err
			}
			return client, nil
		})

	receipt, err := orchestrator.Execute(c.Request.Context())
	if err != nil {
		log.Error().Str("job", req.JobID).Err(err).Msg("Failed to create staging job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create staging job"})
		return
	}

	c.JSON(http.StatusOK, receipt)
}

// GetJob returns one job record by id.
func (h *StagingHandler) GetJob(c *gin.Context) {
	job, err := h.tracker.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs returns every tracked job record.
func (h *StagingHandler) ListJobs(c *gin.Context) {
	list, err := h.tracker.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list})
}
