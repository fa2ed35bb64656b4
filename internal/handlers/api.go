package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/yishak-cs/menu-recommender/internal/logging"
	"github.com/yishak-cs/menu-recommender/internal/models"
	"github.com/yishak-cs/menu-recommender/internal/services"
)

// Recommender produces ranked recommendations for a storefront request
type Recommender interface {
	GetRecommendations(ctx context.Context, req services.RecommendationRequest) ([]models.CandidateItem, error)
}

// InteractionRecorder appends customer reactions to the interaction log
type InteractionRecorder interface {
	RecordInteraction(ctx context.Context, customerID int, tenantID string, itemID int, action models.InteractionAction) (models.RecommendationInteraction, error)
	RecordImpressions(ctx context.Context, customerID int, tenantID string, itemIDs []int) (int, error)
}

// AnalyticsReader reports per-tenant recommendation effectiveness
type AnalyticsReader interface {
	GetAnalytics(ctx context.Context, tenantID string, windowDays int) (models.RecommendationAnalytics, error)
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// APIHandler handles all API requests
type APIHandler struct {
	recommender  Recommender
	interactions InteractionRecorder
	analytics    AnalyticsReader
	checks       map[string]HealthCheck
	logger       zerolog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(recommender Recommender, interactions InteractionRecorder, analytics AnalyticsReader, checks map[string]HealthCheck) *APIHandler {
	return &APIHandler{
		recommender:  recommender,
		interactions: interactions,
		analytics:    analytics,
		checks:       checks,
		logger:       logging.Component("api"),
	}
}

// SetupRoutes configures all API routes
func (h *APIHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/recommendations/:customerId", h.GetRecommendations)
		api.POST("/interactions", h.RecordInteraction)
		api.POST("/interactions/impressions", h.RecordImpressions)
		api.GET("/analytics/:tenantId", h.GetAnalytics)
		api.GET("/health", h.Health)
	}
}

type interactionRequest struct {
	CustomerID int    `json:"customer_id" binding:"min=0"`
	TenantID   string `json:"tenant_id" binding:"required"`
	ItemID     int    `json:"item_id"`
	Action     string `json:"action" binding:"required,oneof=viewed clicked added dismissed"`
}

type impressionsRequest struct {
	CustomerID int    `json:"customer_id" binding:"min=0"`
	TenantID   string `json:"tenant_id" binding:"required"`
	ItemIDs    []int  `json:"item_ids" binding:"required,min=1"`
}

// GetRecommendations handles requests for the recommendations shown next to a cart or menu page.
// customerId 0 is a guest.
func (h *APIHandler) GetRecommendations(c *gin.Context) {
	customerID, err := strconv.Atoi(c.Param("customerId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID"})
		return
	}

	tenantID := c.Query("tenantId")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenantId is required"})
		return
	}

	selected, err := parseIDList(c.Query("selected"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid selected item IDs"})
		return
	}

	maxCount := 0
	if maxParam := c.Query("max"); maxParam != "" {
		if maxCount, err = strconv.Atoi(maxParam); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid max"})
			return
		}
	}

	recommendations, err := h.recommender.GetRecommendations(c.Request.Context(), services.RecommendationRequest{
		CustomerID:          customerID,
		TenantID:            tenantID,
		CurrentSelectionIDs: selected,
		MaxCount:            maxCount,
	})
	if err != nil {
		h.respondError(c, err, "Failed to get recommendations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"customer_id":     customerID,
		"tenant_id":       tenantID,
		"recommendations": recommendations,
		"count":           len(recommendations),
	})
}

// RecordInteraction handles a single customer reaction to a recommendation
func (h *APIHandler) RecordInteraction(c *gin.Context) {
	var req interactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	interaction, err := h.interactions.RecordInteraction(
		c.Request.Context(),
		req.CustomerID,
		req.TenantID,
		req.ItemID,
		models.InteractionAction(req.Action),
	)
	if err != nil {
		h.respondError(c, err, "Failed to record interaction")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"interaction": interaction})
}

// RecordImpressions records a viewed interaction for every item of a rendered recommendation list
func (h *APIHandler) RecordImpressions(c *gin.Context) {
	var req impressionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recorded, err := h.interactions.RecordImpressions(c.Request.Context(), req.CustomerID, req.TenantID, req.ItemIDs)
	if err != nil {
		h.logger.Error().Err(err).Int("recorded", recorded).Str("tenant_id", req.TenantID).Msg("Impressions partially recorded")
		h.respondError(c, err, "Failed to record impressions")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"recorded": recorded})
}

// GetAnalytics handles requests for a tenant's click and conversion rates
func (h *APIHandler) GetAnalytics(c *gin.Context) {
	tenantID := c.Param("tenantId")

	days := 0 // service default
	if daysParam := c.Query("days"); daysParam != "" {
		parsed, err := strconv.Atoi(daysParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid days"})
			return
		}
		days = parsed
	}

	analytics, err := h.analytics.GetAnalytics(c.Request.Context(), tenantID, days)
	if err != nil {
		h.respondError(c, err, "Failed to get analytics")
		return
	}

	c.JSON(http.StatusOK, analytics)
}

// Health pings every registered dependency
func (h *APIHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{"status": overall, "checks": results})
}

func (h *APIHandler) respondError(c *gin.Context, err error, message string) {
	if errors.Is(err, services.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Error().Err(err).Str("path", c.FullPath()).Msg(message)
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}

// parseIDList parses "1,2,3". Blank entries are skipped.
func parseIDList(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
