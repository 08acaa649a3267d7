package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	OK                bool   `json:"ok"`
	Time              string `json:"time"`
	Version           string `json:"version"`
	SpreadsheetLoaded bool   `json:"spreadsheetLoaded"`
	ExtractionReady   bool   `json:"extractionReady"`
}

// Health 健康检查
// GET /api/health
func (h *Handler) Health(c *gin.Context) {
	_, table, _ := h.sheet.snapshot()
	c.JSON(http.StatusOK, HealthResponse{
		OK:                true,
		Time:              time.Now().UTC().Format(time.RFC3339),
		Version:           h.deps.Version,
		SpreadsheetLoaded: table != nil,
		ExtractionReady:   h.deps.Extractor != nil,
	})
}

// ListModels 提取模型目录
// GET /api/models?projectId=xxx | ?projects=1
func (h *Handler) ListModels(c *gin.Context) {
	if h.deps.Models == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "extraction service not configured"})
		return
	}

	cat, err := h.deps.Models.ListModels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch models", "details": err.Error()})
		return
	}

	if fetchProjects, _ := strconv.ParseBool(c.Query("projects")); fetchProjects {
		projects := cat.Projects()
		message := "Found " + strconv.Itoa(len(projects)) + " projects"
		switch {
		case len(cat.Custom) == 0:
			message = "No custom extraction models found"
		case len(projects) == 0:
			message = "Custom models exist but have no project tags"
		}
		c.JSON(http.StatusOK, gin.H{
			"projects":          projects,
			"customModelsCount": len(cat.Custom),
			"totalModelsCount":  len(cat.All),
			"message":           message,
		})
		return
	}

	if projectID := c.Query("projectId"); projectID != "" {
		c.JSON(http.StatusOK, gin.H{
			"models":            cat.ForProject(projectID),
			"customModelsCount": len(cat.Custom),
			"totalModelsCount":  len(cat.All),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"allModels":      cat.All,
		"customModels":   cat.Custom,
		"prebuiltModels": cat.Prebuilt,
		"totalCount":     len(cat.All),
		"customCount":    len(cat.Custom),
		"prebuiltCount":  len(cat.Prebuilt),
		"mappedModels":   h.deps.Registry.Models(),
		"defaultModel":   h.deps.Registry.Default().ModelID,
	})
}
