package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Spring-Family-IT/aiqc-spring/internal/batch"
	"github.com/Spring-Family-IT/aiqc-spring/internal/exporter"
	"github.com/Spring-Family-IT/aiqc-spring/internal/logger"
	"github.com/Spring-Family-IT/aiqc-spring/internal/store"
)

// RunBatch 批处理 (SSE 流式响应)
// POST /api/batch (multipart: pdf[], modelId?)
func (h *Handler) RunBatch(c *gin.Context) {
	if h.deps.Extractor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "extraction service not configured"})
		return
	}
	_, table, _ := h.sheet.snapshot()
	if table == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no spreadsheet loaded"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	files := form.File["pdf"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no pdf files uploaded"})
		return
	}

	docs := make([]batch.Document, 0, len(files))
	for _, fh := range files {
		data, err := readUpload(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		docs = append(docs, batch.Document{Filename: fh.Filename, Data: data})
	}

	if !h.running.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, gin.H{"error": "a batch is already running"})
		return
	}
	defer h.running.Store(false)

	modelID := h.modelID(c.PostForm("modelId"))
	h.rememberModel(modelID)

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	orch := batch.NewOrchestrator(h.deps.Extractor, h.deps.Registry, h.deps.Resolver, h.deps.Comparator, h.deps.BatchOptions...)
	// 客户端断开即取消：当前文档完成后停止
	progressChan := orch.Start(c.Request.Context(), table.Rows, docs, batch.Options{
		ModelID:  modelID,
		Pacing:   h.deps.Pacing,
		Cooldown: h.deps.Cooldown,
	})

	for event := range progressChan {
		if event.Type == batch.EventDone {
			if report, ok := event.Data.(*batch.Report); ok {
				h.saveReport(report)
			}
		}

		eventData, err := json.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", eventData)
		flusher.Flush()
	}
}

func (h *Handler) saveReport(report *batch.Report) {
	if h.deps.Store == nil {
		return
	}
	if err := h.deps.Store.SaveReport(report); err != nil {
		logger.Error("save batch report failed", zap.String("batchId", report.ID), zap.Error(err))
	}
}

// ListBatches 批处理历史
// GET /api/batches?limit=50
func (h *Handler) ListBatches(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.deps.Store.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": runs, "total": len(runs)})
}

// GetBatch 批处理报告
// GET /api/batches/:id
func (h *Handler) GetBatch(c *gin.Context) {
	report, ok := h.loadReport(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, report)
}

// DeleteBatch 删除批处理报告
// DELETE /api/batches/:id
func (h *Handler) DeleteBatch(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	err := h.deps.Store.DeleteRun(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ExportBatch 导出批处理报告为 xlsx
// GET /api/batches/:id/export
func (h *Handler) ExportBatch(c *gin.Context) {
	report, ok := h.loadReport(c)
	if !ok {
		return
	}

	file, err := exporter.New(nil).Export(report)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed: " + err.Error()})
		return
	}
	defer file.Close()

	name := fmt.Sprintf("qc_report_%s_%s.xlsx", report.StartedAt.Format("20060102_150405"), shortID(report.ID))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Status(http.StatusOK)
	if err := file.Write(c.Writer); err != nil {
		logger.Error("write export failed", zap.String("batchId", report.ID), zap.Error(err))
	}
}

func (h *Handler) loadReport(c *gin.Context) (*batch.Report, bool) {
	if !h.requireStore(c) {
		return nil, false
	}
	report, err := h.deps.Store.GetReport(c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return report, true
}

func (h *Handler) requireStore(c *gin.Context) bool {
	if h.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history store not configured"})
		return false
	}
	return true
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return strconv.FormatInt(time.Now().Unix(), 10)
	}
	return id
}
