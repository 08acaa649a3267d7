package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Spring-Family-IT/aiqc-spring/internal/logger"
	"github.com/Spring-Family-IT/aiqc-spring/internal/sheet"
)

// SpreadsheetResponse 当前参考表概要
type SpreadsheetResponse struct {
	Filename string    `json:"filename"`
	Headers  []string  `json:"headers"`
	RowCount int       `json:"rowCount"`
	LoadedAt time.Time `json:"loadedAt"`
}

// UploadSpreadsheet 上传参考表并替换当前表
// POST /api/spreadsheet
func (h *Handler) UploadSpreadsheet(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing upload field \"file\""})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}
	defer f.Close()

	grid, err := sheet.LoadSpreadsheet(f)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	table, err := sheet.Normalize(grid, h.deps.Layout)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sheet.ErrMalformedSpreadsheet) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	h.sheet.replace(fh.Filename, table)
	if h.deps.Store != nil {
		if _, err := h.deps.Store.RecordSpreadsheet(fh.Filename, table.Headers, len(table.Rows)); err != nil {
			logger.Warn("record spreadsheet failed", zap.Error(err))
		}
	}
	logger.Info("spreadsheet loaded",
		zap.String("filename", fh.Filename),
		zap.Int("rows", len(table.Rows)),
		zap.Int("columns", len(table.Headers)),
	)

	h.GetSpreadsheet(c)
}

// GetSpreadsheet 当前参考表概要
// GET /api/spreadsheet
func (h *Handler) GetSpreadsheet(c *gin.Context) {
	name, table, loadedAt := h.sheet.snapshot()
	if table == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no spreadsheet loaded"})
		return
	}
	c.JSON(http.StatusOK, SpreadsheetResponse{
		Filename: name,
		Headers:  table.Headers,
		RowCount: len(table.Rows),
		LoadedAt: loadedAt,
	})
}
