package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Spring-Family-IT/aiqc-spring/internal/batch"
	"github.com/Spring-Family-IT/aiqc-spring/internal/compare"
	"github.com/Spring-Family-IT/aiqc-spring/internal/extraction"
	"github.com/Spring-Family-IT/aiqc-spring/internal/filename"
	"github.com/Spring-Family-IT/aiqc-spring/internal/logger"
	"github.com/Spring-Family-IT/aiqc-spring/internal/resolver"
)

// maxPDFSize 单个 PDF 上限
const maxPDFSize = 50 << 20

// ParseFilenameRequest 文件名解析请求
type ParseFilenameRequest struct {
	Filename string `json:"filename" binding:"required"`
}

// ParseFilename 解析文件名中的主键
// POST /api/parse-filename
func (h *Handler) ParseFilename(c *gin.Context) {
	var req ParseFilenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	key, ok := filename.Parse(req.Filename)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    "filename does not match <SKU>_<Version>_<MA|SA>_<name>.pdf",
			"filename": req.Filename,
		})
		return
	}
	c.JSON(http.StatusOK, key)
}

// CompareResponse 单文档比对结果
type CompareResponse struct {
	ModelID        string                  `json:"modelId"`
	ParsedFilename *filename.DocumentKey   `json:"parsedFilename,omitempty"`
	SelectedInputs []compare.SelectedInput `json:"selectedInputs"`
	Results        []compare.Verdict       `json:"results"`
	Summary        compare.Summary         `json:"summary"`
	Fields         map[string]string       `json:"fields"`
}

// Compare 单文档比对
// POST /api/compare (multipart: pdf, selectedInputs?, modelId?)
// 未提供 selectedInputs 时按文件名在当前参考表中定位行
func (h *Handler) Compare(c *gin.Context) {
	if h.deps.Extractor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "extraction service not configured"})
		return
	}

	fh, err := c.FormFile("pdf")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing upload field \"pdf\""})
		return
	}
	data, err := readUpload(fh)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	modelID := h.modelID(c.PostForm("modelId"))
	fm := h.deps.Registry.Get(modelID)
	resp := CompareResponse{ModelID: modelID}

	if raw := c.PostForm("selectedInputs"); raw != "" {
		var inputs []compare.SelectedInput
		if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid selectedInputs: " + err.Error()})
			return
		}
		resp.SelectedInputs = inputs
	} else {
		_, table, _ := h.sheet.snapshot()
		if table == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "selectedInputs required when no spreadsheet is loaded"})
			return
		}
		key, ok := filename.Parse(fh.Filename)
		if !ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "filename does not match <SKU>_<Version>_<MA|SA>_<name>.pdf"})
			return
		}
		resp.ParsedFilename = &key
		row, err := h.deps.Resolver.Resolve(key, table.Rows)
		if err != nil {
			body := gin.H{"error": err.Error(), "errorType": batch.ErrorPrimaryKeyFailed}
			var f *resolver.Failure
			if errors.As(err, &f) {
				body["stage"] = f.Stage
				body["candidates"] = f.Candidates
			}
			c.JSON(http.StatusUnprocessableEntity, body)
			return
		}
		resp.SelectedInputs = compare.BuildSelectedInputs(row, fm)
	}

	fields, err := h.deps.Extractor.Extract(c.Request.Context(), data, modelID)
	if err != nil {
		logger.Warn("extraction failed", zap.String("filename", fh.Filename), zap.Error(err))
		c.JSON(extractionStatus(err), gin.H{
			"error":     err.Error(),
			"errorType": batch.Classify(err),
		})
		return
	}
	h.rememberModel(modelID)

	resp.Fields = fields
	resp.Results = h.deps.Comparator.Compare(resp.SelectedInputs, fm, fields)
	resp.Summary = compare.Summarize(resp.Results)
	c.JSON(http.StatusOK, resp)
}

// extractionStatus 提取错误对应的 HTTP 状态码
func extractionStatus(err error) int {
	switch {
	case errors.Is(err, extraction.ErrInvalidPDF):
		return http.StatusUnprocessableEntity
	case errors.Is(err, extraction.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, extraction.ErrTimeout):
		return http.StatusGatewayTimeout
	}
	switch batch.Classify(err) {
	case batch.ErrorNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxPDFSize {
		return nil, errors.New("file too large: " + fh.Filename)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.New("failed to read upload: " + fh.Filename)
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxPDFSize))
}
