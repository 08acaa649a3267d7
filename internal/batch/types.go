package batch

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/Spring-Family-IT/aiqc-spring/internal/compare"
	"github.com/Spring-Family-IT/aiqc-spring/internal/extraction"
	"github.com/Spring-Family-IT/aiqc-spring/internal/filename"
)

// ErrorType 单文档失败分类
type ErrorType string

const (
	ErrorPrimaryKeyFailed ErrorType = "primary_key_failed"
	ErrorNetwork          ErrorType = "network"
	ErrorRateLimit        ErrorType = "rate_limit"
	ErrorUnknown          ErrorType = "unknown"
)

// Document 待核对的 PDF
type Document struct {
	Filename string
	Data     []byte
}

// ItemResult 单文档结果；失败时 Error/ErrorType 非空
type ItemResult struct {
	Index             int                     `json:"index"`
	Filename          string                  `json:"filename"`
	ParsedFilename    *filename.DocumentKey   `json:"parsedFilename"`
	SelectedInputs    []compare.SelectedInput `json:"selectedInputs"`
	ComparisonResults []compare.Verdict       `json:"comparisonResults"`
	Summary           compare.Summary         `json:"summary"`
	Error             string                  `json:"error,omitempty"`
	ErrorType         ErrorType               `json:"errorType,omitempty"`
	DurationMS        int64                   `json:"durationMs"`
}

// Succeeded 是否完成比对
func (r *ItemResult) Succeeded() bool {
	return r.ErrorType == ""
}

// MatchRate 正确率（0-100）；无结论时为 0
func (r *ItemResult) MatchRate() float64 {
	if r.Summary.Total == 0 {
		return 0
	}
	return float64(r.Summary.Correct) / float64(r.Summary.Total) * 100
}

// Aggregate 批次汇总
type Aggregate struct {
	TotalDocuments   int               `json:"totalDocuments"`
	Successful       int               `json:"successful"`
	Failed           int               `json:"failed"`
	FailedByType     map[ErrorType]int `json:"failedByType"`
	Fields           compare.Summary   `json:"fields"`
	AverageMatchRate int               `json:"averageMatchRate"`
}

// Report 一次批处理的完整结果
type Report struct {
	ID         string       `json:"id"`
	ModelID    string       `json:"modelId"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Cancelled  bool         `json:"cancelled"`
	Items      []ItemResult `json:"items"`
	Aggregate  Aggregate    `json:"aggregate"`
}

// Summarize 汇总各文档结果
// 平均正确率只统计成功且至少有一条结论的文档，四舍五入为整数百分比
func Summarize(items []ItemResult) Aggregate {
	agg := Aggregate{
		TotalDocuments: len(items),
		FailedByType:   make(map[ErrorType]int),
	}

	var rateSum float64
	var rated int
	for i := range items {
		it := &items[i]
		if !it.Succeeded() {
			agg.Failed++
			agg.FailedByType[it.ErrorType]++
			continue
		}
		agg.Successful++
		agg.Fields.Add(it.Summary)
		if it.Summary.Total > 0 {
			rateSum += it.MatchRate()
			rated++
		}
	}
	if rated > 0 {
		agg.AverageMatchRate = int(math.Floor(rateSum/float64(rated) + 0.5))
	}
	return agg
}

// rateLimitText 无类型错误的兜底匹配：独立的 429 或 rate limit 字样
var rateLimitText = regexp.MustCompile(`(?i)\b429\b|rate[ _-]?limit`)

// Classify 将提取失败归类为 rate_limit/network/unknown
// 先按错误类型判断，文本匹配只用于无类型的错误
func Classify(err error) ErrorType {
	if err == nil {
		return ""
	}
	if errors.Is(err, extraction.ErrRateLimited) {
		return ErrorRateLimit
	}
	if errors.Is(err, extraction.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorNetwork
	}
	var se *extraction.ServiceError
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusTooManyRequests:
			return ErrorRateLimit
		case se.Transient():
			return ErrorNetwork
		default:
			return ErrorUnknown
		}
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return ErrorNetwork
	}
	if errors.Is(err, extraction.ErrAnalysisFailed) || errors.Is(err, extraction.ErrInvalidPDF) {
		return ErrorUnknown
	}
	if rateLimitText.MatchString(err.Error()) {
		return ErrorRateLimit
	}
	return ErrorUnknown
}
