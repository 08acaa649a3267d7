package extraction

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited 服务端返回 429
	ErrRateLimited = errors.New("rate limited")
	// ErrTimeout 轮询次数耗尽仍未完成
	ErrTimeout = errors.New("analysis timed out")
	// ErrAnalysisFailed 服务端报告分析失败
	ErrAnalysisFailed = errors.New("document analysis failed")
	// ErrNotConfigured 缺少服务地址或密钥
	ErrNotConfigured = errors.New("extraction service not configured")
	// ErrInvalidPDF 上传内容为空或缺少 %PDF- 文件头
	ErrInvalidPDF = errors.New("invalid pdf")
	// ErrUnreadablePDF 有 PDF 文件头但本地解析器读不懂，仍可交给服务端
	ErrUnreadablePDF = errors.New("pdf not readable locally")
)

// ServiceError 非 2xx 响应（429 除外）
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("extraction service %d: %s", e.Status, e.Message)
}

// Transient 5xx 与 408 视为上游/网络问题
func (e *ServiceError) Transient() bool {
	return e.Status == http.StatusRequestTimeout || e.Status/100 == 5
}
