package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/Spring-Family-IT/aiqc-spring/internal/logger"
)

// headerWindow 文件头允许出现的范围，与常见阅读器一致
const headerWindow = 1024

var pdfHeader = []byte("%PDF-")

// inspectingService 提交前先做本地检查，明显不是 PDF 的文件不产生付费调用
type inspectingService struct {
	next Service
}

// WithInspection 包装提取服务
func WithInspection(next Service) Service {
	return &inspectingService{next: next}
}

func (s *inspectingService) Extract(ctx context.Context, data []byte, modelID string) (map[string]string, error) {
	if _, err := InspectPDF(data); err != nil {
		if errors.Is(err, ErrInvalidPDF) {
			return nil, err
		}
		// 本地解析器比服务端严格，读不懂的文件照常提交
		logger.Warn("local pdf inspection failed, forwarding anyway",
			zap.String("model", modelID), zap.Int("bytes", len(data)), zap.Error(err))
	}
	return s.next.Extract(ctx, data, modelID)
}

// InspectPDF 提交前的本地检查，返回页数
// 空文件或缺少文件头返回 ErrInvalidPDF；其余解析问题返回 ErrUnreadablePDF
func InspectPDF(data []byte) (pages int, err error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty file", ErrInvalidPDF)
	}
	if !bytes.Contains(data[:min(len(data), headerWindow)], pdfHeader) {
		return 0, fmt.Errorf("%w: missing %%PDF- header", ErrInvalidPDF)
	}

	// 解析器遇到尾部填充或损坏的交叉引用表会 panic
	defer func() {
		if r := recover(); r != nil {
			pages = 0
			err = fmt.Errorf("%w: %v", ErrUnreadablePDF, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}
	n := r.NumPage()
	if n <= 0 {
		return 0, fmt.Errorf("%w: no pages", ErrUnreadablePDF)
	}
	return n, nil
}
