package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spring-Family-IT/aiqc-spring/internal/compare"
	"github.com/Spring-Family-IT/aiqc-spring/internal/extraction"
	"github.com/Spring-Family-IT/aiqc-spring/internal/filename"
	"github.com/Spring-Family-IT/aiqc-spring/internal/logger"
	"github.com/Spring-Family-IT/aiqc-spring/internal/mapping"
	"github.com/Spring-Family-IT/aiqc-spring/internal/resolver"
	"github.com/Spring-Family-IT/aiqc-spring/internal/sheet"
)

// 进度事件类型
const (
	EventStart     = "start"
	EventItemStart = "item_start"
	EventItemDone  = "item_done"
	EventCooldown  = "cooldown"
	EventDone      = "done"
)

// ProgressEvent 进度事件
type ProgressEvent struct {
	Type      string      `json:"type"`    // start/item_start/item_done/cooldown/done
	Index     int         `json:"index"`   // 当前文档序号（0 基）
	Total     int         `json:"total"`   // 文档总数
	Message   string      `json:"message"` // 事件消息
	Data      interface{} `json:"data"`    // item_done 为 *ItemResult，done 为 *Report
	Timestamp time.Time   `json:"timestamp"`
}

// Options 单次批处理参数
type Options struct {
	ModelID  string
	Pacing   time.Duration // 相邻文档间固定间隔
	Cooldown time.Duration // 限流后追加的冷却
}

// SleepFunc 可被取消的等待
type SleepFunc func(ctx context.Context, d time.Duration) error

// Orchestrator 批处理编排器：逐个文档串行处理，单文档失败不影响其他文档
type Orchestrator struct {
	extractor  extraction.Service
	registry   *mapping.Registry
	resolver   *resolver.Resolver
	comparator *compare.Comparator
	sleep      SleepFunc
	now        func() time.Time
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithSleep 替换等待实现（测试中记录间隔而不真正等待）
func WithSleep(fn SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator 创建编排器
func NewOrchestrator(svc extraction.Service, registry *mapping.Registry, res *resolver.Resolver, cmp *compare.Comparator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor:  svc,
		registry:   registry,
		resolver:   res,
		comparator: cmp,
		sleep:      sleepCtx,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start 异步执行批处理，返回进度通道；done 事件携带 *Report
func (o *Orchestrator) Start(ctx context.Context, rows []sheet.ReferenceRow, docs []Document, opts Options) <-chan ProgressEvent {
	progressChan := make(chan ProgressEvent, 100)

	go func() {
		defer close(progressChan)
		o.Run(ctx, rows, docs, opts, progressChan)
	}()

	return progressChan
}

// Run 同步执行批处理；progressChan 可为 nil
// 仅在文档之间检查 ctx：已开始的文档总会完成，未开始的文档不出现在结果中
func (o *Orchestrator) Run(ctx context.Context, rows []sheet.ReferenceRow, docs []Document, opts Options, progressChan chan<- ProgressEvent) *Report {
	report := &Report{
		ID:        uuid.NewString(),
		ModelID:   opts.ModelID,
		StartedAt: o.now(),
		Items:     make([]ItemResult, 0, len(docs)),
	}
	fm := o.registry.Get(opts.ModelID)
	total := len(docs)

	o.sendProgress(progressChan, ProgressEvent{
		Type:    EventStart,
		Total:   total,
		Message: fmt.Sprintf("starting batch of %d documents with model %s", total, fm.ModelID),
		Data: map[string]interface{}{
			"batch_id": report.ID,
			"model_id": opts.ModelID,
		},
		Timestamp: o.now(),
	})

	for i, doc := range docs {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		if i > 0 {
			prev := report.Items[i-1]
			if err := o.pause(ctx, progressChan, i, total, prev, opts); err != nil {
				report.Cancelled = true
				break
			}
		}

		o.sendProgress(progressChan, ProgressEvent{
			Type:      EventItemStart,
			Index:     i,
			Total:     total,
			Message:   fmt.Sprintf("processing %s", doc.Filename),
			Timestamp: o.now(),
		})

		item := o.processDocument(ctx, i, doc, rows, fm, opts.ModelID)
		report.Items = append(report.Items, item)

		o.sendResult(progressChan, ProgressEvent{
			Type:      EventItemDone,
			Index:     i,
			Total:     total,
			Message:   fmt.Sprintf("processed %d/%d: %s", i+1, total, doc.Filename),
			Data:      &report.Items[len(report.Items)-1],
			Timestamp: o.now(),
		})
	}

	report.Aggregate = Summarize(report.Items)
	report.FinishedAt = o.now()

	logger.Info("batch finished",
		zap.String("batch_id", report.ID),
		zap.Int("documents", report.Aggregate.TotalDocuments),
		zap.Int("successful", report.Aggregate.Successful),
		zap.Int("failed", report.Aggregate.Failed),
		zap.Bool("cancelled", report.Cancelled),
	)

	o.sendResult(progressChan, ProgressEvent{
		Type:      EventDone,
		Index:     len(report.Items),
		Total:     total,
		Message:   "batch complete",
		Data:      report,
		Timestamp: o.now(),
	})
	return report
}

// pause 文档间固定间隔；上一个文档被限流时先追加冷却
func (o *Orchestrator) pause(ctx context.Context, progressChan chan<- ProgressEvent, index, total int, prev ItemResult, opts Options) error {
	wait := opts.Pacing
	if prev.ErrorType == ErrorRateLimit && opts.Cooldown > 0 {
		wait += opts.Cooldown
		o.sendProgress(progressChan, ProgressEvent{
			Type:      EventCooldown,
			Index:     index,
			Total:     total,
			Message:   fmt.Sprintf("rate limited, waiting %s before next document", wait),
			Data:      map[string]interface{}{"wait_ms": wait.Milliseconds()},
			Timestamp: o.now(),
		})
	}
	if wait <= 0 {
		return ctx.Err()
	}
	return o.sleep(ctx, wait)
}

// processDocument 解析文件名、匹配参考行、提取并比对；任何失败都记录在结果中
func (o *Orchestrator) processDocument(ctx context.Context, index int, doc Document, rows []sheet.ReferenceRow, fm *mapping.FieldMapping, modelID string) (item ItemResult) {
	start := o.now()
	item = ItemResult{Index: index, Filename: doc.Filename}
	defer func() {
		item.DurationMS = o.now().Sub(start).Milliseconds()
	}()

	key, ok := filename.Parse(doc.Filename)
	if !ok {
		item.ErrorType = ErrorPrimaryKeyFailed
		item.Error = fmt.Sprintf("cannot parse filename %q: expected SKU_VERSION_TYPE_...", doc.Filename)
		o.logItem(&item)
		return item
	}
	item.ParsedFilename = &key

	row, err := o.resolver.Resolve(key, rows)
	if err != nil {
		item.ErrorType = ErrorPrimaryKeyFailed
		item.Error = err.Error()
		o.logItem(&item)
		return item
	}

	item.SelectedInputs = compare.BuildSelectedInputs(row, fm)

	// 已开始的文档不因批次取消而中断
	extracted, err := o.extractor.Extract(context.WithoutCancel(ctx), doc.Data, modelID)
	if err != nil {
		item.ErrorType = Classify(err)
		item.Error = err.Error()
		o.logItem(&item)
		return item
	}

	item.ComparisonResults = o.comparator.Compare(item.SelectedInputs, fm, extracted)
	item.Summary = compare.Summarize(item.ComparisonResults)
	o.logItem(&item)
	return item
}

func (o *Orchestrator) logItem(item *ItemResult) {
	if item.Succeeded() {
		logger.Info("document compared",
			zap.Int("index", item.Index),
			zap.String("filename", item.Filename),
			zap.Int("correct", item.Summary.Correct),
			zap.Int("incorrect", item.Summary.Incorrect),
			zap.Int("not_found", item.Summary.NotFound),
		)
		return
	}
	logger.Warn("document failed",
		zap.Int("index", item.Index),
		zap.String("filename", item.Filename),
		zap.String("error_type", string(item.ErrorType)),
		zap.String("error", item.Error),
	)
}

// sendProgress 发送提示性事件（start/item_start/cooldown），通道已满时丢弃
func (o *Orchestrator) sendProgress(ch chan<- ProgressEvent, event ProgressEvent) {
	if ch == nil {
		return
	}
	select {
	case ch <- event:
	default:
	}
}

// sendResult 发送携带结果的事件（item_done/done），阻塞直到被读取
// 调用方需持续读取直到通道关闭
func (o *Orchestrator) sendResult(ch chan<- ProgressEvent, event ProgressEvent) {
	if ch == nil {
		return
	}
	ch <- event
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
