package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Spring-Family-IT/aiqc-spring/internal/batch"
	"github.com/Spring-Family-IT/aiqc-spring/internal/compare"
	"github.com/Spring-Family-IT/aiqc-spring/internal/extraction"
	"github.com/Spring-Family-IT/aiqc-spring/internal/mapping"
	"github.com/Spring-Family-IT/aiqc-spring/internal/resolver"
	"github.com/Spring-Family-IT/aiqc-spring/internal/sheet"
	"github.com/Spring-Family-IT/aiqc-spring/internal/store"
)

// ModelLister 模型目录来源
type ModelLister interface {
	ListModels(ctx context.Context) (*extraction.Catalog, error)
}

// Deps 处理器依赖
type Deps struct {
	Store      *store.Store
	Registry   *mapping.Registry
	Extractor  extraction.Service // 为 nil 时比对与批处理接口返回 503
	Models     ModelLister        // 为 nil 时模型接口返回 503
	Resolver   *resolver.Resolver
	Comparator *compare.Comparator
	Layout     sheet.Layout
	Pacing     time.Duration
	Cooldown   time.Duration
	Version    string
	// BatchOptions 追加到编排器的选项（测试中注入等待实现）
	BatchOptions []batch.Option
}

// Handler HTTP 处理器
type Handler struct {
	deps    Deps
	sheet   *sheetState
	running atomic.Bool
}

// NewHandler 创建处理器
func NewHandler(deps Deps) *Handler {
	if deps.Resolver == nil {
		deps.Resolver = resolver.New(resolver.DefaultOptions())
	}
	if deps.Comparator == nil {
		deps.Comparator = compare.New(compare.ListLenient)
	}
	if deps.Registry == nil {
		deps.Registry = mapping.Builtin()
	}
	if deps.Layout.DataRow == 0 && deps.Layout.HeaderRow == 0 {
		deps.Layout = sheet.SAPLayout()
	}
	return &Handler{deps: deps, sheet: &sheetState{}}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 系统状态
	router.GET("/health", h.Health)
	// 提取模型
	router.GET("/models", h.ListModels)

	// 参考表
	router.POST("/spreadsheet", h.UploadSpreadsheet)
	router.GET("/spreadsheet", h.GetSpreadsheet)

	// 单文档核对
	router.POST("/parse-filename", h.ParseFilename)
	router.POST("/compare", h.Compare)

	// 批处理
	router.POST("/batch", h.RunBatch)
	router.GET("/batches", h.ListBatches)
	router.GET("/batches/:id", h.GetBatch)
	router.DELETE("/batches/:id", h.DeleteBatch)
	router.GET("/batches/:id/export", h.ExportBatch)
}

// sheetState 当前参考表；新上传整体替换，不合并
type sheetState struct {
	mu       sync.RWMutex
	filename string
	table    *sheet.Table
	loadedAt time.Time
}

func (s *sheetState) replace(filename string, table *sheet.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filename = filename
	s.table = table
	s.loadedAt = time.Now()
}

func (s *sheetState) snapshot() (string, *sheet.Table, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filename, s.table, s.loadedAt
}

// modelID 请求未指定时依次使用上次选择的模型、默认映射的模型
func (h *Handler) modelID(requested string) string {
	if requested != "" {
		return requested
	}
	def := h.deps.Registry.Default().ModelID
	if h.deps.Store == nil {
		return def
	}
	return h.deps.Store.GetSettingOr(store.SettingLastModel, def)
}

func (h *Handler) rememberModel(modelID string) {
	if h.deps.Store == nil || modelID == "" {
		return
	}
	_ = h.deps.Store.SetSetting(store.SettingLastModel, modelID)
}
