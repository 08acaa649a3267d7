package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Spring-Family-IT/aiqc-spring/internal/api"
	"github.com/Spring-Family-IT/aiqc-spring/internal/config"
)

// Server HTTP服务器
type Server struct {
	router  *gin.Engine
	handler *api.Handler
	http    *http.Server
}

// NewServer 创建服务器
func NewServer(cfg *config.AppConfig, handler *api.Handler) *Server {
	if !cfg.Server.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	s := &Server{
		router:  router,
		handler: handler,
	}
	s.setupRoutes()
	return s
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	s.router.Use(
		RecoveryMiddleware(),
		RequestIDMiddleware(),
		LoggerMiddleware(),
		CORSMiddleware(),
		GzipMiddleware(),
	)

	group := s.router.Group("/api")
	{
		s.handler.RegisterRoutes(group)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "path": c.Request.URL.Path})
	})
}

// Handler 返回路由（测试中配合 httptest 使用）
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动服务器，阻塞直到出错或 Shutdown
func (s *Server) Run(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭；进行中的批处理在当前文档完成后结束
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
