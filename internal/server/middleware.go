package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spring-Family-IT/aiqc-spring/internal/logger"
)

const (
	headerRequestID = "X-Request-ID"
	ctxRequestID    = "request_id"
)

// streamingPaths 按前缀排除压缩：批处理 SSE 与 xlsx 下载
var streamingPaths = []string{"/api/batch"}

// RequestIDMiddleware 为每个请求分配 request ID
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(ctxRequestID, reqID)
		c.Header(headerRequestID, reqID)
		c.Next()
	}
}

// RequestID 当前请求的 request ID
func RequestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

// CORSMiddleware 跨域
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// GzipMiddleware 响应压缩
func GzipMiddleware() gin.HandlerFunc {
	return gzip.Gzip(gzip.BestSpeed, gzip.WithExcludedPaths(streamingPaths))
}

// LoggerMiddleware 请求日志
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("clientIp", c.ClientIP()),
			zap.Int("size", c.Writer.Size()),
			zap.String("requestId", RequestID(c)),
		}
		if err := c.Errors.Last(); err != nil {
			fields = append(fields, zap.Error(err))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// RecoveryMiddleware 捕获 panic 并返回 500
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.Any("panic", err),
					zap.String("stack", string(debug.Stack())),
					zap.String("requestId", RequestID(c)),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":     "internal server error",
					"requestId": RequestID(c),
				})
			}
		}()
		c.Next()
	}
}
