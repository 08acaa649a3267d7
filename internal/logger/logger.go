package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

// Init 初始化全局日志器；mode 为 production 时使用 JSON 编码，否则使用开发模式
func Init(mode string) error {
	if mode == "" {
		mode = os.Getenv("ENV")
	}

	var (
		l   *zap.Logger
		err error
	)
	if mode == "production" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return err
	}

	Set(l)
	return nil
}

// Set 替换全局日志器（测试中可注入 zaptest / observer）
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	log = l
	mu.Unlock()
}

// L 返回全局日志器
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Sync 刷新缓冲
func Sync() error {
	return L().Sync()
}

func Info(msg string, fields ...zapcore.Field) {
	L().Info(msg, fields...)
}

func Warn(msg string, fields ...zapcore.Field) {
	L().Warn(msg, fields...)
}

func Error(msg string, fields ...zapcore.Field) {
	L().Error(msg, fields...)
}

func Debug(msg string, fields ...zapcore.Field) {
	L().Debug(msg, fields...)
}
