package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Spring-Family-IT/aiqc-spring/internal/api"
	"github.com/Spring-Family-IT/aiqc-spring/internal/app"
	"github.com/Spring-Family-IT/aiqc-spring/internal/config"
	"github.com/Spring-Family-IT/aiqc-spring/internal/logger"
	"github.com/Spring-Family-IT/aiqc-spring/internal/server"
	"github.com/Spring-Family-IT/aiqc-spring/internal/store"
)

var version = "dev"

var (
	configPath = flag.String("config", "", "配置文件路径 (默认为可执行文件同目录的 config.toml)")
	port       = flag.Int("port", 0, "服务端口 (config.toml 优先；仅当未显式配置 port 时生效)")
	devMode    = flag.Bool("dev", false, "开发模式")
	dataDir    = flag.String("dataDir", "", "数据目录 (覆盖配置文件)")
)

func main() {
	flag.Parse()

	fmt.Println("==========================================")
	fmt.Println("  AIQC - 包装稿字段核对服务")
	fmt.Println("==========================================")

	// 加载配置
	var (
		cfg  *config.AppConfig
		info config.LoadConfigInfo
		err  error
	)
	if *configPath != "" {
		cfg, info, err = config.LoadFile(*configPath)
	} else {
		cfg, info, err = config.LoadConfigWithInfo()
	}
	if err != nil {
		log.Printf("加载配置失败，使用默认配置: %v", err)
		cfg = config.DefaultConfig()
		info = config.LoadConfigInfo{}
	}

	// 命令行参数覆盖配置
	if *port > 0 && !info.PortSpecified {
		cfg.Server.Port = *port
	}
	if *devMode {
		cfg.Server.DevMode = true
		cfg.Log.Mode = "development"
	}
	if *dataDir != "" {
		cfg.Data.DataDir = *dataDir
	}

	if err := logger.Init(cfg.Log.Mode); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// 确保数据目录存在
	dir, err := config.EnsureDataDir(cfg)
	if err != nil {
		logger.Warn("create data dir failed", zap.Error(err))
		dir = cfg.Data.DataDir
	} else {
		fmt.Printf("数据目录: %s\n", dir)
	}

	st, err := store.New(filepath.Join(dir, "aiqc.db"))
	if err != nil {
		logger.Error("open database failed", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	comps, err := app.Build(cfg)
	if err != nil {
		logger.Error("build components failed", zap.Error(err))
		os.Exit(1)
	}

	deps := api.Deps{
		Store:      st,
		Registry:   comps.Registry,
		Extractor:  comps.Extractor,
		Resolver:   comps.Resolver,
		Comparator: comps.Comparator,
		Layout:     comps.Layout,
		Pacing:     cfg.Batch.Pacing(),
		Cooldown:   cfg.Batch.Cooldown(),
		Version:    version,
	}
	if comps.Client != nil {
		deps.Models = comps.Client
	}
	srv := server.NewServer(cfg, api.NewHandler(deps))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		fmt.Printf("服务启动中，监听端口 %d ...\n", cfg.Server.Port)
		if err := srv.Run(addr); err != nil {
			logger.Error("server stopped", zap.Error(err))
			os.Exit(1)
		}
	}()

	fmt.Println("\n按 Ctrl+C 停止服务...")

	// 等待信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\n正在关闭服务...")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}
