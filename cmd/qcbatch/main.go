package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/Spring-Family-IT/aiqc-spring/internal/app"
	"github.com/Spring-Family-IT/aiqc-spring/internal/batch"
	"github.com/Spring-Family-IT/aiqc-spring/internal/config"
	"github.com/Spring-Family-IT/aiqc-spring/internal/exporter"
	"github.com/Spring-Family-IT/aiqc-spring/internal/logger"
	"github.com/Spring-Family-IT/aiqc-spring/internal/sheet"
	"github.com/Spring-Family-IT/aiqc-spring/internal/store"
)

var (
	configPath = flag.String("config", "config.toml", "配置文件路径")
	sheetPath  = flag.String("sheet", "", "参考表 xlsx 路径 (必填)")
	pdfDir     = flag.String("pdfs", "", "PDF 目录 (必填)")
	modelID    = flag.String("model", "", "提取模型 (默认取配置)")
	outPath    = flag.String("out", "", "JSON 报告输出路径 (默认标准输出)")
	xlsxPath   = flag.String("xlsx", "", "xlsx 报告输出路径")
	dbPath     = flag.String("db", "", "写入批处理历史的数据库路径")
	noPacing   = flag.Bool("no-pacing", false, "不在文档之间等待")
)

func main() {
	flag.Parse()
	if *sheetPath == "" || *pdfDir == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, _, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := logger.Init(cfg.Log.Mode); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg); err != nil {
		logger.Error("batch failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig) error {
	comps, err := app.Build(cfg)
	if err != nil {
		return err
	}
	if comps.Extractor == nil {
		return fmt.Errorf("extraction service not configured")
	}

	table, err := loadTable(*sheetPath, comps.Layout)
	if err != nil {
		return err
	}
	docs, err := loadDocuments(*pdfDir)
	if err != nil {
		return err
	}

	opts := batch.Options{
		ModelID:  *modelID,
		Pacing:   cfg.Batch.Pacing(),
		Cooldown: cfg.Batch.Cooldown(),
	}
	if opts.ModelID == "" {
		opts.ModelID = comps.Registry.Default().ModelID
	}
	if *noPacing {
		opts.Pacing = 0
	}

	// Ctrl+C 在当前文档完成后停止
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := batch.NewOrchestrator(comps.Extractor, comps.Registry, comps.Resolver, comps.Comparator)
	var report *batch.Report
	for event := range orch.Start(ctx, table.Rows, docs, opts) {
		switch event.Type {
		case batch.EventItemDone:
			if item, ok := event.Data.(*batch.ItemResult); ok {
				fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", event.Index+1, event.Total, describe(item))
			}
		case batch.EventCooldown:
			fmt.Fprintf(os.Stderr, "%s\n", event.Message)
		case batch.EventDone:
			report, _ = event.Data.(*batch.Report)
		}
	}
	if report == nil {
		return fmt.Errorf("batch finished without a report")
	}

	if err := writeJSON(report); err != nil {
		return err
	}
	if *xlsxPath != "" {
		if err := writeXLSX(report, *xlsxPath); err != nil {
			return err
		}
	}
	if *dbPath != "" {
		st, err := store.New(*dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.SaveReport(report); err != nil {
			return err
		}
	}
	return nil
}

func loadTable(path string, layout sheet.Layout) (*sheet.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	grid, err := sheet.LoadSpreadsheet(f)
	if err != nil {
		return nil, err
	}
	return sheet.Normalize(grid, layout)
}

// loadDocuments 读取目录下全部 PDF，按文件名排序
func loadDocuments(dir string) ([]batch.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no pdf files in %s", dir)
	}

	docs := make([]batch.Document, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, batch.Document{Filename: name, Data: data})
	}
	return docs, nil
}

func describe(item *batch.ItemResult) string {
	if !item.Succeeded() {
		return fmt.Sprintf("%s: %s (%s)", item.Filename, item.ErrorType, item.Error)
	}
	return fmt.Sprintf("%s: %d/%d correct, %d not found",
		item.Filename, item.Summary.Correct, item.Summary.Total, item.Summary.NotFound)
}

func writeJSON(report *batch.Report) error {
	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func writeXLSX(report *batch.Report, path string) error {
	last := -25
	f, err := exporter.New(func(p exporter.ProgressEvent) {
		if p.Percent/25 == last/25 {
			return
		}
		last = p.Percent
		fmt.Fprintf(os.Stderr, "export %s %d%%\n", p.Stage, p.Percent)
	}).Export(report)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}
