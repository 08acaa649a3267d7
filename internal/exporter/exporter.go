package exporter

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/Spring-Family-IT/aiqc-spring/internal/batch"
	"github.com/Spring-Family-IT/aiqc-spring/internal/compare"
)

const (
	SheetSummary = "Summary"
	SheetResults = "Results"
)

var resultHeaders = []string{
	"Filename", "SKU", "Version", "Type",
	"Field", "Excel Value", "PDF Value", "Status", "Details",
	"Error Type", "Error",
}

// statusFills 结论 -> 单元格底色
var statusFills = map[compare.Status]string{
	compare.StatusCorrect:   "C6EFCE",
	compare.StatusIncorrect: "FFC7CE",
	compare.StatusNotFound:  "FFEB9C",
}

// ProgressEvent 导出进度
type ProgressEvent struct {
	Percent int
	Stage   string
}

// Exporter 批处理结果导出器：仅输出传入的数据，不做额外计算
type Exporter struct {
	progress func(ProgressEvent)
}

// New 创建导出器；progress 可为 nil
func New(progress func(ProgressEvent)) *Exporter {
	return &Exporter{progress: progress}
}

func (e *Exporter) step(percent int, stage string) {
	if e.progress == nil {
		return
	}
	e.progress(ProgressEvent{Percent: min(max(percent, 0), 100), Stage: stage})
}

// Export 生成包含汇总页与结论明细页的工作簿
func (e *Exporter) Export(r *batch.Report) (*excelize.File, error) {
	if r == nil {
		return nil, fmt.Errorf("report is nil")
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(SheetResults); err != nil {
		_ = f.Close()
		return nil, err
	}

	e.step(5, "summary")
	if err := e.writeSummary(f, r); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write summary: %w", err)
	}

	e.step(20, "results")
	if err := e.writeResults(f, r); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write results: %w", err)
	}

	f.SetActiveSheet(0)
	e.step(100, "done")
	return f, nil
}

func (e *Exporter) writeSummary(f *excelize.File, r *batch.Report) error {
	agg := r.Aggregate
	rows := [][]interface{}{
		{"Batch ID", r.ID},
		{"Model", r.ModelID},
		{"Started", r.StartedAt.Format("2006-01-02 15:04:05")},
		{"Finished", r.FinishedAt.Format("2006-01-02 15:04:05")},
		{"Cancelled", r.Cancelled},
		{},
		{"Total Documents", agg.TotalDocuments},
		{"Successful", agg.Successful},
		{"Failed", agg.Failed},
		{"Average Match Rate (%)", agg.AverageMatchRate},
		{},
		{"Fields Checked", agg.Fields.Total},
		{"Correct", agg.Fields.Correct},
		{"Incorrect", agg.Fields.Incorrect},
		{"Not Found", agg.Fields.NotFound},
	}

	types := make([]string, 0, len(agg.FailedByType))
	for t := range agg.FailedByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	if len(types) > 0 {
		rows = append(rows, []interface{}{}, []interface{}{"Failures by Type"})
		for _, t := range types {
			rows = append(rows, []interface{}{t, agg.FailedByType[batch.ErrorType(t)]})
		}
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetSummary, cell, &row); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetSummary, "A1", fmt.Sprintf("A%d", len(rows)), bold); err != nil {
		return err
	}
	return f.SetColWidth(SheetSummary, "A", "A", 26)
}

// writeResults 每条结论一行；失败文档单独一行并写入错误
func (e *Exporter) writeResults(f *excelize.File, r *batch.Report) error {
	header := make([]interface{}, len(resultHeaders))
	for i, h := range resultHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetResults, "A1", &header); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E1F2"}},
	})
	if err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(resultHeaders))
	if err := f.SetCellStyle(SheetResults, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}

	statusStyles := make(map[compare.Status]int, len(statusFills))
	for status, color := range statusFills {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
		})
		if err != nil {
			return err
		}
		statusStyles[status] = id
	}

	rowNum := 2
	total := len(r.Items)
	for i, it := range r.Items {
		sku, version, typ := "", "", ""
		if it.ParsedFilename != nil {
			sku = it.ParsedFilename.SKU
			version = it.ParsedFilename.Version
			typ = string(it.ParsedFilename.Type)
		}

		if !it.Succeeded() || len(it.ComparisonResults) == 0 {
			row := []interface{}{it.Filename, sku, version, typ, "", "", "", "", "", string(it.ErrorType), it.Error}
			if err := f.SetSheetRow(SheetResults, fmt.Sprintf("A%d", rowNum), &row); err != nil {
				return err
			}
			rowNum++
		}

		for _, v := range it.ComparisonResults {
			row := []interface{}{
				it.Filename, sku, version, typ,
				v.Field, v.ExcelValue, v.PDFValue, string(v.Status), v.MatchDetails,
				"", "",
			}
			if err := f.SetSheetRow(SheetResults, fmt.Sprintf("A%d", rowNum), &row); err != nil {
				return err
			}
			if style, ok := statusStyles[v.Status]; ok {
				cell := fmt.Sprintf("H%d", rowNum)
				if err := f.SetCellStyle(SheetResults, cell, cell, style); err != nil {
					return err
				}
			}
			rowNum++
		}

		if total > 0 {
			e.step(20+int(float64(i+1)/float64(total)*75), "results")
		}
	}

	if err := f.SetColWidth(SheetResults, "A", "A", 32); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetResults, "E", "G", 28); err != nil {
		return err
	}
	return f.AutoFilter(SheetResults, fmt.Sprintf("A1:%s%d", lastCol, rowNum-1), nil)
}
