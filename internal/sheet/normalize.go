package sheet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrMalformedSpreadsheet 行数不足以包含表头和数据
var ErrMalformedSpreadsheet = errors.New("malformed spreadsheet")

// Cell 单元格值：nil、string 或数值（float64/int）
type Cell = any

// RawGrid 原始单元格网格（行优先），不含业务语义
type RawGrid [][]Cell

// ReferenceRow 参考表的一行：列名 -> 单元格值
type ReferenceRow map[string]Cell

// Text 返回列值的字符串形式（去除首尾空白）；缺失或空值返回空串
func (r ReferenceRow) Text(column string) string {
	return strings.TrimSpace(CellText(r[column]))
}

// Has 列值是否非空
func (r ReferenceRow) Has(column string) bool {
	return !IsBlank(r[column])
}

// Table 规范化后的参考表
type Table struct {
	Headers []string       `json:"headers"`
	Rows    []ReferenceRow `json:"rows"`
}

// Layout 参考表版式：表头所在行、数据起始行、按列索引强制命名的空表头
type Layout struct {
	HeaderRow       int
	DataRow         int
	ColumnOverrides map[int]string
}

// SAPLayout SAP 导出模板：第 4 行为表头，第 5 行起为数据，P 列空表头命名为 Description
func SAPLayout() Layout {
	return Layout{
		HeaderRow: 3,
		DataRow:   4,
		ColumnOverrides: map[int]string{
			15: "Description",
		},
	}
}

// CellText 单元格转字符串；整数值的浮点数不带小数部分
func CellText(c Cell) string {
	switch v := c.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// IsBlank nil 或仅包含空白的字符串视为空
func IsBlank(c Cell) bool {
	if c == nil {
		return true
	}
	return strings.TrimSpace(CellText(c)) == ""
}

// ColumnLetter 0 基列索引 -> 表格列字母（A, B, ..., Z, AA, ...）
func ColumnLetter(index int) string {
	name, err := excelize.ColumnNumberToName(index + 1)
	if err != nil {
		return strconv.Itoa(index)
	}
	return name
}

// Normalize 按版式将原始网格转换为行对象，并对每列向下填充空单元格
func Normalize(grid RawGrid, layout Layout) (*Table, error) {
	if layout.DataRow <= layout.HeaderRow {
		return nil, fmt.Errorf("invalid layout: data row %d must follow header row %d", layout.DataRow, layout.HeaderRow)
	}
	if len(grid) <= layout.DataRow {
		return nil, fmt.Errorf("%w: need more than %d rows with headers in row %d, got %d",
			ErrMalformedSpreadsheet, layout.DataRow, layout.HeaderRow+1, len(grid))
	}

	headers := buildHeaders(grid, layout)

	dataRows := grid[layout.DataRow:]
	rows := make([]ReferenceRow, 0, len(dataRows))
	for _, raw := range dataRows {
		row := make(ReferenceRow, len(headers))
		for i, h := range headers {
			if i < len(raw) {
				row[h] = raw[i]
			} else {
				row[h] = nil
			}
		}
		rows = append(rows, row)
	}

	forwardFill(headers, rows)

	return &Table{Headers: headers, Rows: rows}, nil
}

// buildHeaders 生成列名；列数取所有行中的最大宽度
func buildHeaders(grid RawGrid, layout Layout) []string {
	width := 0
	for _, r := range grid {
		if len(r) > width {
			width = len(r)
		}
	}

	headerRow := grid[layout.HeaderRow]
	headers := make([]string, width)
	for i := 0; i < width; i++ {
		var cell Cell
		if i < len(headerRow) {
			cell = headerRow[i]
		}
		if !IsBlank(cell) {
			headers[i] = CellText(cell)
			continue
		}
		if name, ok := layout.ColumnOverrides[i]; ok {
			headers[i] = name
			continue
		}
		headers[i] = ColumnLetter(i)
	}
	return headers
}

// forwardFill 每列自上而下，空单元格继承该列最近一个非空值（还原合并单元格）
func forwardFill(headers []string, rows []ReferenceRow) {
	for _, h := range headers {
		var last Cell
		for _, row := range rows {
			if !IsBlank(row[h]) {
				last = row[h]
			} else if last != nil {
				row[h] = last
			}
		}
	}
}
