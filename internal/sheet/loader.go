package sheet

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// LoadSpreadsheet 读取工作簿第一个 Sheet 为原始网格
// 空单元格为 nil；列数以工作表维度和最宽行中较大者为准
func LoadSpreadsheet(reader io.Reader) (RawGrid, error) {
	file, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheetName := sheets[0]

	rows, err := file.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	width := dimensionWidth(file, sheetName)
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}

	grid := make(RawGrid, len(rows))
	for i, r := range rows {
		line := make([]Cell, width)
		for j, v := range r {
			if v == "" {
				continue
			}
			line[j] = v
		}
		grid[i] = line
	}
	return grid, nil
}

// dimensionWidth 从工作表维度（如 A1:Z100）解析列数；失败时返回 0
func dimensionWidth(file *excelize.File, sheetName string) int {
	dim, err := file.GetSheetDimension(sheetName)
	if err != nil || dim == "" {
		return 0
	}
	end := dim
	for i := len(dim) - 1; i >= 0; i-- {
		if dim[i] == ':' {
			end = dim[i+1:]
			break
		}
	}
	col, _, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return 0
	}
	return col
}
