package sheet

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sapGrid() RawGrid {
	header := make([]Cell, 17)
	header[0] = "Communication no."
	header[1] = "Name of Dependency"
	header[2] = ""
	header[3] = "EAN/UPC"
	// 15 留空 -> Description，16 留空 -> Q

	row := func(sku, ver, ean, desc any) []Cell {
		r := make([]Cell, 16)
		r[0], r[1], r[3], r[15] = sku, ver, ean, desc
		return r
	}

	return RawGrid{
		{"SAP export"},
		{nil},
		{},
		header,
		row("1234", "V1", "0123 456", "MA"),
		row(nil, "V2", nil, "SA"),
		row("5678", "  ", 99.0, nil),
	}
}

func TestNormalize_HeadersAndForwardFill(t *testing.T) {
	t.Parallel()

	table, err := Normalize(sapGrid(), SAPLayout())
	require.NoError(t, err)

	require.Len(t, table.Headers, 17)
	assert.Equal(t, "Communication no.", table.Headers[0])
	assert.Equal(t, "C", table.Headers[2])
	assert.Equal(t, "Description", table.Headers[15])
	assert.Equal(t, "Q", table.Headers[16])

	require.Len(t, table.Rows, 3)

	// 第二行 SKU 继承上一行
	assert.Equal(t, "1234", table.Rows[1].Text("Communication no."))
	assert.Equal(t, "V2", table.Rows[1].Text("Name of Dependency"))
	assert.Equal(t, "0123 456", table.Rows[1].Text("EAN/UPC"))

	// 空白字符串也被视为空并填充
	assert.Equal(t, "V2", table.Rows[2].Text("Name of Dependency"))
	assert.Equal(t, "99", table.Rows[2].Text("EAN/UPC"))
	assert.Equal(t, "SA", table.Rows[2].Text("Description"))

	// 整列为空时保持 nil
	assert.Nil(t, table.Rows[0]["Q"])
	assert.False(t, table.Rows[2].Has("Q"))
}

func TestNormalize_TooFewRows(t *testing.T) {
	t.Parallel()

	grid := RawGrid{{"a"}, {"b"}, {"c"}, {"header"}}
	_, err := Normalize(grid, SAPLayout())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedSpreadsheet))
}

func TestNormalize_OverrideOnlyWhenBlank(t *testing.T) {
	t.Parallel()

	header := make([]Cell, 16)
	header[15] = "Material Description"
	grid := RawGrid{{}, {}, {}, header, make([]Cell, 16)}

	table, err := Normalize(grid, SAPLayout())
	require.NoError(t, err)
	assert.Equal(t, "Material Description", table.Headers[15])
	assert.Equal(t, "A", table.Headers[0])
}

func TestNormalize_CustomLayout(t *testing.T) {
	t.Parallel()

	grid := RawGrid{
		{"SKU", nil, "Kind"},
		{"1", "x", "MA"},
		{nil, nil, nil},
	}
	layout := Layout{HeaderRow: 0, DataRow: 1, ColumnOverrides: map[int]string{1: "Version"}}

	table, err := Normalize(grid, layout)
	require.NoError(t, err)
	assert.Equal(t, []string{"SKU", "Version", "Kind"}, table.Headers)
	assert.Equal(t, "x", table.Rows[1].Text("Version"))

	_, err = Normalize(grid, Layout{HeaderRow: 2, DataRow: 2})
	require.Error(t, err)
}

func TestNormalize_ForwardFillIdempotent(t *testing.T) {
	t.Parallel()

	first, err := Normalize(sapGrid(), SAPLayout())
	require.NoError(t, err)

	// 以首次结果重建网格；除全空的 Q 列外已无空值
	grid := RawGrid{{}, {}, {}, toCells(first.Headers)}
	for _, row := range first.Rows {
		line := make([]Cell, len(first.Headers))
		for i, h := range first.Headers {
			line[i] = row[h]
		}
		grid = append(grid, line)
	}

	second, err := Normalize(grid, SAPLayout())
	require.NoError(t, err)
	assert.Equal(t, first.Headers, second.Headers)
	if !reflect.DeepEqual(first.Rows, second.Rows) {
		t.Fatalf("forward fill not idempotent:\nfirst=%v\nsecond=%v", first.Rows, second.Rows)
	}
}

func toCells(ss []string) []Cell {
	out := make([]Cell, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func TestColumnLetter(t *testing.T) {
	t.Parallel()

	cases := map[int]string{0: "A", 15: "P", 25: "Z", 26: "AA", 27: "AB", 701: "ZZ", 702: "AAA"}
	for idx, want := range cases {
		if got := ColumnLetter(idx); got != want {
			t.Fatalf("ColumnLetter(%d)=%s want=%s", idx, got, want)
		}
	}
}

func TestCellText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", CellText(nil))
	assert.Equal(t, "12345", CellText(12345.0))
	assert.Equal(t, "1.5", CellText(1.5))
	assert.Equal(t, "7", CellText(7))
	assert.True(t, IsBlank(" \t"))
	assert.False(t, IsBlank(0.0))
}

func TestLoadSpreadsheet(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })
	sheet := f.GetSheetName(0)

	require.NoError(t, f.SetCellValue(sheet, "A1", "Report"))
	require.NoError(t, f.SetCellValue(sheet, "A4", "Communication no."))
	require.NoError(t, f.SetCellValue(sheet, "B4", "Name of Dependency"))
	require.NoError(t, f.SetCellValue(sheet, "A5", "1234"))
	require.NoError(t, f.SetCellValue(sheet, "B5", "V1"))
	require.NoError(t, f.SetCellValue(sheet, "P5", "MA"))
	require.NoError(t, f.SetCellValue(sheet, "B6", "V2"))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	grid, err := LoadSpreadsheet(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, grid, 6)
	assert.Len(t, grid[4], 16)
	assert.Nil(t, grid[1][0])

	table, err := Normalize(grid, SAPLayout())
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "MA", table.Rows[0].Text("Description"))
	assert.Equal(t, "1234", table.Rows[1].Text("Communication no."))
	assert.Equal(t, "MA", table.Rows[1].Text("Description"))
}

func TestLoadSpreadsheet_NotAWorkbook(t *testing.T) {
	t.Parallel()

	_, err := LoadSpreadsheet(bytes.NewReader([]byte("not a workbook")))
	require.Error(t, err)
}
