package extraction

import (
	"strconv"
	"strings"

	"github.com/Spring-Family-IT/aiqc-spring/internal/valuenorm"
)

type analyzeOperation struct {
	Status        string         `json:"status"`
	AnalyzeResult *analyzeResult `json:"analyzeResult"`
	Error         *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type analyzeResult struct {
	Documents     []analyzedDocument `json:"documents"`
	KeyValuePairs []keyValuePair     `json:"keyValuePairs"`
	Tables        []analyzedTable    `json:"tables"`
	Pages         []analyzedPage     `json:"pages"`
}

type analyzedDocument struct {
	Fields     map[string]*documentField `json:"fields"`
	Confidence float64                   `json:"confidence"`
}

type documentField struct {
	ValueString  *string  `json:"valueString"`
	Content      *string  `json:"content"`
	ValueNumber  *float64 `json:"valueNumber"`
	ValueInteger *int64   `json:"valueInteger"`
}

type keyValuePair struct {
	Key   *kvElement `json:"key"`
	Value *kvElement `json:"value"`
}

type kvElement struct {
	Content string `json:"content"`
}

type analyzedTable struct {
	Cells []struct {
		RowIndex    int    `json:"rowIndex"`
		ColumnIndex int    `json:"columnIndex"`
		Content     string `json:"content"`
	} `json:"cells"`
}

type analyzedPage struct {
	Barcodes []struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
	} `json:"barcodes"`
}

// barcodeFields 文档字段中按条码处理（去空白）的字段名
var barcodeFields = map[string]bool{
	"Barcode":    true,
	"UPCA":       true,
	"DataMatrix": true,
}

// text 字段取值顺序：valueString、content、valueNumber、valueInteger
func (f *documentField) text() string {
	switch {
	case f == nil:
		return ""
	case f.ValueString != nil:
		return strings.TrimSpace(*f.ValueString)
	case f.Content != nil:
		return strings.TrimSpace(*f.Content)
	case f.ValueNumber != nil:
		return strconv.FormatFloat(*f.ValueNumber, 'f', -1, 64)
	case f.ValueInteger != nil:
		return strconv.FormatInt(*f.ValueInteger, 10)
	}
	return ""
}

// normalizeKind 条码类型小写并去掉 - _ 空格（UPC-A -> upca）
func normalizeKind(kind string) string {
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(kind))
}

// flatten 将分析结果展平为 字段 ID -> 文本
// 后写入的来源覆盖先写入的：文档字段、键值对、表格单元格、页面条码
func flatten(res *analyzeResult) map[string]string {
	out := make(map[string]string)
	if res == nil {
		return out
	}

	if len(res.Documents) > 0 {
		for name, f := range res.Documents[0].Fields {
			v := f.text()
			if v == "" {
				continue
			}
			if barcodeFields[name] {
				v = valuenorm.RemoveSpaces(v)
			}
			out[name] = v
		}
	}

	for _, kv := range res.KeyValuePairs {
		if kv.Key == nil || kv.Value == nil {
			continue
		}
		key := strings.TrimSpace(kv.Key.Content)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(kv.Value.Content)
	}

	for _, t := range res.Tables {
		for _, c := range t.Cells {
			if c.Content == "" {
				continue
			}
			out["table_"+strconv.Itoa(c.RowIndex)+"_"+strconv.Itoa(c.ColumnIndex)] = c.Content
		}
	}

	for _, p := range res.Pages {
		for _, b := range p.Barcodes {
			if b.Value == "" {
				continue
			}
			switch normalizeKind(b.Kind) {
			case "upca":
				out["UPCA"] = valuenorm.RemoveSpaces(b.Value)
			case "datamatrix":
				out["DataMatrix"] = valuenorm.RemoveSpaces(b.Value)
			}
		}
	}

	return out
}

// barcodeKinds 结果中出现的条码类型（调试日志用）
func barcodeKinds(res *analyzeResult) []string {
	if res == nil {
		return nil
	}
	var kinds []string
	for _, p := range res.Pages {
		for _, b := range p.Barcodes {
			if b.Kind != "" {
				kinds = append(kinds, b.Kind)
			}
		}
	}
	return kinds
}
