package valuenorm

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/Spring-Family-IT/aiqc-spring/internal/mapping"
)

// NotAvailable 提取服务对缺失值使用的占位
const NotAvailable = "NA"

var whitespace = regexp.MustCompile(`\s+`)

// unitSuffixes 参考列 -> 需要补齐的单位后缀（精确匹配判断是否已存在）
var unitSuffixes = map[string]string{
	mapping.ColumnPieceCount: " pcs/pzs",
}

// barcodeAliases 小写键名 -> 规范字段名
var barcodeAliases = map[string]string{
	"barcodes_barcode":    "UPCA",
	"barcodes_datamatrix": "DataMatrix",
	"upca":                "UPCA",
	"datamatrix":          "DataMatrix",
	"barcode":             "Barcode",
}

// NormalizeExpected 参考值的列级规范化（单位后缀）
func NormalizeExpected(column, value string) string {
	suffix, ok := unitSuffixes[column]
	if !ok {
		return value
	}
	trimmed := strings.TrimSpace(value)
	if strings.HasSuffix(trimmed, suffix) {
		return value
	}
	return trimmed + suffix
}

// ApplyRule 应用字段特殊规则；参考值与提取值两侧都应调用
func ApplyRule(rule mapping.SpecialRule, value string) string {
	if rule.RemoveSpaces {
		value = RemoveSpaces(value)
	}
	if rule.ToLowerCase {
		value = strings.ToLower(value)
	}
	return value
}

// RemoveSpaces 去除全部空白字符
func RemoveSpaces(value string) string {
	return whitespace.ReplaceAllString(value, "")
}

// IsMissing 空、纯空白或 NA 视为缺失
func IsMissing(value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || strings.EqualFold(v, NotAvailable)
}

// EqualFold Unicode 大小写无关比较
func EqualFold(a, b string) bool {
	// Caser 有状态，不能跨 goroutine 共享
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}

// CanonicalizeBarcodes 将遗留条码键合并到规范键（UPCA/DataMatrix/Barcode）
// 规范键已有有效值时保留原值，仅当其缺失、为空或为 NA 时才用遗留值填充；遗留键总被移除
func CanonicalizeBarcodes(fields map[string]string) map[string]string {
	if fields == nil {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		canonical, ok := barcodeAliases[strings.ToLower(key)]
		if !ok || key == canonical {
			continue
		}
		value := out[key]
		delete(out, key)

		current, exists := out[canonical]
		if exists && current != "" && current != NotAvailable {
			continue
		}
		if value != "" && value != NotAvailable {
			out[canonical] = value
		}
	}
	return out
}
