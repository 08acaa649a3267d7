package filename

import (
	"regexp"
	"strings"
)

// DocumentType 包装类型
type DocumentType string

const (
	TypeMABox DocumentType = "MA-BOX"
	TypeSemi  DocumentType = "SEMI"
)

var pdfExt = regexp.MustCompile(`(?i)\.pdf$`)

// typeTokens 文件名第三段 -> 包装类型
var typeTokens = map[string]DocumentType{
	"MA": TypeMABox,
	"SA": TypeSemi,
}

// DocumentKey 由文件名解析出的主键三元组
type DocumentKey struct {
	SKU     string       `json:"sku"`
	Version string       `json:"version"`
	Type    DocumentType `json:"descriptionType"`
}

// ExpandTypeToken 将缩写（MA/SA，大小写不敏感）展开为包装类型；无法识别时原样大写返回
func ExpandTypeToken(token string) (DocumentType, bool) {
	t, ok := typeTokens[strings.ToUpper(strings.TrimSpace(token))]
	if ok {
		return t, true
	}
	return DocumentType(strings.ToUpper(strings.TrimSpace(token))), false
}

// Parse 解析形如 SKU_VERSION_TYPE_其他.pdf 的文件名
// 段数不足 4 或类型段无法识别时返回 false
func Parse(name string) (DocumentKey, bool) {
	base := pdfExt.ReplaceAllString(name, "")

	parts := strings.Split(base, "_")
	if len(parts) <= 3 {
		return DocumentKey{}, false
	}

	docType, ok := typeTokens[strings.ToUpper(parts[2])]
	if !ok {
		return DocumentKey{}, false
	}

	return DocumentKey{
		SKU:     parts[0],
		Version: parts[1],
		Type:    docType,
	}, true
}
