package compare

import (
	"fmt"
	"strings"

	"github.com/Spring-Family-IT/aiqc-spring/internal/mapping"
	"github.com/Spring-Family-IT/aiqc-spring/internal/sheet"
	"github.com/Spring-Family-IT/aiqc-spring/internal/valuenorm"
)

// Status 单字段比对结论
type Status string

const (
	StatusCorrect   Status = "correct"
	StatusIncorrect Status = "incorrect"
	StatusNotFound  Status = "not-found"
)

// NotFoundInPDF 提取值缺失时展示的 PDF 值
const NotFoundInPDF = "Not found in PDF"

// ListPolicy 列表映射中缺失字段的处理策略
type ListPolicy string

const (
	// ListLenient 缺失的摆放位置视为不适用，不输出结论
	ListLenient ListPolicy = "lenient"
	// ListStrict 每个缺失位置都输出 not-found
	ListStrict ListPolicy = "strict"
)

// ParseListPolicy 未知取值回退到 lenient
func ParseListPolicy(s string) ListPolicy {
	if ListPolicy(strings.ToLower(strings.TrimSpace(s))) == ListStrict {
		return ListStrict
	}
	return ListLenient
}

// SelectedInput 待核对的参考列及其期望值
type SelectedInput struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Verdict 单字段比对结果
type Verdict struct {
	Field        string `json:"field"`
	PDFValue     string `json:"pdfValue"`
	ExcelValue   string `json:"excelValue"`
	Status       Status `json:"status"`
	MatchDetails string `json:"matchDetails,omitempty"`
}

// Summary 结论汇总
type Summary struct {
	Total     int `json:"total"`
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`
	NotFound  int `json:"notFound"`
}

// Add 累加另一份汇总
func (s *Summary) Add(o Summary) {
	s.Total += o.Total
	s.Correct += o.Correct
	s.Incorrect += o.Incorrect
	s.NotFound += o.NotFound
}

// Summarize 统计结论
func Summarize(verdicts []Verdict) Summary {
	s := Summary{Total: len(verdicts)}
	for _, v := range verdicts {
		switch v.Status {
		case StatusCorrect:
			s.Correct++
		case StatusIncorrect:
			s.Incorrect++
		case StatusNotFound:
			s.NotFound++
		}
	}
	return s
}

// Comparator 字段比对器
type Comparator struct {
	policy ListPolicy
}

// New 创建比对器；空策略为 lenient
func New(policy ListPolicy) *Comparator {
	if policy == "" {
		policy = ListLenient
	}
	return &Comparator{policy: policy}
}

// Policy 当前列表策略
func (c *Comparator) Policy() ListPolicy { return c.policy }

// CompareRow 以映射中全部有值的列为输入比对（批处理路径）
func (c *Comparator) CompareRow(row sheet.ReferenceRow, m *mapping.FieldMapping, extracted map[string]string) []Verdict {
	return c.Compare(BuildSelectedInputs(row, m), m, extracted)
}

// Compare 按输入顺序逐列比对；列表映射展开为每个提取字段一条结论
func (c *Comparator) Compare(inputs []SelectedInput, m *mapping.FieldMapping, extracted map[string]string) []Verdict {
	fields := valuenorm.CanonicalizeBarcodes(extracted)
	verdicts := make([]Verdict, 0, len(inputs))

	for _, in := range inputs {
		expected := valuenorm.NormalizeExpected(in.Column, in.Value)

		target, ok := m.Lookup(in.Column)
		if !ok {
			verdicts = append(verdicts, Verdict{
				Field:      in.Column,
				ExcelValue: expected,
				Status:     StatusNotFound,
			})
			continue
		}

		if !target.IsList() {
			verdicts = append(verdicts, c.single(in.Column, target.Field(), expected, m, fields))
			continue
		}

		for _, fieldID := range target.Fields() {
			label := fmt.Sprintf("%s (%s)", in.Column, fieldID)
			pdfValue := fields[fieldID]
			if valuenorm.IsMissing(pdfValue) {
				if c.policy == ListStrict {
					verdicts = append(verdicts, notFound(label, fieldID, expected))
				}
				continue
			}
			verdicts = append(verdicts, match(label, fieldID, pdfValue, expected, m))
		}
	}
	return verdicts
}

func (c *Comparator) single(column, fieldID, expected string, m *mapping.FieldMapping, fields map[string]string) Verdict {
	pdfValue := fields[fieldID]
	if strings.TrimSpace(pdfValue) == "" {
		return notFound(column, fieldID, expected)
	}
	return match(column, fieldID, pdfValue, expected, m)
}

func notFound(label, fieldID, expected string) Verdict {
	return Verdict{
		Field:        label,
		PDFValue:     NotFoundInPDF,
		ExcelValue:   expected,
		Status:       StatusNotFound,
		MatchDetails: "Expected Label: " + fieldID,
	}
}

// match 两侧同样应用特殊规则后大小写无关比较；展示原始 PDF 值
func match(label, fieldID, pdfValue, expected string, m *mapping.FieldMapping) Verdict {
	rule := m.Rule(fieldID)
	got := valuenorm.ApplyRule(rule, pdfValue)
	want := valuenorm.ApplyRule(rule, expected)

	status := StatusIncorrect
	if valuenorm.EqualFold(got, want) {
		status = StatusCorrect
	}
	return Verdict{
		Field:      label,
		PDFValue:   pdfValue,
		ExcelValue: expected,
		Status:     status,
	}
}

// BuildSelectedInputs 按映射列顺序取匹配行中非空的列，并做列级规范化
func BuildSelectedInputs(row sheet.ReferenceRow, m *mapping.FieldMapping) []SelectedInput {
	inputs := make([]SelectedInput, 0, len(m.Columns))
	for _, col := range m.Columns {
		if !row.Has(col.Column) {
			continue
		}
		inputs = append(inputs, SelectedInput{
			Column: col.Column,
			Value:  valuenorm.NormalizeExpected(col.Column, row.Text(col.Column)),
		})
	}
	return inputs
}
