package mapping

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyTarget 映射右侧为空
var ErrEmptyTarget = errors.New("mapping target must name at least one field")

// Target 参考列对应的提取字段：单个字段或有序字段列表
// 列表顺序决定展开后的输出顺序，而非匹配优先级
type Target struct {
	fields []string
	list   bool
}

// Single 单字段映射
func Single(fieldID string) Target {
	return Target{fields: []string{fieldID}}
}

// List 多字段映射（同一属性印刷在多个位置）
func List(fieldIDs ...string) Target {
	return Target{fields: append([]string(nil), fieldIDs...), list: true}
}

// IsList 是否为列表映射
func (t Target) IsList() bool { return t.list }

// Fields 返回字段副本
func (t Target) Fields() []string { return append([]string(nil), t.fields...) }

// Field 单字段映射的字段名
func (t Target) Field() string {
	if len(t.fields) == 0 {
		return ""
	}
	return t.fields[0]
}

func (t Target) validate() error {
	if len(t.fields) == 0 {
		return ErrEmptyTarget
	}
	for _, f := range t.fields {
		if strings.TrimSpace(f) == "" {
			return ErrEmptyTarget
		}
	}
	return nil
}

// SpecialRule 提取字段的比较规则
type SpecialRule struct {
	RemoveSpaces bool `yaml:"removeSpaces" json:"removeSpaces,omitempty"`
	ToLowerCase  bool `yaml:"toLowerCase" json:"toLowerCase,omitempty"`
}

// ColumnMapping 参考列 -> 提取字段
type ColumnMapping struct {
	Column string
	Target Target
}

// FieldMapping 某一提取模型版本的映射表
type FieldMapping struct {
	ModelID      string
	Columns      []ColumnMapping
	SpecialRules map[string]SpecialRule

	index map[string]int
}

// NewFieldMapping 构建映射表；列名重复或目标为空时返回错误
func NewFieldMapping(modelID string, columns []ColumnMapping, rules map[string]SpecialRule) (*FieldMapping, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, errors.New("model id is required")
	}
	m := &FieldMapping{
		ModelID:      modelID,
		Columns:      make([]ColumnMapping, 0, len(columns)),
		SpecialRules: make(map[string]SpecialRule, len(rules)),
		index:        make(map[string]int, len(columns)),
	}
	for _, c := range columns {
		if err := c.Target.validate(); err != nil {
			return nil, fmt.Errorf("model %s column %q: %w", modelID, c.Column, err)
		}
		if _, dup := m.index[c.Column]; dup {
			return nil, fmt.Errorf("model %s: duplicate column %q", modelID, c.Column)
		}
		m.index[c.Column] = len(m.Columns)
		m.Columns = append(m.Columns, c)
	}
	for k, v := range rules {
		m.SpecialRules[k] = v
	}
	return m, nil
}

func mustFieldMapping(modelID string, columns []ColumnMapping, rules map[string]SpecialRule) *FieldMapping {
	m, err := NewFieldMapping(modelID, columns, rules)
	if err != nil {
		panic(err)
	}
	return m
}

// Lookup 查找参考列的映射
func (m *FieldMapping) Lookup(column string) (Target, bool) {
	i, ok := m.index[column]
	if !ok {
		return Target{}, false
	}
	return m.Columns[i].Target, true
}

// Rule 提取字段的特殊规则；未配置返回零值
func (m *FieldMapping) Rule(fieldID string) SpecialRule {
	return m.SpecialRules[fieldID]
}

// ColumnNames 按定义顺序返回参考列名
func (m *FieldMapping) ColumnNames() []string {
	out := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		out[i] = c.Column
	}
	return out
}
