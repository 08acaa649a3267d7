package mapping

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"
)

// overrideFile 映射覆盖文件格式
//
//	default: Model_PKG_v2_Combined
//	models:
//	  - modelId: LP6
//	    mappings:
//	      "Communication no.": [SKU_Front, SKU_Back]
//	      "Product Age Classification": AgeMark
//	    specialRules:
//	      Barcode: {removeSpaces: true}
type overrideFile struct {
	Default string          `yaml:"default"`
	Models  []overrideModel `yaml:"models"`
}

type overrideModel struct {
	ModelID      string                 `yaml:"modelId"`
	Mappings     yaml.MapSlice          `yaml:"mappings"`
	SpecialRules map[string]SpecialRule `yaml:"specialRules"`
}

// ParseOverrides 解析 YAML 映射定义；mappings 保持文件中的列顺序
func ParseOverrides(r io.Reader) (defaultModel string, mappings []*FieldMapping, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, err
	}

	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return "", nil, fmt.Errorf("failed to parse mapping overrides: %w", err)
	}

	for _, om := range file.Models {
		columns := make([]ColumnMapping, 0, len(om.Mappings))
		for _, item := range om.Mappings {
			column, ok := item.Key.(string)
			if !ok {
				return "", nil, fmt.Errorf("model %s: column name %v is not a string", om.ModelID, item.Key)
			}
			target, err := targetFromYAML(item.Value)
			if err != nil {
				return "", nil, fmt.Errorf("model %s column %q: %w", om.ModelID, column, err)
			}
			columns = append(columns, ColumnMapping{Column: column, Target: target})
		}
		m, err := NewFieldMapping(om.ModelID, columns, om.SpecialRules)
		if err != nil {
			return "", nil, err
		}
		mappings = append(mappings, m)
	}
	return file.Default, mappings, nil
}

func targetFromYAML(v interface{}) (Target, error) {
	switch val := v.(type) {
	case string:
		return Single(val), nil
	case []interface{}:
		fields := make([]string, 0, len(val))
		for _, f := range val {
			s, ok := f.(string)
			if !ok {
				return Target{}, fmt.Errorf("field id %v is not a string", f)
			}
			fields = append(fields, s)
		}
		if len(fields) == 0 {
			return Target{}, ErrEmptyTarget
		}
		return List(fields...), nil
	default:
		return Target{}, fmt.Errorf("unsupported mapping value %T", v)
	}
}

// LoadRegistry 内置映射叠加覆盖文件；path 为空时仅使用内置映射
// defaultModel 为空时依次取覆盖文件中的 default 与内置默认
func LoadRegistry(path, defaultModel string) (*Registry, error) {
	mappings := []*FieldMapping{LP5Mapping(), PKGv2CombinedMapping()}

	fileDefault := ""
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open mapping overrides: %w", err)
		}
		defer f.Close()

		d, extra, err := ParseOverrides(f)
		if err != nil {
			return nil, err
		}
		fileDefault = d
		mappings = append(mappings, extra...)
	}

	if defaultModel == "" {
		defaultModel = fileDefault
	}
	if defaultModel == "" {
		defaultModel = DefaultModel
	}
	return NewRegistry(defaultModel, mappings...)
}
