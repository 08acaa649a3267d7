package mapping

import (
	"fmt"
	"sort"
)

const (
	ModelLP5             = "LP5"
	ModelPKGv2Combined   = "Model_PKG_v2_Combined"
	DefaultModel         = ModelPKGv2Combined
	ColumnSKU            = "Communication no."
	ColumnAgeMark        = "Product Age Classification"
	ColumnDependency     = "Name of Dependency"
	ColumnProductVersion = "Product Version no."
	ColumnPieceCount     = "Piece count of FG"
	ColumnComponent      = "Component"
	ColumnItemNumber     = "Finished Goods Material Number"
	ColumnEAN            = "EAN/UPC"
	ColumnSuperDesign    = "Super Design"
	ColumnDescription    = "Description"
)

// barcodeRules 条码字段比较前去除空白
func barcodeRules() map[string]SpecialRule {
	return map[string]SpecialRule{
		"Barcode":    {RemoveSpaces: true},
		"UPCA":       {RemoveSpaces: true},
		"DataMatrix": {RemoveSpaces: true},
	}
}

// LP5Mapping LP5 模型映射
func LP5Mapping() *FieldMapping {
	return mustFieldMapping(ModelLP5, []ColumnMapping{
		{ColumnSKU, List("SKU_Front", "SKU_Left", "SKU_Right", "SKU_Top", "SKU_Bottom", "SKU_Back")},
		{ColumnAgeMark, Single("AgeMark")},
		{ColumnDependency, Single("Version")},
		{ColumnPieceCount, Single("PieceCount")},
		{ColumnComponent, List("Material Number_Info Box", "MaterialBottom", "MaterialSide")},
		{ColumnItemNumber, Single("ItemNumber")},
		{ColumnEAN, List("Barcode", "UPCA", "DataMatrix")},
	}, barcodeRules())
}

// PKGv2CombinedMapping Model_PKG_v2_Combined 模型映射（默认）
func PKGv2CombinedMapping() *FieldMapping {
	return mustFieldMapping(ModelPKGv2Combined, []ColumnMapping{
		{ColumnSKU, List(
			"SKU_Number_Front",
			"SKU_Number_Left",
			"SKU_Number_Right",
			"SKU_Number_Top",
			"SKU_Number_Bottom",
			"SKU_Number_Back",
		)},
		{ColumnAgeMark, Single("Age_Mark")},
		{ColumnDependency, Single("Version")},
		{ColumnPieceCount, Single("Piece_Count")},
		{ColumnComponent, List("Material_Number_MA", "Material_Number_Bottom", "Material_Number_SA_Flap")},
		{ColumnItemNumber, Single("Item_Number")},
		{ColumnEAN, List("Barcode", "UPCA", "DataMatrix")},
		{ColumnSuperDesign, Single("Super_Design")},
	}, barcodeRules())
}

// Registry 按模型 ID 选择映射表；构建后只读
type Registry struct {
	byModel  map[string]*FieldMapping
	fallback *FieldMapping
}

// NewRegistry 构建注册表；defaultModel 必须在 mappings 中
// 后出现的同名模型覆盖先出现的
func NewRegistry(defaultModel string, mappings ...*FieldMapping) (*Registry, error) {
	r := &Registry{byModel: make(map[string]*FieldMapping, len(mappings))}
	for _, m := range mappings {
		if m == nil {
			continue
		}
		r.byModel[m.ModelID] = m
	}
	fb, ok := r.byModel[defaultModel]
	if !ok {
		return nil, fmt.Errorf("default model %q has no mapping", defaultModel)
	}
	r.fallback = fb
	return r, nil
}

// Builtin 内置 LP5 与 Model_PKG_v2_Combined，默认后者
func Builtin() *Registry {
	r, err := NewRegistry(DefaultModel, LP5Mapping(), PKGv2CombinedMapping())
	if err != nil {
		panic(err)
	}
	return r
}

// Get 返回模型映射；未知模型回退到默认映射（模型 ID 可能漂移，不视为错误）
func (r *Registry) Get(modelID string) *FieldMapping {
	if m, ok := r.byModel[modelID]; ok {
		return m
	}
	return r.fallback
}

// Known 模型是否显式注册
func (r *Registry) Known(modelID string) bool {
	_, ok := r.byModel[modelID]
	return ok
}

// Default 默认映射
func (r *Registry) Default() *FieldMapping {
	return r.fallback
}

// Models 已注册模型 ID（排序）
func (r *Registry) Models() []string {
	out := make([]string, 0, len(r.byModel))
	for id := range r.byModel {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
