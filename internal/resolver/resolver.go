package resolver

import (
	"fmt"
	"strings"

	"github.com/Spring-Family-IT/aiqc-spring/internal/filename"
	"github.com/Spring-Family-IT/aiqc-spring/internal/mapping"
	"github.com/Spring-Family-IT/aiqc-spring/internal/sheet"
)

// DescriptionPolicy 描述列匹配策略
type DescriptionPolicy string

const (
	// DescriptionExact 展开缩写后与类型严格相等
	DescriptionExact DescriptionPolicy = "exact"
	// DescriptionContains 描述列包含类型标记即可
	DescriptionContains DescriptionPolicy = "contains"
)

// ParseDescriptionPolicy 未知取值回退到 exact
func ParseDescriptionPolicy(s string) DescriptionPolicy {
	if DescriptionPolicy(strings.ToLower(strings.TrimSpace(s))) == DescriptionContains {
		return DescriptionContains
	}
	return DescriptionExact
}

// Stage 匹配中断的环节
type Stage string

const (
	StageSKU         Stage = "sku"
	StageVersion     Stage = "version"
	StageDescription Stage = "description"
)

// maxCandidates 诊断信息中保留的候选值数量
const maxCandidates = 5

// Options 主键列配置
type Options struct {
	SKUColumn         string
	VersionColumns    []string // 依次尝试：主版本列、备用版本列
	DescriptionColumn string
	Policy            DescriptionPolicy
}

// DefaultOptions SAP 导出表的主键列
func DefaultOptions() Options {
	return Options{
		SKUColumn:         mapping.ColumnSKU,
		VersionColumns:    []string{mapping.ColumnDependency, mapping.ColumnProductVersion},
		DescriptionColumn: mapping.ColumnDescription,
		Policy:            DescriptionExact,
	}
}

// Failure 未找到匹配行的诊断
type Failure struct {
	Key        filename.DocumentKey `json:"key"`
	Stage      Stage                `json:"stage"`
	Candidates []string             `json:"candidates,omitempty"`
}

func (f *Failure) Error() string {
	switch f.Stage {
	case StageSKU:
		return fmt.Sprintf("no row with SKU %q", f.Key.SKU)
	case StageVersion:
		return fmt.Sprintf("SKU %q found but no row with version %q (versions: %s)",
			f.Key.SKU, f.Key.Version, strings.Join(f.Candidates, ", "))
	default:
		return fmt.Sprintf("SKU %q version %q found but no row with description %s (descriptions: %s)",
			f.Key.SKU, f.Key.Version, f.Key.Type, strings.Join(f.Candidates, ", "))
	}
}

// Resolver 主键解析器
type Resolver struct {
	opts Options
}

// New 创建解析器；空配置项使用默认值
func New(opts Options) *Resolver {
	def := DefaultOptions()
	if opts.SKUColumn == "" {
		opts.SKUColumn = def.SKUColumn
	}
	if len(opts.VersionColumns) == 0 {
		opts.VersionColumns = def.VersionColumns
	}
	if opts.DescriptionColumn == "" {
		opts.DescriptionColumn = def.DescriptionColumn
	}
	if opts.Policy == "" {
		opts.Policy = def.Policy
	}
	return &Resolver{opts: opts}
}

// Resolve 返回第一条匹配行；表内重复不做校验
// 未匹配时返回 *Failure，标明 SKU/版本/描述中哪一环断开
func (r *Resolver) Resolve(key filename.DocumentKey, rows []sheet.ReferenceRow) (sheet.ReferenceRow, error) {
	var (
		skuHit       bool
		versionHit   bool
		versions     candidates
		descriptions candidates
	)

	for _, row := range rows {
		if row.Text(r.opts.SKUColumn) != key.SKU {
			continue
		}
		skuHit = true

		version := r.version(row)
		if !strings.EqualFold(version, key.Version) {
			versions.add(version)
			continue
		}
		versionHit = true

		desc := row.Text(r.opts.DescriptionColumn)
		if r.descriptionMatches(desc, key.Type) {
			return row, nil
		}
		descriptions.add(desc)
	}

	f := &Failure{Key: key}
	switch {
	case !skuHit:
		f.Stage = StageSKU
	case !versionHit:
		f.Stage = StageVersion
		f.Candidates = versions.list
	default:
		f.Stage = StageDescription
		f.Candidates = descriptions.list
	}
	return nil, f
}

// version 取第一个有值的版本列
func (r *Resolver) version(row sheet.ReferenceRow) string {
	for _, col := range r.opts.VersionColumns {
		if row.Has(col) {
			return row.Text(col)
		}
	}
	return ""
}

func (r *Resolver) descriptionMatches(desc string, want filename.DocumentType) bool {
	normalized := NormalizeDescription(desc)
	if r.opts.Policy == DescriptionContains {
		return strings.Contains(normalized, string(want))
	}
	return normalized == string(want)
}

// NormalizeDescription 大写并将缩写 MA/SA 展开为 MA-BOX/SEMI
func NormalizeDescription(desc string) string {
	d := strings.ToUpper(strings.TrimSpace(desc))
	if t, ok := filename.ExpandTypeToken(d); ok {
		return string(t)
	}
	return d
}

type candidates struct {
	list []string
}

func (c *candidates) add(v string) {
	if v == "" || len(c.list) >= maxCandidates {
		return
	}
	for _, existing := range c.list {
		if existing == v {
			return
		}
	}
	c.list = append(c.list, v)
}
