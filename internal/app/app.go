package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Spring-Family-IT/aiqc-spring/internal/compare"
	"github.com/Spring-Family-IT/aiqc-spring/internal/config"
	"github.com/Spring-Family-IT/aiqc-spring/internal/extraction"
	"github.com/Spring-Family-IT/aiqc-spring/internal/logger"
	"github.com/Spring-Family-IT/aiqc-spring/internal/mapping"
	"github.com/Spring-Family-IT/aiqc-spring/internal/resolver"
	"github.com/Spring-Family-IT/aiqc-spring/internal/sheet"
)

// Components 由配置组装的核对组件
type Components struct {
	Registry   *mapping.Registry
	Resolver   *resolver.Resolver
	Comparator *compare.Comparator
	Layout     sheet.Layout
	// Extractor 与 Client 在未配置提取服务时为 nil
	Extractor extraction.Service
	Client    *extraction.AzureClient
}

// Build 组装组件；提取服务未配置不视为错误
func Build(cfg *config.AppConfig) (*Components, error) {
	registry, err := mapping.LoadRegistry(cfg.Mapping.OverridesPath, cfg.Mapping.DefaultModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load field mappings: %w", err)
	}

	resOpts := resolver.DefaultOptions()
	resOpts.Policy = resolver.ParseDescriptionPolicy(cfg.Mapping.DescriptionPolicy)

	c := &Components{
		Registry:   registry,
		Resolver:   resolver.New(resOpts),
		Comparator: compare.New(compare.ParseListPolicy(cfg.Mapping.ListPolicy)),
		Layout:     Layout(cfg.Sheet),
	}

	client, err := extraction.NewAzureClient(extraction.OptionsFromConfig(cfg.Extraction))
	switch {
	case errors.Is(err, extraction.ErrNotConfigured):
		logger.Warn("extraction service not configured; compare and batch are disabled")
	case err != nil:
		return nil, err
	default:
		c.Client = client
		c.Extractor = extraction.WithInspection(client)
	}

	logger.Info("components ready",
		zap.Strings("models", registry.Models()),
		zap.String("defaultModel", registry.Default().ModelID),
		zap.String("listPolicy", string(c.Comparator.Policy())),
		zap.String("descriptionPolicy", string(resOpts.Policy)),
		zap.Bool("extraction", c.Extractor != nil),
	)
	return c, nil
}

// Layout 参考表版式；未配置的部分取 SAP 模板
func Layout(c config.SheetConfig) sheet.Layout {
	layout := sheet.SAPLayout()
	if c.HeaderRow > 0 {
		layout.HeaderRow = c.HeaderRow
	}
	if c.DataRow > 0 {
		layout.DataRow = c.DataRow
	}
	if overrides := c.Overrides(); len(overrides) > 0 {
		layout.ColumnOverrides = overrides
	}
	return layout
}
