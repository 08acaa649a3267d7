package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	prebuiltPrefix     = "prebuilt-"
	unnamedProjectName = "Unnamed Project"
)

// Model 服务端注册的提取模型
type Model struct {
	ModelID         string            `json:"modelId"`
	Description     string            `json:"description,omitempty"`
	CreatedDateTime string            `json:"createdDateTime,omitempty"`
	Tags            map[string]string `json:"tags,omitempty"`
}

// IsPrebuilt 是否为服务内置模型
func (m Model) IsPrebuilt() bool {
	return strings.HasPrefix(m.ModelID, prebuiltPrefix)
}

// ProjectID 标签 projectId 或 project-id
func (m Model) ProjectID() string {
	if v := m.Tags["projectId"]; v != "" {
		return v
	}
	return m.Tags["project-id"]
}

// ProjectName 标签 projectName 或 project-name，缺省 Unnamed Project
func (m Model) ProjectName() string {
	if v := m.Tags["projectName"]; v != "" {
		return v
	}
	if v := m.Tags["project-name"]; v != "" {
		return v
	}
	return unnamedProjectName
}

// Project 由自定义模型标签推导的项目
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Catalog 模型目录
type Catalog struct {
	All      []Model `json:"allModels"`
	Custom   []Model `json:"customModels"`
	Prebuilt []Model `json:"prebuiltModels"`
}

// NewCatalog 按 prebuilt- 前缀拆分模型
func NewCatalog(models []Model) *Catalog {
	c := &Catalog{
		All:      models,
		Custom:   make([]Model, 0, len(models)),
		Prebuilt: make([]Model, 0),
	}
	for _, m := range models {
		if m.IsPrebuilt() {
			c.Prebuilt = append(c.Prebuilt, m)
		} else {
			c.Custom = append(c.Custom, m)
		}
	}
	return c
}

// Projects 自定义模型中的项目（按 ID 去重，保留首次出现顺序，名称取最后一次）
func (c *Catalog) Projects() []Project {
	index := make(map[string]int)
	projects := make([]Project, 0)
	for _, m := range c.Custom {
		id := m.ProjectID()
		if id == "" {
			continue
		}
		if i, ok := index[id]; ok {
			projects[i].Name = m.ProjectName()
			continue
		}
		index[id] = len(projects)
		projects = append(projects, Project{ID: id, Name: m.ProjectName()})
	}
	return projects
}

// ForProject 属于项目的自定义模型：标签匹配或模型 ID 包含项目 ID
func (c *Catalog) ForProject(projectID string) []Model {
	if projectID == "" {
		return c.Custom
	}
	out := make([]Model, 0)
	for _, m := range c.Custom {
		if m.Tags["projectId"] == projectID ||
			m.Tags["project-id"] == projectID ||
			strings.Contains(m.ModelID, projectID) {
			out = append(out, m)
		}
	}
	return out
}

// ListModels 拉取服务端模型列表
func (c *AzureClient) ListModels(ctx context.Context) (*Catalog, error) {
	u := fmt.Sprintf("%s/documentintelligence/documentModels?api-version=%s",
		c.endpoint, url.QueryEscape(c.opts.ModelsAPIVersion))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Value []Model `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	return NewCatalog(body.Value), nil
}
