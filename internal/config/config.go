package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	envAzureKey      = "AZURE_DOCUMENT_INTELLIGENCE_KEY"
	envAzureEndpoint = "AZURE_DOCUMENT_INTELLIGENCE_ENDPOINT"
)

// AppConfig 应用配置
type AppConfig struct {
	Server     ServerConfig     `toml:"server"`
	Data       DataConfig       `toml:"data"`
	Log        LogConfig        `toml:"log"`
	Extraction ExtractionConfig `toml:"extraction"`
	Batch      BatchConfig      `toml:"batch"`
	Mapping    MappingConfig    `toml:"mapping"`
	Sheet      SheetConfig      `toml:"sheet"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port    int  `toml:"port"`
	DevMode bool `toml:"dev_mode"`
}

// DataConfig 数据配置
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// LogConfig 日志配置
type LogConfig struct {
	Mode string `toml:"mode"` // development/production
}

// ExtractionConfig 文档分析服务配置
type ExtractionConfig struct {
	Endpoint          string  `toml:"endpoint"`
	APIKey            string  `toml:"api_key"`
	APIKeyEnv         string  `toml:"api_key_env"`
	APIVersion        string  `toml:"api_version"`
	PollIntervalMS    int     `toml:"poll_interval_ms"`
	MaxPollAttempts   int     `toml:"max_poll_attempts"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// BatchConfig 批处理节奏配置
type BatchConfig struct {
	PacingSeconds   int `toml:"pacing_seconds"`
	CooldownSeconds int `toml:"cooldown_seconds"`
}

// MappingConfig 字段映射配置
type MappingConfig struct {
	DefaultModel      string `toml:"default_model"`
	OverridesPath     string `toml:"overrides_path"`
	ListPolicy        string `toml:"list_policy"`        // lenient/strict
	DescriptionPolicy string `toml:"description_policy"` // exact/contains
}

// SheetConfig 参考表格式配置
type SheetConfig struct {
	HeaderRow       int               `toml:"header_row"`
	DataRow         int               `toml:"data_row"`
	ColumnOverrides map[string]string `toml:"column_overrides"` // 列索引 -> 强制列名
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	PortSpecified bool
	ConfigPath    string
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:    20262,
			DevMode: false,
		},
		Data: DataConfig{
			DataDir: "data",
		},
		Log: LogConfig{
			Mode: "development",
		},
		Extraction: ExtractionConfig{
			APIKeyEnv:         envAzureKey,
			APIVersion:        "2023-07-31",
			PollIntervalMS:    2000,
			MaxPollAttempts:   30,
			RequestsPerSecond: 1,
			TimeoutSeconds:    60,
		},
		Batch: BatchConfig{
			PacingSeconds:   15,
			CooldownSeconds: 30,
		},
		Mapping: MappingConfig{
			DefaultModel:      "Model_PKG_v2_Combined",
			ListPolicy:        "lenient",
			DescriptionPolicy: "exact",
		},
		Sheet: SheetConfig{
			HeaderRow: 3,
			DataRow:   4,
			ColumnOverrides: map[string]string{
				"15": "Description",
			},
		},
	}
}

// PollInterval 轮询间隔
func (c ExtractionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Timeout 单次 HTTP 请求超时
func (c ExtractionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Pacing 文档间固定间隔
func (c BatchConfig) Pacing() time.Duration {
	return time.Duration(c.PacingSeconds) * time.Second
}

// Cooldown 限流后的额外冷却
func (c BatchConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// Overrides 将列覆盖配置转换为列索引映射，非法索引被忽略
func (c SheetConfig) Overrides() map[int]string {
	out := make(map[int]string, len(c.ColumnOverrides))
	for k, v := range c.ColumnOverrides {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 || v == "" {
			continue
		}
		out[idx] = v
	}
	return out
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverAny, ok := raw["server"]
	if !ok {
		return false
	}

	serverMap, ok := serverAny.(map[string]any)
	if !ok {
		return false
	}

	_, ok = serverMap["port"]
	return ok
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// LoadConfigWithInfo 从可执行文件同目录的 config.toml 加载配置并返回元信息
func LoadConfigWithInfo() (*AppConfig, LoadConfigInfo, error) {
	exeDir, err := GetExeDir()
	if err != nil {
		// 无法获取可执行文件目录，使用当前目录
		exeDir = "."
	}
	return LoadFile(filepath.Join(exeDir, "config.toml"))
}

// LoadFile 从指定路径加载配置；文件不存在时返回默认配置
func LoadFile(configPath string) (*AppConfig, LoadConfigInfo, error) {
	info := LoadConfigInfo{ConfigPath: configPath}
	config := DefaultConfig()

	// .env 中的密钥不覆盖已存在的环境变量
	_ = godotenv.Load(filepath.Join(filepath.Dir(configPath), ".env"))

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, info, err
		}
		// 配置文件不存在，使用默认配置
		applyEnv(config)
		return config, info, nil
	}

	info.PortSpecified = isPortSpecifiedInToml(data)

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, info, err
	}

	applyEnv(config)
	return config, info, nil
}

// applyEnv 环境变量覆盖（密钥不建议写入配置文件）
func applyEnv(config *AppConfig) {
	if v := os.Getenv(envAzureEndpoint); v != "" {
		config.Extraction.Endpoint = v
	}
	keyEnv := config.Extraction.APIKeyEnv
	if keyEnv == "" {
		keyEnv = envAzureKey
	}
	if v := os.Getenv(keyEnv); v != "" {
		config.Extraction.APIKey = v
	}
}

// EnsureDataDir 确保数据目录存在
// 相对路径以可执行文件所在目录为基准
func EnsureDataDir(config *AppConfig) (string, error) {
	dataDir := config.Data.DataDir
	if !filepath.IsAbs(dataDir) {
		exeDir, err := GetExeDir()
		if err != nil {
			exeDir = "."
		}
		dataDir = filepath.Join(exeDir, dataDir)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}
