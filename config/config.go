// Package config 加载 YAML 配置并据此装配引擎组件。
//
// 使用方式：
//
//	cfg, err := config.Load("bookrec.yaml")
//	app, err := config.Build(cfg, logger)
//	defer app.Close()
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/pkg/logging"
)

// Config 引擎配置
type Config struct {
	Log       logging.Config  `yaml:"log"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Model     ModelConfig     `yaml:"model"`
	Cache     CacheConfig     `yaml:"cache"`
	Visual    VisualConfig    `yaml:"visual"`
	Training  TrainingConfig  `yaml:"training"`
	Recommend RecommendConfig `yaml:"recommend"`
}

// CatalogConfig 目录数据源
type CatalogConfig struct {
	// Driver: memory / sqlite
	Driver string `yaml:"driver" validate:"oneof=memory sqlite"`

	// DSN sqlite 数据源，例如 file:books.db?_busy_timeout=5000
	DSN string `yaml:"dsn" validate:"required_if=Driver sqlite"`

	// Migrate 启动时建表
	Migrate bool `yaml:"migrate"`

	// Seed JSON 物品列表文件，启动时导入目录
	Seed string `yaml:"seed"`
}

// ModelConfig 聚类模型产物
type ModelConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// CacheConfig 检索缓存后端
type CacheConfig struct {
	// Backend: memory / redis / none
	Backend string `yaml:"backend" validate:"oneof=memory redis none"`

	Addr   string `yaml:"addr" validate:"required_if=Backend redis"`
	DB     int    `yaml:"db" validate:"min=0"`
	Prefix string `yaml:"prefix"`

	// CleanupInterval memory 后端的过期清理周期，0 表示不清理
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"min=0"`
}

// VisualConfig 视觉特征
type VisualConfig struct {
	// Embedder: grid / serving，可通过 RegisterEmbedder 扩展
	Embedder string `yaml:"embedder" validate:"required"`

	Endpoint     string        `yaml:"endpoint" validate:"required_if=Embedder serving,omitempty,url"`
	ModelName    string        `yaml:"model_name" validate:"required_if=Embedder serving"`
	ModelVersion string        `yaml:"model_version"`
	Protocol     string        `yaml:"protocol" validate:"omitempty,oneof=torchserve kserve_v2"`
	Dimension    int           `yaml:"dimension" validate:"min=0"`
	Timeout      time.Duration `yaml:"timeout" validate:"min=0"`

	FetchTimeout  time.Duration `yaml:"fetch_timeout" validate:"min=0"`
	MaxImageBytes int64         `yaml:"max_image_bytes" validate:"min=0"`

	// Concurrency 预计算并发数
	Concurrency int `yaml:"concurrency" validate:"min=1"`

	// Filter CEL 表达式，限定进入视觉索引的物品
	Filter string `yaml:"filter"`
}

// TrainingConfig 聚类训练
type TrainingConfig struct {
	MaxClusters int   `yaml:"max_clusters" validate:"min=1"`
	Seed        int64 `yaml:"seed"`

	// Filter CEL 表达式，限定参与训练的物品
	Filter string `yaml:"filter"`
}

// RecommendConfig 查询参数，实现 core.RecommendConfig。
type RecommendConfig struct {
	TopN      int           `yaml:"top_n" validate:"min=1"`
	ResultTTL time.Duration `yaml:"result_ttl" validate:"min=0"`
	IndexTTL  time.Duration `yaml:"index_ttl" validate:"min=0"`
}

func (c RecommendConfig) DefaultTopN() int                 { return c.TopN }
func (c RecommendConfig) RecommendationTTL() time.Duration { return c.ResultTTL }
func (c RecommendConfig) VisualIndexTTL() time.Duration    { return c.IndexTTL }

var _ core.RecommendConfig = RecommendConfig{}

// Default 返回默认配置：内存目录、内存缓存、进程内视觉描述子。
func Default() *Config {
	return &Config{
		Log:     logging.Config{Level: "info", Format: "json"},
		Catalog: CatalogConfig{Driver: "memory"},
		Model:   ModelConfig{Path: "data/recommender.json.gz"},
		Cache:   CacheConfig{Backend: "memory", CleanupInterval: time.Minute},
		Visual: VisualConfig{
			Embedder:     "grid",
			Protocol:     "torchserve",
			Timeout:      5 * time.Second,
			FetchTimeout: core.ImageFetchTimeout,
			Concurrency:  4,
		},
		Training: TrainingConfig{MaxClusters: core.MaxClusters, Seed: core.ClusterSeed},
		Recommend: RecommendConfig{
			TopN:      core.DefaultTopN,
			ResultTTL: core.RecommendationTTL,
			IndexTTL:  core.VisualIndexTTL,
		},
	}
}

// Load 读取 YAML 文件，未出现的字段保留默认值。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容并校验。
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate 校验配置，错误信息列出所有不合法字段。
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		if !embedderRegistered(c.Visual.Embedder) {
			return fmt.Errorf("invalid config: unsupported embedder %q (supported: %v)", c.Visual.Embedder, SupportedEmbedders())
		}
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
