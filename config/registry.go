package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/feature"
)

// EmbedderBuilder 根据视觉配置构建 core.ImageEmbedder。
// 自定义模型在 init 中调用 RegisterEmbedder(name, builder) 即可通过 visual.embedder 选用。
type EmbedderBuilder func(cfg VisualConfig, logger zerolog.Logger) (core.ImageEmbedder, error)

var (
	embedders   = make(map[string]EmbedderBuilder)
	embeddersMu sync.RWMutex
)

func init() {
	RegisterEmbedder("grid", buildGridEmbedder)
	RegisterEmbedder("serving", buildServingEmbedder)
}

// RegisterEmbedder 注册一种视觉模型；同名覆盖。
func RegisterEmbedder(name string, builder EmbedderBuilder) {
	if name == "" || builder == nil {
		return
	}
	embeddersMu.Lock()
	defer embeddersMu.Unlock()
	embedders[name] = builder
}

// SupportedEmbedders 返回已注册的视觉模型名（排序），用于错误提示。
func SupportedEmbedders() []string {
	embeddersMu.RLock()
	defer embeddersMu.RUnlock()
	names := make([]string, 0, len(embedders))
	for name := range embedders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func embedderRegistered(name string) bool {
	embeddersMu.RLock()
	defer embeddersMu.RUnlock()
	_, ok := embedders[name]
	return ok
}

// BuildEmbedder 按 cfg.Embedder 构建视觉模型。
func BuildEmbedder(cfg VisualConfig, logger zerolog.Logger) (core.ImageEmbedder, error) {
	embeddersMu.RLock()
	builder, ok := embedders[cfg.Embedder]
	embeddersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported embedder %q (supported: %v)", cfg.Embedder, SupportedEmbedders())
	}
	return builder(cfg, logger)
}

func buildGridEmbedder(VisualConfig, zerolog.Logger) (core.ImageEmbedder, error) {
	return feature.NewGridEmbedder(), nil
}

func buildServingEmbedder(cfg VisualConfig, logger zerolog.Logger) (core.ImageEmbedder, error) {
	if cfg.Endpoint == "" || cfg.ModelName == "" {
		return nil, fmt.Errorf("serving embedder requires endpoint and model_name")
	}
	opts := []feature.ServingOption{feature.WithServingLogger(logger)}
	if cfg.Protocol != "" {
		opts = append(opts, feature.WithServingProtocol(cfg.Protocol))
	}
	if cfg.ModelVersion != "" {
		opts = append(opts, feature.WithServingVersion(cfg.ModelVersion))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, feature.WithServingTimeout(cfg.Timeout))
	}
	if cfg.Dimension > 0 {
		opts = append(opts, feature.WithServingDimension(cfg.Dimension))
	}
	return feature.NewServingEmbedder(cfg.Endpoint, cfg.ModelName, opts...), nil
}
