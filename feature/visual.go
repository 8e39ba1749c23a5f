package feature

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/metrics"
)

// Extraction 是一次视觉特征抽取的结果。
// Outcome 非 OK 时 Vector 为 nil。
type Extraction struct {
	Vector  []float64
	Outcome core.Outcome
}

// VisualExtractor 串联 ImageLoader 与 ImageEmbedder。
// 任何失败（网络、文件、解码、模型）都转成 StatusFeatureUnavailable，不返回 error。
type VisualExtractor struct {
	loader   *ImageLoader
	embedder core.ImageEmbedder
	logger   zerolog.Logger
}

// NewVisualExtractor 创建视觉特征抽取器。
func NewVisualExtractor(loader *ImageLoader, embedder core.ImageEmbedder, logger zerolog.Logger) *VisualExtractor {
	if loader == nil {
		loader = NewImageLoader()
	}
	return &VisualExtractor{
		loader:   loader,
		embedder: embedder,
		logger:   logger.With().Str("component", "visual_extractor").Str("embedder", embedder.Name()).Logger(),
	}
}

// Embedder 返回底层嵌入模型。
func (x *VisualExtractor) Embedder() core.ImageEmbedder {
	return x.embedder
}

// Extract 抽取图片的视觉特征向量。
func (x *VisualExtractor) Extract(ctx context.Context, src ImageSource) Extraction {
	img, err := x.loader.Load(ctx, src)
	if err != nil {
		return x.fail("load", src, err)
	}

	vec, err := x.embedder.Embed(ctx, img)
	if err != nil {
		return x.fail("embed", src, err)
	}
	if !ValidVector(vec) {
		return x.fail("embed", src, core.ErrInvalidVector)
	}
	return Extraction{Vector: vec, Outcome: core.OK()}
}

func (x *VisualExtractor) fail(stage string, src ImageSource, err error) Extraction {
	metrics.ExtractionFailures.WithLabelValues(stage).Inc()
	x.logger.Warn().Err(err).Str("stage", stage).Str("source", src.String()).Msg("visual feature unavailable")
	wrapped := core.WrapError(core.ErrFeatureUnavailable, err)
	return Extraction{Outcome: core.Degrade(core.StatusFeatureUnavailable, wrapped.Error())}
}

// ValidVector 向量非空、不含 NaN/Inf 且范数不为 0。
func ValidVector(v []float64) bool {
	if len(v) == 0 {
		return false
	}
	var sum float64
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
		sum += x * x
	}
	return sum > 0
}
