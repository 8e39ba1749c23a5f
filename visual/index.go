// Package visual 实现基于封面视觉特征的相似检索：索引构建、余弦相似度排序与特征预计算。
package visual

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/feature"
	"github.com/rushteam/bookrec/metrics"
	"github.com/rushteam/bookrec/pkg/dsl"
)

// Entry 是索引中的一条记录。
type Entry struct {
	Item   *core.CatalogItem `json:"item"`
	Vector []float64         `json:"vector"`
	Kind   core.Kind         `json:"kind"`
}

// Index 是一次构建得到的只读快照，构建完成后不再修改。
type Index struct {
	Entries []Entry   `json:"entries"`
	BuiltAt time.Time `json:"built_at"`
}

// Len 返回条目数。
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.Entries)
}

// Builder 从目录全量构建索引。
type Builder struct {
	catalog core.Catalog
	filter  *dsl.ItemFilter
	now     func() time.Time
	logger  zerolog.Logger
}

// BuilderOption Builder 配置选项
type BuilderOption func(*Builder)

// WithIndexFilter 用 CEL 表达式限定入索引的物品
func WithIndexFilter(f *dsl.ItemFilter) BuilderOption {
	return func(b *Builder) {
		b.filter = f
	}
}

// WithBuilderClock 替换时钟（测试用）
func WithBuilderClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder 创建索引构建器。
func NewBuilder(catalog core.Catalog, logger zerolog.Logger, opts ...BuilderOption) *Builder {
	b := &Builder{
		catalog: catalog,
		now:     time.Now,
		logger:  logger.With().Str("component", "visual_index").Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build 构建新索引：先平台上架物品，再在售的用户上架物品，只收录已有视觉向量的条目。
// 每次都生成全新集合，不修改任何已发布的索引。
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	start := time.Now()

	groups := []core.ListFilter{
		{Kinds: []core.Kind{core.KindCatalog}, RequireVisualFeatures: true},
		{Kinds: []core.Kind{core.KindPeer}, RequireVisualFeatures: true, OnlyAvailable: true},
	}

	idx := &Index{BuiltAt: b.now()}
	skipped := 0
	for _, filter := range groups {
		items, err := b.catalog.ListItems(ctx, filter)
		if err != nil {
			return nil, core.WrapError(core.ErrCatalogUnavailable, err)
		}
		for _, it := range items {
			if !feature.ValidVector(it.VisualFeatures) {
				skipped++
				b.logger.Warn().Str("ref", it.Ref()).Int("dim", len(it.VisualFeatures)).Msg("malformed visual features, entry skipped")
				continue
			}
			ok, err := b.filter.Match(it)
			if err != nil {
				b.logger.Warn().Err(err).Str("ref", it.Ref()).Msg("filter evaluation failed, entry skipped")
				skipped++
				continue
			}
			if !ok {
				continue
			}
			idx.Entries = append(idx.Entries, Entry{Item: it, Vector: it.VisualFeatures, Kind: it.Kind})
		}
	}

	if skipped > 0 {
		metrics.SkippedEntries.WithLabelValues("build").Add(float64(skipped))
	}
	metrics.RecordIndexBuild(len(idx.Entries), time.Since(start))
	b.logger.Debug().Int("entries", len(idx.Entries)).Int("skipped", skipped).Dur("took", time.Since(start)).Msg("visual index built")
	return idx, nil
}
