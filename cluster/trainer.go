package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/feature"
	"github.com/rushteam/bookrec/metrics"
	"github.com/rushteam/bookrec/pkg/dsl"
)

// Trainer 从目录训练聚类模型并发布产物。
type Trainer struct {
	catalog core.Catalog
	store   ArtifactStore
	filter  *dsl.ItemFilter
	seed    int64
	maxK    int
	now     func() time.Time
	logger  zerolog.Logger
}

// TrainerOption Trainer 配置选项
type TrainerOption func(*Trainer)

// WithFilter 用 CEL 表达式进一步限定训练集
func WithFilter(f *dsl.ItemFilter) TrainerOption {
	return func(t *Trainer) {
		t.filter = f
	}
}

// WithSeed 覆盖随机种子
func WithSeed(seed int64) TrainerOption {
	return func(t *Trainer) {
		t.seed = seed
	}
}

// WithMaxClusters 覆盖簇数上限，不能超过 core.MaxClusters
func WithMaxClusters(k int) TrainerOption {
	return func(t *Trainer) {
		if k > 0 && k <= core.MaxClusters {
			t.maxK = k
		}
	}
}

// WithTrainerClock 替换时钟（测试用）
func WithTrainerClock(now func() time.Time) TrainerOption {
	return func(t *Trainer) {
		t.now = now
	}
}

// WithTrainerLogger 设置日志
func WithTrainerLogger(logger zerolog.Logger) TrainerOption {
	return func(t *Trainer) {
		t.logger = logger
	}
}

// NewTrainer 创建训练器。
func NewTrainer(catalog core.Catalog, store ArtifactStore, opts ...TrainerOption) *Trainer {
	t := &Trainer{
		catalog: catalog,
		store:   store,
		seed:    core.ClusterSeed,
		maxK:    core.MaxClusters,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With().Str("component", "cluster_trainer").Logger()
	return t
}

// Train 训练并保存新产物。
//
// 没有可训练物品时返回 core.ErrEmptyCatalog，且不创建、不覆盖已有产物。
func (t *Trainer) Train(ctx context.Context) (*Artifact, error) {
	start := time.Now()
	a, err := t.train(ctx)
	switch {
	case err == nil:
		metrics.RecordTraining("ok", time.Since(start))
		t.logger.Info().Str("artifact_id", a.ID).Int("items", len(a.BookIDs)).Int("k", a.K()).
			Dur("took", time.Since(start)).Msg("cluster model trained")
	case errors.Is(err, core.ErrEmptyCatalog):
		metrics.RecordTraining("empty", time.Since(start))
		t.logger.Warn().Msg("no trainable items, keeping existing artifact")
	default:
		metrics.RecordTraining("error", time.Since(start))
		t.logger.Error().Err(err).Msg("cluster model training failed")
	}
	return a, err
}

func (t *Trainer) train(ctx context.Context) (*Artifact, error) {
	items, err := t.catalog.ListItems(ctx, core.ListFilter{Kinds: []core.Kind{core.KindCatalog}})
	if err != nil {
		return nil, core.WrapError(core.ErrCatalogUnavailable, err)
	}

	ids := make([]int64, 0, len(items))
	features := make([]string, 0, len(items))
	for _, it := range items {
		if !it.HasTextAttributes() {
			continue
		}
		ok, err := t.filter.Match(it)
		if err != nil {
			t.logger.Warn().Err(err).Int64("item_id", it.ID).Msg("filter evaluation failed, item skipped")
			continue
		}
		if !ok {
			continue
		}
		ids = append(ids, it.ID)
		features = append(features, it.TextFeature())
	}
	if len(ids) == 0 {
		return nil, core.ErrEmptyCatalog
	}

	vec := &feature.TfidfVectorizer{}
	if err := vec.Fit(features); err != nil {
		return nil, err
	}

	k := min(t.maxK, len(ids))
	km := NewKMeans(k, t.seed)
	if err := km.Fit(vec.TransformAll(features)); err != nil {
		return nil, fmt.Errorf("fitting kmeans: %w", err)
	}

	a := &Artifact{
		Version:    ArtifactVersion,
		ID:         uuid.NewString(),
		TrainedAt:  t.now().UTC(),
		Vectorizer: vec,
		Centroids:  km.Centroids,
		BookIDs:    ids,
		Features:   features,
	}
	if err := t.store.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("saving artifact: %w", err)
	}
	return a, nil
}
