// Package recommend 编排聚类推荐与视觉检索，并实现统一的降级策略。
//
// 所有查询方法都不返回 error：任何内部失败都降级为默认列表（目录默认顺序的前 topN 个平台物品，
// 按物品推荐时排除查询物品本身），
// 失败原因通过 core.Outcome 结构化地返回给调用方。
package recommend

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rushteam/bookrec/cache"
	"github.com/rushteam/bookrec/cluster"
	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/feature"
	"github.com/rushteam/bookrec/metrics"
	"github.com/rushteam/bookrec/visual"
)

// 指标中的查询方式
const (
	methodItem   = "item"
	methodVisual = "visual"
	methodVector = "vector"
)

// Deps 服务依赖，均由调用方创建并拥有生命周期。
type Deps struct {
	Catalog   core.Catalog
	Model     *cluster.ModelHandle
	Index     *visual.Builder
	Extractor *feature.VisualExtractor
	Cache     *cache.RetrievalCache
}

// Service 推荐服务。
type Service struct {
	catalog     core.Catalog
	model       *cluster.ModelHandle
	recommender *cluster.Recommender
	builder     *visual.Builder
	extractor   *feature.VisualExtractor
	cache       *cache.RetrievalCache
	cfg         core.RecommendConfig
	indexGroup  singleflight.Group
	logger      zerolog.Logger
}

// Option Service 配置选项
type Option func(*Service)

// WithConfig 覆盖默认运行参数
func WithConfig(cfg core.RecommendConfig) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// WithLogger 设置日志
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New 创建推荐服务。
func New(deps Deps, opts ...Option) *Service {
	s := &Service{
		catalog:   deps.Catalog,
		model:     deps.Model,
		builder:   deps.Index,
		extractor: deps.Extractor,
		cache:     deps.Cache,
		cfg:       &core.DefaultRecommendConfig{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recommender = cluster.NewRecommender(s.model, s.catalog, s.logger)
	s.logger = s.logger.With().Str("component", "recommend").Logger()
	return s
}

// 缓存中的结果连同 Outcome 一起保存，命中时调用方仍能知道这是否是默认列表。
type cachedItems struct {
	Items   []*core.CatalogItem `json:"items"`
	Outcome core.Outcome        `json:"outcome"`
}

type cachedMatches struct {
	Matches []core.Match `json:"matches"`
	Outcome core.Outcome `json:"outcome"`
}

// RecommendByItem 返回与 itemID 同簇的物品；topN <= 0 时使用默认条数。
func (s *Service) RecommendByItem(ctx context.Context, itemID int64, topN int) ([]*core.CatalogItem, core.Outcome) {
	topN = s.topN(topN)
	key := cache.RecommendationKey(itemID, topN)

	var hit cachedItems
	if s.cache.Get(ctx, cache.ClassRecommendation, key, &hit) {
		hit.Outcome.Cached = true
		metrics.RecordRequest(methodItem, string(hit.Outcome.Status))
		return hit.Items, hit.Outcome
	}

	items, outcome := s.recommender.Recommend(ctx, itemID, topN)
	if outcome.Degraded() {
		defaults, err := s.defaultItems(ctx, topN, itemID)
		if err != nil {
			// 默认列表也拿不到时不缓存，下次请求重试
			metrics.RecordRequest(methodItem, string(core.StatusCatalogUnavailable))
			return []*core.CatalogItem{}, core.Degrade(core.StatusCatalogUnavailable, err.Error())
		}
		items = defaults
		s.logger.Info().Int64("item_id", itemID).Str("status", string(outcome.Status)).
			Str("reason", outcome.Reason).Msg("recommendations degraded to default ordering")
	}

	s.cache.Set(ctx, key, cachedItems{Items: items, Outcome: outcome}, s.cfg.RecommendationTTL())
	metrics.RecordRequest(methodItem, string(outcome.Status))
	return items, outcome
}

// RecommendByVisualQuery 对上传图片/URL/本地路径做视觉相似检索。
func (s *Service) RecommendByVisualQuery(ctx context.Context, src feature.ImageSource, topN int) ([]core.Match, core.Outcome) {
	topN = s.topN(topN)

	ext := s.extractor.Extract(ctx, src)
	if ext.Outcome.Degraded() {
		// 没有查询向量就没有缓存 key，默认列表不缓存
		matches, outcome := s.defaultMatches(ctx, topN, ext.Outcome)
		metrics.RecordRequest(methodVisual, string(outcome.Status))
		return matches, outcome
	}

	matches, outcome := s.rankVector(ctx, ext.Vector, topN)
	metrics.RecordRequest(methodVisual, string(outcome.Status))
	return matches, outcome
}

// RecommendByVector 用已有的查询向量做视觉相似检索。
func (s *Service) RecommendByVector(ctx context.Context, vector []float64, topN int) ([]core.Match, core.Outcome) {
	topN = s.topN(topN)

	if !feature.ValidVector(vector) {
		matches, outcome := s.defaultMatches(ctx, topN,
			core.Degrade(core.StatusFeatureUnavailable, core.ErrInvalidVector.Error()))
		metrics.RecordRequest(methodVector, string(outcome.Status))
		return matches, outcome
	}

	matches, outcome := s.rankVector(ctx, vector, topN)
	metrics.RecordRequest(methodVector, string(outcome.Status))
	return matches, outcome
}

func (s *Service) rankVector(ctx context.Context, vector []float64, topN int) ([]core.Match, core.Outcome) {
	key := cache.VisualQueryKey(vector, topN)

	var hit cachedMatches
	if s.cache.Get(ctx, cache.ClassVisualQuery, key, &hit) {
		hit.Outcome.Cached = true
		return hit.Matches, hit.Outcome
	}

	var (
		matches []core.Match
		outcome core.Outcome
	)
	idx, err := s.Index(ctx)
	if err != nil {
		outcome = core.OutcomeFromError(err)
	} else {
		matches = visual.Rank(vector, idx.Entries, topN, s.logger)
		outcome = core.OK()
		if len(matches) == 0 {
			outcome = core.Degrade(core.StatusEmpty, "no entry above similarity threshold")
		}
	}

	if outcome.Degraded() {
		var ok bool
		matches, outcome, ok = s.fallbackMatches(ctx, topN, outcome)
		if !ok {
			return matches, outcome
		}
	}

	s.cache.Set(ctx, key, cachedMatches{Matches: matches, Outcome: outcome}, s.cfg.RecommendationTTL())
	return matches, outcome
}

// Index 返回当前视觉索引：优先读缓存，过期或不存在时重建。并发重建合并为一次。
func (s *Service) Index(ctx context.Context) (*visual.Index, error) {
	var idx visual.Index
	if s.cache.Get(ctx, cache.ClassVisualIndex, cache.VisualIndexKey, &idx) {
		return &idx, nil
	}
	v, err, _ := s.indexGroup.Do(cache.VisualIndexKey, func() (any, error) {
		return s.RebuildIndex(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*visual.Index), nil
}

// RebuildIndex 立即重建视觉索引并整体替换缓存中的快照。
func (s *Service) RebuildIndex(ctx context.Context) (*visual.Index, error) {
	idx, err := s.builder.Build(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("visual index build failed")
		return nil, err
	}
	s.cache.Set(ctx, cache.VisualIndexKey, idx, s.cfg.VisualIndexTTL())
	return idx, nil
}

// Retrain 重新训练聚类模型。旧的推荐缓存按 TTL 自然过期。
func (s *Service) Retrain(ctx context.Context) error {
	return s.model.Retrain(ctx)
}

// ReloadModel 重新加载持久化的聚类模型。
func (s *Service) ReloadModel(ctx context.Context) error {
	return s.model.Reload(ctx)
}

func (s *Service) topN(n int) int {
	if n <= 0 {
		return s.cfg.DefaultTopN()
	}
	return n
}

// defaultItems 默认列表：目录默认顺序的前 topN 个平台上架物品，不含 exclude 本身。
// exclude <= 0 表示没有查询物品。
func (s *Service) defaultItems(ctx context.Context, topN int, exclude int64) ([]*core.CatalogItem, error) {
	limit := topN
	if exclude > 0 {
		limit++
	}
	items, err := s.catalog.ListItems(ctx, core.ListFilter{Kinds: []core.Kind{core.KindCatalog}, Limit: limit})
	if err != nil {
		s.logger.Error().Err(err).Msg("default listing failed")
		return nil, core.WrapError(core.ErrCatalogUnavailable, err)
	}
	out := make([]*core.CatalogItem, 0, topN)
	for _, it := range items {
		if it.ID == exclude {
			continue
		}
		if len(out) == topN {
			break
		}
		out = append(out, it)
	}
	return out, nil
}

// defaultMatches 视觉查询的默认列表，相似度为 0。
func (s *Service) defaultMatches(ctx context.Context, topN int, cause core.Outcome) ([]core.Match, core.Outcome) {
	matches, outcome, _ := s.fallbackMatches(ctx, topN, cause)
	return matches, outcome
}

func (s *Service) fallbackMatches(ctx context.Context, topN int, cause core.Outcome) ([]core.Match, core.Outcome, bool) {
	items, err := s.defaultItems(ctx, topN, 0)
	if err != nil {
		return []core.Match{}, core.Degrade(core.StatusCatalogUnavailable, err.Error()), false
	}
	s.logger.Info().Str("status", string(cause.Status)).Str("reason", cause.Reason).
		Msg("visual results degraded to default ordering")
	matches := make([]core.Match, len(items))
	for i, it := range items {
		matches[i] = core.Match{Item: it, Similarity: 0, Kind: it.Kind}
	}
	return matches, cause, true
}

// Warmup 预先加载模型与视觉索引，失败只记日志。
func (s *Service) Warmup(ctx context.Context) {
	start := time.Now()
	if _, err := s.model.Get(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("model warmup failed")
	}
	if _, err := s.Index(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("visual index warmup failed")
	}
	s.logger.Info().Dur("took", time.Since(start)).Msg("warmup finished")
}
