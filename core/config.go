package core

import "time"

// 以下常量是策略决策而非实现细节，调整前需要评估对推荐质量和延迟的影响。
const (
	// MaxClusters 聚类数上限；实际 K = min(MaxClusters, 可训练物品数)
	MaxClusters = 10

	// ClusterSeed 聚类随机种子，保证同一目录重复训练结果一致
	ClusterSeed int64 = 42

	// SimilarityThreshold 视觉相似度下限（严格大于才保留），不支持按请求调整
	SimilarityThreshold = 0.5

	// DefaultTopN 默认返回条数
	DefaultTopN = 5

	// RecommendationTTL 单物品推荐结果 / 单次视觉查询结果的缓存时长
	RecommendationTTL = 30 * time.Minute

	// VisualIndexTTL 视觉索引快照的缓存时长；重建代价高，但需要尽快感知目录变化
	VisualIndexTTL = 15 * time.Minute

	// ImageFetchTimeout 远程图片抓取的硬超时
	ImageFetchTimeout = 10 * time.Second

	// VisualInputSize 视觉模型输入边长（像素）
	VisualInputSize = 224
)

// RecommendConfig 提供可覆盖的运行参数，未覆盖时使用上面的策略常量。
type RecommendConfig interface {
	// DefaultTopN 返回默认返回条数
	DefaultTopN() int

	// RecommendationTTL 返回推荐结果缓存时长
	RecommendationTTL() time.Duration

	// VisualIndexTTL 返回视觉索引缓存时长
	VisualIndexTTL() time.Duration
}

// DefaultRecommendConfig 是默认的配置实现。
type DefaultRecommendConfig struct{}

func (c *DefaultRecommendConfig) DefaultTopN() int {
	return DefaultTopN
}

func (c *DefaultRecommendConfig) RecommendationTTL() time.Duration {
	return RecommendationTTL
}

func (c *DefaultRecommendConfig) VisualIndexTTL() time.Duration {
	return VisualIndexTTL
}
