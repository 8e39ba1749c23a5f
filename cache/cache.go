// Package cache 在 core.Store 之上提供带类型的检索缓存。
//
// 缓存是建议性的：后端出错一律按未命中处理，调用方总能退回到实时计算。
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/metrics"
)

// 缓存类别，用于指标
const (
	ClassRecommendation = "recommendation"
	ClassVisualQuery    = "visual_query"
	ClassVisualIndex    = "visual_index"
)

// VisualIndexKey 全局视觉索引快照的 key
const VisualIndexKey = "visual_index"

// RecommendationKey 单物品推荐结果的 key。
func RecommendationKey(itemID int64, topN int) string {
	return "book_recommendations_" + strconv.FormatInt(itemID, 10) + "_" + strconv.Itoa(topN)
}

// VisualQueryKey 单次视觉查询结果的 key，以查询向量的 sha256 前 16 个十六进制字符区分。
func VisualQueryKey(vector []float64, topN int) string {
	h := sha256.New()
	var buf [8]byte
	for _, x := range vector {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
		h.Write(buf[:])
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return "visual_search_" + sum[:16] + "_" + strconv.Itoa(topN)
}

// RetrievalCache 把任意值以 JSON 编码存入 core.Store。
type RetrievalCache struct {
	store  core.Store
	logger zerolog.Logger
}

// New 创建检索缓存。
func New(store core.Store, logger zerolog.Logger) *RetrievalCache {
	return &RetrievalCache{
		store:  store,
		logger: logger.With().Str("component", "retrieval_cache").Str("backend", store.Name()).Logger(),
	}
}

// Get 读取 key 并解码到 dst，命中返回 true。过期、不存在、后端错误与解码失败都返回 false。
func (c *RetrievalCache) Get(ctx context.Context, class, key string, dst any) bool {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			metrics.RecordCacheLookup(class, "miss")
		} else {
			metrics.RecordCacheLookup(class, "error")
			c.logger.Warn().Err(err).Str("key", key).Msg("cache get failed")
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.RecordCacheLookup(class, "error")
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry undecodable, ignored")
		return false
	}
	metrics.RecordCacheLookup(class, "hit")
	return true
}

// Set 无条件覆盖写入。失败只记日志。
func (c *RetrievalCache) Set(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache value unencodable")
		return
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Delete 删除 key。
func (c *RetrievalCache) Delete(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil && !core.IsStoreNotFound(err) {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
}
