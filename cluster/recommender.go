package cluster

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/core"
)

// Recommender 基于聚类的同簇推荐。
//
// 结果按训练顺序返回，而不是按相似度排序：簇成员关系是二值的。
// 本身不做降级，Outcome 非 OK 时由上层决定默认结果。
type Recommender struct {
	handle  *ModelHandle
	catalog core.Catalog
	logger  zerolog.Logger
}

// NewRecommender 创建聚类推荐器。
func NewRecommender(handle *ModelHandle, catalog core.Catalog, logger zerolog.Logger) *Recommender {
	return &Recommender{
		handle:  handle,
		catalog: catalog,
		logger:  logger.With().Str("component", "cluster_recommender").Logger(),
	}
}

// Recommend 返回与 itemID 同簇的其它物品，最多 topN 个。
func (r *Recommender) Recommend(ctx context.Context, itemID int64, topN int) ([]*core.CatalogItem, core.Outcome) {
	model, err := r.handle.Get(ctx)
	if err != nil {
		r.logger.Error().Err(err).Int64("item_id", itemID).Msg("cluster model unavailable")
		return nil, core.OutcomeFromError(err)
	}

	ids, ok := model.Members(itemID, topN)
	if !ok {
		r.logger.Info().Int64("item_id", itemID).Str("artifact_id", model.Artifact.ID).Msg("item not in trained model")
		return nil, core.Degrade(core.StatusNotFound, fmt.Sprintf("item %d not in model %s", itemID, model.Artifact.ID))
	}

	items := make([]*core.CatalogItem, 0, len(ids))
	for _, id := range ids {
		it, err := r.catalog.GetItem(ctx, core.KindCatalog, id)
		if err != nil {
			// 训练后被删除的物品静默跳过
			if !core.IsNotFound(err) {
				r.logger.Warn().Err(err).Int64("item_id", id).Msg("resolving cluster member failed")
			}
			continue
		}
		items = append(items, it)
	}
	if len(items) == 0 {
		return nil, core.Degrade(core.StatusEmpty, fmt.Sprintf("no other live items in cluster of %d", itemID))
	}
	return items, core.OK()
}
