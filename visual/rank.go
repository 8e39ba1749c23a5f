package visual

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/metrics"
)

// CosineSimilarity 计算余弦相似度。维度不一致或任一向量范数为 0 时返回错误。
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, core.WrapError(core.ErrDimensionMismatch, fmt.Errorf("%d vs %d", len(a), len(b)))
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, core.WrapError(core.ErrInvalidVector, fmt.Errorf("zero norm"))
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) {
		return 0, core.WrapError(core.ErrInvalidVector, fmt.Errorf("similarity is NaN"))
	}
	return sim, nil
}

// Rank 按余弦相似度对条目排序。
//
//   - 只保留相似度严格大于 core.SimilarityThreshold 的条目
//   - 相似度降序，相同相似度保持索引构建顺序
//   - 单条比较失败只跳过该条目
//   - topN <= 0 表示不截断
func Rank(query []float64, entries []Entry, topN int, logger zerolog.Logger) []core.Match {
	matches := make([]core.Match, 0)
	skipped := 0
	for _, e := range entries {
		sim, err := CosineSimilarity(query, e.Vector)
		if err != nil {
			skipped++
			logger.Debug().Err(err).Str("ref", e.Item.Ref()).Msg("entry skipped during ranking")
			continue
		}
		if sim <= core.SimilarityThreshold {
			continue
		}
		matches = append(matches, core.Match{Item: e.Item, Similarity: sim, Kind: e.Kind})
	}
	if skipped > 0 {
		metrics.SkippedEntries.WithLabelValues("rank").Add(float64(skipped))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if topN > 0 && len(matches) > topN {
		matches = matches[:topN]
	}
	return matches
}
