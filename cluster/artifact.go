package cluster

import (
	"fmt"
	"time"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/feature"
)

// ArtifactVersion 持久化格式版本，结构不兼容变更时递增
const ArtifactVersion = 1

// Artifact 是一次训练的完整产物。
//
// BookIDs 与 Features 是并行数组：下标 i 描述同一个物品。
// Features 保存训练时的派生文本（category genre author），查询时重新向量化。
type Artifact struct {
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	TrainedAt time.Time `json:"trained_at"`

	Vectorizer *feature.TfidfVectorizer `json:"vectorizer"`
	Centroids  [][]float64              `json:"centroids"`

	BookIDs  []int64  `json:"book_ids"`
	Features []string `json:"features"`
}

// Validate 检查产物的结构不变量，加载与保存前都会调用。
func (a *Artifact) Validate() error {
	if a == nil {
		return core.WrapError(core.ErrModelCorrupt, fmt.Errorf("nil artifact"))
	}
	if a.Version != ArtifactVersion {
		return core.WrapError(core.ErrModelCorrupt, fmt.Errorf("unsupported version %d", a.Version))
	}
	if len(a.BookIDs) != len(a.Features) {
		return core.WrapError(core.ErrModelCorrupt,
			fmt.Errorf("book_ids has %d entries but features has %d", len(a.BookIDs), len(a.Features)))
	}
	if a.Vectorizer == nil || len(a.Vectorizer.Vocabulary) == 0 {
		return core.WrapError(core.ErrModelCorrupt, fmt.Errorf("empty vectorizer"))
	}
	if len(a.Vectorizer.Vocabulary) != len(a.Vectorizer.IDF) {
		return core.WrapError(core.ErrModelCorrupt, fmt.Errorf("vocabulary/idf length mismatch"))
	}
	if len(a.Centroids) == 0 || len(a.Centroids) > core.MaxClusters || len(a.Centroids) > len(a.BookIDs) {
		return core.WrapError(core.ErrModelCorrupt, fmt.Errorf("%d centroids for %d items", len(a.Centroids), len(a.BookIDs)))
	}
	dim := len(a.Vectorizer.Vocabulary)
	for i, c := range a.Centroids {
		if len(c) != dim {
			return core.WrapError(core.ErrModelCorrupt, fmt.Errorf("centroid %d has %d dims, want %d", i, len(c), dim))
		}
	}
	return nil
}

// K 返回簇数。
func (a *Artifact) K() int {
	return len(a.Centroids)
}

// Model 是加载后的只读模型：在产物之上预先算好每个训练物品的簇编号。
type Model struct {
	Artifact *Artifact

	kmeans   *KMeans
	position map[int64]int
	labels   []int
}

// NewModel 从产物构造查询模型。
func NewModel(a *Artifact) (*Model, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	vec, err := feature.NewTfidfVectorizer(a.Vectorizer.Vocabulary, a.Vectorizer.IDF)
	if err != nil {
		return nil, err
	}
	a.Vectorizer = vec

	km := &KMeans{K: len(a.Centroids), Centroids: a.Centroids}
	m := &Model{
		Artifact: a,
		kmeans:   km,
		position: make(map[int64]int, len(a.BookIDs)),
		labels:   km.PredictAll(vec.TransformAll(a.Features)),
	}
	for i, id := range a.BookIDs {
		// 重复 ID 以首次出现为准
		if _, ok := m.position[id]; !ok {
			m.position[id] = i
		}
	}
	return m, nil
}

// Contains 物品是否在训练集中。
func (m *Model) Contains(id int64) bool {
	_, ok := m.position[id]
	return ok
}

// ClusterOf 重新向量化物品的派生文本并预测簇编号。
func (m *Model) ClusterOf(id int64) (int, bool) {
	i, ok := m.position[id]
	if !ok {
		return 0, false
	}
	return m.kmeans.Predict(m.Artifact.Vectorizer.Transform(m.Artifact.Features[i])), true
}

// Members 返回与 id 同簇的其它物品 ID，按训练顺序，最多 topN 个（topN <= 0 表示不限）。
func (m *Model) Members(id int64, topN int) ([]int64, bool) {
	cluster, ok := m.ClusterOf(id)
	if !ok {
		return nil, false
	}
	out := make([]int64, 0)
	for i, label := range m.labels {
		if label != cluster || m.Artifact.BookIDs[i] == id {
			continue
		}
		out = append(out, m.Artifact.BookIDs[i])
		if topN > 0 && len(out) >= topN {
			break
		}
	}
	return out, true
}
