// Package cluster 实现基于文本特征的聚类推荐：k-means 训练、模型持久化与同簇查询。
package cluster

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/rushteam/bookrec/core"
)

// KMeans 是 k-means 聚类器（k-means++ 初始化 + Lloyd 迭代）。
// 同一输入与 Seed 下结果完全确定。
type KMeans struct {
	K       int
	Seed    int64
	MaxIter int
	Tol     float64

	// Centroids 训练后的簇中心
	Centroids [][]float64
}

// NewKMeans 创建聚类器，MaxIter / Tol 使用常见默认值。
func NewKMeans(k int, seed int64) *KMeans {
	return &KMeans{K: k, Seed: seed, MaxIter: 300, Tol: 1e-4}
}

// Fit 在样本上训练。要求 1 <= K <= len(samples)，且所有样本维度一致。
func (m *KMeans) Fit(samples [][]float64) error {
	n := len(samples)
	if n == 0 {
		return core.ErrEmptyCatalog
	}
	if m.K < 1 || m.K > n {
		return fmt.Errorf("kmeans: k=%d out of range [1, %d]", m.K, n)
	}
	dim := len(samples[0])
	for i, s := range samples {
		if len(s) != dim {
			return core.WrapError(core.ErrDimensionMismatch, fmt.Errorf("sample %d has %d dims, want %d", i, len(s), dim))
		}
	}

	rng := rand.New(rand.NewSource(m.Seed))
	centroids := m.initPlusPlus(samples, rng)

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	maxIter := m.MaxIter
	if maxIter <= 0 {
		maxIter = 300
	}

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, s := range samples {
			c := nearest(centroids, s)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}

		next := make([][]float64, m.K)
		counts := make([]int, m.K)
		for c := range next {
			next[c] = make([]float64, dim)
		}
		for i, s := range samples {
			c := assign[i]
			counts[c]++
			for d, x := range s {
				next[c][d] += x
			}
		}

		var shift float64
		for c := range next {
			// 空簇保留原中心
			if counts[c] == 0 {
				copy(next[c], centroids[c])
				continue
			}
			for d := range next[c] {
				next[c][d] /= float64(counts[c])
			}
			shift += sqDist(next[c], centroids[c])
		}
		centroids = next

		if !changed || shift <= m.Tol*m.Tol {
			break
		}
	}

	m.Centroids = centroids
	return nil
}

// initPlusPlus k-means++：首个中心均匀抽样，其余按到最近中心距离平方加权抽样。
func (m *KMeans) initPlusPlus(samples [][]float64, rng *rand.Rand) [][]float64 {
	n := len(samples)
	centroids := make([][]float64, 0, m.K)
	centroids = append(centroids, clone(samples[rng.Intn(n)]))

	dist := make([]float64, n)
	for len(centroids) < m.K {
		var total float64
		for i, s := range samples {
			dist[i] = sqDist(s, centroids[nearest(centroids, s)])
			total += dist[i]
		}

		// 所有点都与现有中心重合时，顺序选择尚未使用的样本
		if total == 0 {
			centroids = append(centroids, clone(samples[len(centroids)%n]))
			continue
		}

		target := rng.Float64() * total
		pick := n - 1
		var acc float64
		for i, d := range dist {
			acc += d
			if acc > target {
				pick = i
				break
			}
		}
		centroids = append(centroids, clone(samples[pick]))
	}
	return centroids
}

// Predict 返回距离最近的簇；距离相同时取编号最小的簇。
func (m *KMeans) Predict(x []float64) int {
	return nearest(m.Centroids, x)
}

// PredictAll 批量预测。
func (m *KMeans) PredictAll(xs [][]float64) []int {
	out := make([]int, len(xs))
	for i, x := range xs {
		out[i] = m.Predict(x)
	}
	return out
}

func nearest(centroids [][]float64, x []float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, ctr := range centroids {
		if d := sqDist(ctr, x); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
