package feature

import (
	"context"
	"image"
	"math"

	"github.com/rushteam/bookrec/core"
)

const (
	gridCells = 7
	hueBins   = 16
	satBins   = 8
	valBins   = 8
)

// GridEmbedder 是进程内的确定性视觉嵌入，不依赖外部模型服务。
//
// 向量由两段组成，各自 L2 归一化后拼接：
//   - 7×7 空间网格上每格的 RGB 均值（减去整图均值），刻画构图
//   - HSV 颜色直方图（16/8/8 桶），刻画色调
//
// 适合离线环境与测试；线上建议使用 ServingEmbedder 接入预训练 CNN。
type GridEmbedder struct {
	size int
}

// NewGridEmbedder 创建 GridEmbedder，输入统一缩放到 core.VisualInputSize。
func NewGridEmbedder() *GridEmbedder {
	return &GridEmbedder{size: core.VisualInputSize}
}

func (e *GridEmbedder) Name() string { return "grid" }

// Dimension 返回向量长度。
func (e *GridEmbedder) Dimension() int {
	return gridCells*gridCells*3 + hueBins + satBins + valBins
}

// Embed 计算图片的嵌入向量。
func (e *GridEmbedder) Embed(ctx context.Context, img image.Image) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	norm := Normalize(img, e.size)

	grid := make([]float64, gridCells*gridCells*3)
	counts := make([]float64, gridCells*gridCells)
	hist := make([]float64, hueBins+satBins+valBins)
	var mean [3]float64

	for y := 0; y < e.size; y++ {
		cy := y * gridCells / e.size
		for x := 0; x < e.size; x++ {
			cx := x * gridCells / e.size
			r, g, b := pixelRGB(norm, x, y)

			cell := cy*gridCells + cx
			grid[cell*3] += r
			grid[cell*3+1] += g
			grid[cell*3+2] += b
			counts[cell]++
			mean[0] += r
			mean[1] += g
			mean[2] += b

			h, s, v := rgbToHSV(r/255, g/255, b/255)
			hist[binOf(h, hueBins)]++
			hist[hueBins+binOf(s, satBins)]++
			hist[hueBins+satBins+binOf(v, valBins)]++
		}
	}

	total := float64(e.size * e.size)
	for c := range mean {
		mean[c] /= total
	}
	for cell, n := range counts {
		for c := 0; c < 3; c++ {
			grid[cell*3+c] = grid[cell*3+c]/n - mean[c]
		}
	}

	l2Normalize(grid)
	l2Normalize(hist)
	return append(grid, hist...), nil
}

// binOf 把 [0,1] 的值映射到 n 个桶，1 落入最后一个桶。
func binOf(v float64, n int) int {
	i := int(v * float64(n))
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// rgbToHSV 输入输出均在 [0,1]，h 已除以 360。
func rgbToHSV(r, g, b float64) (h, s, v float64) {
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	v = maxC
	d := maxC - minC
	if maxC > 0 {
		s = d / maxC
	}
	if d == 0 {
		return 0, s, v
	}
	switch maxC {
	case r:
		h = math.Mod((g-b)/d, 6)
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	h /= 6
	if h < 0 {
		h++
	}
	return h, s, v
}

func l2Normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
}

var _ core.ImageEmbedder = (*GridEmbedder)(nil)
