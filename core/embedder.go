package core

import (
	"context"
	"image"
)

// ImageEmbedder 是视觉特征模型的领域接口。
//
// 实现：
//   - feature.GridEmbedder：进程内确定性描述子
//   - feature.ServingEmbedder：远程预训练 CNN（TorchServe / KServe REST）
//
// 输入图像已经过归一化（固定尺寸 RGB），输出为定长向量；
// 同一模型版本下结果必须确定。
type ImageEmbedder interface {
	// Name 返回模型名称（含版本），用于日志/监控
	Name() string

	// Dimension 返回输出向量长度；未知时返回 0
	Dimension() int

	// Embed 计算单张图像的特征向量
	Embed(ctx context.Context, img image.Image) ([]float64, error)
}
