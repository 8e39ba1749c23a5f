package feature

import (
	"image"

	"golang.org/x/image/draw"
)

// caffe 风格（BGR 顺序）的通道均值，VGG 系列预训练模型的输入约定
var caffeMeanBGR = [3]float64{103.939, 116.779, 123.68}

// Normalize 把任意图片缩放为 size×size 的 RGBA 图像（双线性插值，忽略原始宽高比）。
func Normalize(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// pixelRGB 返回 0~255 范围的 RGB 分量。
func pixelRGB(img *image.RGBA, x, y int) (r, g, b float64) {
	c := img.RGBAAt(x, y)
	// RGBA 为预乘 alpha，按白底合成
	if c.A < 0xff {
		a := float64(c.A) / 255
		return float64(c.R) + 255*(1-a), float64(c.G) + 255*(1-a), float64(c.B) + 255*(1-a)
	}
	return float64(c.R), float64(c.G), float64(c.B)
}

// CaffeTensor 把归一化后的图像转为 [H][W][3] 张量：BGR 通道顺序并减去通道均值。
func CaffeTensor(img *image.RGBA) [][][3]float64 {
	b := img.Bounds()
	out := make([][][3]float64, b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := make([][3]float64, b.Dx())
		for x := 0; x < b.Dx(); x++ {
			r, g, bl := pixelRGB(img, b.Min.X+x, b.Min.Y+y)
			row[x] = [3]float64{bl - caffeMeanBGR[0], g - caffeMeanBGR[1], r - caffeMeanBGR[2]}
		}
		out[y] = row
	}
	return out
}
