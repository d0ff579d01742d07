package pdfmark

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
)

// PageRasterizer 把源文档的一页绘制到调用方提供的图像上
//
// RenderSize 返回某页在 scale 下的像素尺寸；Rasterize 的 dst 尺寸必须与之一致。
// 失败被视为页面级错误。
type PageRasterizer interface {
	RenderSize(doc *Document, page int, scale float64) (width, height int, err error)
	Rasterize(ctx context.Context, doc *Document, page int, scale float64, dst *image.RGBA) error
}

// BlankRasterizer 只绘制纯色背景的页面，不解析页面内容
type BlankRasterizer struct {
	Background color.Color
}

// RenderSize 按 MediaBox 尺寸乘以 scale 计算
func (BlankRasterizer) RenderSize(doc *Document, page int, scale float64) (int, int, error) {
	size, err := doc.PageSize(page)
	if err != nil {
		return 0, 0, err
	}
	if !(scale > 0) {
		return 0, 0, fmt.Errorf("render scale %g must be positive", scale)
	}
	return pixelSize(size.Width * scale), pixelSize(size.Height * scale), nil
}

// Rasterize 用背景色填满 dst
func (r BlankRasterizer) Rasterize(ctx context.Context, doc *Document, page int, scale float64, dst *image.RGBA) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w, h, err := r.RenderSize(doc, page, scale)
	if err != nil {
		return err
	}
	if b := dst.Bounds(); b.Dx() != w || b.Dy() != h {
		return fmt.Errorf("destination is %dx%d, page %d renders at %dx%d", b.Dx(), b.Dy(), page, w, h)
	}

	r.fill(dst)
	return nil
}

func (r BlankRasterizer) fill(dst *image.RGBA) {
	bg := r.Background
	if bg == nil {
		bg = color.White
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
}

func pixelSize(v float64) int {
	n := int(math.Ceil(v - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}
