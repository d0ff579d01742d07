package pdfmark

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/novvoo/go-cairo/pkg/cairo"
)

// CairoImageConverter 在 image.RGBA 与 Cairo ARGB32 surface 之间转换
// Cairo 上下文绘制在 surface 的 Go 图像缓冲区 (GetGoImage) 上，
// 读写都经过这个缓冲区
type CairoImageConverter struct{}

// NewCairoImageConverter 创建转换器
func NewCairoImageConverter() *CairoImageConverter {
	return &CairoImageConverter{}
}

// ImageToCairoSurface 把图像复制到新的 surface；调用方负责 Destroy
func (c *CairoImageConverter) ImageToCairoSurface(img *image.RGBA, format cairo.Format) (cairo.ImageSurface, error) {
	if format != cairo.FormatARGB32 {
		return nil, fmt.Errorf("unsupported format: %v", format)
	}
	bounds := img.Bounds()

	surface := cairo.NewImageSurface(format, bounds.Dx(), bounds.Dy())
	imgSurf, ok := surface.(cairo.ImageSurface)
	if !ok {
		surface.Destroy()
		return nil, fmt.Errorf("failed to create image surface")
	}

	dst, err := surfaceImage(imgSurf)
	if err != nil {
		imgSurf.Destroy()
		return nil, err
	}
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	imgSurf.MarkDirty()

	return imgSurf, nil
}

// CairoSurfaceToImage 把 surface 的当前像素复制为 image.RGBA
func (c *CairoImageConverter) CairoSurfaceToImage(imgSurf cairo.ImageSurface) (*image.RGBA, error) {
	src, err := surfaceImage(imgSurf)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)
	return img, nil
}

func surfaceImage(imgSurf cairo.ImageSurface) (*image.RGBA, error) {
	rgba, ok := imgSurf.GetGoImage().(*image.RGBA)
	if !ok || rgba == nil {
		return nil, fmt.Errorf("image surface has no RGBA buffer")
	}
	return rgba, nil
}
