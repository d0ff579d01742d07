package pdfmark

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"strings"

	"github.com/novvoo/go-cairo/pkg/cairo"
)

// DefaultPreviewFontFamily 预览使用的字体族
const DefaultPreviewFontFamily = "sans-serif"

// PreviewOptions 预览参数
type PreviewOptions struct {
	LineHeight float64
	FontFamily string
	// Metrics 提供 ascent，使行基线与导出一致；nil 表示内置字体
	Metrics *Font
}

// PreviewRenderer 在渲染空间中把当前水印画到页面背景上
type PreviewRenderer struct {
	doc        *Document
	rc         *RenderContext
	overlays   OverlaySource
	rasterizer PageRasterizer
	opts       PreviewOptions
	converter  *CairoImageConverter
}

// NewPreviewRenderer 创建预览渲染器；rasterizer 为 nil 时使用 BlankRasterizer
func NewPreviewRenderer(doc *Document, rc *RenderContext, overlays OverlaySource, rasterizer PageRasterizer, opts PreviewOptions) *PreviewRenderer {
	if rasterizer == nil {
		rasterizer = BlankRasterizer{}
	}
	if !(opts.LineHeight > 0) {
		opts.LineHeight = DefaultLineHeight
	}
	if opts.FontFamily == "" {
		opts.FontFamily = DefaultPreviewFontFamily
	}
	if opts.Metrics == nil {
		if f, err := loadDefaultFont(); err == nil {
			opts.Metrics = f
		}
	}
	return &PreviewRenderer{
		doc:        doc,
		rc:         rc,
		overlays:   overlays,
		rasterizer: rasterizer,
		opts:       opts,
		converter:  NewCairoImageConverter(),
	}
}

// RenderPreview 渲染第 page 页的预览
//
// 背景光栅化失败时返回带 KindPageRasterFailure 的 *PageError 以及白底上的水印图像；
// 页码越界时不返回图像。
func (p *PreviewRenderer) RenderPreview(ctx context.Context, page int) (image.Image, error) {
	geom, err := p.rc.Page(page)
	if err != nil {
		return nil, err
	}
	w, h := pixelSize(geom.RenderWidth), pixelSize(geom.RenderHeight)

	backdrop := image.NewRGBA(image.Rect(0, 0, w, h))
	var rasterErr *PageError
	if err := p.rasterizer.Rasterize(ctx, p.doc, page, p.rc.RenderScale, backdrop); err != nil {
		rasterErr = newPageError(page, KindPageRasterFailure, err)
		Warn("page rasterization failed", "page", page, "error", err)
		BlankRasterizer{}.fill(backdrop)
	}

	surface, err := p.converter.ImageToCairoSurface(backdrop, cairo.FormatARGB32)
	if err != nil {
		return nil, err
	}
	defer surface.Destroy()

	cctx := cairo.NewContext(surface)
	for i, pw := range p.overlays.Placements(page) {
		if pw.Text == "" {
			continue
		}
		fill, opacity, err := resolveFill(pw.FillColor, pw.Opacity)
		if err != nil {
			Debug("preview using fallback color", "page", page, "placement", i, "color", pw.FillColor)
		}
		p.drawPlacement(cctx, pw, fill, opacity)
	}
	cctx.Destroy()

	img, err := p.converter.CairoSurfaceToImage(surface)
	if err != nil {
		return nil, err
	}
	if rasterErr != nil {
		return img, rasterErr
	}
	return img, nil
}

// drawPlacement 以左上角为锚点、顺时针为正绘制一个水印
func (p *PreviewRenderer) drawPlacement(cctx cairo.Context, pw PlacedWatermark, fill ColorSpec, opacity float64) {
	cctx.Save()
	defer cctx.Restore()

	cctx.Translate(pw.Position.X, pw.Position.Y)
	cctx.Rotate(pw.RotationDegrees * math.Pi / 180)
	cctx.SetSourceRGBA(fill.R, fill.G, fill.B, opacity)

	ascent := pw.FontSize * 0.8
	if p.opts.Metrics != nil {
		ascent = p.opts.Metrics.Ascent(pw.FontSize)
	}

	fontDesc := cairo.NewPangoFontDescription()
	fontDesc.SetFamily(p.opts.FontFamily)
	fontDesc.SetSize(pw.FontSize)

	for i, line := range strings.Split(pw.Text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		// Pango 把基线放在当前点，第 i 行基线位于锚点下方 ascent + i 行距
		cctx.MoveTo(0, ascent+float64(i)*pw.FontSize*p.opts.LineHeight)
		layout := cctx.PangoCairoCreateLayout().(*cairo.PangoCairoLayout)
		layout.SetFontDescription(fontDesc)
		layout.SetText(line)
		cctx.PangoCairoShowText(layout)
	}
}

// WritePNG 把图像保存为 PNG
func WritePNG(img image.Image, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}
