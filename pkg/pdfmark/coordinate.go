package pdfmark

import (
	"fmt"
	"math"

	"seehuhn.de/go/geom/matrix"
)

// PageGeometry 单页的渲染尺寸与原生尺寸
// 渲染空间：原点在左上角，Y 轴向下，单位像素
// 原生空间：原点在 MediaBox 左下角，Y 轴向上，单位点
type PageGeometry struct {
	RenderWidth  float64 `yaml:"render_width"`
	RenderHeight float64 `yaml:"render_height"`
	NativeWidth  float64 `yaml:"native_width"`
	NativeHeight float64 `yaml:"native_height"`
	OriginX      float64 `yaml:"origin_x"`
	OriginY      float64 `yaml:"origin_y"`
}

// RenderContext 一个源文档在某个缩放比例下的全部页面几何
type RenderContext struct {
	TotalPages  int
	RenderScale float64
	Pages       []PageGeometry
}

// NewRenderContext 按 renderWidth = nativeWidth × scale 构建各页几何
func NewRenderContext(doc *Document, scale float64) (*RenderContext, error) {
	if !(scale > 0) {
		return nil, fmt.Errorf("render scale %g must be positive", scale)
	}
	rc := &RenderContext{
		TotalPages:  doc.PageCount(),
		RenderScale: scale,
		Pages:       make([]PageGeometry, doc.PageCount()),
	}
	for i := range rc.Pages {
		size, err := doc.PageSize(i + 1)
		if err != nil {
			return nil, err
		}
		rc.Pages[i] = PageGeometry{
			RenderWidth:  size.Width * scale,
			RenderHeight: size.Height * scale,
			NativeWidth:  size.Width,
			NativeHeight: size.Height,
			OriginX:      size.OriginX,
			OriginY:      size.OriginY,
		}
	}
	return rc, nil
}

// Page 返回第 page 页（从 1 开始）的几何
func (rc *RenderContext) Page(page int) (PageGeometry, error) {
	if page < 1 || page > len(rc.Pages) {
		return PageGeometry{}, fmt.Errorf("%w: %d (total pages: %d)", ErrPageOutOfRange, page, len(rc.Pages))
	}
	return rc.Pages[page-1], nil
}

// CoordinateMapper 渲染空间与原生空间之间的转换器
type CoordinateMapper struct {
	geom PageGeometry
}

// NewCoordinateMapper 创建坐标转换器
func NewCoordinateMapper(g PageGeometry) *CoordinateMapper {
	return &CoordinateMapper{geom: g}
}

// ScaleY 垂直方向 原生/渲染 比例
func (c *CoordinateMapper) ScaleY() float64 {
	return c.geom.NativeHeight / c.geom.RenderHeight
}

// GetTransformMatrix 获取从渲染空间到原生空间的仿射矩阵：
// 先按宽高归一化再乘以原生尺寸，Y 轴翻转后平移到 MediaBox 原点
func (c *CoordinateMapper) GetTransformMatrix() matrix.Matrix {
	return matrix.Matrix{
		c.geom.NativeWidth / c.geom.RenderWidth, 0,
		0, -c.ScaleY(),
		c.geom.OriginX, c.geom.OriginY + c.geom.NativeHeight,
	}
}

// ToNative 将渲染空间的点转换为原生空间的点
func (c *CoordinateMapper) ToNative(p Point) Point {
	x, y := c.GetTransformMatrix().Apply(p.X, p.Y)
	return Point{X: x, Y: y}
}

// ToRender 将原生空间的点转换为渲染空间的点；原生尺寸为 0 时返回 NaN
func (c *CoordinateMapper) ToRender(p Point) Point {
	if c.geom.NativeWidth == 0 || c.geom.NativeHeight == 0 {
		return Point{X: math.NaN(), Y: math.NaN()}
	}
	x, y := c.GetTransformMatrix().Inv().Apply(p.X, p.Y)
	return Point{X: x, Y: y}
}

// FontSizeToNative 字号是长度而不是坐标，只按垂直比例缩放
func (c *CoordinateMapper) FontSizeToNative(size float64) float64 {
	return size * c.ScaleY()
}

// RotationToNative 渲染空间顺时针为正，原生空间逆时针为正
func (c *CoordinateMapper) RotationToNative(deg float64) float64 {
	return -deg
}

const aspectTolerance = 1e-3

// CheckGeometry 比较两份几何的宽高比
// 不一致时返回 KindGeometryMismatch 的页面错误，调用方记录为警告后继续
func CheckGeometry(page int, declared, actual PageGeometry) *PageError {
	ra := aspect(declared.RenderWidth, declared.RenderHeight)
	na := aspect(actual.NativeWidth, actual.NativeHeight)
	if math.IsNaN(ra) || math.IsNaN(na) || math.Abs(ra-na) > aspectTolerance*math.Max(ra, na) {
		return newPageError(page, KindGeometryMismatch,
			fmt.Errorf("render aspect %.4f (%gx%g) differs from native aspect %.4f (%gx%g)",
				ra, declared.RenderWidth, declared.RenderHeight, na, actual.NativeWidth, actual.NativeHeight))
	}
	return nil
}

func aspect(w, h float64) float64 {
	if !(w > 0) || !(h > 0) {
		return math.NaN()
	}
	return w / h
}
