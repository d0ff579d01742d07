package pdfmark

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"seehuhn.de/go/geom/matrix"
)

// DefaultLineHeight 多行水印的行距系数
const DefaultLineHeight = 1.16

const (
	fontResourceName  = "WmF"
	gstateNamePrefix  = "WmGS"
	defaultOutputName = "document"
)

var (
	defaultFontOnce sync.Once
	defaultFont     *Font
	defaultFontErr  error
)

func loadDefaultFont() (*Font, error) {
	defaultFontOnce.Do(func() {
		defaultFont, defaultFontErr = DefaultFont()
	})
	return defaultFont, defaultFontErr
}

// ComposeOptions 合成参数
type ComposeOptions struct {
	// LineHeight 行距系数，0 表示 DefaultLineHeight
	LineHeight float64
	// Font 嵌入字体，nil 表示内置字体
	Font *Font
	// FileName 建议的输出文件名（不含扩展名时自动补 .pdf），为空时使用文档名
	FileName string
}

// ExportResult 合成结果
type ExportResult struct {
	Data       []byte
	FileName   string
	PageErrors []*PageError // 被跳过的页面
	Warnings   []*PageError // 可恢复的问题：颜色回退、几何不一致
	DrawCount  int          // 输出的文本行数
}

// DocumentCompositor 把每页的水印写入源文档的独立副本
//
// Compose 只读取 OverlaySource 和源文档，不修改共享状态，可以在单独的
// goroutine 中运行。调用方应传入 PageOverlayStore.Freeze() 的快照；
// 直接传入正在编辑的 store 时，导出期间的编辑可能反映也可能不反映在输出中。
type DocumentCompositor struct {
	opts ComposeOptions
}

// NewDocumentCompositor 创建合成器
func NewDocumentCompositor(opts ComposeOptions) *DocumentCompositor {
	if !(opts.LineHeight > 0) {
		opts.LineHeight = DefaultLineHeight
	}
	return &DocumentCompositor{opts: opts}
}

// Compose 按页号升序处理每一页并序列化输出
//
// 只有源文档无法打开、序列化失败或被取消时返回错误，此时没有任何输出；
// 单页失败记录在 PageErrors 中并跳过该页。
func (c *DocumentCompositor) Compose(ctx context.Context, doc *Document, rc *RenderContext, overlays OverlaySource) (*ExportResult, error) {
	font := c.opts.Font
	if font == nil {
		var err error
		if font, err = loadDefaultFont(); err != nil {
			return nil, &Error{Kind: KindSerializationFailure, Op: "compose", Err: err}
		}
	}

	pdf, err := doc.open()
	if err != nil {
		return nil, &Error{Kind: KindDocumentOpenFailure, Op: "compose", Err: err}
	}

	res := &ExportResult{FileName: outputFileName(c.opts.FileName, doc.Name())}
	pages := pdf.PageCount
	if rc.TotalPages != pages || overlays.TotalPages() != pages {
		res.Warnings = append(res.Warnings, newPageError(0, KindGeometryMismatch,
			fmt.Errorf("page count drift: document %d, render context %d, overlays %d",
				pages, rc.TotalPages, overlays.TotalPages())))
		pages = min(pages, rc.TotalPages, overlays.TotalPages())
	}

	w := &pageWriter{pdf: pdf, font: font, lineHeight: c.opts.LineHeight, gstates: map[string]*types.IndirectRef{}}
	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Kind: KindCanceled, Op: "compose", Err: err}
		}

		placements := overlays.Placements(page)
		if len(placements) == 0 {
			continue
		}

		geom, err := c.pageGeometry(pdf, rc, page, res)
		if err != nil {
			res.PageErrors = append(res.PageErrors, newPageError(page, KindPageRasterFailure, err))
			Warn("skipping page", "page", page, "error", err)
			continue
		}

		n, err := w.writePage(page, geom, placements, res)
		if err != nil {
			res.PageErrors = append(res.PageErrors, newPageError(page, KindPageRasterFailure, err))
			Warn("skipping page", "page", page, "error", err)
			continue
		}
		res.DrawCount += n
		Debug("page composed", "page", page, "draws", n)
	}

	// 没有任何绘制时直接返回源文档，保证逐字节一致
	if res.DrawCount == 0 {
		res.Data = bytes.Clone(doc.Bytes())
		return res, nil
	}

	var buf bytes.Buffer
	if err := api.WriteContext(pdf, &buf); err != nil {
		return nil, &Error{Kind: KindSerializationFailure, Op: "compose", Err: fmt.Errorf("%w: %v", ErrSerialization, err)}
	}
	res.Data = buf.Bytes()

	Info("document composed", "file", res.FileName, "draws", res.DrawCount,
		"page_errors", len(res.PageErrors), "warnings", len(res.Warnings))
	return res, nil
}

// pageGeometry 使用渲染上下文声明的渲染尺寸和输出文档中该页的实际原生尺寸
func (c *DocumentCompositor) pageGeometry(pdf *model.Context, rc *RenderContext, page int, res *ExportResult) (PageGeometry, error) {
	declared, err := rc.Page(page)
	if err != nil {
		return PageGeometry{}, err
	}
	size, err := mediaBoxSize(pdf, page)
	if err != nil {
		return PageGeometry{}, err
	}
	actual := PageGeometry{
		RenderWidth:  size.Width * rc.RenderScale,
		RenderHeight: size.Height * rc.RenderScale,
		NativeWidth:  size.Width,
		NativeHeight: size.Height,
		OriginX:      size.OriginX,
		OriginY:      size.OriginY,
	}
	if pe := CheckGeometry(page, declared, actual); pe != nil {
		res.Warnings = append(res.Warnings, pe)
		Warn("geometry mismatch", "page", page, "error", pe.Err)
	}

	geom := declared
	geom.NativeWidth = actual.NativeWidth
	geom.NativeHeight = actual.NativeHeight
	geom.OriginX = actual.OriginX
	geom.OriginY = actual.OriginY
	return geom, nil
}

func outputFileName(name, docName string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = docName
	}
	if name == "" {
		name = defaultOutputName
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

// pageWriter 在一个输出文档内共享字体和 ExtGState 对象
type pageWriter struct {
	pdf        *model.Context
	font       *Font
	lineHeight float64

	fontRef *types.IndirectRef
	gstates map[string]*types.IndirectRef
}

// writePage 生成该页的水印内容流并挂到页面上，返回绘制的文本行数
func (w *pageWriter) writePage(page int, geom PageGeometry, placements []PlacedWatermark, res *ExportResult) (int, error) {
	pageDict, _, inh, err := w.pdf.PageDict(page, false)
	if err != nil {
		return 0, err
	}
	if pageDict == nil {
		return 0, fmt.Errorf("%w: %d", ErrPageOutOfRange, page)
	}

	resources, err := w.pageResources(pageDict, inh)
	if err != nil {
		return 0, err
	}
	fonts, err := w.subDict(resources, "Font")
	if err != nil {
		return 0, err
	}
	gstates, err := w.subDict(resources, "ExtGState")
	if err != nil {
		return 0, err
	}

	fontRef, err := w.sharedFont()
	if err != nil {
		return 0, err
	}
	fontName := uniqueName(fonts, fontResourceName, *fontRef)
	fonts[fontName] = *fontRef

	mapper := NewCoordinateMapper(geom)
	var cw contentWriter
	draws := 0

	for i, pw := range placements {
		if pw.Text == "" {
			continue
		}

		fill, opacity, err := resolveFill(pw.FillColor, pw.Opacity)
		if err != nil {
			res.Warnings = append(res.Warnings, newPageError(page, KindUnparsableColor, err))
			Warn("using fallback color", "page", page, "placement", i, "color", pw.FillColor)
		}

		gsKey := fmt.Sprintf("%s%04d", gstateNamePrefix, int(math.Round(opacity*1000)))
		gsRef, err := w.sharedExtGState(gsKey, opacity)
		if err != nil {
			return 0, err
		}
		gsName := uniqueName(gstates, gsKey, *gsRef)
		gstates[gsName] = *gsRef

		size := mapper.FontSizeToNative(pw.FontSize)
		ascent := w.font.Ascent(size)
		anchor := mapper.ToNative(pw.Position)
		rotate := matrix.RotateDeg(mapper.RotationToNative(pw.RotationDegrees))

		cw.SaveState()
		cw.SetExtGState(gsName)
		cw.SetFillRGB(fill)
		cw.BeginText()
		cw.SetFont(fontName, size)
		for li, line := range strings.Split(pw.Text, "\n") {
			line = strings.TrimSuffix(line, "\r")
			if line == "" {
				continue
			}
			enc, replaced := w.font.Encode(line)
			if replaced > 0 {
				Debug("characters not representable in WinAnsi", "page", page, "count", replaced)
			}
			// 行原点在页面空间中位于锚点下方 ascent + li 行距，每行绕自己的原点旋转
			baseline := anchor.Y - ascent - float64(li)*size*w.lineHeight
			cw.SetTextMatrix(rotate.Mul(matrix.Translate(anchor.X, baseline)))
			cw.ShowText(enc)
			draws++
		}
		cw.EndText()
		cw.RestoreState()
	}

	if draws == 0 {
		return 0, nil
	}

	pageDict.Update("Resources", resources)
	if err := w.attachContent(pageDict, cw.Bytes()); err != nil {
		return 0, err
	}
	return draws, nil
}

// pageResources 返回页面资源字典的浅拷贝（包括继承的资源），不修改共享对象
func (w *pageWriter) pageResources(pageDict types.Dict, inh *model.InheritedPageAttrs) (types.Dict, error) {
	var src types.Dict
	if obj, found := pageDict.Find("Resources"); found && obj != nil {
		d, err := w.pdf.DereferenceDict(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to dereference resources: %w", err)
		}
		src = d
	} else if inh != nil {
		src = inh.Resources
	}

	out := types.Dict{}
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

// subDict 把 resources[key] 替换为可修改的浅拷贝
func (w *pageWriter) subDict(resources types.Dict, key string) (types.Dict, error) {
	out := types.Dict{}
	if obj, found := resources.Find(key); found && obj != nil {
		d, err := w.pdf.DereferenceDict(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to dereference %s resources: %w", key, err)
		}
		for k, v := range d {
			out[k] = v
		}
	}
	resources[key] = out
	return out, nil
}

func (w *pageWriter) sharedFont() (*types.IndirectRef, error) {
	if w.fontRef != nil {
		return w.fontRef, nil
	}
	ref, err := w.font.embed(w.pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to embed font: %w", err)
	}
	Debug("embedded watermark font", "font", w.font.BaseFont(), "object", ref.ObjectNumber.Value())
	w.fontRef = ref
	return ref, nil
}

func (w *pageWriter) sharedExtGState(key string, opacity float64) (*types.IndirectRef, error) {
	if ref, ok := w.gstates[key]; ok {
		return ref, nil
	}
	gs := types.Dict{
		"Type": types.Name("ExtGState"),
		"ca":   types.Float(roundTo(opacity, 4)),
		"CA":   types.Float(roundTo(opacity, 4)),
	}
	ref, err := w.pdf.IndRefForNewObject(gs)
	if err != nil {
		return nil, err
	}
	w.gstates[key] = ref
	return ref, nil
}

// attachContent 原内容包在 q … Q 中，水印内容追加在最后
func (w *pageWriter) attachContent(pageDict types.Dict, overlay []byte) error {
	existing, found := pageDict.Find("Contents")
	if !found || existing == nil {
		ref, err := w.newStream(overlay)
		if err != nil {
			return err
		}
		pageDict.Update("Contents", *ref)
		return nil
	}

	var parts types.Array
	switch obj := existing.(type) {
	case types.IndirectRef:
		d, err := w.pdf.Dereference(obj)
		if err != nil {
			return fmt.Errorf("failed to dereference contents: %w", err)
		}
		if arr, ok := d.(types.Array); ok {
			parts = append(parts, arr...)
		} else {
			parts = append(parts, obj)
		}
	case types.Array:
		parts = append(parts, obj...)
	default:
		return fmt.Errorf("unexpected contents type %T", existing)
	}

	open, err := w.newStream([]byte("q\n"))
	if err != nil {
		return err
	}
	closeAndDraw, err := w.newStream(append([]byte("Q\n"), overlay...))
	if err != nil {
		return err
	}

	contents := make(types.Array, 0, len(parts)+2)
	contents = append(contents, *open)
	contents = append(contents, parts...)
	contents = append(contents, *closeAndDraw)
	pageDict.Update("Contents", contents)
	return nil
}

func (w *pageWriter) newStream(data []byte) (*types.IndirectRef, error) {
	sd, err := w.pdf.NewStreamDictForBuf(data)
	if err != nil {
		return nil, err
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return w.pdf.IndRefForNewObject(*sd)
}

// uniqueName 返回 d 中可用于 ref 的名称：未被占用或已指向 ref
func uniqueName(d types.Dict, base string, ref types.IndirectRef) string {
	name := base
	for i := 1; ; i++ {
		v, found := d[name]
		if !found {
			return name
		}
		if r, ok := v.(types.IndirectRef); ok && r.ObjectNumber == ref.ObjectNumber {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
}
