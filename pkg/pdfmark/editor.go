package pdfmark

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/google/uuid"
)

// EditorOptions 编辑会话参数
type EditorOptions struct {
	RenderScale float64
	Compose     ComposeOptions
	Preview     PreviewOptions
	Rasterizer  PageRasterizer
}

// Editor 一个文档的水印编辑会话
//
// 同一时刻只有一页处于编辑状态；翻页时先保存离开的页再载入进入的页。
// 会话本身不是并发安全的编辑器：调用方一次只应由一个 goroutine 修改它，
// Export 通过快照与后续编辑隔离。
type Editor struct {
	id         string
	doc        *Document
	rc         *RenderContext
	store      *PageOverlayStore
	compositor *DocumentCompositor
	preview    *PreviewRenderer
}

// NewEditor 打开编辑会话，有页面时定位到第一页
func NewEditor(doc *Document, opts EditorOptions) (*Editor, error) {
	if opts.RenderScale == 0 {
		opts.RenderScale = DefaultConfig().RenderScale
	}
	rc, err := NewRenderContext(doc, opts.RenderScale)
	if err != nil {
		return nil, err
	}
	if opts.Preview.LineHeight == 0 {
		opts.Preview.LineHeight = opts.Compose.LineHeight
	}
	if opts.Preview.Metrics == nil {
		opts.Preview.Metrics = opts.Compose.Font
	}

	store := NewPageOverlayStore(rc.TotalPages)
	e := &Editor{
		id:         uuid.New().String(),
		doc:        doc,
		rc:         rc,
		store:      store,
		compositor: NewDocumentCompositor(opts.Compose),
		preview:    NewPreviewRenderer(doc, rc, store, opts.Rasterizer, opts.Preview),
	}
	if rc.TotalPages > 0 {
		if _, err := store.Restore(1); err != nil {
			return nil, err
		}
	}
	Debug("editor session opened", "session", e.id, "document", doc.Name(), "pages", rc.TotalPages)
	return e, nil
}

// ID 会话标识
func (e *Editor) ID() string {
	return e.id
}

// Document 正在编辑的源文档
func (e *Editor) Document() *Document {
	return e.doc
}

// RenderContext 页面几何
func (e *Editor) RenderContext() *RenderContext {
	return e.rc
}

// Store 底层的页面水印存储
func (e *Editor) Store() *PageOverlayStore {
	return e.store
}

// CurrentPage 当前页，从 1 开始；空文档为 0
func (e *Editor) CurrentPage() int {
	return e.store.ActivePage()
}

// TotalPages 页数
func (e *Editor) TotalPages() int {
	return e.rc.TotalPages
}

// GoTo 切换到第 page 页
func (e *Editor) GoTo(page int) (PageState, error) {
	return e.store.Restore(page)
}

// NextPage 下一页；已在最后一页时保持不动
func (e *Editor) NextPage() (PageState, error) {
	page := e.CurrentPage()
	if page < e.TotalPages() {
		page++
	}
	return e.GoTo(page)
}

// PrevPage 上一页；已在第一页时保持不动
func (e *Editor) PrevPage() (PageState, error) {
	page := e.CurrentPage()
	if page > 1 {
		page--
	}
	return e.GoTo(page)
}

// AddWatermark 在当前页 desc.Anchor 处加入一个可编辑的水印
func (e *Editor) AddWatermark(desc WatermarkDescriptor) error {
	desc.Pattern = PatternSingle
	if err := desc.Validate(); err != nil {
		return err
	}
	return e.store.Add(desc.place(desc.Anchor, desc.RotationDegrees, true, true))
}

// ApplyToAllPages 按描述符的模式把水印追加到每一页
func (e *Editor) ApplyToAllPages(desc WatermarkDescriptor) error {
	return e.store.ApplyToAllPages(desc, e.rc)
}

// ApplyToPages 把描述符按模式展开到指定页面
// 所有页码先校验并完成展开，之后才写入存储
func (e *Editor) ApplyToPages(desc WatermarkDescriptor, pages []int) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	planned := make([][]PlacedWatermark, len(pages))
	for i, page := range pages {
		g, err := e.rc.Page(page)
		if err != nil {
			return err
		}
		planned[i] = Expand(desc, g)
	}

	current := e.CurrentPage()
	for i, page := range pages {
		if _, err := e.store.Restore(page); err != nil {
			return err
		}
		for _, pw := range planned[i] {
			if err := e.store.Add(pw); err != nil {
				return err
			}
		}
	}
	if current != 0 {
		if _, err := e.store.Restore(current); err != nil {
			return err
		}
	}
	return nil
}

// ClearWatermarks 删除所有页面上的水印
func (e *Editor) ClearWatermarks() {
	e.store.ClearAll()
}

// Export 保存当前页后按快照合成输出文档
func (e *Editor) Export(ctx context.Context) (*ExportResult, error) {
	snap := e.store.Freeze()
	res, err := e.compositor.Compose(ctx, e.doc, e.rc, snap)
	if err != nil {
		return nil, fmt.Errorf("export session %s: %w", e.id, err)
	}
	return res, nil
}

// Preview 渲染当前页的预览
func (e *Editor) Preview(ctx context.Context) (image.Image, error) {
	page := e.CurrentPage()
	if page == 0 {
		return nil, errNoActivePage
	}
	return e.preview.RenderPreview(ctx, page)
}

// PreviewRenderer 会话使用的预览渲染器
func (e *Editor) PreviewRenderer() *PreviewRenderer {
	return e.preview
}

// SaveState 以 YAML 写出所有页面的水印
func (e *Editor) SaveState(w io.Writer) error {
	return e.store.SaveState(w)
}

// LoadState 恢复 SaveState 写出的水印
func (e *Editor) LoadState(r io.Reader) error {
	if err := e.store.LoadState(r); err != nil {
		return err
	}
	if e.store.ActivePage() == 0 && e.TotalPages() > 0 {
		_, err := e.store.Restore(1)
		return err
	}
	return nil
}
