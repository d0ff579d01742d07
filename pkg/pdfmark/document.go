package pdfmark

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PageSize 页面 MediaBox 的尺寸与原点（单位：点）
type PageSize struct {
	Width   float64
	Height  float64
	OriginX float64
	OriginY float64
}

// defaultPageSize 无法读取 MediaBox 时使用 Letter 尺寸
var defaultPageSize = PageSize{Width: 612, Height: 792}

// Document 已加载的源文档
// 保留原始字节，合成时重新解析出独立副本，源文档本身不会被修改
type Document struct {
	name  string
	data  []byte
	sizes []PageSize
}

// LoadBytes 从内存加载 PDF；文档保存 data 的副本，调用方之后可以修改 data
func LoadBytes(data []byte, name string) (*Document, error) {
	ctx, err := readContext(data)
	if err != nil {
		return nil, &Error{Kind: KindDocumentOpenFailure, Op: "load", Err: err}
	}

	doc := &Document{
		name:  documentName(name),
		data:  bytes.Clone(data),
		sizes: make([]PageSize, ctx.PageCount),
	}

	var dims []types.Dim
	for i := range doc.sizes {
		size, err := mediaBoxSize(ctx, i+1)
		if err != nil {
			if dims == nil {
				dims, _ = ctx.PageDims()
			}
			if i < len(dims) {
				size = PageSize{Width: dims[i].Width, Height: dims[i].Height}
			} else {
				size = defaultPageSize
			}
			Warn("falling back to page dimensions", "page", i+1, "error", err)
		}
		doc.sizes[i] = size
	}

	Debug("document loaded", "name", doc.name, "pages", len(doc.sizes))
	return doc, nil
}

// LoadFile 从文件加载 PDF
func LoadFile(pdfPath string) (*Document, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, &Error{Kind: KindDocumentOpenFailure, Op: "load", Err: fmt.Errorf("%w: %v", ErrDocumentOpen, err)}
	}
	return LoadBytes(data, filepath.Base(pdfPath))
}

// LoadURL 通过 HTTP GET 下载 PDF
func LoadURL(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: KindDocumentOpenFailure, Op: "load", Err: err}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindDocumentOpenFailure, Op: "load", Err: fmt.Errorf("%w: %v", ErrDocumentOpen, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindDocumentOpenFailure, Op: "load",
			Err: fmt.Errorf("%w: GET %s: %s", ErrDocumentOpen, url, resp.Status)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindDocumentOpenFailure, Op: "load", Err: fmt.Errorf("%w: %v", ErrDocumentOpen, err)}
	}

	name := path.Base(req.URL.Path)
	return LoadBytes(data, name)
}

// documentName 去掉 .pdf 后缀；为空时使用 "document"
func documentName(name string) string {
	name = strings.TrimSpace(name)
	if ext := filepath.Ext(name); strings.EqualFold(ext, ".pdf") {
		name = strings.TrimSuffix(name, ext)
	}
	if name == "" || name == "." || name == "/" {
		return "document"
	}
	return name
}

// Name 文档名（不含扩展名）
func (d *Document) Name() string {
	return d.name
}

// Bytes 源文档字节；返回内部数据，调用方不得修改
func (d *Document) Bytes() []byte {
	return d.data
}

// PageCount 页数
func (d *Document) PageCount() int {
	return len(d.sizes)
}

// PageSize 返回第 page 页（从 1 开始）的尺寸
func (d *Document) PageSize(page int) (PageSize, error) {
	if page < 1 || page > len(d.sizes) {
		return PageSize{}, fmt.Errorf("%w: %d (total pages: %d)", ErrPageOutOfRange, page, len(d.sizes))
	}
	return d.sizes[page-1], nil
}

// open 解析出一个新的、独立的 pdfcpu 上下文
func (d *Document) open() (*model.Context, error) {
	return readContext(d.data)
}

func readContext(data []byte) (*model.Context, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDocumentOpen)
	}
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentOpen, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentOpen, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentOpen, err)
	}
	return ctx, nil
}

// mediaBoxSize 读取页面（包括继承的）MediaBox
func mediaBoxSize(ctx *model.Context, page int) (PageSize, error) {
	_, _, inh, err := ctx.PageDict(page, false)
	if err != nil {
		return PageSize{}, err
	}
	if inh == nil || inh.MediaBox == nil {
		return PageSize{}, fmt.Errorf("page %d has no MediaBox", page)
	}
	mb := inh.MediaBox
	size := PageSize{
		Width:   mb.UR.X - mb.LL.X,
		Height:  mb.UR.Y - mb.LL.Y,
		OriginX: mb.LL.X,
		OriginY: mb.LL.Y,
	}
	if size.Width <= 0 || size.Height <= 0 {
		return PageSize{}, fmt.Errorf("page %d has degenerate MediaBox", page)
	}
	return size, nil
}

// ExtractContentStreams 提取页面的所有内容流（已解码）
func ExtractContentStreams(ctx *model.Context, contents types.Object) ([][]byte, error) {
	var streams [][]byte

	switch obj := contents.(type) {
	case types.IndirectRef:
		derefObj, err := ctx.Dereference(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to dereference contents: %w", err)
		}
		return ExtractContentStreams(ctx, derefObj)

	case types.StreamDict:
		// Content 为空但 Raw 不为空时需要解码
		if len(obj.Content) == 0 && len(obj.Raw) > 0 {
			if err := obj.Decode(); err != nil {
				return nil, fmt.Errorf("failed to decode stream: %w", err)
			}
		}
		if len(obj.Content) > 0 {
			streams = append(streams, obj.Content)
		}

	case types.Array:
		for i, item := range obj {
			itemStreams, err := ExtractContentStreams(ctx, item)
			if err != nil {
				Debug("skipping content stream", "index", i, "error", err)
				continue
			}
			streams = append(streams, itemStreams...)
		}

	case nil:

	default:
		Debug("unknown contents type", "type", fmt.Sprintf("%T", obj))
	}

	return streams, nil
}

// PageContent 返回第 page 页所有内容流拼接后的字节
func PageContent(ctx *model.Context, page int) ([]byte, error) {
	pageDict, _, _, err := ctx.PageDict(page, false)
	if err != nil {
		return nil, err
	}
	if pageDict == nil {
		return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, page)
	}
	contents, _ := pageDict.Find("Contents")
	streams, err := ExtractContentStreams(ctx, contents)
	if err != nil {
		return nil, err
	}
	return bytes.Join(streams, []byte("\n")), nil
}

// ReadPDF 解析 PDF 字节，供检查输出使用
func ReadPDF(data []byte) (*model.Context, error) {
	return readContext(data)
}
