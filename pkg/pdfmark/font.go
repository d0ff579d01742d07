package pdfmark

import (
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/encoding/charmap"
)

const (
	firstChar = 32
	lastChar  = 255
)

// Font 嵌入输出文档的 TrueType 字体
// 文本按 WinAnsiEncoding (Windows-1252) 编码，每个输出文档只嵌入一次
type Font struct {
	baseFont   string
	data       []byte
	unitsPerEm float64

	// 以下均为字体单位
	ascent    float64
	descent   float64
	capHeight float64
	bbox      [4]float64

	// widths 为 1/1000 em，下标为 WinAnsi 字节
	widths [256]float64
}

// DefaultFont 返回内置的 Go Regular 字体
func DefaultFont() (*Font, error) {
	return NewFont(goregular.TTF)
}

// LoadFontFile 从 TTF 文件加载字体
func LoadFontFile(path string) (*Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font: %w", err)
	}
	return NewFont(data)
}

// NewFont 解析 TrueType 字体数据并预先计算度量
func NewFont(data []byte) (*Font, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	var buf sfnt.Buffer
	upem := int(f.UnitsPerEm())
	ppem := fixed.I(upem)

	metrics, err := f.Metrics(&buf, ppem, font.HintingNone)
	if err != nil {
		return nil, fmt.Errorf("failed to read font metrics: %w", err)
	}
	bounds, err := f.Bounds(&buf, ppem, font.HintingNone)
	if err != nil {
		return nil, fmt.Errorf("failed to read font bounds: %w", err)
	}

	name, err := f.Name(&buf, sfnt.NameIDPostScript)
	if err != nil || name == "" {
		name = "EmbeddedFont"
	}

	ft := &Font{
		baseFont:   sanitizeFontName(name),
		data:       data,
		unitsPerEm: float64(upem),
		ascent:     fixedToFloat64(metrics.Ascent),
		descent:    fixedToFloat64(metrics.Descent),
		capHeight:  fixedToFloat64(metrics.CapHeight),
		// sfnt 的 Y 轴向下，PDF 的 FontBBox Y 轴向上
		bbox: [4]float64{
			fixedToFloat64(bounds.Min.X),
			-fixedToFloat64(bounds.Max.Y),
			fixedToFloat64(bounds.Max.X),
			-fixedToFloat64(bounds.Min.Y),
		},
	}
	if ft.capHeight == 0 {
		ft.capHeight = ft.ascent
	}

	for code := firstChar; code <= lastChar; code++ {
		r := charmap.Windows1252.DecodeByte(byte(code))
		gi, err := f.GlyphIndex(&buf, r)
		if err != nil {
			continue
		}
		adv, err := f.GlyphAdvance(&buf, gi, ppem, font.HintingNone)
		if err != nil {
			continue
		}
		ft.widths[code] = fixedToFloat64(adv) * 1000 / ft.unitsPerEm
	}

	return ft, nil
}

// fixedToFloat64 converts fixed.Int26_6 to float64.
func fixedToFloat64(x fixed.Int26_6) float64 {
	return float64(x) / 64.0
}

func sanitizeFontName(name string) string {
	return strings.Map(func(r rune) rune {
		if r <= ' ' || r > '~' || strings.ContainsRune("()<>[]{}/%#", r) {
			return -1
		}
		return r
	}, name)
}

// BaseFont 字体的 PostScript 名称
func (f *Font) BaseFont() string {
	return f.baseFont
}

// Ascent 指定字号下基线到字形顶部的距离
func (f *Font) Ascent(size float64) float64 {
	return f.ascent / f.unitsPerEm * size
}

// Encode 把文本编码为 WinAnsi 字节；无法编码的字符替换为 '?'
// 返回被替换的字符数
func (f *Font) Encode(text string) ([]byte, int) {
	out := make([]byte, 0, len(text))
	replaced := 0
	for _, r := range text {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok || b < firstChar {
			b = '?'
			replaced++
		}
		out = append(out, b)
	}
	return out, replaced
}

// embed 把字体写入 PDF：FontFile2 流、FontDescriptor 和 Font 字典
func (f *Font) embed(ctx *model.Context) (*types.IndirectRef, error) {
	ff, err := ctx.NewStreamDictForBuf(f.data)
	if err != nil {
		return nil, err
	}
	ff.Insert("Length1", types.Integer(len(f.data)))
	if err := ff.Encode(); err != nil {
		return nil, err
	}
	ffRef, err := ctx.IndRefForNewObject(*ff)
	if err != nil {
		return nil, err
	}

	scale := 1000 / f.unitsPerEm
	fd := types.Dict{
		"Type":        types.Name("FontDescriptor"),
		"FontName":    types.Name(f.baseFont),
		"Flags":       types.Integer(32), // Nonsymbolic
		"FontBBox":    floatArray(f.bbox[0]*scale, f.bbox[1]*scale, f.bbox[2]*scale, f.bbox[3]*scale),
		"ItalicAngle": types.Integer(0),
		"Ascent":      types.Float(f.ascent * scale),
		"Descent":     types.Float(-f.descent * scale),
		"CapHeight":   types.Float(f.capHeight * scale),
		"StemV":       types.Integer(80),
		"FontFile2":   *ffRef,
	}
	fdRef, err := ctx.IndRefForNewObject(fd)
	if err != nil {
		return nil, err
	}

	widths := make(types.Array, 0, lastChar-firstChar+1)
	for code := firstChar; code <= lastChar; code++ {
		widths = append(widths, types.Float(roundTo(f.widths[code], 3)))
	}

	fontDict := types.Dict{
		"Type":           types.Name("Font"),
		"Subtype":        types.Name("TrueType"),
		"BaseFont":       types.Name(f.baseFont),
		"FirstChar":      types.Integer(firstChar),
		"LastChar":       types.Integer(lastChar),
		"Widths":         widths,
		"Encoding":       types.Name("WinAnsiEncoding"),
		"FontDescriptor": *fdRef,
	}
	return ctx.IndRefForNewObject(fontDict)
}

func floatArray(vals ...float64) types.Array {
	arr := make(types.Array, len(vals))
	for i, v := range vals {
		arr[i] = types.Float(roundTo(v, 3))
	}
	return arr
}
