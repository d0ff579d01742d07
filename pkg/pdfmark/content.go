package pdfmark

import (
	"bytes"
	"encoding/hex"
	"math"
	"strconv"

	"seehuhn.de/go/geom/matrix"
)

// contentWriter 生成页面内容流操作符
type contentWriter struct {
	buf bytes.Buffer
}

func (w *contentWriter) writeOp(op string, operands ...string) {
	for _, o := range operands {
		w.buf.WriteString(o)
		w.buf.WriteByte(' ')
	}
	w.buf.WriteString(op)
	w.buf.WriteByte('\n')
}

func (w *contentWriter) SaveState()    { w.writeOp("q") }
func (w *contentWriter) RestoreState() { w.writeOp("Q") }
func (w *contentWriter) BeginText()    { w.writeOp("BT") }
func (w *contentWriter) EndText()      { w.writeOp("ET") }

// SetExtGState gs
func (w *contentWriter) SetExtGState(name string) {
	w.writeOp("gs", "/"+name)
}

// SetFillRGB rg，分量为 0..1
func (w *contentWriter) SetFillRGB(c ColorSpec) {
	w.writeOp("rg",
		formatNumber(c.R),
		formatNumber(c.G),
		formatNumber(c.B))
}

// SetFont Tf
func (w *contentWriter) SetFont(name string, size float64) {
	w.writeOp("Tf", "/"+name, formatNumber(size))
}

// SetTextMatrix Tm
func (w *contentWriter) SetTextMatrix(m matrix.Matrix) {
	ops := make([]string, 6)
	for i, v := range m {
		ops[i] = formatNumber(v)
	}
	w.writeOp("Tm", ops...)
}

// ShowText Tj，字符串以十六进制形式写出，避免转义
func (w *contentWriter) ShowText(encoded []byte) {
	w.writeOp("Tj", "<"+hex.EncodeToString(encoded)+">")
}

func (w *contentWriter) Bytes() []byte {
	return w.buf.Bytes()
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// formatNumber 输出最多 4 位小数的 PDF 实数，去掉多余的零
func formatNumber(v float64) string {
	v = roundTo(v, 4)
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
