package test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MockPage 测试 PDF 中的一页
type MockPage struct {
	// MediaBox [llx lly urx ury]，零值为 Letter
	MediaBox [4]float64
	// Content 页面内容流；为空时写一行 "Page N"
	Content string
	// NoContents 不写 /Contents
	NoContents bool
}

// MockPDFGenerator 用于生成测试用的 PDF 文件
// 输出带正确 xref 偏移，可被严格的解析器读取
type MockPDFGenerator struct {
	tempDir string
}

// NewMockPDFGenerator 创建 mock PDF 生成器
func NewMockPDFGenerator() *MockPDFGenerator {
	tempDir, err := os.MkdirTemp("", "pdfmark_test")
	if err != nil {
		tempDir = filepath.Join(os.TempDir(), "pdfmark_test")
		os.MkdirAll(tempDir, 0755)
	}
	return &MockPDFGenerator{
		tempDir: tempDir,
	}
}

// Cleanup 清理临时文件
func (m *MockPDFGenerator) Cleanup() {
	os.RemoveAll(m.tempDir)
}

// TempDir 临时目录
func (m *MockPDFGenerator) TempDir() string {
	return m.tempDir
}

// LetterPages 生成 n 个 Letter 尺寸的默认页面
func LetterPages(n int) []MockPage {
	pages := make([]MockPage, n)
	return pages
}

// PageContent 默认页面内容
func PageContent(page int) string {
	return fmt.Sprintf("BT\n/F1 24 Tf\n72 720 Td\n(Page %d) Tj\nET\n", page)
}

// GeneratePDF 生成包含给定页面的 PDF
// 对象布局：1 Catalog，2 Pages，3 共享字体，之后每页依次为 Page 和内容流
func GeneratePDF(pages []MockPage) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	kids := make([]string, len(pages))
	next := 4
	for i, p := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", next)
		next++
		if !p.NoContents {
			next++
		}
	}

	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, p := range pages {
		mb := p.MediaBox
		if mb == ([4]float64{}) {
			mb = [4]float64{0, 0, 612, 792}
		}
		pageObj := len(offsets) + 1
		page := fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [%g %g %g %g] /Resources << /Font << /F1 3 0 R >> >>",
			mb[0], mb[1], mb[2], mb[3])
		if !p.NoContents {
			page += fmt.Sprintf(" /Contents %d 0 R", pageObj+1)
		}
		obj(page + " >>")

		if !p.NoContents {
			content := p.Content
			if content == "" {
				content = PageContent(i + 1)
			}
			obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
		}
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return buf.Bytes()
}

// GenerateSimplePDF 生成单页 PDF 文件
func (m *MockPDFGenerator) GenerateSimplePDF() (string, error) {
	return m.WritePDF("simple.pdf", LetterPages(1))
}

// GenerateMultiPagePDF 生成多页 PDF 文件
func (m *MockPDFGenerator) GenerateMultiPagePDF(pageCount int) (string, error) {
	return m.WritePDF(fmt.Sprintf("multipage_%d.pdf", pageCount), LetterPages(pageCount))
}

// WritePDF 把 GeneratePDF 的结果写到临时目录
func (m *MockPDFGenerator) WritePDF(name string, pages []MockPage) (string, error) {
	pdfPath := filepath.Join(m.tempDir, name)
	if err := os.WriteFile(pdfPath, GeneratePDF(pages), 0644); err != nil {
		return "", err
	}
	return pdfPath, nil
}

// GenerateInvalidPDF 生成无法解析的文件
func (m *MockPDFGenerator) GenerateInvalidPDF() (string, error) {
	pdfPath := filepath.Join(m.tempDir, "invalid.pdf")
	content := "This is not a valid PDF file"
	if err := os.WriteFile(pdfPath, []byte(content), 0644); err != nil {
		return "", err
	}
	return pdfPath, nil
}
