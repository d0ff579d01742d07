package pdfmark

import (
	"bytes"
	"context"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/novvoo/go-pdf-watermark/test"
)

// textMatrices 提取内容流中所有 Tm 操作数
func textMatrices(t *testing.T, content []byte) [][6]float64 {
	t.Helper()
	var out [][6]float64
	for _, line := range strings.Split(string(content), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 7 || fields[6] != "Tm" {
			continue
		}
		var m [6]float64
		for i := 0; i < 6; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				t.Fatalf("bad Tm operand %q: %v", fields[i], err)
			}
			m[i] = v
		}
		out = append(out, m)
	}
	return out
}

func composeStore(t *testing.T, doc *Document, store OverlaySource, opts ComposeOptions) *ExportResult {
	t.Helper()
	rc, err := NewRenderContext(doc, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	res, err := NewDocumentCompositor(opts).Compose(context.Background(), doc, rc, store)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	return res
}

func readOutput(t *testing.T, data []byte) *model.Context {
	t.Helper()
	ctx, err := ReadPDF(data)
	if err != nil {
		t.Fatalf("output does not parse: %v", err)
	}
	return ctx
}

func pageContent(t *testing.T, ctx *model.Context, page int) []byte {
	t.Helper()
	b, err := PageContent(ctx, page)
	if err != nil {
		t.Fatalf("PageContent(%d): %v", page, err)
	}
	return b
}

func resourceRef(t *testing.T, ctx *model.Context, page int, category, name string) types.IndirectRef {
	t.Helper()
	pageDict, _, _, err := ctx.PageDict(page, false)
	if err != nil {
		t.Fatal(err)
	}
	res, err := ctx.DereferenceDict(pageDict["Resources"])
	if err != nil || res == nil {
		t.Fatalf("page %d resources: %v", page, err)
	}
	sub, err := ctx.DereferenceDict(res[category])
	if err != nil || sub == nil {
		t.Fatalf("page %d /%s: %v", page, category, err)
	}
	ref, ok := sub[name].(types.IndirectRef)
	if !ok {
		t.Fatalf("page %d /%s/%s = %v", page, category, name, sub[name])
	}
	return ref
}

func confidential() WatermarkDescriptor {
	return WatermarkDescriptor{
		Text:      "CONFIDENTIAL",
		FontSize:  32,
		FillColor: "#ff0000",
		Opacity:   0.3,
		Anchor:    Point{X: 50, Y: 50},
		Pattern:   PatternSingle,
	}
}

func TestComposeSinglePlacement(t *testing.T) {
	src := test.GeneratePDF(test.LetterPages(2))
	doc, err := LoadBytes(src, "contract.pdf")
	if err != nil {
		t.Fatal(err)
	}

	store := NewPageOverlayStore(2)
	store.Restore(1)
	d := confidential()
	if err := store.Add(Expand(d, PageGeometry{})[0]); err != nil {
		t.Fatal(err)
	}

	res := composeStore(t, doc, store, ComposeOptions{})
	if res.DrawCount != 1 {
		t.Errorf("DrawCount = %d, want 1", res.DrawCount)
	}
	if res.FileName != "contract.pdf" {
		t.Errorf("FileName = %q, want contract.pdf", res.FileName)
	}
	if len(res.PageErrors) != 0 || len(res.Warnings) != 0 {
		t.Errorf("unexpected errors %v warnings %v", res.PageErrors, res.Warnings)
	}

	out := readOutput(t, res.Data)
	content := pageContent(t, out, 1)

	tms := textMatrices(t, content)
	if len(tms) != 1 {
		t.Fatalf("page 1 has %d text draws, want 1:\n%s", len(tms), content)
	}

	font, _ := DefaultFont()
	size := 32 / 1.5
	wantX := 50 * (612.0 / 918.0)
	wantY := 792 - 50*(792.0/1188.0) - font.Ascent(size)
	got := tms[0]
	if got[0] != 1 || got[3] != 1 || math.Abs(got[4]-wantX) > 1e-3 || math.Abs(got[5]-wantY) > 1e-3 {
		t.Errorf("Tm = %v, want translation (%.4f, %.4f)", got, wantX, wantY)
	}
	if !bytes.Contains(content, []byte("/WmF "+formatNumber(size)+" Tf")) {
		t.Errorf("missing font selection in:\n%s", content)
	}
	if !bytes.Contains(content, []byte("1 0 0 rg")) {
		t.Errorf("missing fill color in:\n%s", content)
	}
	if !bytes.Contains(content, []byte("(Page 1) Tj")) {
		t.Errorf("original page content lost:\n%s", content)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(content), []byte("q")) {
		t.Errorf("original content not wrapped in q/Q:\n%s", content)
	}

	gsRef := resourceRef(t, out, 1, "ExtGState", "WmGS0300")
	gs, err := out.DereferenceDict(gsRef)
	if err != nil {
		t.Fatal(err)
	}
	if ca, ok := gs["ca"].(types.Float); !ok || math.Abs(float64(ca)-0.3) > 1e-9 {
		t.Errorf("ExtGState ca = %v, want 0.3", gs["ca"])
	}
	resourceRef(t, out, 1, "Font", "F1")

	srcCtx := readOutput(t, src)
	if !bytes.Equal(pageContent(t, srcCtx, 2), pageContent(t, out, 2)) {
		t.Error("page 2 content changed")
	}
	if len(textMatrices(t, pageContent(t, out, 2))) != 0 {
		t.Error("page 2 has watermark draws")
	}
}

func TestComposeRotationAndMultiline(t *testing.T) {
	doc := loadTestDocument(t, test.LetterPages(1))
	store := NewPageOverlayStore(1)
	store.Restore(1)

	d := confidential()
	d.Text = "TOP\nSECRET"
	d.RotationDegrees = -90
	store.Add(Expand(d, PageGeometry{})[0])

	res := composeStore(t, doc, store, ComposeOptions{LineHeight: 1.16})
	tms := textMatrices(t, pageContent(t, readOutput(t, res.Data), 1))
	if len(tms) != 2 {
		t.Fatalf("got %d text draws, want 2", len(tms))
	}

	// 渲染空间顺时针 -90° 在原生空间为逆时针 90°
	for _, m := range tms {
		if math.Abs(m[0]) > 1e-4 || math.Abs(m[1]-1) > 1e-4 || math.Abs(m[2]+1) > 1e-4 || math.Abs(m[3]) > 1e-4 {
			t.Errorf("Tm %v is not a 90° counter-clockwise rotation", m)
		}
	}

	// 两行原点在页面空间中竖直相距一个行距，旋转不影响原点
	size := 32 / 1.5
	dx := tms[1][4] - tms[0][4]
	dy := tms[1][5] - tms[0][5]
	if math.Abs(dx) > 1e-3 || math.Abs(dy+size*1.16) > 1e-3 {
		t.Errorf("line offset = (%g, %g), want (0, %g)", dx, dy, -size*1.16)
	}
}

func TestComposeRotatedLineOrigins(t *testing.T) {
	doc := loadTestDocument(t, test.LetterPages(1))
	store := NewPageOverlayStore(1)
	store.Restore(1)

	d := confidential()
	d.Text = "TOP\nSECRET"
	d.RotationDegrees = -45
	store.Add(Expand(d, PageGeometry{})[0])

	res := composeStore(t, doc, store, ComposeOptions{})
	tms := textMatrices(t, pageContent(t, readOutput(t, res.Data), 1))
	if len(tms) != 2 {
		t.Fatalf("got %d text draws, want 2", len(tms))
	}

	font, err := loadDefaultFont()
	if err != nil {
		t.Fatal(err)
	}
	size := 32 / 1.5
	c := math.Sqrt2 / 2
	for i, m := range tms {
		wantX := 50 / 1.5
		wantY := 792 - 50/1.5 - font.Ascent(size) - float64(i)*size*DefaultLineHeight
		if math.Abs(m[4]-wantX) > 1e-3 || math.Abs(m[5]-wantY) > 1e-3 {
			t.Errorf("line %d origin = (%g, %g), want (%g, %g)", i, m[4], m[5], wantX, wantY)
		}
		// 渲染空间 -45° 在原生空间为逆时针 45°
		if math.Abs(m[0]-c) > 1e-4 || math.Abs(m[1]-c) > 1e-4 || math.Abs(m[2]+c) > 1e-4 || math.Abs(m[3]-c) > 1e-4 {
			t.Errorf("line %d Tm %v is not a 45° counter-clockwise rotation", i, m)
		}
	}
}

func TestComposeUnrotatedMultilineDescends(t *testing.T) {
	doc := loadTestDocument(t, test.LetterPages(1))
	store := NewPageOverlayStore(1)
	store.Restore(1)

	d := confidential()
	d.Text = "one\ntwo\nthree"
	store.Add(Expand(d, PageGeometry{})[0])

	res := composeStore(t, doc, store, ComposeOptions{})
	tms := textMatrices(t, pageContent(t, readOutput(t, res.Data), 1))
	if len(tms) != 3 {
		t.Fatalf("got %d text draws, want 3", len(tms))
	}
	step := 32 / 1.5 * DefaultLineHeight
	for i := 1; i < 3; i++ {
		if got := tms[i-1][5] - tms[i][5]; math.Abs(got-step) > 1e-3 {
			t.Errorf("line %d baseline step = %g, want %g", i, got, step)
		}
	}
}

func TestComposeClearAllReproducesSource(t *testing.T) {
	src := test.GeneratePDF(test.LetterPages(2))
	doc, err := LoadBytes(src, "")
	if err != nil {
		t.Fatal(err)
	}
	rc, _ := NewRenderContext(doc, 1.5)

	store := NewPageOverlayStore(2)
	store.ApplyToAllPages(DefaultDescriptor(), rc)
	store.ClearAll()

	res := composeStore(t, doc, store, ComposeOptions{})
	if !bytes.Equal(res.Data, src) {
		t.Error("output differs from source after ClearAll")
	}
	if res.FileName != "document.pdf" {
		t.Errorf("FileName = %q, want document.pdf", res.FileName)
	}
}

func TestComposeFallbackColor(t *testing.T) {
	doc := loadTestDocument(t, test.LetterPages(1))
	store := NewPageOverlayStore(1)
	store.Restore(1)

	bad := confidential()
	bad.FillColor = "chartreuse-ish"
	store.Add(Expand(bad, PageGeometry{})[0])
	good := confidential()
	good.Anchor = Point{X: 200, Y: 200}
	store.Add(Expand(good, PageGeometry{})[0])

	res := composeStore(t, doc, store, ComposeOptions{})
	if res.DrawCount != 2 {
		t.Errorf("DrawCount = %d, want 2", res.DrawCount)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != KindUnparsableColor || res.Warnings[0].Page != 1 {
		t.Errorf("warnings = %v, want one UnparsableColor on page 1", res.Warnings)
	}
	content := pageContent(t, readOutput(t, res.Data), 1)
	if !bytes.Contains(content, []byte("0 0 0 rg")) {
		t.Errorf("fallback black not used:\n%s", content)
	}
}

func TestComposeOutOfRangeAlphaKeepsColor(t *testing.T) {
	doc := loadTestDocument(t, test.LetterPages(1))
	store := NewPageOverlayStore(1)
	store.Restore(1)

	d := confidential()
	d.FillColor = "rgba(255,0,0,1.5)"
	d.Opacity = 0.4
	store.Add(Expand(d, PageGeometry{})[0])

	res := composeStore(t, doc, store, ComposeOptions{})
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", res.Warnings)
	}
	content := pageContent(t, readOutput(t, res.Data), 1)
	if !bytes.Contains(content, []byte("1 0 0 rg")) {
		t.Errorf("red fill not used:\n%s", content)
	}
	// 0.4 × 1.5 = 0.6
	if !bytes.Contains(content, []byte("/WmGS0600 gs")) {
		t.Errorf("opacity 0.6 state not selected:\n%s", content)
	}
}

func TestComposeSharesFontAndGState(t *testing.T) {
	doc := loadTestDocument(t, test.LetterPages(2))
	rc, _ := NewRenderContext(doc, 1.5)
	store := NewPageOverlayStore(2)

	d := confidential()
	d.Pattern = PatternGrid
	if err := store.ApplyToAllPages(d, rc); err != nil {
		t.Fatal(err)
	}

	res := composeStore(t, doc, store, ComposeOptions{})
	if res.DrawCount != 18 {
		t.Errorf("DrawCount = %d, want 18", res.DrawCount)
	}

	out := readOutput(t, res.Data)
	f1 := resourceRef(t, out, 1, "Font", "WmF")
	f2 := resourceRef(t, out, 2, "Font", "WmF")
	if f1.ObjectNumber != f2.ObjectNumber {
		t.Errorf("font embedded twice: %v vs %v", f1, f2)
	}
	g1 := resourceRef(t, out, 1, "ExtGState", "WmGS0300")
	g2 := resourceRef(t, out, 2, "ExtGState", "WmGS0300")
	if g1.ObjectNumber != g2.ObjectNumber {
		t.Errorf("ExtGState duplicated: %v vs %v", g1, g2)
	}
}

func TestComposeRGBAOpacity(t *testing.T) {
	doc := loadTestDocument(t, test.LetterPages(1))
	store := NewPageOverlayStore(1)
	store.Restore(1)

	d := confidential()
	d.FillColor = "rgba(0, 0, 255, 0.5)"
	d.Opacity = 0.8
	store.Add(Expand(d, PageGeometry{})[0])

	res := composeStore(t, doc, store, ComposeOptions{})
	out := readOutput(t, res.Data)
	resourceRef(t, out, 1, "ExtGState", "WmGS0400")
	if !bytes.Contains(pageContent(t, out, 1), []byte("/WmGS0400 gs")) {
		t.Error("combined opacity 0.4 not used")
	}
}

func TestComposePageWithoutContents(t *testing.T) {
	doc := loadTestDocument(t, []test.MockPage{{NoContents: true}})
	store := NewPageOverlayStore(1)
	store.Restore(1)
	store.Add(Expand(confidential(), PageGeometry{})[0])

	res := composeStore(t, doc, store, ComposeOptions{})
	if n := len(textMatrices(t, pageContent(t, readOutput(t, res.Data), 1))); n != 1 {
		t.Errorf("got %d draws on empty page, want 1", n)
	}
}

func TestComposeSkipsEmptyText(t *testing.T) {
	doc := loadTestDocument(t, test.LetterPages(1))
	store := NewPageOverlayStore(1)
	store.Restore(1)
	pw := Expand(confidential(), PageGeometry{})[0]
	pw.Text = ""
	store.Add(pw)

	res := composeStore(t, doc, store, ComposeOptions{})
	if res.DrawCount != 0 {
		t.Errorf("DrawCount = %d, want 0", res.DrawCount)
	}
}

func TestComposePageCountDrift(t *testing.T) {
	doc := loadTestDocument(t, test.LetterPages(2))
	store := NewPageOverlayStore(3)
	store.Restore(3)
	store.Add(Expand(confidential(), PageGeometry{})[0])

	res := composeStore(t, doc, store, ComposeOptions{})
	if len(res.Warnings) == 0 || res.Warnings[0].Kind != KindGeometryMismatch {
		t.Errorf("warnings = %v, want page count drift", res.Warnings)
	}
	if res.DrawCount != 0 {
		t.Errorf("DrawCount = %d, want 0", res.DrawCount)
	}
}

func TestComposeGeometryMismatchWarns(t *testing.T) {
	doc := loadTestDocument(t, test.LetterPages(1))
	rc := &RenderContext{
		TotalPages:  1,
		RenderScale: 1,
		Pages:       []PageGeometry{{RenderWidth: 800, RenderHeight: 600, NativeWidth: 800, NativeHeight: 600}},
	}
	store := NewPageOverlayStore(1)
	store.Restore(1)
	store.Add(Expand(confidential(), PageGeometry{})[0])

	res, err := NewDocumentCompositor(ComposeOptions{}).Compose(context.Background(), doc, rc, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != KindGeometryMismatch {
		t.Errorf("warnings = %v, want one GeometryMismatch", res.Warnings)
	}
	if res.DrawCount != 1 {
		t.Errorf("DrawCount = %d, want 1", res.DrawCount)
	}
}

func TestComposeCanceled(t *testing.T) {
	doc := loadTestDocument(t, test.LetterPages(2))
	rc, _ := NewRenderContext(doc, 1.5)
	store := NewPageOverlayStore(2)
	store.ApplyToAllPages(confidential(), rc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewDocumentCompositor(ComposeOptions{}).Compose(ctx, doc, rc, store)
	if res != nil {
		t.Error("canceled compose returned output")
	}
	if KindOf(err) != KindCanceled {
		t.Errorf("error = %v, want Canceled", err)
	}
}

func TestComposeMediaBoxOrigin(t *testing.T) {
	doc := loadTestDocument(t, []test.MockPage{{MediaBox: [4]float64{100, 200, 712, 992}}})
	store := NewPageOverlayStore(1)
	store.Restore(1)
	d := confidential()
	d.Anchor = Point{}
	store.Add(Expand(d, PageGeometry{})[0])

	res := composeStore(t, doc, store, ComposeOptions{})
	tms := textMatrices(t, pageContent(t, readOutput(t, res.Data), 1))
	if len(tms) != 1 {
		t.Fatalf("got %d draws", len(tms))
	}
	font, _ := DefaultFont()
	wantY := 992 - font.Ascent(32/1.5)
	if math.Abs(tms[0][4]-100) > 1e-3 || math.Abs(tms[0][5]-wantY) > 1e-3 {
		t.Errorf("Tm translation = (%g, %g), want (100, %g)", tms[0][4], tms[0][5], wantY)
	}
}

func TestOutputFileName(t *testing.T) {
	tests := []struct{ name, doc, want string }{
		{"", "", "document.pdf"},
		{"", "invoice", "invoice.pdf"},
		{"marked", "invoice", "marked.pdf"},
		{"final.PDF", "x", "final.PDF"},
	}
	for _, tt := range tests {
		if got := outputFileName(tt.name, tt.doc); got != tt.want {
			t.Errorf("outputFileName(%q, %q) = %q, want %q", tt.name, tt.doc, got, tt.want)
		}
	}
}
