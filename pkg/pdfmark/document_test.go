package pdfmark

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/novvoo/go-pdf-watermark/test"
)

func loadTestDocument(t *testing.T, pages []test.MockPage) *Document {
	t.Helper()
	doc, err := LoadBytes(test.GeneratePDF(pages), "sample.pdf")
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	return doc
}

func TestLoadBytes(t *testing.T) {
	doc := loadTestDocument(t, []test.MockPage{
		{},
		{MediaBox: [4]float64{0, 0, 595, 842}},
		{MediaBox: [4]float64{10, 20, 310, 420}},
	})

	if doc.PageCount() != 3 {
		t.Fatalf("PageCount() = %d, want 3", doc.PageCount())
	}
	if doc.Name() != "sample" {
		t.Errorf("Name() = %q, want sample", doc.Name())
	}

	want := []PageSize{
		{Width: 612, Height: 792},
		{Width: 595, Height: 842},
		{Width: 300, Height: 400, OriginX: 10, OriginY: 20},
	}
	for i, w := range want {
		got, err := doc.PageSize(i + 1)
		if err != nil {
			t.Fatalf("PageSize(%d): %v", i+1, err)
		}
		if diff := cmp.Diff(w, got); diff != "" {
			t.Errorf("PageSize(%d) mismatch (-want +got):\n%s", i+1, diff)
		}
	}

	if _, err := doc.PageSize(4); !errors.Is(err, ErrPageOutOfRange) {
		t.Errorf("PageSize(4) error = %v, want ErrPageOutOfRange", err)
	}
}

func TestLoadBytesCopiesInput(t *testing.T) {
	src := test.GeneratePDF(test.LetterPages(1))
	orig := bytes.Clone(src)
	doc, err := LoadBytes(src, "copy.pdf")
	if err != nil {
		t.Fatal(err)
	}

	for i := range src {
		src[i] = 0
	}
	if !bytes.Equal(doc.Bytes(), orig) {
		t.Fatal("document bytes changed with the caller's slice")
	}

	res, err := NewDocumentCompositor(ComposeOptions{}).Compose(context.Background(), doc, mustRenderContext(t, doc), NewPageOverlayStore(1))
	if err != nil {
		t.Fatalf("Compose after caller mutation: %v", err)
	}
	if !bytes.Equal(res.Data, orig) {
		t.Error("unchanged output differs from the loaded source")
	}
}

func mustRenderContext(t *testing.T, doc *Document) *RenderContext {
	t.Helper()
	rc, err := NewRenderContext(doc, 1)
	if err != nil {
		t.Fatal(err)
	}
	return rc
}

func TestLoadBytesRejectsInvalid(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("This is not a valid PDF file")} {
		_, err := LoadBytes(data, "bad.pdf")
		if err == nil {
			t.Fatalf("LoadBytes(%q) succeeded", data)
		}
		if KindOf(err) != KindDocumentOpenFailure {
			t.Errorf("KindOf(%v) = %v, want DocumentOpenFailure", err, KindOf(err))
		}
	}
}

func TestLoadFile(t *testing.T) {
	gen := test.NewMockPDFGenerator()
	defer gen.Cleanup()

	path, err := gen.GenerateMultiPagePDF(2)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if doc.PageCount() != 2 || doc.Name() != "multipage_2" {
		t.Errorf("got %d pages named %q", doc.PageCount(), doc.Name())
	}

	if _, err := LoadFile(filepath.Join(gen.TempDir(), "missing.pdf")); KindOf(err) != KindDocumentOpenFailure {
		t.Errorf("missing file error = %v, want DocumentOpenFailure", err)
	}
}

func TestLoadURL(t *testing.T) {
	data := test.GeneratePDF(test.LetterPages(2))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ".pdf") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(data)
	}))
	defer srv.Close()

	doc, err := LoadURL(context.Background(), srv.URL+"/files/report.pdf")
	if err != nil {
		t.Fatalf("LoadURL: %v", err)
	}
	if doc.PageCount() != 2 || doc.Name() != "report" {
		t.Errorf("got %d pages named %q", doc.PageCount(), doc.Name())
	}

	if _, err := LoadURL(context.Background(), srv.URL+"/missing"); KindOf(err) != KindDocumentOpenFailure {
		t.Errorf("404 error = %v, want DocumentOpenFailure", err)
	}
}

func TestDocumentName(t *testing.T) {
	tests := map[string]string{
		"":            "document",
		"a.pdf":       "a",
		"Report.PDF":  "Report",
		"notes.txt":   "notes.txt",
		"  spaced  ":  "spaced",
		"/":           "document",
		"archive.tar": "archive.tar",
	}
	for in, want := range tests {
		if got := documentName(in); got != want {
			t.Errorf("documentName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewRenderContext(t *testing.T) {
	doc := loadTestDocument(t, []test.MockPage{{}, {MediaBox: [4]float64{0, 0, 200, 100}}})

	rc, err := NewRenderContext(doc, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	want := []PageGeometry{
		{RenderWidth: 918, RenderHeight: 1188, NativeWidth: 612, NativeHeight: 792},
		{RenderWidth: 300, RenderHeight: 150, NativeWidth: 200, NativeHeight: 100},
	}
	if diff := cmp.Diff(want, rc.Pages); diff != "" {
		t.Errorf("geometry mismatch (-want +got):\n%s", diff)
	}

	if _, err := NewRenderContext(doc, 0); err == nil {
		t.Error("NewRenderContext accepted scale 0")
	}
}

func TestPageContent(t *testing.T) {
	data := test.GeneratePDF(test.LetterPages(2))
	ctx, err := ReadPDF(data)
	if err != nil {
		t.Fatal(err)
	}
	got, err := PageContent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(got), "(Page 2) Tj") {
		t.Errorf("page 2 content = %q", got)
	}
}

func TestMain(m *testing.M) {
	EnableLogging(false)
	os.Exit(m.Run())
}
