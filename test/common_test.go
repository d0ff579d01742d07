package test

import (
	"image"
	"image/png"
	"os"
	"testing"
)

// TestHelper 提供通用的测试辅助功能
type TestHelper struct {
	t *testing.T
}

// NewTestHelper 创建测试辅助工具
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// LoadAndValidateImage 加载并验证图片
func (h *TestHelper) LoadAndValidateImage(filename string) image.Image {
	file, err := os.Open(filename)
	if err != nil {
		h.t.Fatalf("Failed to open image: %v", err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		h.t.Fatalf("Failed to decode PNG: %v", err)
	}

	if img.Bounds().Empty() {
		h.t.Fatal("Image has empty bounds")
	}
	return img
}

// AssertFileExists 断言文件存在
func (h *TestHelper) AssertFileExists(filename string) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		h.t.Errorf("Expected file does not exist: %s", filename)
	}
}

// AssertNoError 断言没有错误
func (h *TestHelper) AssertNoError(err error, msg string) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("%s: %v", msg, err)
	}
}

// AssertError 断言有错误
func (h *TestHelper) AssertError(err error, msg string) {
	h.t.Helper()
	if err == nil {
		h.t.Errorf("%s: expected error but got none", msg)
	}
}

// AssertEqual 断言相等
func (h *TestHelper) AssertEqual(got, want any, msg string) {
	h.t.Helper()
	if got != want {
		h.t.Errorf("%s: got %v, want %v", msg, got, want)
	}
}

// AssertTrue 断言为真
func (h *TestHelper) AssertTrue(condition bool, msg string) {
	h.t.Helper()
	if !condition {
		h.t.Errorf("%s: expected true but got false", msg)
	}
}
