package pdfmark

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Point 二维点；渲染空间单位为像素，原生空间单位为点 (point)
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Pattern 水印的复制规则
type Pattern int

const (
	PatternSingle Pattern = iota
	PatternDiagonal
	PatternGrid
	PatternCenter
)

func (p Pattern) String() string {
	switch p {
	case PatternSingle:
		return "single"
	case PatternDiagonal:
		return "diagonal"
	case PatternGrid:
		return "grid"
	case PatternCenter:
		return "center"
	}
	return fmt.Sprintf("Pattern(%d)", int(p))
}

// ParsePattern 解析模式名称（不区分大小写）
func ParsePattern(s string) (Pattern, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return PatternSingle, nil
	case "diagonal":
		return PatternDiagonal, nil
	case "grid":
		return PatternGrid, nil
	case "center":
		return PatternCenter, nil
	}
	return PatternSingle, fmt.Errorf("%w: unknown pattern %q", ErrInvalidDescriptor, s)
}

// MarshalYAML 以名称形式输出
func (p Pattern) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// UnmarshalYAML 接受模式名称
func (p *Pattern) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := ParsePattern(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// WatermarkDescriptor 用户编辑的水印模板
type WatermarkDescriptor struct {
	Text            string  `yaml:"text"`
	FontSize        float64 `yaml:"font_size"`
	FillColor       string  `yaml:"color"`
	Opacity         float64 `yaml:"opacity"`
	RotationDegrees float64 `yaml:"angle"`
	Anchor          Point   `yaml:"position"`
	Pattern         Pattern `yaml:"pattern"`
}

// DefaultDescriptor 与编辑器表单的初始值一致
func DefaultDescriptor() WatermarkDescriptor {
	return WatermarkDescriptor{
		Text:            "CONFIDENTIAL",
		FontSize:        32,
		FillColor:       "rgba(255, 0, 0, 0.3)",
		Opacity:         0.3,
		RotationDegrees: -45,
		Anchor:          Point{X: 50, Y: 50},
		Pattern:         PatternDiagonal,
	}
}

// Validate 检查描述符是否可以展开
func (d WatermarkDescriptor) Validate() error {
	if d.Text == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidDescriptor)
	}
	if !(d.FontSize > 0) {
		return fmt.Errorf("%w: font size %g must be positive", ErrInvalidDescriptor, d.FontSize)
	}
	if d.Opacity < 0 || d.Opacity > 1 {
		return fmt.Errorf("%w: opacity %g outside [0,1]", ErrInvalidDescriptor, d.Opacity)
	}
	if d.Pattern < PatternSingle || d.Pattern > PatternCenter {
		return fmt.Errorf("%w: unknown pattern %d", ErrInvalidDescriptor, int(d.Pattern))
	}
	return nil
}

// PlacedWatermark 某一页上的一个具体水印实例
// Position 为渲染空间左上角坐标（y 向下）
type PlacedWatermark struct {
	Text            string  `yaml:"text"`
	FontSize        float64 `yaml:"font_size"`
	FillColor       string  `yaml:"color"`
	Opacity         float64 `yaml:"opacity"`
	RotationDegrees float64 `yaml:"angle"`
	Position        Point   `yaml:"position"`
	Editable        bool    `yaml:"editable"`
	Selectable      bool    `yaml:"selectable"`
}

func (d WatermarkDescriptor) place(at Point, rotation float64, editable, selectable bool) PlacedWatermark {
	return PlacedWatermark{
		Text:            d.Text,
		FontSize:        d.FontSize,
		FillColor:       d.FillColor,
		Opacity:         d.Opacity,
		RotationDegrees: rotation,
		Position:        at,
		Editable:        editable,
		Selectable:      selectable,
	}
}
