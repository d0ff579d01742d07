package pdfmark

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ColorSpec 归一化后的颜色
// R/G/B 位于 [0,1]；OpacityMultiplier 来自 rgba() 的 alpha，调用方将其乘进水印自身的不透明度
type ColorSpec struct {
	R, G, B           float64
	OpacityMultiplier float64
}

// FallbackColor 颜色无法解析时使用的回退值：黑色，不改变不透明度
var FallbackColor = ColorSpec{R: 0, G: 0, B: 0, OpacityMultiplier: 1}

// ParseColor 解析 #RGB、#RRGGBB、rgb(r,g,b)、rgba(r,g,b,a)
// 无法识别或格式错误时返回包装了 ErrUnparsableColor 的错误
func ParseColor(raw string) (ColorSpec, error) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)

	switch {
	case strings.HasPrefix(lower, "#"):
		return parseHexColor(raw, lower[1:])
	case strings.HasPrefix(lower, "rgba("):
		return parseFuncColor(raw, lower[len("rgba("):], 4)
	case strings.HasPrefix(lower, "rgb("):
		return parseFuncColor(raw, lower[len("rgb("):], 3)
	}
	return FallbackColor, fmt.Errorf("%w: %q", ErrUnparsableColor, raw)
}

func parseHexColor(raw, hex string) (ColorSpec, error) {
	var r, g, b uint32
	var ok bool

	switch len(hex) {
	case 3:
		var rr, gg, bb uint32
		ok = parseHexDigits(hex[0:1], &rr) && parseHexDigits(hex[1:2], &gg) && parseHexDigits(hex[2:3], &bb)
		r, g, b = rr*17, gg*17, bb*17
	case 6:
		ok = parseHexDigits(hex[0:2], &r) && parseHexDigits(hex[2:4], &g) && parseHexDigits(hex[4:6], &b)
	}
	if !ok {
		return FallbackColor, fmt.Errorf("%w: bad hex color %q", ErrUnparsableColor, raw)
	}

	return ColorSpec{
		R:                 float64(r) / 255,
		G:                 float64(g) / 255,
		B:                 float64(b) / 255,
		OpacityMultiplier: 1,
	}, nil
}

// parseHexDigits 只接受小写十六进制（调用方已转小写）
func parseHexDigits(s string, val *uint32) bool {
	*val = 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		*val *= 16
		switch {
		case '0' <= c && c <= '9':
			*val += uint32(c - '0')
		case 'a' <= c && c <= 'f':
			*val += uint32(c - 'a' + 10)
		default:
			return false
		}
	}
	return true
}

func parseFuncColor(raw, body string, want int) (ColorSpec, error) {
	if !strings.HasSuffix(body, ")") {
		return FallbackColor, fmt.Errorf("%w: missing ')' in %q", ErrUnparsableColor, raw)
	}
	parts := strings.Split(strings.TrimSuffix(body, ")"), ",")
	if len(parts) != want {
		return FallbackColor, fmt.Errorf("%w: want %d components in %q", ErrUnparsableColor, want, raw)
	}

	vals := make([]float64, want)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return FallbackColor, fmt.Errorf("%w: bad component %q in %q", ErrUnparsableColor, p, raw)
		}
		vals[i] = v
	}

	// 通道按字面值除以 255 后截断到 [0,1]；alpha 原样作为乘数，最终不透明度由 resolveFill 截断
	c := ColorSpec{
		R:                 clamp01(vals[0] / 255),
		G:                 clamp01(vals[1] / 255),
		B:                 clamp01(vals[2] / 255),
		OpacityMultiplier: 1,
	}
	if want == 4 {
		c.OpacityMultiplier = vals[3]
	}
	return c, nil
}

// Hex 按 #rrggbb 重新编码颜色（忽略不透明度）
func (c ColorSpec) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", to8(c.R), to8(c.G), to8(c.B))
}

func to8(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// resolveFill 解析填充色并把 alpha 乘入不透明度；失败时回退为黑色
func resolveFill(raw string, opacity float64) (ColorSpec, float64, error) {
	c, err := ParseColor(raw)
	if err != nil {
		return FallbackColor, clamp01(opacity), err
	}
	return c, clamp01(opacity * c.OpacityMultiplier), nil
}
