package pdfmark

// 模式网格定义在固定的名义设计画布上，与实际页面尺寸无关；
// 超出小页面的实例在合成时照常绘制，不做裁剪。
const (
	centerX = 400
	centerY = 300

	gridStartX = 100
	gridStepX  = 300
	gridEndX   = 800
	gridStartY = 100
	gridStepY  = 200
	gridEndY   = 600

	diagonalStep     = 200
	diagonalEnd      = 1000
	diagonalRotation = 45
)

// Expand 把一个描述符展开为某页上的具体水印
// 纯函数：相同输入总是得到相同序列
func Expand(d WatermarkDescriptor, _ PageGeometry) []PlacedWatermark {
	switch d.Pattern {
	case PatternCenter:
		return []PlacedWatermark{d.place(Point{X: centerX, Y: centerY}, d.RotationDegrees, false, false)}

	case PatternGrid:
		out := make([]PlacedWatermark, 0, 9)
		for x := gridStartX; x < gridEndX; x += gridStepX {
			for y := gridStartY; y < gridEndY; y += gridStepY {
				out = append(out, d.place(Point{X: float64(x), Y: float64(y)}, d.RotationDegrees, false, false))
			}
		}
		return out

	case PatternDiagonal:
		out := make([]PlacedWatermark, 0, 25)
		for x := 0; x < diagonalEnd; x += diagonalStep {
			for y := 0; y < diagonalEnd; y += diagonalStep {
				out = append(out, d.place(Point{X: float64(x), Y: float64(y)}, d.RotationDegrees+diagonalRotation, false, false))
			}
		}
		return out
	}

	return []PlacedWatermark{d.place(d.Anchor, d.RotationDegrees, true, true)}
}
