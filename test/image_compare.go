package test

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// ImageComparison 两张图像的差异统计
type ImageComparison struct {
	PSNR            float64 // 峰值信噪比，完全相同时为 +Inf
	MSE             float64 // 均方误差
	PixelDiff       int     // 不同像素数
	TotalPixels     int     // 总像素数
	DifferenceRatio float64 // 差异比例
	Diff            *image.RGBA
}

// CompareImages 逐像素比较两张同尺寸图像
// 差异强度大于 threshold 的像素计为不同，并在 Diff 中以红色标出
func CompareImages(img1, img2 image.Image, threshold float64) (*ImageComparison, error) {
	bounds1 := img1.Bounds()
	bounds2 := img2.Bounds()

	if bounds1.Dx() != bounds2.Dx() || bounds1.Dy() != bounds2.Dy() {
		return nil, fmt.Errorf("image dimensions don't match: %dx%d vs %dx%d",
			bounds1.Dx(), bounds1.Dy(), bounds2.Dx(), bounds2.Dy())
	}

	width := bounds1.Dx()
	height := bounds1.Dy()
	totalPixels := width * height
	diffImg := image.NewRGBA(image.Rect(0, 0, width, height))

	var mse float64
	pixelDiff := 0

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r1, g1, b1, _ := img1.At(bounds1.Min.X+x, bounds1.Min.Y+y).RGBA()
			r2, g2, b2, _ := img2.At(bounds2.Min.X+x, bounds2.Min.Y+y).RGBA()

			dr := float64(r1>>8) - float64(r2>>8)
			dg := float64(g1>>8) - float64(g2>>8)
			db := float64(b1>>8) - float64(b2>>8)
			mse += dr*dr + dg*dg + db*db

			diff := math.Sqrt(dr*dr + dg*dg + db*db)
			if diff > threshold {
				pixelDiff++
				intensity := uint8(math.Min(diff*2, 255))
				diffImg.SetRGBA(x, y, color.RGBA{R: intensity, A: 255})
			} else {
				gray := uint8((r1>>8 + g1>>8 + b1>>8) / 3)
				diffImg.SetRGBA(x, y, color.RGBA{R: gray, G: gray, B: gray, A: 255})
			}
		}
	}

	cmp := &ImageComparison{
		PixelDiff:   pixelDiff,
		TotalPixels: totalPixels,
		Diff:        diffImg,
	}
	if totalPixels > 0 {
		cmp.MSE = mse / float64(totalPixels*3)
		cmp.DifferenceRatio = float64(pixelDiff) / float64(totalPixels)
	}
	cmp.PSNR = math.Inf(1)
	if cmp.MSE > 0 {
		cmp.PSNR = 10 * math.Log10(255*255/cmp.MSE)
	}
	return cmp, nil
}
