package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// TextRegionMask renders an inpainting mask for the given text bounding
// boxes: white padded rectangles on a black canvas matching bounds. White
// pixels mark the area the provider should repaint.
func TextRegionMask(bounds image.Rectangle, regions []image.Rectangle, padding int) *image.Gray {
	mask := image.NewGray(bounds)
	white := image.NewUniform(color.White)
	for _, r := range regions {
		padded := r.Inset(-padding).Intersect(bounds)
		if padded.Empty() {
			continue
		}
		draw.Draw(mask, padded, white, image.Point{}, draw.Src)
	}
	return mask
}

// DecodeMask parses mask bytes (any supported format) into a grayscale image.
func DecodeMask(data []byte) (*image.Gray, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("imaging: decode mask: %w", err)
	}
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray, nil
}

// Composite pastes the subject over a generated background using the
// segmentation mask as the subject's alpha channel. Background and mask are
// resized to the subject's canvas first.
func Composite(subject, background, mask image.Image) image.Image {
	bounds := subject.Bounds()

	scaledBG := image.NewRGBA(bounds)
	xdraw.ApproxBiLinear.Scale(scaledBG, bounds, background, background.Bounds(), xdraw.Src, nil)

	scaledMask := image.NewGray(bounds)
	xdraw.ApproxBiLinear.Scale(scaledMask, bounds, mask, mask.Bounds(), xdraw.Src, nil)

	alpha := image.NewAlpha(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			alpha.SetAlpha(x, y, color.Alpha{A: scaledMask.GrayAt(x, y).Y})
		}
	}

	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, scaledBG, bounds.Min, draw.Src)
	draw.DrawMask(out, bounds, subject, bounds.Min, alpha, bounds.Min, draw.Over)
	return out
}
