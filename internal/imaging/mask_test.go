package imaging

import (
	"image"
	"image/color"
	"testing"
)

func TestTextRegionMaskPadding(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)
	regions := []image.Rectangle{image.Rect(40, 40, 60, 50)}

	mask := TextRegionMask(bounds, regions, 5)

	if got := mask.GrayAt(50, 45).Y; got != 255 {
		t.Fatalf("inside region: gray = %d, want 255", got)
	}
	if got := mask.GrayAt(37, 45).Y; got != 255 {
		t.Fatalf("padded edge: gray = %d, want 255", got)
	}
	if got := mask.GrayAt(10, 10).Y; got != 0 {
		t.Fatalf("outside region: gray = %d, want 0", got)
	}
}

func TestTextRegionMaskClipsToBounds(t *testing.T) {
	bounds := image.Rect(0, 0, 20, 20)
	regions := []image.Rectangle{image.Rect(-10, -10, 5, 5), image.Rect(100, 100, 120, 120)}

	mask := TextRegionMask(bounds, regions, 5)
	if got := mask.GrayAt(0, 0).Y; got != 255 {
		t.Fatalf("clipped region: gray = %d, want 255", got)
	}
}

func TestCompositeCanvasAndBlend(t *testing.T) {
	subject := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			subject.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	// Background is a different size and must be resized to the subject.
	background := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			background.Set(x, y, color.RGBA{B: 255, A: 255})
		}
	}
	// Subject visible only in the left half.
	mask := image.NewGray(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 20; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	out := Composite(subject, background, mask)
	if out.Bounds() != subject.Bounds() {
		t.Fatalf("bounds = %v, want subject canvas %v", out.Bounds(), subject.Bounds())
	}
	r, _, _, _ := out.At(5, 20).RGBA()
	if r>>8 != 255 {
		t.Fatalf("masked-in pixel should keep subject red, got r=%d", r>>8)
	}
	_, _, b, _ := out.At(35, 20).RGBA()
	if b>>8 != 255 {
		t.Fatalf("masked-out pixel should show background blue, got b=%d", b>>8)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	dataURL, err := EncodeDataURL(img)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeDataURL(dataURL)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Fatalf("bounds = %v, want %v", decoded.Bounds(), img.Bounds())
	}
}

func TestDecodeDataURLRejectsGarbage(t *testing.T) {
	if _, err := DecodeDataURL("data:image/jpeg;base64,!!!"); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
	if _, err := Decode(nil); err == nil {
		t.Fatalf("expected error for empty data")
	}
}
