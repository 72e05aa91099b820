package processing

import (
	"context"
	"image"
	"image/color"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"photoflow/internal/domain"
	"photoflow/internal/imaging"
	"photoflow/internal/providers/modelscope"
	"photoflow/internal/providers/vision"
)

type fakeGenerator struct {
	generateVariants []modelscope.Variant
	generateErr      error
	inpaintVariants  []modelscope.Variant
	inpaintErr       error

	lastGeneratePrompt string
	inpaintCalls       int
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, width, height int) ([]modelscope.Variant, error) {
	g.lastGeneratePrompt = prompt
	return g.generateVariants, g.generateErr
}

func (g *fakeGenerator) Inpaint(ctx context.Context, imageB64, maskB64, prompt string) ([]modelscope.Variant, error) {
	g.inpaintCalls++
	return g.inpaintVariants, g.inpaintErr
}

type fakeDetector struct {
	regions []vision.TextRegion
	err     error
}

func (d *fakeDetector) DetectText(ctx context.Context, img image.Image) ([]vision.TextRegion, error) {
	return d.regions, d.err
}

type fakeSegmenter struct {
	mask image.Image
	err  error
}

func (s *fakeSegmenter) SegmentSubject(ctx context.Context, img image.Image) (image.Image, error) {
	return s.mask, s.err
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

func fullMask(w, h int) image.Image {
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return mask
}

func jpegVariant(t *testing.T, w, h int) modelscope.Variant {
	t.Helper()
	data, err := imaging.EncodeJPEG(testImage(w, h))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return modelscope.Variant{Data: data, Format: "image/jpeg", Width: w, Height: h}
}

func TestTextRemovalWithoutRegionsKeepsOriginal(t *testing.T) {
	gen := &fakeGenerator{}
	p := NewItemProcessor(gen, &fakeDetector{}, &fakeSegmenter{}, testLogger())

	out := p.ProcessItem(context.Background(), testImage(32, 24), []domain.OperationType{domain.OperationTextRemoval}, "")
	if !out.Success {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if gen.inpaintCalls != 0 {
		t.Fatalf("inpaint must not be called when no text was found")
	}
	if len(out.Outputs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(out.Outputs))
	}
	decoded, err := imaging.Decode(out.Outputs[0].Data)
	if err != nil {
		t.Fatalf("output not decodable: %v", err)
	}
	if decoded.Bounds() != image.Rect(0, 0, 32, 24) {
		t.Fatalf("output bounds = %v, want original canvas", decoded.Bounds())
	}
}

func TestTextRemovalInpaintsDetectedRegions(t *testing.T) {
	gen := &fakeGenerator{inpaintVariants: []modelscope.Variant{jpegVariant(t, 32, 24)}}
	det := &fakeDetector{regions: []vision.TextRegion{{BBox: image.Rect(2, 2, 10, 6), Text: "50% OFF"}}}
	p := NewItemProcessor(gen, det, &fakeSegmenter{}, testLogger())

	out := p.ProcessItem(context.Background(), testImage(32, 24), []domain.OperationType{domain.OperationTextRemoval}, "")
	if !out.Success {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if gen.inpaintCalls != 1 {
		t.Fatalf("inpaint calls = %d, want 1", gen.inpaintCalls)
	}
}

func TestDetectorFailureFailsItem(t *testing.T) {
	det := &fakeDetector{err: context.DeadlineExceeded}
	p := NewItemProcessor(&fakeGenerator{}, det, &fakeSegmenter{}, testLogger())

	out := p.ProcessItem(context.Background(), testImage(8, 8), []domain.OperationType{domain.OperationTextRemoval}, "")
	if out.Success {
		t.Fatalf("expected failure outcome")
	}
	if !strings.HasPrefix(out.Error, "text_removal:") {
		t.Fatalf("error = %q, want stage prefix", out.Error)
	}
}

func TestBackgroundReplacementComposites(t *testing.T) {
	gen := &fakeGenerator{generateVariants: []modelscope.Variant{jpegVariant(t, 16, 16), jpegVariant(t, 16, 16)}}
	seg := &fakeSegmenter{mask: fullMask(40, 30)}
	p := NewItemProcessor(gen, &fakeDetector{}, seg, testLogger())

	out := p.ProcessItem(context.Background(), testImage(40, 30), []domain.OperationType{domain.OperationBackgroundReplacement}, "nonexistent_style")
	if !out.Success {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if len(out.Outputs) != 2 {
		t.Fatalf("outputs = %d, want one per background variant", len(out.Outputs))
	}
	if out.Outputs[0].Width != 40 || out.Outputs[0].Height != 30 {
		t.Fatalf("output size = %dx%d, want subject canvas 40x30", out.Outputs[0].Width, out.Outputs[0].Height)
	}
	if gen.lastGeneratePrompt != StylePrompt(DefaultStyleID) {
		t.Fatalf("prompt = %q, want fallback style prompt", gen.lastGeneratePrompt)
	}
}

func TestChainFailsFastOnLaterStage(t *testing.T) {
	seg := &fakeSegmenter{err: context.DeadlineExceeded}
	p := NewItemProcessor(&fakeGenerator{}, &fakeDetector{}, seg, testLogger())

	ops := []domain.OperationType{domain.OperationTextRemoval, domain.OperationBackgroundReplacement}
	out := p.ProcessItem(context.Background(), testImage(8, 8), ops, "minimal_white")
	if out.Success {
		t.Fatalf("a failing stage must fail the whole item")
	}
	if !strings.HasPrefix(out.Error, "background_replacement:") {
		t.Fatalf("error = %q, want failing stage prefix", out.Error)
	}
}

func TestUnsupportedOperationFailsItem(t *testing.T) {
	p := NewItemProcessor(&fakeGenerator{}, &fakeDetector{}, &fakeSegmenter{}, testLogger())
	out := p.ProcessItem(context.Background(), testImage(8, 8), []domain.OperationType{"sharpen"}, "")
	if out.Success || !strings.Contains(out.Error, "unsupported operation") {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestStylePromptFallback(t *testing.T) {
	if StylePrompt("definitely_unknown") != StylePrompt(DefaultStyleID) {
		t.Fatalf("unknown style must fall back to %s", DefaultStyleID)
	}
	styles := SupportedStyles()
	if len(styles) != 8 {
		t.Fatalf("styles = %d, want 8", len(styles))
	}
}
