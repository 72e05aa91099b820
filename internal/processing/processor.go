// Package processing turns one uploaded image plus a list of operations into
// a per-item outcome by composing the external generation and detection
// collaborators. Failures never escape as errors or panics: every item ends
// in a success-or-failure tuple so one bad image cannot abort a batch.
package processing

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"time"

	"photoflow/internal/domain"
	"photoflow/internal/imaging"
	"photoflow/internal/infra"
	"photoflow/internal/providers/modelscope"
	"photoflow/internal/providers/vision"
)

const (
	textRemovalPrompt = "Clean background, no text, professional product photography"
	maskPadding       = 5
)

// Generator is the asynchronous generation capability the processor composes.
// Satisfied by *modelscope.Client.
type Generator interface {
	Generate(ctx context.Context, prompt string, width, height int) ([]modelscope.Variant, error)
	Inpaint(ctx context.Context, imageB64, maskB64, prompt string) ([]modelscope.Variant, error)
}

// Outcome is the result of processing one item.
type Outcome struct {
	Success bool
	Outputs []domain.OutputVariant
	Error   string
	Elapsed time.Duration
}

// ItemProcessor applies named operations to a single image.
type ItemProcessor struct {
	generator Generator
	detector  vision.TextDetector
	segmenter vision.Segmenter
	logger    infra.Logger
}

// NewItemProcessor wires the processor with its collaborators.
func NewItemProcessor(generator Generator, detector vision.TextDetector, segmenter vision.Segmenter, logger infra.Logger) *ItemProcessor {
	return &ItemProcessor{
		generator: generator,
		detector:  detector,
		segmenter: segmenter,
		logger:    logger,
	}
}

// ProcessItem applies the operations in order to the image. Each stage works
// on the original image and its output list replaces the item's outputs; the
// first failing stage fails the whole item. The method never returns an
// error and never panics.
func (p *ItemProcessor) ProcessItem(ctx context.Context, img image.Image, ops []domain.OperationType, styleID string) (out Outcome) {
	start := time.Now()
	defer func() {
		out.Elapsed = time.Since(start)
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("processing: item panicked")
			out = Outcome{Error: fmt.Sprintf("internal error: %v", r), Elapsed: time.Since(start)}
		}
	}()

	var outputs []domain.OutputVariant
	for _, op := range ops {
		stageOutputs, err := p.apply(ctx, op, img, styleID)
		if err != nil {
			return Outcome{Error: fmt.Sprintf("%s: %v", op, err)}
		}
		outputs = stageOutputs
	}
	if len(outputs) == 0 {
		return Outcome{Error: "no outputs produced"}
	}
	return Outcome{Success: true, Outputs: outputs}
}

func (p *ItemProcessor) apply(ctx context.Context, op domain.OperationType, img image.Image, styleID string) ([]domain.OutputVariant, error) {
	switch op {
	case domain.OperationTextRemoval:
		return p.removeText(ctx, img)
	case domain.OperationBackgroundReplacement:
		return p.replaceBackground(ctx, img, styleID)
	default:
		return nil, fmt.Errorf("unsupported operation %q", op)
	}
}

// removeText detects text regions, builds an inpainting mask from their
// padded bounding boxes and asks the provider to repaint them. An image with
// no text at all is a success with the original image unchanged.
func (p *ItemProcessor) removeText(ctx context.Context, img image.Image) ([]domain.OutputVariant, error) {
	if p.detector == nil {
		return nil, fmt.Errorf("text detection is not configured")
	}
	regions, err := p.detector.DetectText(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("text detection: %w", err)
	}
	if len(regions) == 0 {
		original, err := encodeVariant(img)
		if err != nil {
			return nil, err
		}
		return []domain.OutputVariant{original}, nil
	}

	rects := make([]image.Rectangle, 0, len(regions))
	for _, region := range regions {
		rects = append(rects, region.BBox)
	}
	mask := imaging.TextRegionMask(img.Bounds(), rects, maskPadding)

	imageB64, err := encodePNGBase64(img)
	if err != nil {
		return nil, err
	}
	maskB64, err := encodePNGBase64(mask)
	if err != nil {
		return nil, err
	}
	variants, err := p.generator.Inpaint(ctx, imageB64, maskB64, textRemovalPrompt)
	if err != nil {
		return nil, fmt.Errorf("inpaint: %w", err)
	}
	return toOutputVariants(variants), nil
}

// replaceBackground segments the subject, generates style-prompted background
// variants sized to the subject's canvas and composites the subject over each
// of them.
func (p *ItemProcessor) replaceBackground(ctx context.Context, img image.Image, styleID string) ([]domain.OutputVariant, error) {
	if p.segmenter == nil {
		return nil, fmt.Errorf("subject segmentation is not configured")
	}
	mask, err := p.segmenter.SegmentSubject(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("segmentation: %w", err)
	}
	bounds := img.Bounds()
	variants, err := p.generator.Generate(ctx, StylePrompt(styleID), bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, fmt.Errorf("background generation: %w", err)
	}

	outputs := make([]domain.OutputVariant, 0, len(variants))
	for i, variant := range variants {
		background, err := imaging.Decode(variant.Data)
		if err != nil {
			p.logger.Warn().Err(err).Int("index", i).Msg("processing: background variant undecodable")
			continue
		}
		composed, err := encodeVariant(imaging.Composite(img, background, mask))
		if err != nil {
			p.logger.Warn().Err(err).Int("index", i).Msg("processing: composite encode failed")
			continue
		}
		outputs = append(outputs, composed)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("no background variant could be composited")
	}
	return outputs, nil
}

func encodeVariant(img image.Image) (domain.OutputVariant, error) {
	data, err := imaging.EncodeJPEG(img)
	if err != nil {
		return domain.OutputVariant{}, err
	}
	bounds := img.Bounds()
	return domain.OutputVariant{
		Data:   data,
		Format: "image/jpeg",
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

func encodePNGBase64(img image.Image) (string, error) {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func toOutputVariants(variants []modelscope.Variant) []domain.OutputVariant {
	outputs := make([]domain.OutputVariant, 0, len(variants))
	for _, v := range variants {
		outputs = append(outputs, domain.OutputVariant{
			URL:    v.URL,
			Data:   v.Data,
			Format: v.Format,
			Width:  v.Width,
			Height: v.Height,
		})
	}
	return outputs
}
