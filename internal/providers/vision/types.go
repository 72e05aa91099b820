// Package vision talks to the auxiliary detection capabilities: OCR text
// detection and subject segmentation. Both are remote collaborators; this
// package only carries their interface and a plain HTTP implementation.
package vision

import (
	"context"
	"image"
)

// TextRegion is one detected text area in an image.
type TextRegion struct {
	BBox       image.Rectangle
	Confidence float64
	Text       string
	Language   string
}

// TextDetector finds text regions in an image.
type TextDetector interface {
	DetectText(ctx context.Context, img image.Image) ([]TextRegion, error)
}

// Segmenter produces a subject mask for an image. White marks the subject.
type Segmenter interface {
	SegmentSubject(ctx context.Context, img image.Image) (image.Image, error)
}
