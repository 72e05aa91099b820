package modelscope

import (
	"context"
	"fmt"
)

const (
	generateSuffix = ", professional photography, high quality, sharp focus, detailed"
	inpaintSuffix  = ", seamless inpainting, natural blending, professional quality"
)

// Generate runs one text-to-image task end to end: submit, await, download.
func (c *Client) Generate(ctx context.Context, prompt string, width, height int) ([]Variant, error) {
	full := prompt + generateSuffix
	if width > 0 && height > 0 {
		full = fmt.Sprintf("%s, %dx%d", full, width, height)
	}
	taskID, err := c.Submit(ctx, SubmitRequest{Prompt: full})
	if err != nil {
		return nil, err
	}
	res, err := c.AwaitResult(ctx, taskID, 0)
	if err != nil {
		return nil, err
	}
	return c.collect(ctx, res)
}

// Inpaint repaints the masked area of an image, used for text erasure. Image
// and mask are base64 payloads.
func (c *Client) Inpaint(ctx context.Context, imageB64, maskB64, prompt string) ([]Variant, error) {
	taskID, err := c.Submit(ctx, SubmitRequest{
		Prompt: prompt + inpaintSuffix,
		Image:  imageB64,
		Mask:   maskB64,
	})
	if err != nil {
		return nil, err
	}
	res, err := c.AwaitResult(ctx, taskID, 0)
	if err != nil {
		return nil, err
	}
	return c.collect(ctx, res)
}
