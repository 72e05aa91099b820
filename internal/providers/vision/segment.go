package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	"photoflow/internal/imaging"
)

const segmentPath = "/v1/segment/subject"

// SegmentClient calls a remote segmentation service for subject masks.
type SegmentClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSegmentClient constructs a segmenter against the given service base URL.
func NewSegmentClient(baseURL string, httpClient *http.Client) (*SegmentClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("vision: segment base url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &SegmentClient{baseURL: baseURL, httpClient: httpClient}, nil
}

type segmentRequest struct {
	Image string `json:"image"`
}

type segmentResponse struct {
	Mask    string `json:"mask"`
	Message string `json:"message"`
}

// SegmentSubject posts the image and returns the subject mask as a grayscale
// image sized like the input service reports it.
func (c *SegmentClient) SegmentSubject(ctx context.Context, img image.Image) (image.Image, error) {
	data, err := imaging.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(segmentRequest{Image: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return nil, fmt.Errorf("vision: encode segment request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+segmentPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vision: build segment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision: segment request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vision: segment status %d", resp.StatusCode)
	}
	var decoded segmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("vision: decode segment response: %w", err)
	}
	if decoded.Mask == "" {
		msg := decoded.Message
		if msg == "" {
			msg = "no mask returned"
		}
		return nil, fmt.Errorf("vision: segmentation failed: %s", msg)
	}
	raw, err := base64.StdEncoding.DecodeString(decoded.Mask)
	if err != nil {
		return nil, fmt.Errorf("vision: decode mask base64: %w", err)
	}
	return imaging.DecodeMask(raw)
}
