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

const detectPath = "/v1/ocr/detect"

// OCRClient calls a remote OCR service for text-region detection.
type OCRClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOCRClient constructs a detector against the given service base URL.
func NewOCRClient(baseURL string, httpClient *http.Client) (*OCRClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("vision: ocr base url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OCRClient{baseURL: baseURL, httpClient: httpClient}, nil
}

type detectRequest struct {
	Image string `json:"image"`
}

type detectResponse struct {
	TextRegions []struct {
		BBox       [4]int  `json:"bbox"`
		Confidence float64 `json:"confidence"`
		Text       string  `json:"text"`
		Lang       string  `json:"lang"`
	} `json:"text_regions"`
}

// DetectText posts the image and returns detected regions. Zero regions is a
// valid outcome, not an error.
func (c *OCRClient) DetectText(ctx context.Context, img image.Image) ([]TextRegion, error) {
	data, err := imaging.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(detectRequest{Image: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return nil, fmt.Errorf("vision: encode detect request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+detectPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vision: build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision: detect request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vision: detect status %d", resp.StatusCode)
	}
	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("vision: decode detect response: %w", err)
	}
	regions := make([]TextRegion, 0, len(decoded.TextRegions))
	for _, r := range decoded.TextRegions {
		regions = append(regions, TextRegion{
			BBox:       image.Rect(r.BBox[0], r.BBox[1], r.BBox[2], r.BBox[3]),
			Confidence: r.Confidence,
			Text:       r.Text,
			Language:   r.Lang,
		})
	}
	return regions, nil
}
