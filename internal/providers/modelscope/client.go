package modelscope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"photoflow/internal/domain"
	"photoflow/internal/infra"
)

const (
	defaultBaseURL      = "https://api-inference.modelscope.cn"
	defaultModel        = "Tongyi-MAI/Z-Image-Turbo"
	defaultPollInterval = 5 * time.Second
	defaultMaxWait      = 600 * time.Second

	generatePath = "/v1/images/generations"
	taskPath     = "/v1/tasks/"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("modelscope: api key is required")

// ErrTaskTimeout indicates the remote task did not reach a terminal state
// within the wait budget. It is distinct from a provider-reported failure so
// callers can tell "provider too slow" from "provider rejected". It wraps
// domain.ErrProviderTimeout for errors.Is checks at the boundary.
var ErrTaskTimeout = fmt.Errorf("modelscope: task wait timed out: %w", domain.ErrProviderTimeout)

// TaskError carries the provider's own failure message for a submitted task.
type TaskError struct {
	TaskID  string
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("modelscope: task %s failed: %s", e.TaskID, e.Message)
}

func (e *TaskError) Unwrap() error {
	return domain.ErrProviderFailure
}

// TaskStatus enumerates provider-side task states.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusSucceed    TaskStatus = "SUCCEED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// Options configures the ModelScope inference client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	PollInterval   time.Duration
	MaxWait        time.Duration
	RequestTimeout time.Duration
	Logger         *infra.Logger
}

// Client performs HTTP calls to the ModelScope async image-generation API.
// Submission and polling are two separate round trips; the provider assigns a
// task ID and the client long-polls it until a terminal state or timeout.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	httpClient   *http.Client
	pollInterval time.Duration
	maxWait      time.Duration
	logger       *infra.Logger
}

// SubmitRequest captures one generation or inpainting submission. Image and
// Mask are base64 payloads; both empty means pure text-to-image.
type SubmitRequest struct {
	Prompt string
	Model  string
	Image  string
	Mask   string
}

// Variant is one downloaded output image.
type Variant struct {
	URL    string
	Data   []byte
	Format string
	Width  int
	Height int
}

// WaitResult is the outcome of a successful task wait.
type WaitResult struct {
	TaskID     string
	OutputURLs []string
	Elapsed    time.Duration
}

// TaskState is a point-in-time snapshot of a provider task.
type TaskState struct {
	Status     TaskStatus
	OutputURLs []string
	Message    string
}

type generationRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	Image     string `json:"image,omitempty"`
	MaskImage string `json:"mask_image,omitempty"`
}

type generationResponse struct {
	TaskID  string `json:"task_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type taskResponse struct {
	TaskStatus   string   `json:"task_status"`
	OutputImages []string `json:"output_images"`
	TaskMsg      string   `json:"task_msg"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		model:        model,
		httpClient:   httpClient,
		pollInterval: pollInterval,
		maxWait:      maxWait,
		logger:       logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// MaxWait returns the configured per-task wait budget.
func (c *Client) MaxWait() time.Duration {
	return c.maxWait
}

// Submit starts one asynchronous generation task and returns the provider's
// task ID. A failed submission is fatal for this call; identical submissions
// create independent provider tasks, the client performs no deduplication.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("modelscope: prompt is required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	payload := generationRequest{
		Model:     model,
		Prompt:    prompt,
		Image:     req.Image,
		MaskImage: req.Mask,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("modelscope: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("modelscope: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-ModelScope-Async-Mode", "true")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("modelscope: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("modelscope: read response: %w", err)
	}
	var decoded generationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode >= 300 {
			return "", fmt.Errorf("modelscope: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return "", fmt.Errorf("modelscope: decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		if decoded.Message != "" {
			return "", fmt.Errorf("modelscope: %s (%s)", decoded.Message, decoded.Code)
		}
		return "", fmt.Errorf("modelscope: status %d", resp.StatusCode)
	}
	if decoded.TaskID == "" {
		return "", errors.New("modelscope: response carries no task_id")
	}
	c.logger.Debug().Str("task_id", decoded.TaskID).Str("model", model).Msg("modelscope: task submitted")
	return decoded.TaskID, nil
}

// StatusOf fetches a point-in-time snapshot of a provider task.
func (c *Client) StatusOf(ctx context.Context, taskID string) (TaskState, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+taskPath+taskID, nil)
	if err != nil {
		return TaskState{}, fmt.Errorf("modelscope: build status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-ModelScope-Task-Type", "image_generation")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return TaskState{}, fmt.Errorf("modelscope: status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return TaskState{}, fmt.Errorf("modelscope: status %d for task %s", resp.StatusCode, taskID)
	}
	var decoded taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return TaskState{}, fmt.Errorf("modelscope: decode status: %w", err)
	}
	status := TaskStatus(decoded.TaskStatus)
	if status == "" {
		status = TaskStatusProcessing
	}
	return TaskState{
		Status:     status,
		OutputURLs: decoded.OutputImages,
		Message:    decoded.TaskMsg,
	}, nil
}

// AwaitResult polls the task at the configured interval until it reaches a
// terminal state or maxWait elapses. maxWait <= 0 uses the client default.
// The wait is cancellable through ctx.
func (c *Client) AwaitResult(ctx context.Context, taskID string, maxWait time.Duration) (*WaitResult, error) {
	if maxWait <= 0 {
		maxWait = c.maxWait
	}
	start := time.Now()
	for {
		if elapsed := time.Since(start); elapsed > maxWait {
			return nil, fmt.Errorf("%w: task %s after %s", ErrTaskTimeout, taskID, elapsed.Round(time.Millisecond))
		}

		state, err := c.StatusOf(ctx, taskID)
		if err != nil {
			return nil, err
		}
		c.logger.Debug().Str("task_id", taskID).Str("status", string(state.Status)).Msg("modelscope: task polled")

		switch state.Status {
		case TaskStatusSucceed:
			return &WaitResult{
				TaskID:     taskID,
				OutputURLs: state.OutputURLs,
				Elapsed:    time.Since(start),
			}, nil
		case TaskStatusFailed:
			msg := state.Message
			if msg == "" {
				msg = "unknown error"
			}
			return nil, &TaskError{TaskID: taskID, Message: msg}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) download(ctx context.Context, imageURL string) (*Variant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("modelscope: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("modelscope: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("modelscope: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("modelscope: read image: %w", err)
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = "image/jpeg"
	}
	variant := &Variant{URL: imageURL, Data: data, Format: format}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		variant.Width, variant.Height = cfg.Width, cfg.Height
	}
	return variant, nil
}

// collect downloads every output URL of a finished task. A single failed
// download is logged and skipped; zero usable outputs is an error.
func (c *Client) collect(ctx context.Context, res *WaitResult) ([]Variant, error) {
	variants := make([]Variant, 0, len(res.OutputURLs))
	for i, outputURL := range res.OutputURLs {
		variant, err := c.download(ctx, outputURL)
		if err != nil {
			c.logger.Warn().Err(err).Str("task_id", res.TaskID).Int("index", i).Msg("modelscope: output download failed")
			continue
		}
		variants = append(variants, *variant)
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("modelscope: task %s produced no downloadable outputs", res.TaskID)
	}
	return variants, nil
}
