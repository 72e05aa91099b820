package modelscope

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"photoflow/internal/domain"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		HTTPClient:   srv.Client(),
		PollInterval: 5 * time.Millisecond,
		MaxWait:      time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestSubmitSendsAsyncRequest(t *testing.T) {
	var gotAsync, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAsync = r.Header.Get("X-ModelScope-Async-Mode")
		gotAuth = r.Header.Get("Authorization")
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["model"] != "Tongyi-MAI/Z-Image-Turbo" {
			t.Errorf("model = %v", payload["model"])
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "task-123"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	taskID, err := client.Submit(context.Background(), SubmitRequest{Prompt: "clean background"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if taskID != "task-123" {
		t.Fatalf("task id = %q", taskID)
	}
	if gotAsync != "true" {
		t.Fatalf("async header = %q, want true", gotAsync)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
}

func TestSubmitWithoutCredentials(t *testing.T) {
	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Submit(context.Background(), SubmitRequest{Prompt: "x"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestSubmitProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "InvalidParameter", "message": "prompt rejected"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "prompt rejected") {
		t.Fatalf("err = %v, want provider message", err)
	}
}

func TestAwaitResultSuccessAfterPolls(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/tasks/") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("X-ModelScope-Task-Type") != "image_generation" {
			t.Errorf("missing task-type header")
		}
		n := polls.Add(1)
		resp := map[string]any{"task_status": "PROCESSING"}
		if n >= 3 {
			resp = map[string]any{
				"task_status":   "SUCCEED",
				"output_images": []string{"https://cdn.example.com/out-1.jpg", "https://cdn.example.com/out-2.jpg"},
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	res, err := client.AwaitResult(context.Background(), "task-9", 0)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if len(res.OutputURLs) != 2 {
		t.Fatalf("outputs = %d, want 2", len(res.OutputURLs))
	}
	if polls.Load() < 3 {
		t.Fatalf("polls = %d, want at least 3", polls.Load())
	}
}

func TestAwaitResultProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"task_status": "FAILED", "task_msg": "nsfw content"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.AwaitResult(context.Background(), "task-9", 0)
	var taskErr *TaskError
	if !errors.As(err, &taskErr) {
		t.Fatalf("err = %v, want *TaskError", err)
	}
	if taskErr.Message != "nsfw content" {
		t.Fatalf("message = %q", taskErr.Message)
	}
	if errors.Is(err, ErrTaskTimeout) {
		t.Fatalf("provider failure must not look like a timeout")
	}
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want domain.ErrProviderFailure in the chain", err)
	}
	if errors.Is(err, domain.ErrProviderTimeout) {
		t.Fatalf("provider failure must not match domain.ErrProviderTimeout")
	}
}

func TestAwaitResultTimeoutIsDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"task_status": "PROCESSING"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.AwaitResult(context.Background(), "task-slow", 25*time.Millisecond)
	if !errors.Is(err, ErrTaskTimeout) {
		t.Fatalf("err = %v, want ErrTaskTimeout", err)
	}
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		t.Fatalf("timeout must not look like a provider failure")
	}
	if !errors.Is(err, domain.ErrProviderTimeout) {
		t.Fatalf("err = %v, want domain.ErrProviderTimeout in the chain", err)
	}
	if errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("timeout must not match domain.ErrProviderFailure")
	}
}

func TestAwaitResultHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"task_status": "PROCESSING"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := client.AwaitResult(ctx, "task-9", time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestGenerateDownloadsOutputs(t *testing.T) {
	// Smallest valid JPEG-ish payload; DecodeConfig failing is fine, the raw
	// bytes still travel.
	imageBytes := []byte{0xff, 0xd8, 0xff, 0xd9}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/images/generations", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		prompt, _ := payload["prompt"].(string)
		if !strings.Contains(prompt, "sharp focus") {
			t.Errorf("prompt %q missing quality suffix", prompt)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "task-gen"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/v1/tasks/task-gen", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"task_status":   "SUCCEED",
			"output_images": []string{srv.URL + "/outputs/1.jpg"},
		})
	})
	mux.HandleFunc("/outputs/1.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(imageBytes)
	})

	client := newTestClient(t, srv)
	variants, err := client.Generate(context.Background(), "studio backdrop", 1024, 1024)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(variants) != 1 {
		t.Fatalf("variants = %d, want 1", len(variants))
	}
	if len(variants[0].Data) != len(imageBytes) {
		t.Fatalf("downloaded %d bytes, want %d", len(variants[0].Data), len(imageBytes))
	}
	if variants[0].Format != "image/jpeg" {
		t.Fatalf("format = %q", variants[0].Format)
	}
}
