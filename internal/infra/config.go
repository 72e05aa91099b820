package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv              string
	Port                string
	StoragePath         string
	StorageBaseURL      string
	ModelScopeAPIKey    string
	ModelScopeBaseURL   string
	ModelScopeModel     string
	OCRBaseURL          string
	SegmentBaseURL      string
	ProviderPollEvery   time.Duration
	ProviderMaxWait     time.Duration
	HTTPReadTimeout     time.Duration
	HTTPWriteTimeout    time.Duration
	HTTPIdleTimeout     time.Duration
	MaxImagesPerBatch   int
	EstimateSecPerImage int
	CORSAllowedOrigins  []string
	SubmitPerMinute     int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		StoragePath:         getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:      getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		ModelScopeAPIKey:    os.Getenv("MODELSCOPE_API_KEY"),
		ModelScopeBaseURL:   getEnv("MODELSCOPE_BASE_URL", "https://api-inference.modelscope.cn"),
		ModelScopeModel:     getEnv("MODELSCOPE_MODEL", "Tongyi-MAI/Z-Image-Turbo"),
		OCRBaseURL:          os.Getenv("OCR_BASE_URL"),
		SegmentBaseURL:      os.Getenv("SEGMENT_BASE_URL"),
		ProviderPollEvery:   time.Second * time.Duration(getEnvInt("PROVIDER_POLL_INTERVAL_SECONDS", 5)),
		ProviderMaxWait:     time.Second * time.Duration(getEnvInt("PROVIDER_MAX_WAIT_SECONDS", 600)),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		MaxImagesPerBatch:   getEnvInt("MAX_IMAGES_PER_BATCH", 50),
		EstimateSecPerImage: getEnvInt("ESTIMATE_SECONDS_PER_IMAGE", 10),
		CORSAllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS"),
		SubmitPerMinute:     getEnvInt("SUBMIT_RATE_LIMIT_PER_MINUTE", 30),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
