package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"photoflow/internal/batch"
	"photoflow/internal/http/handlers"
	httpapi "photoflow/internal/http/httpapi"
	"photoflow/internal/infra"
	"photoflow/internal/jobs"
	"photoflow/internal/processing"
	"photoflow/internal/providers/modelscope"
	"photoflow/internal/providers/vision"
	"photoflow/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	generator, err := modelscope.NewClient(modelscope.Options{
		APIKey:       cfg.ModelScopeAPIKey,
		BaseURL:      cfg.ModelScopeBaseURL,
		Model:        cfg.ModelScopeModel,
		PollInterval: cfg.ProviderPollEvery,
		MaxWait:      cfg.ProviderMaxWait,
		Logger:       &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize generation client")
	}

	var detector vision.TextDetector
	if cfg.OCRBaseURL != "" {
		detector, err = vision.NewOCRClient(cfg.OCRBaseURL, nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize OCR client")
		}
	}
	var segmenter vision.Segmenter
	if cfg.SegmentBaseURL != "" {
		segmenter, err = vision.NewSegmentClient(cfg.SegmentBaseURL, nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize segmentation client")
		}
	}

	processor := processing.NewItemProcessor(generator, detector, segmenter, logger)

	orchestrator := batch.NewOrchestrator(batch.Options{
		Processor:           processor,
		Store:               store,
		StorageBaseURL:      cfg.StorageBaseURL,
		MaxImages:           cfg.MaxImagesPerBatch,
		EstimateSecPerImage: cfg.EstimateSecPerImage,
		Logger:              logger,
	})
	jobService := jobs.NewService(jobs.Options{
		Processor:      processor,
		Store:          store,
		StorageBaseURL: cfg.StorageBaseURL,
		Logger:         logger,
	})

	app := handlers.NewApp(orchestrator, jobService, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		StaticDir:       store.BasePath(),
		SubmitPerMinute: cfg.SubmitPerMinute,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
