package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"photoflow/internal/http/handlers"
	"photoflow/internal/infra"
	"photoflow/internal/middleware"
)

// Options carries everything the router needs besides the handlers.
type Options struct {
	Logger         infra.Logger
	AllowedOrigins []string
	// StaticDir, when set, is served under /static for processed outputs.
	StaticDir string
	// SubmitPerMinute caps batch and job submissions per client IP.
	// Zero disables the limit.
	SubmitPerMinute int
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
	)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}

	submitLimit := func(next stdhttp.Handler) stdhttp.Handler { return next }
	if opts.SubmitPerMinute > 0 {
		submitLimit = middleware.RateLimit(opts.SubmitPerMinute, time.Minute)
	}

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/api/v1/batch", func(r chi.Router) {
		r.With(submitLimit).Post("/create", app.BatchCreate)
		r.Get("/status/{task_id}", app.BatchStatus)
		r.Get("/results/{task_id}", app.BatchResults)
		r.Post("/cancel/{task_id}", app.BatchCancel)
		r.Get("/download/{task_id}", app.BatchDownload)
		r.Get("/processor-status", app.ProcessorStatus)
	})

	r.Route("/api/v1/processing", func(r chi.Router) {
		r.With(submitLimit).Post("/jobs", app.JobSubmit)
		r.Get("/jobs/{job_id}/status", app.JobStatus)
		r.Post("/jobs/{job_id}/cancel", app.JobCancel)
	})

	if opts.StaticDir != "" {
		fileServer := stdhttp.StripPrefix("/static/", stdhttp.FileServer(stdhttp.Dir(opts.StaticDir)))
		r.Get("/static/*", fileServer.ServeHTTP)
	}

	return r
}
