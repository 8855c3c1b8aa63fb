package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/pagescribe/internal/api/handlers"
	"github.com/nikhilbhutani/pagescribe/internal/api/middleware"
	"github.com/nikhilbhutani/pagescribe/internal/auth"
	"github.com/nikhilbhutani/pagescribe/internal/config"
	"github.com/nikhilbhutani/pagescribe/internal/llm"
	"github.com/nikhilbhutani/pagescribe/internal/transcription"
)

// Services are the wired components the HTTP surface exposes.
type Services struct {
	Jobs      *transcription.Registry
	Driver    *transcription.Driver
	Loader    transcription.Loader
	Records   handlers.Records
	Chats     handlers.Conversations
	Providers *llm.Gateway
	Checks    map[string]handlers.Pinger
}

type Router struct {
	mux *chi.Mux
	cfg *config.Config
	svc Services
	jwt *auth.JWTMiddleware

	// Limiter throttles all API calls; SubmitLimiter also guards the
	// endpoints that spend provider credits.
	Limiter       *middleware.RateLimiter
	SubmitLimiter *middleware.RateLimiter
}

func NewRouter(cfg *config.Config, svc Services) *Router {
	return &Router{
		mux:           chi.NewRouter(),
		cfg:           cfg,
		svc:           svc,
		jwt:           auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		Limiter:       middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
		SubmitLimiter: middleware.NewRateLimiter(0.2, 5),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))
	r.Use(rt.Limiter.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.svc.Checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	settings := &rt.cfg.Settings
	maxUpload := int64(rt.cfg.Server.MaxUploadMB) << 20

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		jobH := handlers.NewJobHandler(rt.svc.Jobs, rt.svc.Driver, rt.svc.Loader, settings,
			rt.svc.Providers.Default(), maxUpload)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", jobH.Create)
			r.Get("/{id}", jobH.Get)
			r.Patch("/{id}", jobH.Update)
			r.Delete("/{id}", jobH.Delete)
			// No write timeout: a long document streams progress for minutes.
			r.With(rt.SubmitLimiter.Limit).Post("/{id}/submit", jobH.Submit)
		})

		trH := handlers.NewTranscriptionHandler(rt.svc.Records, settings)
		chatH := handlers.NewChatHandler(rt.svc.Chats)
		r.Route("/transcriptions", func(r chi.Router) {
			r.Get("/", trH.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", trH.Get)
				r.Delete("/", trH.Delete)
				r.Put("/text", trH.UpdateText)
				r.Put("/tags", trH.UpdateTags)
				r.Get("/original", trH.Original)
				r.Get("/export.txt", trH.ExportText)
				r.Get("/export.pdf", trH.ExportPDF)
				r.Get("/pages", trH.Pages)

				r.Get("/chat", chatH.Open)
				r.With(rt.SubmitLimiter.Limit, chimiddleware.Timeout(2*time.Minute)).Post("/chat", chatH.Send)
			})
		})

		miscH := handlers.NewMiscHandler(rt.svc.Providers, settings)
		r.Get("/estimate", miscH.Estimate)
		r.Get("/settings", miscH.Settings)
	})

	return r
}
