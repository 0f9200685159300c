package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/hlog"

	"bloom.ai/plant-dashboard/internal/config"
	"bloom.ai/plant-dashboard/internal/logger"
)

func NewRouter(apiHandler *APIHandler, corsCfg config.CORSConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(*log.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsCfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Request-Id", "Content-Disposition"},
		MaxAge:         corsCfg.MaxAge,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Get("/telemetry", apiHandler.LatestTelemetryHandler)
		r.Get("/telemetry/ws", apiHandler.TelemetryStreamHandler)
		r.Get("/telemetry/export.csv", apiHandler.ExportTelemetryHandler)

		// Device ingestion is only exposed when tokens can be verified.
		if apiHandler.JWTSecret != "" {
			r.With(apiHandler.DeviceAuthMiddleware).Post("/telemetry", apiHandler.IngestTelemetryHandler)
		}

		r.Post("/chats", apiHandler.CreateChatHandler)
		r.Route("/chats/{chatID}", func(r chi.Router) {
			r.Get("/messages", apiHandler.ListMessagesHandler)
			r.Post("/messages", apiHandler.PostMessageHandler)
			r.Get("/messages/ws", apiHandler.MessageStreamHandler)

			r.Get("/voice", apiHandler.VoiceStatusHandler)
			r.Post("/voice", apiHandler.ToggleVoiceHandler)
			r.Post("/transcripts", apiHandler.TranscriptHandler)
		})

		r.Get("/plant/description", apiHandler.PlantDescriptionHandler)
		r.Get("/plant/images/latest", apiHandler.LatestPlantImageHandler)
		r.Post("/expressions", apiHandler.ExpressionHandler)

		r.Get("/sentiments", apiHandler.ListSentimentsHandler)
		r.Get("/sentiments/{label}", apiHandler.SentimentHandler)
	})

	if apiHandler.Agent != nil {
		r.Mount("/voice", apiHandler.Agent.Routes())
	}

	return r
}
