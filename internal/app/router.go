package app

import (
	"database/sql"
	"net/http"
	"time"

	"schooldesk/internal/app/observability"
	"schooldesk/internal/auth"
	"schooldesk/internal/question"
	"schooldesk/internal/result"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)

	authSvc := auth.NewService(db, auth.ServiceConfig{
		SessionTTL: time.Duration(cfg.SessionTTLHours) * time.Hour,
	})
	authHandler := auth.NewHandler(authSvc)

	questionHandler := question.NewHandler(question.NewService(db))
	resultHandler := result.NewHandler(result.NewService(db))

	authLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)
	correctionLimiter := NewIPRateLimiter(cfg.CorrectionRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.With(RateLimitMiddleware(authLimiter)).Post("/auth/login-password", authHandler.LoginPassword)

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)
			secure.Post("/auth/logout", authHandler.Logout)

			secure.Group(func(staff chi.Router) {
				staff.Use(authHandler.RequireRoles("admin", "reviewer"))

				staff.Post("/tests", questionHandler.CreateTest)
				staff.Get("/tests", questionHandler.ListTests)
				staff.Get("/tests/{id}/questions", questionHandler.ListQuestions)
				staff.Put("/tests/{id}/questions", questionHandler.UpsertQuestion)
				staff.Delete("/tests/{id}/questions/{questionID}", questionHandler.DeleteQuestion)

				staff.Get("/tests/{id}/results", resultHandler.ByTest)
				staff.Get("/tests/{id}/results/export", resultHandler.Export)

				staff.Get("/results/{id}", resultHandler.Get)
				staff.Post("/results/{id}/recalculate", resultHandler.Recalculate)
				staff.Get("/results/{id}/corrections", resultHandler.ListCorrections)
				staff.With(RateLimitMiddleware(correctionLimiter)).Post("/results/{id}/corrections", resultHandler.CreateCorrection)
			})

			secure.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireRoles("admin"))
				admin.Post("/admin/reviewers", authHandler.CreateReviewer)
			})
		})
	})

	return r
}
