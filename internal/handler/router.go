package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vault-store/internal/middleware"
)

// NewRouter はルーターを生成する。
func NewRouter(h *VaultHandler) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	// ルート定義
	r.Route("/v1/vault", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Post("/migrate", h.Migrate)
		r.Post("/verify", h.Verify)
		r.Delete("/key", h.WipeKey)
	})
	r.Route("/v1/migrations", func(r chi.Router) {
		r.Get("/", h.ListMigrations)
		r.Get("/path", h.GetMigrationPath)
		r.Get("/history", h.GetMigrationHistory)
	})

	return otelhttp.NewHandler(r, "vault-store")
}
