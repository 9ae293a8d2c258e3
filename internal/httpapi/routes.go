package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/photonarena/lasertag-backend/internal/hub"
	"github.com/photonarena/lasertag-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, staticDir string) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/api/test", APITest)
	r.Get("/ws", ws.Handler(h))
	r.NotFound(SPAHandler(staticDir))
	return r
}
