package exchange

import (
	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/querypad/internal/ui/features/common"
)

// SetupRoutes registers the exchange feature routes. The panel feature
// owns the /api subrouter, so these are registered as full paths.
func SetupRoutes(router chi.Router, deps common.Deps) error {
	handlers := NewHandlers(deps)

	router.Post("/api/actions", handlers.QueueAction)
	router.Get("/api/export.csv", handlers.ExportCSV)
	router.Get("/api/export.json", handlers.ExportJSON)
	router.Get("/api/image", handlers.Image)
	router.Get("/api/state", handlers.State)

	return nil
}
