package panel

import (
	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/querypad/internal/ui/features/common"
)

// SetupRoutes registers the panel page, its SSE stream and its actions.
func SetupRoutes(router chi.Router, deps common.Deps) error {
	handlers := NewHandlers(deps)

	// Page routes
	router.Get("/", handlers.PanelPage)
	router.Get("/updates", handlers.Updates)

	router.Route("/api", func(r chi.Router) {
		r.Post("/run", handlers.Run)
		r.Post("/command/{name}", handlers.Command)
		r.Post("/mode", handlers.SetMode)
		r.Post("/view", handlers.SetView)
		r.Post("/panel-height", handlers.SetPanelHeight)
		r.Post("/file", handlers.OpenFile)

		r.Post("/bookmarks", handlers.AddBookmark)
		r.Post("/bookmarks/{id}/select", handlers.SelectBookmark)
		r.Delete("/bookmarks/{id}", handlers.RemoveBookmark)
		r.Post("/history/{id}/select", handlers.SelectHistory)
	})

	return nil
}
