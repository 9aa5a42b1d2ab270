// Package router sets up HTTP routes for the web panel.
package router

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/querypad/internal/ui/features/common"
	exchangeFeature "github.com/leapstack-labs/querypad/internal/ui/features/exchange"
	panelFeature "github.com/leapstack-labs/querypad/internal/ui/features/panel"
	"github.com/leapstack-labs/querypad/internal/ui/resources"
	"github.com/starfederation/datastar-go/datastar"
)

// SetupRoutes configures all routes for the web panel. metrics may be nil.
func SetupRoutes(router chi.Router, deps common.Deps, metrics http.Handler) error {
	// Hot reload endpoint for dev mode
	if deps.IsDev {
		setupReload(router)
	}

	// Static assets
	router.Handle("/static/*", resources.Handler())

	if metrics != nil {
		router.Handle("/metrics", metrics)
	}

	// Feature routes
	if err := panelFeature.SetupRoutes(router, deps); err != nil {
		return err
	}

	if err := exchangeFeature.SetupRoutes(router, deps); err != nil {
		return err
	}

	return nil
}

func setupReload(router chi.Router) {
	reloadChan := make(chan struct{}, 1)
	var hotReloadOnce sync.Once

	router.Get("/reload", func(w http.ResponseWriter, r *http.Request) {
		sse := datastar.NewSSE(w, r)
		reload := func() { _ = sse.ExecuteScript("window.location.reload()") }
		hotReloadOnce.Do(reload)
		select {
		case <-reloadChan:
			reload()
		case <-r.Context().Done():
		}
	})

	router.Get("/hotreload", func(w http.ResponseWriter, _ *http.Request) {
		select {
		case reloadChan <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}
