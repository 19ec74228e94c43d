package main

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zenGate-Global/hubmetrix/apps/internal/wiring"
	"github.com/zenGate-Global/hubmetrix/contracts"
	provisioninghandler "github.com/zenGate-Global/hubmetrix/domains/provisioning/be/handler"
	platformauth "github.com/zenGate-Global/hubmetrix/platform/go/auth"
	platformlogging "github.com/zenGate-Global/hubmetrix/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/hubmetrix/platform/go/middleware"
)

// newRouter mounts the health checks, the contract docs and every callback and page route.
func newRouter(cfg config, app *wiring.App, logger *zap.Logger) (http.Handler, error) {
	spec, err := contracts.GetSwagger()
	if err != nil {
		return nil, fmt.Errorf("load callback contract: %w", err)
	}
	logSecuritySchemes(logger, spec)

	provisioningHTTPHandler := provisioninghandler.New(app.Provisioning, app.Sessions, cfg.AppURL, logger)

	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.CORS(cfg.CORSAllowedOrigins),
		platformlogging.RequestLogger(logger),
	)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	registerDocsRoutes(r, spec, logger)

	r.Group(func(r chi.Router) {
		r.Use(platformauth.Session(app.Sessions))
		r.Use(platformmiddleware.RequestTrace)
		provisioningHTTPHandler.Register(r, buildGuards(cfg, spec))
	})

	return r, nil
}
