package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	audithandlers "github.com/secureaudit/secureaudit/pkg/handlers/audit"
	findinghandlers "github.com/secureaudit/secureaudit/pkg/handlers/finding"
	secureauditmiddleware "github.com/secureaudit/secureaudit/pkg/server/middleware"
	auditservice "github.com/secureaudit/secureaudit/pkg/services/audit"
	"github.com/secureaudit/secureaudit/pkg/services/findings"
)

type WebAPI struct {
	router          *chi.Mux
	logger          *zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

type Dependencies struct {
	Audits   auditservice.Service
	Findings findings.Service
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

func NewWebAPI(logger zerolog.Logger, config Config) *WebAPI {
	auditHandler := audithandlers.NewHandler(config.Dependencies.Audits)
	findingHandler := findinghandlers.NewHandler(config.Dependencies.Findings)

	router := chi.NewRouter()

	router.Use(secureauditmiddleware.Logger(&logger))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", healthCheck)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/audit-runs", auditHandler.StartAuditRun)
		r.Get("/audit-runs", auditHandler.ListAuditRuns)
		r.Get("/audit-runs/{auditRunID}", auditHandler.GetAuditRun)
		r.Get("/audit-runs/{auditRunID}/snapshot", auditHandler.GetSnapshot)
		r.Get("/findings", findingHandler.QueryFindings)
		r.Put("/findings/{findingID}/status", findingHandler.UpdateFindingStatus)
	})

	shutdownTimeout := config.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &WebAPI{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:    config.Addr,
			Handler: router,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// Router exposes the configured mux, mainly for tests.
func (w *WebAPI) Router() http.Handler {
	return w.router
}

func (w *WebAPI) Start() error {
	serverErrors := make(chan error, 1)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-shutdown:
		w.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()

		err := w.server.Shutdown(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"healthy","service":"secureaudit"}`))
}
