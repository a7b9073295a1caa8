package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"wabridge/internal/constants"
	"wabridge/internal/middleware"
	"wabridge/internal/models"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router     *mux.Router
	logger     *logrus.Logger
	supervisor Supervisor
	cfg        *models.Config
	server     *http.Server
	startTime  time.Time
}

func NewServer(cfg *models.Config, supervisor Supervisor, logger *logrus.Logger) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		supervisor: supervisor,
		cfg:        cfg,
		startTime:  time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware)
	s.router.Use(middleware.Observability(s.logger))

	// OPTIONS is listed on every route so preflight requests reach the CORS
	// middleware instead of the method-not-allowed handler.
	s.router.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/qr", s.handleQR()).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/send", s.handleSend()).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/resolve-numbers", s.handleResolveNumbers()).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet, http.MethodOptions)

	s.router.NotFoundHandler = s.corsMiddleware(http.HandlerFunc(s.handleNotFound))
	s.router.MethodNotAllowedHandler = s.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}))
}

// corsMiddleware allows browser callers from any origin and answers
// preflight requests directly.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Webhook-Secret")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
