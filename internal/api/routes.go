package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/jetstream/internal/config"
	"github.com/yegors/jetstream/internal/storage/sqlite"
	"github.com/yegors/jetstream/internal/websocket"
	"github.com/yegors/jetstream/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(storage *sqlite.AircraftStorage, wsServer *websocket.Server, config *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(storage, wsServer, time.Now(), logger),
		middleware: NewMiddleware(logger),
		config:     config,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))
	router.Use(r.middleware.RequireJSON)

	router.Route("/api/v1", func(router chi.Router) {
		// Aircraft routes
		router.Get("/aircraft", r.handler.ListAircraft)
		router.Get("/aircraft/{id}", r.handler.GetAircraft)
		router.Put("/aircraft/{id}", r.handler.PutAircraft)
		router.Put("/aircraft/{id}/status", r.handler.UpdateStatus)

		// Position routes
		router.Get("/aircraft/{id}/position", r.handler.GetPosition)
		router.Post("/aircraft/{id}/position", r.handler.ReportPosition)
		router.Get("/aircraft/{id}/positions", r.handler.GetPositionHistory)

		// Tracking
		router.Get("/tracking", r.handler.GetTracking)

		// WebSocket route
		router.Get("/ws", r.handler.HandleWebSocket)

		// Health check
		router.Get("/health", r.handler.GetHealth)
	})

	return router
}
