package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/internal/storage/sqlite"
	"github.com/yegors/jetstream/internal/websocket"
	"github.com/yegors/jetstream/pkg/logger"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
	maxBodyBytes        = 1 << 20
)

// Handler serves the aircraft API. Every accepted write is stored first and
// then published on the matching realtime channel.
type Handler struct {
	storage   *sqlite.AircraftStorage
	wsServer  *websocket.Server
	startTime time.Time
	logger    *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(storage *sqlite.AircraftStorage, wsServer *websocket.Server, startTime time.Time, logger *logger.Logger) *Handler {
	return &Handler{
		storage:   storage,
		wsServer:  wsServer,
		startTime: startTime,
		logger:    logger.Named("api-handler"),
	}
}

// ListAircraft returns every aircraft, optionally filtered by ?status=
func (h *Handler) ListAircraft(w http.ResponseWriter, r *http.Request) {
	var status fleet.Status
	if s := r.URL.Query().Get("status"); s != "" {
		parsed, err := fleet.ParseStatus(s)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = parsed
	}

	aircraft, err := h.storage.List()
	if err != nil {
		h.logger.Error("Failed to list aircraft", logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list aircraft")
		return
	}

	filtered := make([]*fleet.Aircraft, 0, len(aircraft))
	for _, a := range aircraft {
		if status == "" || a.Status == status {
			filtered = append(filtered, a)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(filtered),
		"aircraft": filtered,
	})
}

// GetAircraft returns one aircraft
func (h *Handler) GetAircraft(w http.ResponseWriter, r *http.Request) {
	aircraft, err := h.storage.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeStorageError(w, err, "aircraft")
		return
	}
	h.writeJSON(w, http.StatusOK, aircraft)
}

// PutAircraft creates or replaces an aircraft and publishes it on its status channel
func (h *Handler) PutAircraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var aircraft fleet.Aircraft
	if !h.decodeBody(w, r, &aircraft) {
		return
	}
	if aircraft.ID == "" {
		aircraft.ID = id
	}
	if aircraft.ID != id {
		h.writeError(w, http.StatusBadRequest, "aircraft id does not match the path")
		return
	}
	aircraft.UpdatedAt = time.Now().UTC()

	if err := fleet.ValidateAircraft(&aircraft); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.storage.Upsert(&aircraft); err != nil {
		h.writeStorageError(w, err, "aircraft")
		return
	}

	h.publish(fleet.StatusChannel(id), &aircraft)
	h.writeJSON(w, http.StatusOK, &aircraft)
}

// UpdateStatus changes an aircraft's status and publishes the new record
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Status string `json:"status"`
	}
	if !h.decodeBody(w, r, &body) {
		return
	}
	status, err := fleet.ParseStatus(body.Status)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	aircraft, err := h.storage.UpdateStatus(id, status)
	if err != nil {
		h.writeStorageError(w, err, "aircraft")
		return
	}

	h.logger.Info("Aircraft status changed",
		logger.String("aircraft_id", id),
		logger.String("status", string(status)))

	h.publish(fleet.StatusChannel(id), aircraft)
	h.writeJSON(w, http.StatusOK, aircraft)
}

// GetPosition returns the latest position of an aircraft
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	position, err := h.storage.LatestPosition(chi.URLParam(r, "id"))
	if err != nil {
		h.writeStorageError(w, err, "position")
		return
	}
	h.writeJSON(w, http.StatusOK, position)
}

// ReportPosition stores a position sample and publishes it
func (h *Handler) ReportPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var position fleet.Position
	if !h.decodeBody(w, r, &position) {
		return
	}
	if position.AircraftID == "" {
		position.AircraftID = id
	}
	if position.AircraftID != id {
		h.writeError(w, http.StatusBadRequest, "aircraft id does not match the path")
		return
	}
	if position.Timestamp.IsZero() {
		position.Timestamp = time.Now().UTC()
	}

	if err := fleet.ValidatePosition(&position); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.storage.InsertPosition(&position); err != nil {
		h.writeStorageError(w, err, "aircraft")
		return
	}

	h.publish(fleet.PositionChannel(id), &position)
	h.writeJSON(w, http.StatusAccepted, &position)
}

// GetPositionHistory returns recent positions, newest first
func (h *Handler) GetPositionHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	if _, err := h.storage.Get(id); err != nil {
		h.writeStorageError(w, err, "aircraft")
		return
	}
	positions, err := h.storage.PositionHistory(id, limit)
	if err != nil {
		h.writeStorageError(w, err, "positions")
		return
	}
	if positions == nil {
		positions = []*fleet.Position{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"aircraft_id": id,
		"count":       len(positions),
		"positions":   positions,
	})
}

// GetTracking lists the aircraft clients are tracking
func (h *Handler) GetTracking(w http.ResponseWriter, r *http.Request) {
	tracked := h.wsServer.Tracking().List()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(tracked),
		"tracking": tracked,
	})
}

// HandleWebSocket serves the realtime socket
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.ServeHTTP(w, r)
}

// GetHealth reports liveness and a few counters
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	aircraftCount := 0
	if aircraft, err := h.storage.List(); err != nil {
		status = "degraded"
		h.logger.Warn("Health check storage query failed", logger.Error(err))
	} else {
		aircraftCount = len(aircraft)
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, map[string]interface{}{
		"status":         status,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"clients":        h.wsServer.ClientCount(),
		"aircraft":       aircraftCount,
		"tracked":        len(h.wsServer.Tracking().List()),
	})
}

func (h *Handler) publish(channel string, v interface{}) {
	if err := h.wsServer.Publish(channel, v); err != nil {
		h.logger.Warn("Failed to publish update",
			logger.String("channel", channel),
			logger.Error(err))
	}
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) writeStorageError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, sqlite.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	var validationErr *fleet.ValidationError
	if errors.As(err, &validationErr) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("Storage operation failed", logger.String("resource", what), logger.Error(err))
	h.writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
