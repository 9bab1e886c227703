package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"comanda/pkg/logger"
)

// SessionCounter exposes the session store size to the health report
type SessionCounter interface {
	Count() int
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	redis       *redis.Client
	sessions    SessionCounter
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a new health check handler. redis may be nil when the
// profile cache is disabled.
func New(log *logger.Logger, redisClient *redis.Client, sessions SessionCounter, serviceName, version string) *Handler {
	return &Handler{
		log:         log,
		redis:       redisClient,
		sessions:    sessions,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// Status represents the overall health status
type Status struct {
	Status         string            `json:"status"`
	Service        string            `json:"service"`
	Version        string            `json:"version"`
	Uptime         string            `json:"uptime"`
	Timestamp      string            `json:"timestamp"`
	ActiveSessions int               `json:"activeSessions"`
	Checks         map[string]string `json:"checks,omitempty"`
}

// HandleLiveness returns 200 OK if service is running
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
	})
}

// HandleStatus reports overall health including dependency checks
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := Status{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    map[string]string{},
	}
	if h.sessions != nil {
		status.ActiveSessions = h.sessions.Count()
	}

	httpStatus := http.StatusOK
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			status.Checks["redis"] = err.Error()
			status.Status = "degraded"
		} else {
			status.Checks["redis"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(status)
}
