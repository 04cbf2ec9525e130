package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	Relayed           uint64    `json:"events_relayed"`
	Failed            uint64    `json:"events_failed"`
	LastSent          time.Time `json:"last_event_time"`
	DatabaseConnected bool      `json:"database_connected"`
	NATSConnected     bool      `json:"nats_connected"`
	ListenerActive    bool      `json:"listener_active"`
	Errors            []string  `json:"errors"`
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type statsSource interface {
	Stats() ListenerStats
}

// HealthChecker reports whether the relay can currently move changes from
// Postgres to NATS.
type HealthChecker struct {
	listener  statsSource
	db        Pinger
	connected func() bool
}

func NewHealthChecker(listener *Listener, db Pinger, nc *nats.Conn) *HealthChecker {
	return &HealthChecker{listener: listener, db: db, connected: nc.IsConnected}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	stats := h.listener.Stats()
	status.Relayed = stats.Relayed
	status.Failed = stats.Failed
	status.LastSent = stats.LastSent
	status.ListenerActive = stats.Running
	if !status.ListenerActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "listener not active")
	}

	if err := h.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	status.NATSConnected = h.connected()
	if !status.NATSConnected {
		status.Healthy = false
		status.Errors = append(status.Errors, "NATS disconnected")
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health status")
	}
}
