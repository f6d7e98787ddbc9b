// Package handler provides HTTP handlers for the administrative console.
package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"

	"github.com/albapepper/powerdata/internal/console/respond"
	"github.com/albapepper/powerdata/internal/ledger"
)

// Pinger checks storage connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	db     Pinger
	ledger ledger.Ledger
	runner *Runner
	logger *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(db Pinger, l ledger.Ledger, runner *Runner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{db: db, ledger: l, runner: runner, logger: logger}
}

// Root serves console info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":   "powerdata console",
		"status": "running",
		"endpoints": []string{
			"/health",
			"/health/db",
			"/api/v1/broken-fixtures",
			"/api/v1/scrape",
			"/api/v1/scrape/status",
		},
	})
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Warn("Database health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListBrokenFixtures returns every ledger entry.
func (h *Handler) ListBrokenFixtures(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list broken fixtures", "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "LEDGER_ERROR", "Could not read broken fixtures")
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"count":    len(entries),
		"fixtures": entries,
	})
}

type scrapeRequest struct {
	FixtureIDs []string `json:"fixture_ids"`
}

// StartScrape launches a background scrape. An empty body scrapes every
// competition.
func (h *Handler) StartScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_BODY", "Could not read request body")
		return
	}
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &req); err != nil {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "BAD_BODY", "Request body must be JSON", err.Error())
			return
		}
	}

	runID, err := h.runner.Start(req.FixtureIDs)
	if errors.Is(err, ErrRunActive) {
		respond.WriteError(w, http.StatusConflict, "SCRAPE_IN_PROGRESS", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to start scrape", "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "SCRAPE_FAILED", "Could not start scrape")
		return
	}
	respond.WriteJSONObject(w, http.StatusAccepted, map[string]interface{}{
		"run_id": runID,
		"state":  StateInProgress,
	})
}

// ScrapeStatus reports the background scrape state.
func (h *Handler) ScrapeStatus(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, h.runner.Status())
}
