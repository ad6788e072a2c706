package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/oscarbot/gateway-service/logger"
	"github.com/oscarbot/gateway-service/models"
)

// LogsHandler exposes the audit-log administration surface: row detail,
// per-table totals and purge.
type LogsHandler struct {
	store *logger.Store
}

// NewLogsHandler creates the audit-log admin handler.
func NewLogsHandler(store *logger.Store) *LogsHandler {
	return &LogsHandler{store: store}
}

// GetEntry handles GET /logs/{type}/{id}: one log row by table and id.
func (h *LogsHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	logType := r.PathValue("type")
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid log id.")
		return
	}

	var entry *models.LogEntry
	switch logType {
	case "server":
		entry, err = h.store.LoadServerEntry(r.Context(), uint(id))
	case "client":
		entry, err = h.store.LoadClientEntry(r.Context(), uint(id))
	default:
		writeJSONError(w, http.StatusBadRequest, "Unknown log type.")
		return
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSONError(w, http.StatusNotFound, "Log entry not found.")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to load log entry.")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// GetTotals handles GET /logs/totals: the row counts of both tables. An
// optional severity query parameter narrows the counts to one severity,
// named on the RFC 5424 scale ("emergency" .. "debug").
func (h *LogsHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	var server, client int64
	var err error

	if name := r.URL.Query().Get("severity"); name != "" {
		severity, ok := logger.SeverityFromName(name)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "Unknown severity.")
			return
		}
		server, err = h.store.CountServerBySeverity(r.Context(), severity)
		if err == nil {
			client, err = h.store.CountClientBySeverity(r.Context(), severity)
		}
	} else {
		server, err = h.store.CountServer(r.Context())
		if err == nil {
			client, err = h.store.CountClient(r.Context())
		}
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to count log entries.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{
		"num_events_server": server,
		"num_events_client": client,
	})
}

// Purge handles POST /logs/purge: removes every row from both tables and
// reports how many each held.
func (h *LogsHandler) Purge(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.Purge(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to purge log entries.")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Health handles GET /health.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
