package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// handleGetDeviceHistory returns recorded state changes for a device.
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	since, err := parseSinceParam(r.URL.Query().Get("since"))
	if err != nil {
		writeBadRequest(w, "invalid since timestamp")
		return
	}

	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "state history unavailable")
		return
	}

	entries, err := s.history.GetHistory(r.Context(), dev.ID, limit)
	if err != nil {
		s.logger.Error("history query failed", "device_id", dev.ID, "error", err)
		writeInternalError(w, "failed to load device history")
		return
	}

	if !since.IsZero() {
		filtered := entries[:0]
		for _, entry := range entries {
			if entry.CreatedAt.After(since) {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": dev.ID,
		"history":   entries,
		"count":     len(entries),
	})
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}

// parseSinceParam parses the since parameter as RFC3339 (fractional
// seconds allowed).
func parseSinceParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}
