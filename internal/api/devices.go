package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gree-bridge/internal/bridges/gree"
)

// maxQueryParamLen limits path and query parameter length.
const maxQueryParamLen = 100

// handleListDevices returns every managed device.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.bridge.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleDeviceCommand queues a command using the same field names as the
// MQTT JSON command topic. It answers 202 once queued; the effect shows
// up in the next state publish.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cmd := gree.ParseCommand(fields)
	if cmd.Empty() {
		writeBadRequest(w, "no recognised command fields")
		return
	}

	err := s.bridge.SubmitCommand(dev.ID, cmd)
	switch {
	case err == nil:
	case errors.Is(err, gree.ErrUnknownDevice):
		writeNotFound(w, "device not found")
		return
	case errors.Is(err, gree.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, ErrCodeBusy, "command queue full")
		return
	case errors.Is(err, gree.ErrBridgeStopped):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "bridge stopped")
		return
	default:
		s.logger.Error("command submit failed", "device_id", dev.ID, "error", err)
		writeInternalError(w, "failed to queue command")
		return
	}

	s.logger.Info("command queued via API", "device_id", dev.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id": dev.ID,
		"status":    "queued",
		"queued_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// lookupDevice resolves the {id} path parameter, writing 400/404 itself
// when it returns false.
func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (gree.Snapshot, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return gree.Snapshot{}, false
	}

	dev, ok := s.bridge.Device(id)
	if !ok {
		writeNotFound(w, "device not found")
		return gree.Snapshot{}, false
	}
	return dev, true
}
