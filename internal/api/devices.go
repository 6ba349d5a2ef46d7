package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/inventory-core/internal/inventory"
)

// DeviceDetailResponse is one laptop with its check-in history.
type DeviceDetailResponse struct {
	Device       *inventory.DeviceState    `json:"device"`
	DriveSerials []string                  `json:"drive_serials"`
	History      []inventory.HistoryRecord `json:"history"`
}

// handleListDevices returns every laptop, most recently seen first.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.reader.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("listing devices failed", "error", err, "request_id", requestID(r))
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one laptop plus its history.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	serial, ok := serialParam(w, r)
	if !ok {
		return
	}

	device, err := s.reader.GetDevice(r.Context(), serial)
	if errors.Is(err, inventory.ErrNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	if err != nil {
		s.logger.Error("loading device failed", "laptop_serial", serial, "error", err, "request_id", requestID(r))
		writeInternalError(w)
		return
	}

	history, err := s.reader.History(r.Context(), serial)
	if err != nil {
		s.logger.Error("loading device history failed", "laptop_serial", serial, "error", err, "request_id", requestID(r))
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, DeviceDetailResponse{
		Device:       device,
		DriveSerials: device.DriveSerials(),
		History:      history,
	})
}

// handleDeviceHistory returns the check-in history for one laptop.
// An unknown serial yields an empty list.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	serial, ok := serialParam(w, r)
	if !ok {
		return
	}

	history, err := s.reader.History(r.Context(), serial)
	if err != nil {
		s.logger.Error("loading device history failed", "laptop_serial", serial, "error", err, "request_id", requestID(r))
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"laptop_serial": serial,
		"history":       history,
		"count":         len(history),
	})
}

// serialParam extracts the serial from the route. chi matches against
// RawPath when it is set, so only then is the parameter still escaped.
func serialParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	serial := chi.URLParam(r, "serial")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(serial)
		if err != nil {
			writeBadRequest(w, "invalid laptop serial")
			return "", false
		}
		serial = unescaped
	}
	if serial == "" {
		writeBadRequest(w, "invalid laptop serial")
		return "", false
	}
	return serial, true
}
