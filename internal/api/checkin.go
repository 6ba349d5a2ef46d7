package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/inventory-core/internal/inventory"
)

// CheckInResponse acknowledges an accepted check-in.
type CheckInResponse struct {
	Status string `json:"status"`
}

// handleCheckIn decodes one check-in and hands it to the ingestion service.
//
// The service has already logged any failure with full detail, so only the
// outcome class reaches the client.
func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var c inventory.CheckIn
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return
		}
		s.logger.Warn("undecodable check-in body", "error", err, "request_id", requestID(r))
		writeBadRequest(w, "invalid JSON body")
		return
	}

	_, err := s.ingester.Ingest(r.Context(), c)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, CheckInResponse{Status: "accepted"})
	case errors.Is(err, inventory.ErrValidationFailed):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, msgInvalidInput)
	default:
		writeInternalError(w)
	}
}
