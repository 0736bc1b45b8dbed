package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes holds the handlers of the REST endpoints
type Routes struct {
	markers MarkerReader
	status  StatusProvider
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

func (rt *Routes) health(w http.ResponseWriter, _ *http.Request) {
	WriteJSONResponse(w, rt.status.Status(), http.StatusOK)
}

// listMarkers returns the published markers as a full sync batch, the same
// payload a subscriber receives when it connects.
func (rt *Routes) listMarkers(w http.ResponseWriter, _ *http.Request) {
	WriteJSONResponse(w, rt.markers.Snapshot(), http.StatusOK)
}

func (rt *Routes) getMarker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m, ok := rt.markers.Published(name)
	if !ok {
		WriteErrorResponse(w, fmt.Sprintf("marker %q not found", name), http.StatusNotFound)
		return
	}
	WriteJSONResponse(w, m, http.StatusOK)
}

// WriteJSONResponse writes a JSON response with the given data
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// WriteErrorResponse writes a standardized error response
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, ErrorResponse{Error: message}, statusCode)
}
