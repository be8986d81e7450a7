package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/geodispatch/core/dispatch"
	"github.com/kilianp07/geodispatch/core/store"
)

// Engine is the part of the dispatch engine exposed over HTTP.
type Engine interface {
	Assign(ctx context.Context, deliveryID, driverID string) (dispatch.Assignment, error)
	Automation() dispatch.Toggles
	SetAutomation(t dispatch.Toggles)
	Hints() map[string][]string
}

type assignRequest struct {
	DeliveryID string `json:"delivery_id"`
	DriverID   string `json:"driver_id"`
}

// NewAssignHandler serves POST /api/dispatch/assign, the dispatcher override.
// A delivery that is no longer pending yields 409.
func NewAssignHandler(e Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req assignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeliveryID == "" || req.DriverID == "" {
			http.Error(w, "delivery_id and driver_id are required", http.StatusBadRequest)
			return
		}
		a, err := e.Assign(r.Context(), req.DeliveryID, req.DriverID)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, a)
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, dispatch.ErrAssignmentConflict):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, dispatch.ErrDriverUnavailable):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// NewAutomationHandler serves GET and PUT /api/dispatch/automation. A PUT
// body replaces every toggle; omitted toggles are switched off.
func NewAutomationHandler(e Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, e.Automation())
		case http.MethodPut:
			var t dispatch.Toggles
			if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
				http.Error(w, "invalid toggles", http.StatusBadRequest)
				return
			}
			e.SetAutomation(t)
			writeJSON(w, http.StatusOK, t)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// NewHintsHandler serves GET /api/dispatch/hints with the rebalancing hints
// of the last tick, keyed by zone.
func NewHintsHandler(e Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h := e.Hints()
		if h == nil {
			h = map[string][]string{}
		}
		writeJSON(w, http.StatusOK, h)
	})
}
