package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/geodispatch/core/gate"
	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/core/store"
)

// Gate is the part of the delivery gate exposed to the driver app.
type Gate interface {
	Transition(ctx context.Context, deliveryID string, to model.Status) (model.Delivery, error)
	CanComplete(ctx context.Context, deliveryID string) (bool, float64, error)
	AttemptComplete(ctx context.Context, deliveryID string) (model.Delivery, error)
}

type transitionRequest struct {
	DeliveryID string       `json:"delivery_id"`
	Status     model.Status `json:"status"`
}

type violationResponse struct {
	Error     string  `json:"error"`
	Reason    string  `json:"reason"`
	DistanceM float64 `json:"distance_m"`
	RadiusM   float64 `json:"radius_m"`
}

type completableResponse struct {
	Allowed   bool    `json:"allowed"`
	DistanceM float64 `json:"distance_m"`
}

// NewTransitionHandler serves POST /api/deliveries/transition.
func NewTransitionHandler(g Gate) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req transitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeliveryID == "" || req.Status == "" {
			http.Error(w, "delivery_id and status are required", http.StatusBadRequest)
			return
		}
		d, err := g.Transition(r.Context(), req.DeliveryID, req.Status)
		if err != nil {
			writeGateError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	})
}

// NewCompleteHandler serves GET /api/deliveries/complete?delivery_id=...,
// which reports whether completion is currently allowed, and POST with a
// JSON body {"delivery_id": ...} which attempts it. A geofence violation
// answers 409 with the current distance.
func NewCompleteHandler(g Gate) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			id := r.URL.Query().Get("delivery_id")
			if id == "" {
				http.Error(w, "delivery_id is required", http.StatusBadRequest)
				return
			}
			ok, dist, err := g.CanComplete(r.Context(), id)
			if err != nil {
				writeGateError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, completableResponse{Allowed: ok, DistanceM: dist})
		case http.MethodPost:
			var req struct {
				DeliveryID string `json:"delivery_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeliveryID == "" {
				http.Error(w, "delivery_id is required", http.StatusBadRequest)
				return
			}
			d, err := g.AttemptComplete(r.Context(), req.DeliveryID)
			if err != nil {
				writeGateError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, d)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func writeGateError(w http.ResponseWriter, err error) {
	var v *gate.GeofenceViolation
	switch {
	case errors.As(err, &v):
		writeJSON(w, http.StatusConflict, violationResponse{
			Error:     v.Error(),
			Reason:    v.Reason,
			DistanceM: v.DistanceM,
			RadiusM:   v.RadiusM,
		})
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, gate.ErrDeliveredViaTransition):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
