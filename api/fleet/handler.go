// Package fleet exposes the roster and delivery board over HTTP.
package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/core/store"
)

// NewDriversHandler returns an HTTP handler listing drivers via
// GET /api/drivers. Supported filters: zone and online.
func NewDriversHandler(s store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap, err := s.Snapshot(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		zone := model.Zone(r.URL.Query().Get("zone"))
		var online *bool
		if v := r.URL.Query().Get("online"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				http.Error(w, "invalid online", http.StatusBadRequest)
				return
			}
			online = &b
		}
		out := make([]model.Driver, 0, len(snap.Drivers))
		for _, d := range snap.Drivers {
			if zone != "" && d.Zone != zone {
				continue
			}
			if online != nil && d.Online != *online {
				continue
			}
			out = append(out, d)
		}
		writeJSON(w, http.StatusOK, out)
	})
}

// NewDeliveriesHandler serves GET /api/deliveries, filtered by status and
// zone, and POST /api/deliveries which places a new pending order.
func NewDeliveriesHandler(s store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listDeliveries(w, r, s)
		case http.MethodPost:
			createDelivery(w, r, s)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func listDeliveries(w http.ResponseWriter, r *http.Request, s store.Store) {
	snap, err := s.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	status := model.Status(r.URL.Query().Get("status"))
	zone := model.Zone(r.URL.Query().Get("zone"))
	out := make([]model.Delivery, 0, len(snap.Deliveries))
	for _, d := range snap.Deliveries {
		if status != "" && d.Status != status {
			continue
		}
		if zone != "" && d.Zone != zone {
			continue
		}
		out = append(out, d)
	}
	writeJSON(w, http.StatusOK, out)
}

func createDelivery(w http.ResponseWriter, r *http.Request, s store.Store) {
	var d model.Delivery
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, "invalid delivery", http.StatusBadRequest)
		return
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Status = model.StatusPending
	d.AssignedDriver = ""
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if err := d.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := s.Delivery(r.Context(), d.ID); err == nil {
		http.Error(w, "delivery "+d.ID+" already exists", http.StatusConflict)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.UpsertDelivery(r.Context(), d); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// Locator reports a driver position on demand.
type Locator interface {
	Locate(ctx context.Context, subjectID string) (model.LocationSample, error)
}

// NewLocateHandler serves GET /api/drivers/locate?driver_id=... with a
// one-shot position fix.
func NewLocateHandler(l Locator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("driver_id")
		if id == "" {
			http.Error(w, "driver_id is required", http.StatusBadRequest)
			return
		}
		s, err := l.Locate(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, s)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
