package dispatch

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kilianp07/geodispatch/core/dispatch/logging"
)

// NewLogHandler returns an HTTP handler exposing the commit log via
// GET /api/dispatch/commits. Supported filters: start, end (RFC3339),
// driver_id and delivery_id.
func NewLogHandler(store logging.LogStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := logging.CommitQuery{
			DriverID:   r.URL.Query().Get("driver_id"),
			DeliveryID: r.URL.Query().Get("delivery_id"),
		}
		if s := r.URL.Query().Get("start"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid start", http.StatusBadRequest)
				return
			}
			q.Start = t
		}
		if s := r.URL.Query().Get("end"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid end", http.StatusBadRequest)
				return
			}
			q.End = t
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []logging.CommitRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
