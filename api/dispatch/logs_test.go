package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kilianp07/geodispatch/core/dispatch/logging"
)

type memStore struct {
	recs []logging.CommitRecord
	last logging.CommitQuery
}

func (m *memStore) Append(ctx context.Context, r logging.CommitRecord) error {
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) Query(ctx context.Context, q logging.CommitQuery) ([]logging.CommitRecord, error) {
	m.last = q
	var res []logging.CommitRecord
	for _, r := range m.recs {
		if q.DriverID != "" && r.DriverID != q.DriverID {
			continue
		}
		res = append(res, r)
	}
	return res, nil
}

func (m *memStore) Close() error { return nil }

func TestLogHandler_Filters(t *testing.T) {
	store := &memStore{}
	now := time.Now()
	_ = store.Append(context.Background(), logging.CommitRecord{Timestamp: now, DeliveryID: "o1", DriverID: "d1", Score: 80})
	_ = store.Append(context.Background(), logging.CommitRecord{Timestamp: now, DeliveryID: "o2", DriverID: "d2", Score: 70})
	h := NewLogHandler(store)

	req := httptest.NewRequest("GET", "/api/dispatch/commits?driver_id=d1&start=2026-01-01T00:00:00Z", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []logging.CommitRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].DeliveryID != "o1" {
		t.Fatalf("unexpected records %#v", out)
	}
	if store.last.Start.Year() != 2026 {
		t.Fatalf("start not parsed: %v", store.last.Start)
	}
}

func TestLogHandler_EmptyAndErrors(t *testing.T) {
	h := NewLogHandler(&memStore{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/dispatch/commits", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "[]\n" {
		t.Fatalf("expected empty list, got %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/dispatch/commits?end=yesterday", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/dispatch/commits", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}
}
