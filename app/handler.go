package app

import (
	"net/http"

	apidispatch "github.com/kilianp07/geodispatch/api/dispatch"
	"github.com/kilianp07/geodispatch/api/fleet"
)

// Handler returns the HTTP API of the service.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/drivers", fleet.NewDriversHandler(s.Store))
	if s.Tracker != nil {
		mux.Handle("/api/drivers/locate", fleet.NewLocateHandler(s.Tracker))
	}
	mux.Handle("/api/deliveries", fleet.NewDeliveriesHandler(s.Store))
	mux.Handle("/api/deliveries/transition", fleet.NewTransitionHandler(s.Gate))
	mux.Handle("/api/deliveries/complete", fleet.NewCompleteHandler(s.Gate))
	mux.Handle("/api/dispatch/assign", apidispatch.NewAssignHandler(s.Engine))
	mux.Handle("/api/dispatch/automation", apidispatch.NewAutomationHandler(s.Engine))
	mux.Handle("/api/dispatch/hints", apidispatch.NewHintsHandler(s.Engine))
	if s.commits != nil {
		mux.Handle("/api/dispatch/commits", apidispatch.NewLogHandler(s.commits))
	}
	if s.hub != nil {
		mux.Handle(s.cfg.API.WebsocketPath, s.hub)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
