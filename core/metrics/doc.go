// Package metrics defines interfaces for recording dispatch and tracking
// metrics. Sinks like the Prometheus and InfluxDB implementations in
// infra/metrics record assignments, tick summaries, location fixes and
// geofence transitions, and can be combined with NewMultiSink. The factory
// helpers return a MultiSink automatically when multiple sinks are configured.
package metrics
