// Package events defines the events emitted by the dispatch and geofencing
// core. Every event reports its transport topic:
//   - geofence.entered / geofence.exited: GeofenceEvent
//   - location.updated: LocationUpdated
//   - location.unavailable: LocationUnavailable
//   - delivery.assigned: DeliveryAssigned
//   - delivery.priority_escalated: PriorityEscalated
//   - delivery.status_changed: StatusChanged
//   - delivery.delivered: DeliveryDelivered
//   - delivery.geofence_violation: GeofenceViolation
//   - delivery.route_optimized: RouteOptimized
//
// Events are fire-and-forget: publishers never wait on subscribers.
package events
