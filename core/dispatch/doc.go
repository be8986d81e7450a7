// Package dispatch matches pending deliveries to drivers.
//
// The Engine runs serialized ticks. Each tick escalates overdue priorities,
// assigns pending deliveries to the best scoring eligible driver, computes
// rebalancing hints for the next tick and shortens advisory ETAs once per
// delivery. Every pass can be toggled at runtime with SetAutomation. Manual
// dispatcher overrides go through the same commit path as automatic
// assignments.
package dispatch
