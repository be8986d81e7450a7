// Package tracking acquires live positions for drivers and customers from a
// host platform Source. Each tracked subject runs its own acquisition loop
// that walks a fallback ladder of accuracy and timeout settings, throttles
// publication to one sample per minimum interval and hands accepted samples
// to the configured sinks.
package tracking
