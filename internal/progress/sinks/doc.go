// Package sinks implements concrete progress observers: structured logging,
// Prometheus metrics, and a terminal progress bar. Each attaches to a
// progress.Sink by subscribing handlers for the kinds it cares about.
package sinks
