// Package progress provides the event primitives and the synchronous bus that
// pipeline components publish lifecycle notifications to. Observers such as
// progress bars, loggers, and metrics subscribe to the bus without the
// publishing components knowing about them.
package progress
