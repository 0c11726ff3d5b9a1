// Package bridge holds the one-way projection of coordinator state
// into an observable store consumed by the UI layer. The coordinator
// writes it; the HTTP and WebSocket layers read and stream it. It is
// never the source of truth.
package bridge
