// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// StoreCall caps a single invite, identity, or presence store call made on
// behalf of a realtime or HTTP request.
const StoreCall = 2 * time.Second

// StoreOpen caps how long a file-backed store waits for its file lock.
const StoreOpen = time.Second
