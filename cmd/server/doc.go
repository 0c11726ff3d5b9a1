// Package main is the entry point for the chatlab session coordinator.
//
// This service sits between the browser UI and the identity/storage
// backends, owning session lifecycle, workspace selection, and the
// projected auth state the UI consumes.
//
// Architecture:
//
//	Browser UI → Coordinator Service → OAuth Proxy (cloud identity)
//	                                 → Local Vault / Drive Gateway (storage)
//	                                 → Workspace Registry
//
// The server provides:
//   - REST API for auth lifecycle and workspace management
//   - WebSocket streaming of auth state changes
//   - Prometheus metrics
//   - Rate limiting and CORS for browser origins
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8090 -mode cloud
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
