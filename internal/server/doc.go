// Package server exposes the orchestration core over HTTP, with a
// WebSocket stream of the events raised on the event hub
package server
