// Package foreman identifies the orchestration service build
package foreman

const (
	Name    = "foreman"
	Version = "0.1.0"
)
