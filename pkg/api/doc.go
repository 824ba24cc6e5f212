// Package api defines the public data model of the orchestration core
//
// Tasks, decisions, workflow definitions and executions, metric samples,
// alerts and events are plain structs shared by every component and by the
// HTTP surface. Callers always receive copies; components own the originals
package api
