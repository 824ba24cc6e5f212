// Package core assembles the orchestration components into one running
// system. It owns the shared event hub and timer scheduler, drives the task
// backlog, loads workflow definitions from disk and registers the built-in
// components with the monitor
package core
