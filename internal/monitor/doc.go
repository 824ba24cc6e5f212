// Package monitor watches the health and metrics of the running system
//
// Two fixed-interval ticks drive it: metric collection, which samples the
// host and every registered source, evaluates threshold rules and runs
// healing actions, and health checks, which poll each source and raise a
// critical alert for any that is failing. Alerts for the same condition
// are not repeated while an earlier one is unresolved
package monitor
