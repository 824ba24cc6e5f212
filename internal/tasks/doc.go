// Package tasks implements the task scheduler
//
// Pending tasks wait in a backlog ordered by priority (highest first), then
// creation time, then insertion order. Claimed tasks run their executor
// under a timeout race, bounded by a concurrency ceiling. A task is
// attempted exactly once; retry belongs to the workflow engine
package tasks
