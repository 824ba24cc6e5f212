// Package util provides common utility functions and data structures
//
// This package includes a generic set implementation and state transition
// tables used by the task scheduler and the workflow engine
package util
