// Package events is the in-process publish/subscribe channel
//
// Every subscription owns a caravan topic and a delivery goroutine, so a
// slow handler only delays its own subscription and Publish never waits on
// a handler. Subscriptions select events by a glob over the dotted event
// type, for example "task.*" or "workflow.completed"
package events
