// Package workflow runs declarative multi-step workflows
//
// A definition is an ordered list of typed steps. Each execution walks the
// steps on its own goroutine, retrying failed attempts with exponential
// backoff and merging step outputs into a shared variable bag. Guards on a
// step's Next list choose the branch; without them the run follows
// definition order. Definitions may be launched on a schedule, by events
// raised on the hub, or instantiated from parameterized templates
package workflow
