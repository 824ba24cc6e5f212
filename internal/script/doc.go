// Package script evaluates workflow conditions, decision rules and script
// steps in a sandboxed Lua environment
//
// The io, os, debug and package libraries, the chunk loaders and the
// protected-call functions are removed before any code runs. Variables are
// exposed as Lua locals when their names are valid identifiers, and always
// through a vars table. Each call sees its own global environment and stops
// with ErrInterrupted once its context is done
package script
