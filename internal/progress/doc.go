// Package progress carries crawl run milestones from the engine to pluggable
// sinks. Events are batched on a background goroutine so that emitting never
// blocks a run.
package progress
