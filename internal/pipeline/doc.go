// Package pipeline runs crawl attempts as a sequence of named steps, and
// runs many attempts concurrently.
//
// A Pipeline is generic over the state its steps share. Steps run in the
// order they were added; a step can end the run early by returning ErrStop.
// Steps registered with Finally always run, so a crawl attempt can close
// its archive after cancellation or failure.
//
// BatchProcessor runs one Runner call per crawl specification on an
// errgroup with a concurrency limit.
package pipeline
