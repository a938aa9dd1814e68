// Package experiment provides the capture-evaluate-store control loop for the
// camera payload.
//
// # Reading Guide
//
// Start with these files to understand the loop:
//   - config.go: the immutable run configuration (ceilings, cadence, paths)
//   - brightness.go: the day/night decision on a decoded image
//   - budget.go: cumulative size and image-count accounting with rollback
//   - controller.go: one iteration (capture → evaluate → budget → commit → pace)
//   - supervisor.go: the run window, stop conditions and finalization
//
// # Collaborators
//
// The loop only depends on small interfaces (interfaces.go):
//   - Camera: configure, capture to a path, close
//   - PositionSource: current latitude/longitude
//   - Clock: wall-clock time and the pacing sleep
//   - RecordSink: anything that accepts committed CaptureRecords
//
// Implementations live elsewhere: device/ for cameras, position/ for
// position sources and store/ for the secondary capture index.
//
// # Concurrency
//
// Everything in this package runs on a single goroutine. Tracker, DataLog and
// Controller are not safe for concurrent use.
package experiment
