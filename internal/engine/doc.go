// Package engine is the client for the model-serving engine process.
//
//   - client.go: Client, construction and the model lifecycle operations.
//   - config.go: Config and package defaults.
//   - normalize.go: Normalize, applied to every model record the engine returns.
//   - errors.go: error types and helpers (IsInvalidArgument, BackendError).
//
// All engine calls of one Client run through a single FIFO queue (package
// queue). The first queued operation is the startup health probe, so calls
// issued right after New wait until the engine has answered it or the probe
// has given up. Push events from the engine are exposed by Events.
package engine
