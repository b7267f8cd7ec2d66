package engine

import "errors"

// ErrNotInitialized indicates a local action was dispatched before any graph
// exists on this device. Dispatch an init action or sync from a peer first.
var ErrNotInitialized = errors.New("engine: graph not initialized")

// ErrClosed indicates use of the engine after Close.
var ErrClosed = errors.New("engine: closed")
