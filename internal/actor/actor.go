package actor

import "go.uber.org/zap"

// Actor is embedded by the transport and session layers to give each
// a runner. Both own their Runner outright; passing an existing Runner to
// NewChildActor lets a layer share its parent's worker instead of
// spawning a new goroutine, trading isolation for fewer threads --
// either choice leaves externally observable ordering unchanged, since
// all that matters is that one Runner's tasks never interleave.
type Actor struct {
	Runner *Runner
}

// NewActor starts a fresh Runner and wraps it in an Actor.
func NewActor(name string, log *zap.Logger) Actor {
	return Actor{Runner: NewRunner(name, log)}
}

// NewChildActor wraps an already-running Runner, typically a parent
// layer's, without starting a new goroutine.
func NewChildActor(runner *Runner) Actor {
	return Actor{Runner: runner}
}
