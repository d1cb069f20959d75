package worker

import (
	"context"

	"github.com/chris-alexander-pop/agentfabric/internal/model"
)

// RunEvent is one item a Runner emits during a stream run. Event is either
// a model.StreamEvent (published via its own JSON shape) or a plain
// map[string]any (published as-is); Err set terminates the run.
type RunEvent struct {
	Event any
	Err   error
}

// Runner is the only capability the worker depends on: stream a run for
// one envelope, emitting typed events or raw mappings, terminated by
// closing the channel.
type Runner interface {
	StreamRun(ctx context.Context, env model.Envelope) <-chan RunEvent
}
