package hook

import (
	"context"

	"github.com/fantap/fantap/internal/trace"
)

// ChunkTransform rewrites a chunk before the session forwards it.
//
// Returning a replacement (or the input unchanged) forwards those bytes.
// Returning nil drops the chunk: nothing is written downstream, but the
// transfer is still traced with ChunkSent=false. An error is treated the same
// as a drop. Invoked synchronously on the pump goroutine.
type ChunkTransform interface {
	TransformChunk(chunk []byte, opts map[string]any, state *State) ([]byte, error)
}

// TraceObserver sees every trace entry as it is produced, whether or not a
// capture is active. soFar is the capture accumulated so far (nil when not
// capturing); observers must not modify or retain it.
type TraceObserver interface {
	ObserveEntry(entry trace.Entry, soFar []trace.Entry, opts map[string]any, state *State)
}

// TraceWriter consumes a finished capture when tracing is toggled off.
type TraceWriter interface {
	WriteTrace(ctx context.Context, entries []trace.Entry, opts map[string]any, state *State) error
}
