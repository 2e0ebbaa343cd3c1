package proxy

import "fmt"

// transformChunk runs the configured transform over one chunk.
//
// Returns nil when the chunk should be dropped: either the transform asked for
// it, returned an error, or panicked. The session still traces dropped chunks
// with ChunkSent=false; a hook failure never reaches the pump loop.
func (in *Instance) transformChunk(chunk []byte) []byte {
	if in.cfg.Transform == nil {
		return chunk
	}

	out, err := in.safeTransform(chunk)
	if err != nil {
		in.log.WithError(err).Error("chunk transform failed, dropping chunk")
		return nil
	}
	return out
}

func (in *Instance) safeTransform(chunk []byte) (out []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = fmt.Errorf("transform panic: %v", p)
		}
	}()
	return in.cfg.Transform.TransformChunk(chunk, in.cfg.TransformOptions, in.transformState)
}
