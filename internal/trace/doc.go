package trace

// Package trace holds the value types for captured proxy traffic and the
// renderers that turn a finished capture into text, JSON, raw ASCII, or
// reassembled per-stream byte blobs.
//
// A capture is an ordered []Entry; ordering is whatever the recorder observed,
// which for one socket matches arrival order. The package has no dependency on
// the proxy itself so hooks and external consumers can use it freely.
