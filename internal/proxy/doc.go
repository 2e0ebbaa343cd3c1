package proxy

// Package proxy implements the port-forwarding engine.
//
// An Instance owns one listening TCP port. Every accepted connection becomes a
// Session that fans chunks out to all configured targets and echoes replies
// from the targets selected by the echo policy back to the client. Each chunk
// can pass through a pluggable transform, is counted by the statistics block,
// and is captured into an ordered trace while tracing is toggled on.
