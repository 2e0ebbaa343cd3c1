package control

// Package control exposes the operator surface over HTTP: inspect configured
// proxies, start or stop them, and toggle trace capture. Toggling a capture
// off returns it rendered in the proxy's configured format.
