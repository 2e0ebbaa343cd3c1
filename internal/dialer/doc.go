package dialer

// Package dialer establishes the outbound connections to proxy targets.
//
// Dialers implement a small interface (DialContext). Targets are reached
// either directly or through a SOCKS5 upstream proxy, selected by the
// --upstream URL.
