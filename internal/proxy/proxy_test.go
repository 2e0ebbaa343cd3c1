package proxy

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/fantap/fantap/internal/hook"
)

// Shared helpers for the package tests.

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// startInstance builds and starts an instance on an ephemeral port and
// arranges for it to stop and drain before the test finishes.
func startInstance(t *testing.T, ctx context.Context, cfg Config) *Instance {
	t.Helper()

	in, err := NewInstance(cfg)
	if err != nil {
		t.Fatal(err)
	}

	started, err := in.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !started {
		t.Fatal("expected fresh instance to start")
	}

	t.Cleanup(func() {
		in.Stop()
		waitFor(t, "sessions to drain", func() bool { return in.SessionCount() == 0 })
	})

	return in
}

// dialClient connects to the instance's listen address.
func dialClient(t *testing.T, in *Instance) net.Conn {
	t.Helper()

	c, err := net.Dial("tcp", in.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	// The session only exists once the accept loop picked the conn up.
	waitFor(t, "session registration", func() bool { return in.SessionCount() > 0 })
	return c
}

func readAll(t *testing.T, c net.Conn, n int) []byte {
	t.Helper()

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := c.Read(buf[got:])
		if err != nil {
			t.Fatalf("read: %v (got %q)", err, buf[:got])
		}
		got += m
	}
	return buf
}

// expectNoData asserts that nothing arrives on c within the grace window.
func expectNoData(t *testing.T, c net.Conn) {
	t.Helper()

	_ = c.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	buf := make([]byte, 1)
	n, err := c.Read(buf)
	if err == nil || n > 0 {
		t.Fatalf("expected no data, got %d bytes", n)
	}
	ne, ok := err.(net.Error)
	if !ok || !ne.Timeout() {
		t.Fatalf("expected read timeout, got %v", err)
	}
}

// Test transforms and observers.

type transformFunc func(chunk []byte, opts map[string]any, state *hook.State) ([]byte, error)

func (f transformFunc) TransformChunk(chunk []byte, opts map[string]any, state *hook.State) ([]byte, error) {
	return f(chunk, opts, state)
}

func dropLeadingNUL() hook.ChunkTransform {
	return transformFunc(func(chunk []byte, _ map[string]any, _ *hook.State) ([]byte, error) {
		if len(chunk) > 0 && chunk[0] == 0x00 {
			return nil, nil
		}
		return chunk, nil
	})
}

func upperTransform() hook.ChunkTransform {
	return transformFunc(func(chunk []byte, _ map[string]any, _ *hook.State) ([]byte, error) {
		return bytes.ToUpper(chunk), nil
	})
}
