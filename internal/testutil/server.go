package testutil

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
)

// StartEchoServer runs a loopback TCP server that echoes everything it reads,
// accepting any number of connections until the returned listener is closed.
func StartEchoServer(t *testing.T, ctx context.Context) net.Listener {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}()
		}
	}()

	return ln
}

// ReplyServer is a scripted loopback target: it records every byte it
// receives and, when reply is non-nil, answers the first chunk of each
// connection with the reply.
type ReplyServer struct {
	ln net.Listener

	mu       sync.Mutex
	received bytes.Buffer
}

func StartReplyServer(t *testing.T, ctx context.Context, reply []byte) *ReplyServer {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	s := &ReplyServer{ln: ln}

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serveConn(c, reply)
		}
	}()

	return s
}

func (s *ReplyServer) serveConn(c net.Conn, reply []byte) {
	defer c.Close()

	buf := make([]byte, 4096)
	replied := false
	for {
		n, err := c.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.received.Write(buf[:n])
			s.mu.Unlock()

			if !replied && reply != nil {
				if _, err := c.Write(reply); err != nil {
					return
				}
				replied = true
			}
		}
		if err != nil {
			return
		}
	}
}

// Addr is the server's listen address.
func (s *ReplyServer) Addr() *net.TCPAddr {
	return s.ln.Addr().(*net.TCPAddr)
}

// Close stops accepting. Useful for freeing a port to simulate a dead target.
func (s *ReplyServer) Close() error {
	return s.ln.Close()
}

// Received returns a copy of all bytes read so far.
func (s *ReplyServer) Received() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, s.received.Len())
	copy(out, s.received.Bytes())
	return out
}
