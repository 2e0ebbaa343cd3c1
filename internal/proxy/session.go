package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fantap/fantap/internal/trace"
)

const chunkBufSize = 32 * 1024

// Session multiplexes one accepted client connection across all configured
// targets. Every client chunk fans out to each established target; replies
// flow back only from targets selected by the echo policy. The session lives
// as long as the client socket: once the client side is fully closed the
// remaining target legs are torn down and the session leaves the instance's
// set.
type Session struct {
	id        string
	createdAt time.Time
	inst      *Instance
	log       *logrus.Entry

	client net.Conn
	// Serializes echo writes from concurrent target pumps.
	clientWriteMu sync.Mutex

	targets []*targetLeg
}

// targetLeg is one outbound connection attempt. conn stays nil when the dial
// failed; the leg is then inert for the rest of the session.
type targetLeg struct {
	index  int
	target Target
	conn   net.Conn
}

func newSession(in *Instance, client net.Conn) *Session {
	s := &Session{
		id:        uuid.NewString(),
		createdAt: time.Now(),
		inst:      in,
		client:    client,
	}
	s.log = in.log.WithField("session", s.id)
	return s
}

func (s *Session) run(ctx context.Context) {
	defer s.inst.removeSession(s)
	defer s.closeConns()

	s.log.Debugf("session opened from %s", s.client.RemoteAddr())

	s.dialTargets(ctx)

	clientDone := make(chan struct{})
	var pumps errgroup.Group

	pumps.Go(func() error {
		defer close(clientDone)
		s.pumpClient()
		return nil
	})

	for _, leg := range s.targets {
		if leg.conn == nil {
			continue
		}
		pumps.Go(func() error {
			s.pumpTarget(leg)
			return nil
		})
	}

	// The client socket owns the session lifetime. Target pumps half-close
	// their own leg on EOF but keep running until the client goes away.
	<-clientDone
	s.closeConns()
	_ = pumps.Wait()

	s.log.Debug("session closed")
}

// dialTargets opens every target concurrently in declared order. A failed
// dial is logged and leaves that leg inert; it never aborts the session or
// the other legs.
func (s *Session) dialTargets(ctx context.Context) {
	s.targets = make([]*targetLeg, len(s.inst.cfg.Targets))
	for i, t := range s.inst.cfg.Targets {
		s.targets[i] = &targetLeg{index: i, target: t}
	}

	var wg sync.WaitGroup
	for _, leg := range s.targets {
		wg.Add(1)
		go func(leg *targetLeg) {
			defer wg.Done()
			c, err := s.inst.cfg.Dialer.DialContext(ctx, "tcp", leg.target.Addr())
			if err != nil {
				s.log.WithError(err).Errorf("target %d connect failed", leg.index)
				return
			}
			leg.conn = c
		}(leg)
	}
	wg.Wait()
}

// pumpClient reads chunks from the client and fans them out. Client EOF
// half-closes the client connection's write side; the session then winds down
// once the socket is fully closed.
func (s *Session) pumpClient() {
	buf := make([]byte, chunkBufSize)
	for {
		n, err := s.client.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.forward(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.WithError(err).Error("client read failed")
			}
			halfCloseWrite(s.client)
			return
		}
	}
}

// forward sends one client chunk to every established target. A nil transform
// result suppresses all writes but each established target still gets a trace
// entry with ChunkSent=false.
func (s *Session) forward(chunk []byte) {
	out := s.inst.transformChunk(chunk)

	for _, leg := range s.targets {
		if leg.conn == nil {
			continue
		}

		e := trace.Entry{
			Direction:    trace.ClientToTarget,
			SessionID:    s.id,
			SessionStart: s.createdAt,
			SourceAddr:   s.client.RemoteAddr().String(),
			SourceIndex:  0,
			TargetAddr:   leg.conn.RemoteAddr().String(),
			TargetIndex:  leg.index,
			Time:         time.Now(),
		}

		if out == nil {
			e.Chunk = chunk
		} else {
			e.Chunk = out
			if _, err := leg.conn.Write(out); err != nil {
				e.Error = err.Error()
				s.log.WithError(err).Errorf("target %d write failed", leg.index)
			} else {
				e.ChunkSent = true
			}
		}

		s.inst.record(e)
	}
}

// pumpTarget reads chunks from one target. Replies are echoed to the client
// only when the echo policy includes this leg's index, but every chunk is
// traced. Target EOF half-closes this leg only.
func (s *Session) pumpTarget(leg *targetLeg) {
	echo := s.inst.cfg.Echo.Includes(leg.index)

	buf := make([]byte, chunkBufSize)
	for {
		n, err := leg.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.echoBack(leg, chunk, echo)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.WithError(err).Errorf("target %d read failed", leg.index)
			}
			halfCloseWrite(leg.conn)
			return
		}
	}
}

func (s *Session) echoBack(leg *targetLeg, chunk []byte, echo bool) {
	out := s.inst.transformChunk(chunk)

	e := trace.Entry{
		Direction:    trace.TargetToClient,
		SessionID:    s.id,
		SessionStart: s.createdAt,
		SourceAddr:   leg.conn.RemoteAddr().String(),
		SourceIndex:  leg.index,
		TargetAddr:   s.client.RemoteAddr().String(),
		TargetIndex:  0,
		Time:         time.Now(),
	}

	if out == nil {
		e.Chunk = chunk
	} else {
		e.Chunk = out
		if echo {
			s.clientWriteMu.Lock()
			_, err := s.client.Write(out)
			s.clientWriteMu.Unlock()
			if err != nil {
				e.Error = err.Error()
				s.log.WithError(err).Errorf("echo from target %d failed", leg.index)
			} else {
				e.ChunkSent = true
			}
		}
	}

	s.inst.record(e)
}

func (s *Session) closeConns() {
	_ = s.client.Close()
	for _, leg := range s.targets {
		if leg.conn != nil {
			_ = leg.conn.Close()
		}
	}
}

// halfCloseWrite sends a FIN without tearing down the read side.
func halfCloseWrite(c net.Conn) {
	type closeWriter interface{ CloseWrite() error }
	if cw, ok := c.(closeWriter); ok {
		_ = cw.CloseWrite()
	}
}
