package proxy

import (
	"sync"
	"sync/atomic"

	"github.com/fantap/fantap/internal/trace"
)

// Statistics tracks running counters and the most recent entry in each
// direction. Counters only move on successful writes; the last-entry pointers
// update on every observed transfer. Reset on every instance start.
type Statistics struct {
	bytesSent      atomic.Int64
	chunksSent     atomic.Int64
	bytesReceived  atomic.Int64
	chunksReceived atomic.Int64

	mu           sync.Mutex
	lastSent     *trace.Entry
	lastReceived *trace.Entry
}

// StatsSnapshot is a point-in-time copy safe to hand to callers.
type StatsSnapshot struct {
	BytesSent      int64 `json:"bytesSent"`
	ChunksSent     int64 `json:"chunksSent"`
	BytesReceived  int64 `json:"bytesReceived"`
	ChunksReceived int64 `json:"chunksReceived"`

	LastSent     *trace.Entry `json:"lastSent,omitempty"`
	LastReceived *trace.Entry `json:"lastReceived,omitempty"`
}

// Observe folds one trace entry into the counters.
func (s *Statistics) Observe(e trace.Entry) {
	switch e.Direction {
	case trace.ClientToTarget:
		if e.ChunkSent {
			s.bytesSent.Add(int64(len(e.Chunk)))
			s.chunksSent.Add(1)
		}
		s.mu.Lock()
		s.lastSent = &e
		s.mu.Unlock()
	case trace.TargetToClient:
		if e.ChunkSent {
			s.bytesReceived.Add(int64(len(e.Chunk)))
			s.chunksReceived.Add(1)
		}
		s.mu.Lock()
		s.lastReceived = &e
		s.mu.Unlock()
	}
}

func (s *Statistics) Snapshot() StatsSnapshot {
	s.mu.Lock()
	lastSent, lastReceived := s.lastSent, s.lastReceived
	s.mu.Unlock()

	return StatsSnapshot{
		BytesSent:      s.bytesSent.Load(),
		ChunksSent:     s.chunksSent.Load(),
		BytesReceived:  s.bytesReceived.Load(),
		ChunksReceived: s.chunksReceived.Load(),
		LastSent:       lastSent,
		LastReceived:   lastReceived,
	}
}

func (s *Statistics) Reset() {
	s.bytesSent.Store(0)
	s.chunksSent.Store(0)
	s.bytesReceived.Store(0)
	s.chunksReceived.Store(0)

	s.mu.Lock()
	s.lastSent = nil
	s.lastReceived = nil
	s.mu.Unlock()
}
