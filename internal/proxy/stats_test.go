package proxy

import (
	"testing"

	"github.com/fantap/fantap/internal/trace"
)

func TestStatisticsCountsSuccessfulWritesOnly(t *testing.T) {
	s := &Statistics{}

	sent := testEntry(trace.ClientToTarget)
	s.Observe(sent)

	dropped := testEntry(trace.ClientToTarget)
	dropped.ChunkSent = false
	s.Observe(dropped)

	recv := testEntry(trace.TargetToClient)
	s.Observe(recv)

	snap := s.Snapshot()
	if snap.ChunksSent != 1 || snap.BytesSent != int64(len(sent.Chunk)) {
		t.Fatalf("sent counters: %+v", snap)
	}
	if snap.ChunksReceived != 1 || snap.BytesReceived != int64(len(recv.Chunk)) {
		t.Fatalf("received counters: %+v", snap)
	}

	// Last-entry pointers track every observation, including failed writes.
	if snap.LastSent == nil || snap.LastSent.ChunkSent {
		t.Fatalf("LastSent should be the dropped entry, got %+v", snap.LastSent)
	}
	if snap.LastReceived == nil {
		t.Fatal("LastReceived should be set")
	}
}

func TestStatisticsReset(t *testing.T) {
	s := &Statistics{}
	s.Observe(testEntry(trace.ClientToTarget))
	s.Observe(testEntry(trace.TargetToClient))

	s.Reset()

	snap := s.Snapshot()
	if snap.ChunksSent != 0 || snap.ChunksReceived != 0 || snap.BytesSent != 0 || snap.BytesReceived != 0 {
		t.Fatalf("counters survived reset: %+v", snap)
	}
	if snap.LastSent != nil || snap.LastReceived != nil {
		t.Fatal("last-entry pointers survived reset")
	}
}

func TestEchoPolicyIncludes(t *testing.T) {
	tests := []struct {
		name   string
		policy EchoPolicy
		idx    int
		want   bool
	}{
		{"default includes first", EchoPolicy{}, 0, true},
		{"default excludes second", EchoPolicy{}, 1, false},
		{"none excludes first", EchoPolicy{Mode: EchoNone}, 0, false},
		{"all includes any", EchoPolicy{Mode: EchoAll}, 7, true},
		{"indices includes member", EchoIndexSet(1, 3, 3), 3, true},
		{"indices excludes others", EchoIndexSet(1, 3), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Includes(tt.idx); got != tt.want {
				t.Fatalf("Includes(%d)=%t want %t", tt.idx, got, tt.want)
			}
		})
	}
}

func TestEchoIndexSetDeduplicates(t *testing.T) {
	p := EchoIndexSet(2, 2, 2, 5)
	if len(p.Indices) != 2 {
		t.Fatalf("got %d indices, want 2", len(p.Indices))
	}
}
