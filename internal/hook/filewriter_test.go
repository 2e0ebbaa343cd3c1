package hook

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fantap/fantap/internal/trace"
)

func TestFileWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.trace")
	w := &FileWriter{Path: path, Format: trace.FormatASCII}

	entries := []trace.Entry{
		{Direction: trace.ClientToTarget, Chunk: []byte("one "), ChunkSent: true, Time: time.Now()},
		{Direction: trace.TargetToClient, Chunk: []byte("two"), ChunkSent: true, Time: time.Now()},
	}

	if err := w.WriteTrace(context.Background(), entries, nil, NewState()); err != nil {
		t.Fatal(err)
	}
	// A second capture appends rather than truncates.
	if err := w.WriteTrace(context.Background(), entries[:1], nil, NewState()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "one twoone " {
		t.Fatalf("got %q", data)
	}
}

func TestFileWriterBadPath(t *testing.T) {
	w := &FileWriter{Path: filepath.Join(t.TempDir(), "no", "such", "dir", "x"), Format: trace.FormatText}
	err := w.WriteTrace(context.Background(), nil, nil, NewState())
	if err == nil || !strings.Contains(err.Error(), "open trace file") {
		t.Fatalf("expected open error, got %v", err)
	}
}
