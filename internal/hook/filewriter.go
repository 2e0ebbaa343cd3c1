package hook

import (
	"context"
	"fmt"
	"os"

	"github.com/fantap/fantap/internal/trace"
)

// FileWriter renders a finished capture and appends it to a file. It is the
// built-in TraceWriter wired from the trace_file config field.
type FileWriter struct {
	Path   string
	Format trace.Format
}

func (w *FileWriter) WriteTrace(ctx context.Context, entries []trace.Entry, opts map[string]any, state *State) error {
	_ = ctx

	data, err := trace.Render(entries, w.Format)
	if err != nil {
		return fmt.Errorf("render trace: %w", err)
	}

	f, err := os.OpenFile(w.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write trace file: %w", err)
	}
	return f.Close()
}
