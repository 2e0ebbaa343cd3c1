package trace

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Format selects how a finished capture is rendered.
type Format string

const (
	// FormatText renders one header line plus a hex dump per entry.
	FormatText Format = "text"
	// FormatJSON renders the full structured capture; ParseJSON reverses it.
	FormatJSON Format = "json"
	// FormatASCII renders the raw chunk bytes back to back.
	FormatASCII Format = "ascii"
	// FormatHTTP concatenates raw bytes of chunks sharing one stream key
	// (direction, source, target, session), reassembling request/response
	// bodies that arrived split across chunks.
	FormatHTTP Format = "http"
)

// ParseFormat maps a config string to a Format. Empty selects FormatText.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "ascii":
		return FormatASCII, nil
	case "http":
		return FormatHTTP, nil
	default:
		return "", fmt.Errorf("unknown trace format %q", s)
	}
}

// Render serializes entries in the given format.
func Render(entries []Entry, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(entries, "", "  ")
	case FormatASCII:
		return renderASCII(entries), nil
	case FormatHTTP:
		return renderHTTP(entries), nil
	case FormatText, "":
		return renderText(entries), nil
	default:
		return nil, fmt.Errorf("unknown trace format %q", format)
	}
}

// ParseJSON is the inverse of Render with FormatJSON.
func ParseJSON(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse trace: %w", err)
	}
	return entries, nil
}

func renderText(entries []Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s %s %s[%d] -> %s[%d] %d bytes sent=%t",
			e.Time.Format(time.RFC3339Nano), e.Direction,
			e.SourceAddr, e.SourceIndex, e.TargetAddr, e.TargetIndex,
			len(e.Chunk), e.ChunkSent)
		if e.Error != "" {
			fmt.Fprintf(&buf, " error=%q", e.Error)
		}
		buf.WriteByte('\n')
		buf.WriteString(hex.Dump(e.Chunk))
	}
	return buf.Bytes()
}

func renderASCII(entries []Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.Write(e.Chunk)
	}
	return buf.Bytes()
}

type streamKey struct {
	direction Direction
	source    string
	target    string
	session   string
}

func renderHTTP(entries []Entry) []byte {
	order := make([]streamKey, 0, 4)
	streams := make(map[streamKey]*bytes.Buffer)

	for _, e := range entries {
		k := streamKey{e.Direction, e.SourceAddr, e.TargetAddr, e.SessionID}
		b, ok := streams[k]
		if !ok {
			b = &bytes.Buffer{}
			streams[k] = b
			order = append(order, k)
		}
		b.Write(e.Chunk)
	}

	var buf bytes.Buffer
	for _, k := range order {
		fmt.Fprintf(&buf, "=== %s %s -> %s session %s\n",
			k.direction, k.source, k.target, k.session)
		buf.Write(streams[k].Bytes())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
