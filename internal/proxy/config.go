package proxy

import (
	"net"
	"strconv"

	"github.com/fantap/fantap/internal/dialer"
	"github.com/fantap/fantap/internal/hook"
	"github.com/fantap/fantap/internal/trace"
)

// Target is one forwarding destination.
type Target struct {
	Host string
	Port int
}

func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// EchoMode says which targets' replies are written back to the client.
type EchoMode int

const (
	// EchoFirst echoes replies from target index 0 only. Default.
	EchoFirst EchoMode = iota
	// EchoNone discards all target replies.
	EchoNone
	// EchoAll echoes replies from every target.
	EchoAll
	// EchoIndices echoes replies from an explicit index set.
	EchoIndices
)

// EchoPolicy is the resolved echo selection. Indices is only consulted for
// EchoIndices.
type EchoPolicy struct {
	Mode    EchoMode
	Indices map[int]struct{}
}

// EchoIndexSet builds an EchoIndices policy, deduplicating indices.
func EchoIndexSet(indices ...int) EchoPolicy {
	set := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		set[i] = struct{}{}
	}
	return EchoPolicy{Mode: EchoIndices, Indices: set}
}

// Includes reports whether replies from the target at idx are echoed.
func (p EchoPolicy) Includes(idx int) bool {
	switch p.Mode {
	case EchoNone:
		return false
	case EchoAll:
		return true
	case EchoIndices:
		_, ok := p.Indices[idx]
		return ok
	default:
		return idx == 0
	}
}

// Config describes one proxy instance. Immutable once the Instance is built.
type Config struct {
	Name        string
	Description string
	ListenPort  int
	Targets     []Target
	Echo        EchoPolicy
	Format      trace.Format
	AutoStart   bool

	// Hooks; all optional. A nil Transform passes chunks through unchanged.
	Transform        hook.ChunkTransform
	TransformOptions map[string]any
	Observer         hook.TraceObserver
	ObserverOptions  map[string]any
	Writer           hook.TraceWriter
	WriterOptions    map[string]any

	// Dialer reaches targets; nil means a plain direct dialer.
	Dialer    dialer.Dialer
	KeepAlive net.KeepAliveConfig
}
