package proxy

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fantap/fantap/internal/hook"
	"github.com/fantap/fantap/internal/trace"
)

// Recorder accumulates trace entries while a capture is armed.
//
// Record checks the armed flag at call time: an entry racing a StopTrace is
// dropped rather than blocking the pump. The observer hook sees every entry
// regardless of whether a capture is armed.
type Recorder struct {
	observer hook.TraceObserver
	opts     map[string]any
	state    *hook.State
	log      *logrus.Entry

	mu      sync.Mutex
	armed   bool
	entries []trace.Entry
}

func NewRecorder(observer hook.TraceObserver, opts map[string]any, state *hook.State, log *logrus.Entry) *Recorder {
	return &Recorder{observer: observer, opts: opts, state: state, log: log}
}

// StartTrace arms a fresh capture. Returns false if one is already armed.
func (r *Recorder) StartTrace() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.armed {
		return false
	}
	r.armed = true
	r.entries = nil
	return true
}

// StopTrace disarms and detaches the accumulated capture. Returns false if no
// capture was armed.
func (r *Recorder) StopTrace() ([]trace.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.armed {
		return nil, false
	}
	r.armed = false
	entries := r.entries
	r.entries = nil
	return entries, true
}

func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armed
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Record appends e if a capture is armed and reports it to the observer.
func (r *Recorder) Record(e trace.Entry) {
	var soFar []trace.Entry

	r.mu.Lock()
	if r.armed {
		r.entries = append(r.entries, e)
		soFar = r.entries
	}
	r.mu.Unlock()

	if r.observer != nil {
		r.observe(e, soFar)
	}
}

func (r *Recorder) observe(e trace.Entry, soFar []trace.Entry) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("trace observer panic: %v", p)
		}
	}()
	r.observer.ObserveEntry(e, soFar, r.opts, r.state)
}
