package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fantap/fantap/internal/dialer"
	"github.com/fantap/fantap/internal/hook"
	"github.com/fantap/fantap/internal/trace"
)

// Instance owns the listen/accept lifecycle of one configured source port.
//
// Start and Stop report soft results: starting a running instance or stopping
// a stopped one returns false without an error. Tracing can be toggled whether
// or not the instance is running.
type Instance struct {
	cfg Config
	log *logrus.Entry

	stats *Statistics
	rec   *Recorder

	transformState *hook.State
	observerState  *hook.State
	writerState    *hook.State

	mu         sync.Mutex
	ln         net.Listener
	acceptDone chan struct{}
	sessions   map[string]*Session
}

// NewInstance validates cfg and builds a stopped instance.
func NewInstance(cfg Config) (*Instance, error) {
	// Port 0 binds an ephemeral port; Addr reports the chosen one.
	if cfg.ListenPort < 0 || cfg.ListenPort > 65535 {
		return nil, fmt.Errorf("invalid listen port %d", cfg.ListenPort)
	}
	if len(cfg.Targets) == 0 {
		return nil, errors.New("at least one target required")
	}
	for _, t := range cfg.Targets {
		if t.Port <= 0 || t.Port > 65535 {
			return nil, fmt.Errorf("invalid target port %d", t.Port)
		}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = dialer.NewDirectDialer(dialer.Config{KeepAlive: cfg.KeepAlive})
	}
	if cfg.Format == "" {
		cfg.Format = trace.FormatText
	}
	if cfg.Name == "" {
		cfg.Name = strconv.Itoa(cfg.ListenPort)
	}

	log := logrus.WithFields(logrus.Fields{
		"proxy": cfg.Name,
		"port":  cfg.ListenPort,
	})

	in := &Instance{
		cfg:            cfg,
		log:            log,
		stats:          &Statistics{},
		transformState: hook.NewState(),
		observerState:  hook.NewState(),
		writerState:    hook.NewState(),
		sessions:       make(map[string]*Session),
	}
	in.rec = NewRecorder(cfg.Observer, cfg.ObserverOptions, in.observerState, log)
	return in, nil
}

func (in *Instance) Name() string         { return in.cfg.Name }
func (in *Instance) Description() string  { return in.cfg.Description }
func (in *Instance) Port() int            { return in.cfg.ListenPort }
func (in *Instance) AutoStart() bool      { return in.cfg.AutoStart }
func (in *Instance) Format() trace.Format { return in.cfg.Format }
func (in *Instance) Stats() StatsSnapshot { return in.stats.Snapshot() }
func (in *Instance) Tracing() bool        { return in.rec.Active() }

func (in *Instance) Running() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.ln != nil
}

// Addr returns the bound listener address, or nil when stopped.
func (in *Instance) Addr() net.Addr {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.ln == nil {
		return nil
	}
	return in.ln.Addr()
}

// Start binds the source port and begins accepting connections. Returns
// (false, nil) when already running and (false, err) when the bind fails;
// statistics and hook state only reset on a successful bind.
func (in *Instance) Start(ctx context.Context) (bool, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.ln != nil {
		in.log.Info("already running")
		return false, nil
	}

	lc := net.ListenConfig{KeepAliveConfig: in.cfg.KeepAlive}
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort("", strconv.Itoa(in.cfg.ListenPort)))
	if err != nil {
		return false, fmt.Errorf("listen port %d: %w", in.cfg.ListenPort, err)
	}

	in.stats.Reset()
	in.transformState.Reset()
	in.observerState.Reset()
	in.writerState.Reset()

	// Each run gets its own done channel so a Start racing a Stop never
	// touches the previous run's teardown.
	done := make(chan struct{})
	in.ln = ln
	in.acceptDone = done
	go in.acceptLoop(ctx, ln, done)

	in.log.Infof("listening on %s", ln.Addr())
	return true, nil
}

// Stop closes the listener. Open sessions keep draining on their own; only new
// connections are refused. Returns false when not running.
func (in *Instance) Stop() bool {
	in.mu.Lock()
	if in.ln == nil {
		in.mu.Unlock()
		in.log.Info("not running")
		return false
	}
	ln := in.ln
	done := in.acceptDone
	in.ln = nil
	in.acceptDone = nil
	in.mu.Unlock()

	_ = ln.Close()
	<-done

	in.transformState.Reset()
	in.observerState.Reset()
	in.writerState.Reset()

	in.log.Info("stopped")
	return true
}

// ToggleTrace arms a capture when none is active and returns tracing=true.
// When one is active it detaches the accumulated entries, hands them to the
// trace writer hook (writer errors are logged, never propagated), and returns
// them with tracing=false.
func (in *Instance) ToggleTrace(ctx context.Context) ([]trace.Entry, bool) {
	if in.rec.StartTrace() {
		in.log.Info("tracing started")
		return nil, true
	}

	entries, _ := in.rec.StopTrace()
	in.log.Infof("tracing stopped, %d entries", len(entries))

	if in.cfg.Writer != nil {
		if err := in.writeTrace(ctx, entries); err != nil {
			in.log.WithError(err).Error("trace writer failed")
		}
	}
	return entries, false
}

func (in *Instance) writeTrace(ctx context.Context, entries []trace.Entry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("trace writer panic: %v", p)
		}
	}()
	return in.cfg.Writer.WriteTrace(ctx, entries, in.cfg.WriterOptions, in.writerState)
}

func (in *Instance) acceptLoop(ctx context.Context, ln net.Listener, done chan struct{}) {
	defer close(done)

	for {
		c, err := ln.Accept()
		if err != nil {
			// Listener closed by Stop, or fatal accept error.
			if !errors.Is(err, net.ErrClosed) {
				in.log.WithError(err).Error("accept failed")
			}
			return
		}

		s := newSession(in, c)
		in.addSession(s)
		go s.run(ctx)
	}
}

// record routes one entry to the trace recorder and the statistics block.
func (in *Instance) record(e trace.Entry) {
	in.rec.Record(e)
	in.stats.Observe(e)
}

func (in *Instance) addSession(s *Session) {
	in.mu.Lock()
	in.sessions[s.id] = s
	in.mu.Unlock()
}

func (in *Instance) removeSession(s *Session) {
	in.mu.Lock()
	delete(in.sessions, s.id)
	in.mu.Unlock()
}

// SessionCount reports the number of live sessions.
func (in *Instance) SessionCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.sessions)
}
