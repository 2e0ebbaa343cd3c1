package control

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/fantap/fantap/internal/proxy"
	"github.com/fantap/fantap/internal/trace"
)

type Server struct {
	srv     *http.Server
	byPort  map[int]*proxy.Instance
	ordered []*proxy.Instance
}

type proxyStatus struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Port        int                 `json:"port"`
	Running     bool                `json:"running"`
	Tracing     bool                `json:"tracing"`
	Sessions    int                 `json:"sessions"`
	Stats       proxy.StatsSnapshot `json:"stats"`
}

func New(instances []*proxy.Instance) *Server {
	s := &Server{
		byPort:  make(map[int]*proxy.Instance, len(instances)),
		ordered: instances,
	}
	for _, in := range instances {
		s.byPort[in.Port()] = in
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /proxies", s.handleList)
	mux.HandleFunc("POST /proxies/{port}/start", s.handleStart)
	mux.HandleFunc("POST /proxies/{port}/stop", s.handleStop)
	mux.HandleFunc("POST /proxies/{port}/trace", s.handleTrace)

	s.srv = &http.Server{Handler: mux}
	return s
}

func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Close() error {
	return s.srv.Close()
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	statuses := make([]proxyStatus, 0, len(s.ordered))
	for _, in := range s.ordered {
		statuses = append(statuses, proxyStatus{
			Name:        in.Name(),
			Description: in.Description(),
			Port:        in.Port(),
			Running:     in.Running(),
			Tracing:     in.Tracing(),
			Sessions:    in.SessionCount(),
			Stats:       in.Stats(),
		})
	}
	jsonResponse(w, http.StatusOK, statuses)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}

	started, err := in.Start(r.Context())
	if err != nil {
		errorResponse(w, http.StatusConflict, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"started": started, "running": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}

	stopped := in.Stop()
	jsonResponse(w, http.StatusOK, map[string]bool{"stopped": stopped, "running": false})
}

// handleTrace toggles capture. Toggling on returns a small JSON ack; toggling
// off returns the finished capture rendered in the proxy's configured format.
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}

	entries, tracing := in.ToggleTrace(r.Context())
	if tracing {
		jsonResponse(w, http.StatusOK, map[string]bool{"tracing": true})
		return
	}

	data, err := trace.Render(entries, in.Format())
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	if in.Format() == trace.FormatJSON {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) instance(w http.ResponseWriter, r *http.Request) (*proxy.Instance, bool) {
	port, err := strconv.Atoi(r.PathValue("port"))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "bad port")
		return nil, false
	}
	in, ok := s.byPort[port]
	if !ok {
		errorResponse(w, http.StatusNotFound, "no proxy on port "+strconv.Itoa(port))
		return nil, false
	}
	return in, true
}

func jsonResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorResponse(w http.ResponseWriter, status int, msg string) {
	jsonResponse(w, status, map[string]string{"error": msg})
}
