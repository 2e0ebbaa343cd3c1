package hook

import "sync"

// State is a string-keyed mutable cell shared by every invocation of one hook
// for the lifetime of one proxy run. Safe for concurrent use; sessions of the
// same instance share it.
type State struct {
	mu     sync.Mutex
	values map[string]any
}

func NewState() *State {
	return &State{values: make(map[string]any)}
}

func (s *State) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Reset drops all values. Called by the proxy instance on every start and
// stop so a restarted proxy begins from clean hook state.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]any)
}
