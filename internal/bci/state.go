package bci

import (
	"sync/atomic"
	"time"
)

// Discrete classifier states reported on /bci/state
const (
	StateRest    = 0
	StateImagery = 1
)

// State holds the last confirmed discrete state. Informational only.
type State struct {
	value   atomic.Int32
	updated atomic.Int64
}

// Set stores a state; any non-zero value is treated as imagery
func (s *State) Set(v int, ts time.Time) {
	if v != StateRest {
		v = StateImagery
	}
	s.value.Store(int32(v))
	s.updated.Store(ts.UnixNano())
}

// Get returns the state and when it was set (zero time if never)
func (s *State) Get() (int, time.Time) {
	ns := s.updated.Load()
	if ns == 0 {
		return StateRest, time.Time{}
	}
	return int(s.value.Load()), time.Unix(0, ns)
}

// Label is "imagery" or "rest"
func (s *State) Label() string {
	if v, _ := s.Get(); v == StateImagery {
		return "imagery"
	}
	return "rest"
}
