package bci

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestState(t *testing.T) {
	var s State
	v, at := s.Get()
	assert.Equal(t, StateRest, v)
	assert.True(t, at.IsZero())
	assert.Equal(t, "rest", s.Label())

	now := time.Date(2025, 2, 1, 8, 30, 0, 0, time.UTC)
	tests := []struct {
		in    int
		want  int
		label string
	}{
		{1, StateImagery, "imagery"},
		{0, StateRest, "rest"},
		{7, StateImagery, "imagery"},
		{-1, StateImagery, "imagery"},
	}
	for _, tt := range tests {
		s.Set(tt.in, now)
		v, at := s.Get()
		assert.Equal(t, tt.want, v, "input %d", tt.in)
		assert.True(t, now.Equal(at))
		assert.Equal(t, tt.label, s.Label())
	}
}
