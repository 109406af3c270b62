package logger

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	fn()
	return buf.String()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warning", WarnLevel},
		{" error ", ErrorLevel},
		{"", InfoLevel},
		{"verbose", InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	prev := GetLevel()
	t.Cleanup(func() { SetLevel(prev) })

	SetLevel(WarnLevel)
	out := captureOutput(t, func() {
		Debug("hidden debug", nil)
		Info("hidden info", nil)
		Warn("shown warn", Fields{"bpm": 120})
		Error("shown error", errors.New("boom"), nil)
	})

	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown warn {bpm=120}")
	assert.Contains(t, out, "[ERROR] shown error: boom")
}

func TestFormatFieldsSorted(t *testing.T) {
	got := formatFields(Fields{
		"zeta":    "z",
		"alpha":   1,
		"ratio":   0.5,
		"elapsed": 1500 * time.Millisecond,
	})
	assert.Equal(t, "{alpha=1, elapsed=1.5s, ratio=0.50, zeta=z}", got)
	assert.Equal(t, "", formatFields(nil))
}

func TestDebugEnabled(t *testing.T) {
	prev := GetLevel()
	t.Cleanup(func() { SetLevel(prev) })

	SetLevel(DebugLevel)
	out := captureOutput(t, func() {
		Debug("tick", Fields{"session_id": "abc"})
	})
	assert.True(t, strings.HasPrefix(out, "[DEBUG] tick {session_id=abc}"))
}
