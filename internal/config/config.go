package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
	"github.com/Conceptual-Machines/tension-engine/internal/rhythm"
	"github.com/Conceptual-Machines/tension-engine/internal/scheduler"
)

const (
	environmentProduction = "production"
	defaultOctave         = 4
)

// Config holds the process configuration, read once at startup
type Config struct {
	// Environment
	Environment string
	Port        string
	LogLevel    string

	// OSC transport
	OSCListenAddr string
	OSCOutHost    string
	OSCOutPort    int

	// Optional collaborators
	DatabaseURL      string // Empty disables session persistence
	SentryDSN        string
	ControlJWTSecret string // Empty disables auth on control routes
	RecordDir        string // Empty disables SMF capture

	AutoStart bool
	RNGSeed   uint64 // 0 seeds from entropy

	Music  MusicDefaults
	Engine EngineTunables
}

// MusicDefaults seeds the live parameters
type MusicDefaults struct {
	Key           string
	Preset        string
	BPM           int
	BeatsPerChord int
	Adaptive      bool
	Octave        int
	ArpMode       string
	ArpRate       float64
	ArpVelocity   int
	Density       float64
}

// EngineTunables are fixed for the life of the process
type EngineTunables struct {
	TopK             int
	Scope            string
	TensionWeights   string // "chord,root,ext"; empty keeps preset weights
	ConfidenceWindow int
	StaleAfter       time.Duration
	Decay            time.Duration
	TenseSwitch      bool
	TenseHigh        float64
	TenseLow         float64
	TenseSustain     time.Duration
	MaxLateness      time.Duration
	DispatchBuffer   int
}

func Load() *Config {
	return &Config{
		Environment:      getEnv("ENVIRONMENT", "development"),
		Port:             getEnv("PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		OSCListenAddr:    getEnv("OSC_LISTEN_ADDR", ":9000"),
		OSCOutHost:       getEnv("OSC_OUT_HOST", "127.0.0.1"),
		OSCOutPort:       getEnvInt("OSC_OUT_PORT", 9001),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		SentryDSN:        getEnv("SENTRY_DSN", ""),
		ControlJWTSecret: getEnv("CONTROL_JWT_SECRET", ""),
		RecordDir:        getEnv("RECORD_DIR", ""),
		AutoStart:        getEnvBool("AUTO_START", false),
		RNGSeed:          uint64(getEnvInt("RNG_SEED", 0)),
		Music: MusicDefaults{
			Key:           getEnv("MUSIC_KEY", "C"),
			Preset:        getEnv("MUSIC_PRESET", harmony.PresetConsonant),
			BPM:           getEnvInt("MUSIC_BPM", 100),
			BeatsPerChord: getEnvInt("MUSIC_BEATS_PER_CHORD", 2),
			Adaptive:      getEnvBool("MUSIC_ADAPTIVE", false),
			Octave:        getEnvInt("MUSIC_OCTAVE", defaultOctave),
			ArpMode:       getEnv("ARP_MODE", "off"),
			ArpRate:       getEnvFloat("ARP_RATE", 0.5),
			ArpVelocity:   getEnvInt("ARP_VELOCITY", rhythm.DefaultVelocity),
			Density:       getEnvFloat("ARP_DENSITY", 1.0),
		},
		Engine: EngineTunables{
			TopK:             getEnvInt("HARMONY_TOP_K", harmony.DefaultTopK),
			Scope:            getEnv("HARMONY_SCOPE", "full"),
			TensionWeights:   getEnv("TENSION_WEIGHTS", ""),
			ConfidenceWindow: getEnvInt("CONFIDENCE_WINDOW", 6),
			StaleAfter:       getEnvDuration("CONFIDENCE_STALE_AFTER", 3*time.Second),
			Decay:            getEnvDuration("CONFIDENCE_DECAY", time.Second),
			TenseSwitch:      getEnvBool("TENSE_SWITCH", true),
			TenseHigh:        getEnvFloat("TENSE_HIGH", 0.75),
			TenseLow:         getEnvFloat("TENSE_LOW", 0.4),
			TenseSustain:     getEnvDuration("TENSE_SUSTAIN", 4*time.Second),
			MaxLateness:      getEnvDuration("SCHEDULER_MAX_LATENESS", scheduler.DefaultMaxLateness),
			DispatchBuffer:   getEnvInt("DISPATCH_BUFFER", scheduler.DefaultDispatchBuffer),
		},
	}
}

// IsProduction reports whether the process runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == environmentProduction
}

// Parameters converts the musical defaults into live parameters. Out-of-range values
// are clamped by the store; unparseable names are errors.
func (c *Config) Parameters() (scheduler.LiveParameters, error) {
	p := scheduler.DefaultParameters()

	key, err := harmony.ParsePitchClass(c.Music.Key)
	if err != nil {
		return p, fmt.Errorf("MUSIC_KEY: %w", err)
	}
	preset := strings.ToLower(strings.TrimSpace(c.Music.Preset))
	if _, err := harmony.LookupPreset(preset); err != nil {
		return p, fmt.Errorf("MUSIC_PRESET: %w", err)
	}
	mode, err := rhythm.ParseMode(c.Music.ArpMode)
	if err != nil {
		return p, fmt.Errorf("ARP_MODE: %w", err)
	}

	p.Key = key
	p.Preset = preset
	p.BPM = c.Music.BPM
	p.BeatsPerChord = c.Music.BeatsPerChord
	p.Adaptive = c.Music.Adaptive
	p.ArpMode = mode
	p.ArpRate = c.Music.ArpRate
	p.ArpVelocity = c.Music.ArpVelocity
	p.Density = c.Music.Density
	return p, nil
}

// Weights parses TENSION_WEIGHTS. ok is false when the variable is unset.
func (c *Config) Weights() (w harmony.Weights, ok bool, err error) {
	raw := strings.TrimSpace(c.Engine.TensionWeights)
	if raw == "" {
		return w, false, nil
	}
	w, err = harmony.ParseWeights(raw)
	if err != nil {
		return w, false, fmt.Errorf("TENSION_WEIGHTS: %w", err)
	}
	return w, true, nil
}

// Adaptive returns the adaptive layer tunables
func (c *Config) Adaptive() harmony.AdaptiveConfig {
	return harmony.AdaptiveConfig{
		StaleAfter:    c.Engine.StaleAfter,
		DecayTau:      c.Engine.Decay,
		ContextSwitch: c.Engine.TenseSwitch,
		TenseHigh:     c.Engine.TenseHigh,
		TenseLow:      c.Engine.TenseLow,
		SustainFor:    c.Engine.TenseSustain,
	}
}

// Scheduler returns the scheduler tunables; the RNG is left to the caller
func (c *Config) Scheduler() scheduler.Config {
	return scheduler.Config{
		TopK:        c.Engine.TopK,
		Scope:       harmony.ParseScope(c.Engine.Scope),
		Adaptive:    c.Adaptive(),
		MaxLateness: c.Engine.MaxLateness,
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return defaultValue
}
