package control

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Conceptual-Machines/tension-engine/internal/bci"
	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
	"github.com/Conceptual-Machines/tension-engine/internal/rhythm"
	"github.com/Conceptual-Machines/tension-engine/internal/scheduler"
)

// Inbound addresses
const (
	AddrPreset        = "/music/preset"
	AddrTempo         = "/music/tempo"
	AddrBeatsPerChord = "/music/beats_per_chord"
	AddrAdaptive      = "/music/adaptive"
	AddrKey           = "/music/key"
	AddrArpMode       = "/rhythm/arp_mode"
	AddrArpRate       = "/rhythm/arp_rate"
	AddrArpVelocity   = "/rhythm/arp_velocity"
	AddrDensity       = "/rhythm/density"
	AddrLayerPad      = "/layer/pad"
	AddrLayerArp      = "/layer/arp"
	AddrLayerDrums    = "/layer/drums"
	AddrStart         = "/system/start"
	AddrPause         = "/system/pause"
	AddrStop          = "/system/stop"
	AddrProbImg       = "/bci/prob_img"
	AddrBCIState      = "/bci/state"
)

var (
	// ErrUnknownAddress is returned for an address no handler is registered for
	ErrUnknownAddress = errors.New("unknown control address")
	// ErrBadArgument is returned when a message carries a missing or unusable argument
	ErrBadArgument = errors.New("bad control argument")
)

// Engine is the part of the scheduler the router drives
type Engine interface {
	Params() *scheduler.Store
	SetKey(key harmony.PitchClass) error
	SetPreset(name string) error
	Start() error
	Pause() error
	Stop() error
}

type handlerFunc func(args []any) error

// Router maps control and signal messages onto the engine. It is transport-agnostic:
// the OSC server and the HTTP API both feed it.
type Router struct {
	engine Engine
	signal *bci.Confidence
	state  *bci.State
	now    func() time.Time

	handlers  map[string]handlerFunc
	onHandled []func(address string, err error)
}

// NewRouter wires every inbound address
func NewRouter(engine Engine, signal *bci.Confidence, state *bci.State) *Router {
	r := &Router{
		engine: engine,
		signal: signal,
		state:  state,
		now:    time.Now,
	}
	params := engine.Params()

	r.handlers = map[string]handlerFunc{
		AddrPreset: func(args []any) error {
			name, err := argString(args, 0)
			if err != nil {
				return err
			}
			return engine.SetPreset(strings.ToLower(name))
		},
		AddrTempo: func(args []any) error {
			bpm, err := argInt(args, 0)
			if err != nil {
				return err
			}
			return params.SetBPM(bpm)
		},
		AddrBeatsPerChord: func(args []any) error {
			n, err := argInt(args, 0)
			if err != nil {
				return err
			}
			return params.SetBeatsPerChord(n)
		},
		AddrAdaptive: func(args []any) error {
			on, err := argBool(args, 0)
			if err != nil {
				return err
			}
			return params.SetAdaptive(on)
		},
		AddrKey: func(args []any) error {
			key, err := argPitchClass(args, 0)
			if err != nil {
				return err
			}
			return engine.SetKey(key)
		},
		AddrArpMode: func(args []any) error {
			name, err := argString(args, 0)
			if err != nil {
				return err
			}
			mode, err := rhythm.ParseMode(name)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrBadArgument, err)
			}
			return params.SetArpMode(mode)
		},
		AddrArpRate: func(args []any) error {
			rate, err := argFloat(args, 0)
			if err != nil {
				return err
			}
			return params.SetArpRate(rate)
		},
		AddrArpVelocity: func(args []any) error {
			v, err := argInt(args, 0)
			if err != nil {
				return err
			}
			return params.SetArpVelocity(v)
		},
		AddrDensity: func(args []any) error {
			d, err := argFloat(args, 0)
			if err != nil {
				return err
			}
			return params.SetDensity(d)
		},
		AddrLayerPad:   r.layer("pad"),
		AddrLayerArp:   r.layer("arp"),
		AddrLayerDrums: r.layer("drums"),
		AddrStart:      func([]any) error { return engine.Start() },
		AddrPause:      func([]any) error { return engine.Pause() },
		AddrStop:       func([]any) error { return engine.Stop() },
		AddrProbImg: func(args []any) error {
			v, err := argFloat(args, 0)
			if err != nil {
				return err
			}
			if !r.signal.Observe(v, r.now()) {
				return fmt.Errorf("%w: confidence %v", ErrBadArgument, v)
			}
			return nil
		},
		AddrBCIState: func(args []any) error {
			v, err := argInt(args, 0)
			if err != nil {
				return err
			}
			r.state.Set(v, r.now())
			return nil
		},
	}
	return r
}

func (r *Router) layer(name string) handlerFunc {
	return func(args []any) error {
		on, err := argBool(args, 0)
		if err != nil {
			return err
		}
		return r.engine.Params().SetLayer(name, on)
	}
}

// OnHandled registers fn to see the outcome of every message. Not safe to call
// once messages are flowing.
func (r *Router) OnHandled(fn func(address string, err error)) {
	r.onHandled = append(r.onHandled, fn)
}

// Handle applies one message. Errors leave every parameter unchanged.
func (r *Router) Handle(address string, args []any) error {
	err := r.handle(address, args)
	for _, fn := range r.onHandled {
		fn(address, err)
	}
	return err
}

func (r *Router) handle(address string, args []any) error {
	h, ok := r.handlers[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, address)
	}
	if err := h(args); err != nil {
		return fmt.Errorf("%s: %w", address, err)
	}
	return nil
}

// Addresses lists every handled address in sorted order
func (r *Router) Addresses() []string {
	out := make([]string, 0, len(r.handlers))
	for addr := range r.handlers {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

func arg(args []any, i int) (any, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("%w: missing argument %d", ErrBadArgument, i)
	}
	return args[i], nil
}

func argFloat(args []any, i int) (float64, error) {
	v, err := arg(args, i)
	if err != nil {
		return 0, err
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrBadArgument, val)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: unsupported type %T", ErrBadArgument, v)
}

func argInt(args []any, i int) (int, error) {
	f, err := argFloat(args, i)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrBadArgument, f)
	}
	return int(math.Round(f)), nil
}

func argString(args []any, i int) (string, error) {
	v, err := arg(args, i)
	if err != nil {
		return "", err
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case int, int32, int64, float32, float64:
		return fmt.Sprint(val), nil
	}
	return "", fmt.Errorf("%w: unsupported type %T", ErrBadArgument, v)
}

func argBool(args []any, i int) (bool, error) {
	v, err := arg(args, i)
	if err != nil {
		return false, err
	}
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "on", "yes":
			return true, nil
		case "false", "off", "no":
			return false, nil
		}
	}
	f, err := argFloat(args, i)
	if err != nil {
		return false, err
	}
	return f != 0, nil
}

// argPitchClass accepts a note name or a pitch-class number
func argPitchClass(args []any, i int) (harmony.PitchClass, error) {
	v, err := arg(args, i)
	if err != nil {
		return 0, err
	}
	if s, ok := v.(string); ok {
		if pc, err := harmony.ParsePitchClass(s); err == nil {
			return pc, nil
		}
	}
	n, err := argInt(args, i)
	if err != nil {
		return 0, err
	}
	return harmony.PitchClass(((n % 12) + 12) % 12), nil
}
