package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/Conceptual-Machines/tension-engine/internal/bci"
	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
	"github.com/Conceptual-Machines/tension-engine/internal/logger"
	"github.com/Conceptual-Machines/tension-engine/internal/rhythm"
)

const (
	DefaultMaxLateness = 250 * time.Millisecond

	sessionCallTimeout = 2 * time.Second
	idleWait           = time.Hour
	jitterWindow       = 512
	commandBuffer      = 16
)

// ErrCommandQueueFull is returned when the loop is not draining commands
var ErrCommandQueueFull = errors.New("scheduler command queue full")

// Config holds the engine tunables fixed at construction
type Config struct {
	TopK     int
	Scope    harmony.Scope
	Adaptive harmony.AdaptiveConfig
	// MaxLateness bounds how late an event may fire before its missed slots are skipped
	MaxLateness time.Duration
	RNG         harmony.RNG
}

// DefaultConfig returns the default tunables
func DefaultConfig() Config {
	return Config{
		TopK:        harmony.DefaultTopK,
		Scope:       harmony.ScopeFull,
		Adaptive:    harmony.DefaultAdaptiveConfig(),
		MaxLateness: DefaultMaxLateness,
	}
}

// Summary describes a finished session
type Summary struct {
	SessionID    string        `json:"session_id"`
	Started      time.Time     `json:"started"`
	Ended        time.Time     `json:"ended"`
	Duration     time.Duration `json:"duration"`
	Chords       uint64        `json:"chords"`
	Notes        uint64        `json:"notes"`
	JitterMeanMs float64       `json:"jitter_mean_ms"`
	JitterStdMs  float64       `json:"jitter_std_ms"`
	MaxJitterMs  float64       `json:"max_jitter_ms"`
	Dropped      uint64        `json:"dropped"`
}

// Status is a point-in-time view of the engine for the API
type Status struct {
	State        RunState       `json:"state"`
	SessionID    string         `json:"session_id,omitempty"`
	Params       LiveParameters `json:"params"`
	Schedule     ScheduleState  `json:"schedule"`
	ActiveKey    string         `json:"active_key"`
	ActivePreset string         `json:"active_preset"`
	Target       float64        `json:"target_tension"`
	Confidence   bci.Snapshot   `json:"confidence"`
	TenseActive  bool           `json:"tense_active"`
	Chords       uint64         `json:"chords_emitted"`
	Notes        uint64         `json:"notes_emitted"`
	Dropped      uint64         `json:"dropped"`
	MaxJitterMs  float64        `json:"max_jitter_ms"`
	Sinks        []SinkStats    `json:"sinks"`

	library *harmony.Library
}

type command uint8

const (
	cmdStart command = iota + 1
	cmdPause
	cmdStop
)

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSessionEndHook registers fn to receive every finished session's summary
func WithSessionEndHook(fn func(Summary)) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.onSessionEnd = append(s.onSessionEnd, fn)
		}
	}
}

// Scheduler is the real-time loop. Run owns every playback field; other goroutines
// talk to it through the parameter store, the confidence holder and commands.
type Scheduler struct {
	params   *Store
	catalog  *harmony.Catalog
	signal   harmony.ConfidenceSource
	sessions SessionLogger
	dispatch *Dispatcher
	cfg      Config
	rng      harmony.RNG
	now      func() time.Time

	onSessionEnd []func(Summary)
	cmds         chan command

	// owned by the loop
	state        RunState
	st           ScheduleState
	adaptive     *harmony.Adaptive
	arp          *rhythm.Arpeggiator
	base         *harmony.Library
	tense        *harmony.Library
	activeKey    harmony.PitchClass
	activePreset string
	sessionID    string
	sessionStart time.Time
	seq          uint64
	arpBeat      float64
	chordStart   time.Time
	chordBeat    time.Duration
	chords       uint64
	notes        uint64
	jitter       [jitterWindow]float64
	jitterLen    int
	jitterPos    int
	maxJitter    time.Duration

	statusMu sync.Mutex
	status   Status
}

// New builds the initial libraries from the current parameters. An invalid key or
// preset, or an empty library, is returned as an error and nothing starts.
func New(params *Store, catalog *harmony.Catalog, signal harmony.ConfidenceSource, sessions SessionLogger, dispatch *Dispatcher, cfg Config, opts ...Option) (*Scheduler, error) {
	if sessions == nil {
		sessions = NopSessions{}
	}
	if dispatch == nil {
		dispatch = NewDispatcher(DefaultDispatchBuffer)
	}
	if signal == nil {
		signal = bci.NewConfidence(bci.DefaultWindow)
	}
	if cfg.MaxLateness <= 0 {
		cfg.MaxLateness = DefaultMaxLateness
	}
	rng := cfg.RNG
	if rng == nil {
		rng = harmony.DefaultRNG()
	}

	p := params.Snapshot()
	base, err := catalog.Library(p.Key, p.Preset)
	if err != nil {
		return nil, fmt.Errorf("build chord library: %w", err)
	}

	s := &Scheduler{
		params:       params,
		catalog:      catalog,
		signal:       signal,
		sessions:     sessions,
		dispatch:     dispatch,
		cfg:          cfg,
		rng:          rng,
		now:          time.Now,
		cmds:         make(chan command, commandBuffer),
		base:         base,
		activeKey:    p.Key,
		activePreset: p.Preset,
	}
	for _, opt := range opts {
		opt(s)
	}

	h := harmony.NewHarmonizer(base,
		harmony.WithTopK(cfg.TopK),
		harmony.WithScope(cfg.Scope),
		harmony.WithRNG(rng),
	)
	s.adaptive = harmony.NewAdaptive(h, signal, cfg.Adaptive)
	s.tense = s.tenseLibrary(p.Key)
	s.adaptive.SetLibraries(base, s.tense)
	s.arp = rhythm.NewArpeggiator(p.ArpMode, p.ArpVelocity, rng)

	s.publishStatus()
	return s, nil
}

// Params returns the parameter store
func (s *Scheduler) Params() *Store { return s.params }

// Catalog returns the library catalog
func (s *Scheduler) Catalog() *harmony.Catalog { return s.catalog }

// Start begins a session, or resumes a paused one
func (s *Scheduler) Start() error { return s.send(cmdStart) }

// Pause mutes output and freezes the beat grid
func (s *Scheduler) Pause() error { return s.send(cmdPause) }

// Stop ends the session and clears the playback state
func (s *Scheduler) Stop() error { return s.send(cmdStop) }

func (s *Scheduler) send(c command) error {
	select {
	case s.cmds <- c:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// SetKey builds the libraries for key before publishing it, so the loop only swaps pointers
func (s *Scheduler) SetKey(key harmony.PitchClass) error {
	p := s.params.Snapshot()
	if _, err := s.catalog.Library(key, p.Preset); err != nil {
		return err
	}
	s.tenseLibrary(key)
	return s.params.SetKey(key)
}

// SetPreset builds the preset's library before publishing it. Unknown presets are rejected.
func (s *Scheduler) SetPreset(name string) error {
	p := s.params.Snapshot()
	if _, err := s.catalog.Library(p.Key, name); err != nil {
		return err
	}
	return s.params.SetPreset(name)
}

// Run drives the loop until ctx is cancelled. A running session is stopped on exit.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(idleWait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.state != Stopped {
				s.stop(s.now())
				s.publishStatus()
			}
			return ctx.Err()
		case cmd := <-s.cmds:
			s.handle(cmd, s.now())
		case <-timer.C:
		}

		now := s.now()
		s.advance(now)
		s.publishStatus()
		timer.Reset(s.wait(s.now()))
	}
}

func (s *Scheduler) wait(now time.Time) time.Duration {
	if s.state != Running {
		return idleWait
	}
	d := s.st.nextDue().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (s *Scheduler) handle(cmd command, now time.Time) {
	switch cmd {
	case cmdStart:
		switch s.state {
		case Stopped:
			s.start(now)
		case Paused:
			s.resume(now)
		}
	case cmdPause:
		if s.state == Running {
			s.pause()
		}
	case cmdStop:
		if s.state != Stopped {
			s.stop(now)
		}
	}
}

func (s *Scheduler) start(now time.Time) {
	p := s.params.Snapshot()
	s.applyContext(p)
	s.applyArp(p)

	s.sessionID = s.openSession(p)
	s.sessionStart = now
	s.seq = 0
	s.chords, s.notes = 0, 0
	s.jitterLen, s.jitterPos = 0, 0
	s.maxJitter = 0
	s.arpBeat = 0
	s.chordStart = now
	s.chordBeat = p.BeatDuration()

	s.st = ScheduleState{
		NextChordDue: now,
		NextArpDue:   now,
		Playing:      true,
	}
	s.setChord(harmony.Tonic(p.Key))
	s.state = Running

	s.emit(Event{Kind: KindSessionStart, At: now, Params: p})
	logger.Info("Session started", logger.Fields{
		"session_id": s.sessionID,
		"key":        p.Key.String(),
		"preset":     p.Preset,
		"bpm":        p.BPM,
	})
}

func (s *Scheduler) pause() {
	s.state = Paused
	s.st.Playing = false
	logger.Info("Session paused", logger.Fields{"session_id": s.sessionID})
}

func (s *Scheduler) resume(now time.Time) {
	p := s.params.Snapshot()
	s.st.NextChordDue = skipForward(s.st.NextChordDue, now, p.ChordInterval())
	arpInterval := s.arpInterval(p)
	next := skipForward(s.st.NextArpDue, now, arpInterval)
	if arpInterval > 0 {
		s.arpBeat += float64(next.Sub(s.st.NextArpDue)/arpInterval) * p.ArpRate
	}
	s.st.NextArpDue = next
	s.st.Playing = true
	s.state = Running
	logger.Info("Session resumed", logger.Fields{"session_id": s.sessionID})
}

func (s *Scheduler) stop(now time.Time) {
	summary := s.summary(now)
	s.emit(Event{Kind: KindSessionEnd, At: now})
	s.closeSession()

	s.state = Stopped
	s.st = ScheduleState{}
	s.arp.SetChord(nil)
	s.adaptive.Reset()
	s.sessionID = ""

	for _, fn := range s.onSessionEnd {
		fn(summary)
	}
	logger.Info("Session ended", logger.Fields{
		"session_id": summary.SessionID,
		"chords":     int64(summary.Chords),
		"notes":      int64(summary.Notes),
		"duration":   summary.Duration,
	})
}

func (s *Scheduler) openSession(p LiveParameters) string {
	ctx, cancel := context.WithTimeout(context.Background(), sessionCallTimeout)
	defer cancel()

	id, err := s.sessions.StartSession(ctx, SessionInfoFrom(p))
	if err != nil || id == "" {
		id = uuid.NewString()
		logger.Warn("Session logging unavailable, continuing without it", logger.Fields{
			"session_id": id,
			"error":      fmt.Sprint(err),
		})
	}
	return id
}

func (s *Scheduler) closeSession() {
	ctx, cancel := context.WithTimeout(context.Background(), sessionCallTimeout)
	defer cancel()

	if err := s.sessions.EndSession(ctx, s.sessionID); err != nil {
		logger.Error("Failed to end session", err, logger.Fields{"session_id": s.sessionID})
	}
}

// advance emits every event due at or before now, in due-time order. On a tie the
// chord goes first so notes always follow the chord they belong to.
func (s *Scheduler) advance(now time.Time) {
	if s.state != Running {
		return
	}

	p := s.params.Snapshot()
	s.applyContext(p)
	s.applyArp(p)

	defer s.updateBeatPosition(now)

	for {
		chordDue, arpDue := s.st.NextChordDue, s.st.NextArpDue
		if chordDue.After(now) && arpDue.After(now) {
			return
		}
		if !chordDue.After(arpDue) {
			s.fireChord(chordDue, now, p)
		} else {
			s.fireArp(arpDue, now, p)
		}
	}
}

func (s *Scheduler) fireChord(due, now time.Time, p LiveParameters) {
	late := now.Sub(due)
	s.recordLateness(late)

	next, target := s.adaptive.Next(s.st.CurrentChord, now, p.Adaptive)
	s.setChord(next)

	// The interval is fixed here, so tempo changes apply from the next chord onward
	interval := p.ChordInterval()
	s.chords++
	s.emit(Event{
		Kind:       KindChord,
		At:         due,
		Duration:   interval,
		Chord:      next,
		Pitches:    s.st.Pitches,
		Target:     target,
		Confidence: target / harmony.MaxTension,
		Pad:        p.Layers.Pad,
	})

	nextDue := due.Add(interval)
	if late > s.cfg.MaxLateness {
		nextDue = skipForward(nextDue, now, interval)
	}
	s.st.NextChordDue = nextDue

	// The arp grid restarts on every chord at the chord's tempo
	s.chordStart = due
	s.chordBeat = p.BeatDuration()
	s.arpBeat = 0
	s.st.NextArpDue = due
}

func (s *Scheduler) fireArp(due, now time.Time, p LiveParameters) {
	interval := s.arpInterval(p)
	late := now.Sub(due)
	nextDue := due.Add(interval)

	if late > s.cfg.MaxLateness {
		skipped := skipForward(nextDue, now, interval)
		s.arpBeat += float64(skipped.Sub(due)/interval) * p.ArpRate
		s.st.NextArpDue = skipped
		return
	}
	s.recordLateness(late)

	phase := s.arpBeat
	s.arpBeat += p.ArpRate
	s.st.NextArpDue = nextDue

	if !p.Layers.Arp || p.ArpMode == rhythm.ModeOff {
		return
	}
	note, ok := s.arp.Next(phase)
	if !ok || !rhythm.Gate(p.Density, s.rng) {
		return
	}

	s.notes++
	s.emit(Event{
		Kind:     KindNote,
		At:       due,
		Duration: interval,
		Pitch:    note.Pitch,
		Velocity: note.Velocity,
	})
}

// setChord makes c current. Library pitches are shared; only chords outside the
// active library are rendered.
func (s *Scheduler) setChord(c harmony.Chord) {
	lib := s.adaptive.Harmonizer().Library()
	var pitches []int
	if idx, ok := lib.IndexOf(c); ok {
		pitches = lib.Pitches(idx)
	} else {
		pitches = c.Pitches(lib.Octave())
	}
	s.st.CurrentChord = c
	s.st.Pitches = pitches
	s.arp.SetChord(pitches)
}

// arpInterval is arp_rate beats at the tempo the current chord started with
func (s *Scheduler) arpInterval(p LiveParameters) time.Duration {
	beat := s.chordBeat
	if beat <= 0 {
		beat = p.BeatDuration()
	}
	return time.Duration(p.ArpRate * float64(beat))
}

func (s *Scheduler) updateBeatPosition(now time.Time) {
	if s.chordBeat <= 0 || now.Before(s.chordStart) {
		s.st.BeatsSinceChord = 0
		return
	}
	s.st.BeatsSinceChord = float64(now.Sub(s.chordStart)) / float64(s.chordBeat)
}

// applyContext swaps libraries when the key or preset changed. Libraries are normally
// prebuilt by SetKey/SetPreset so this is a cache hit.
func (s *Scheduler) applyContext(p LiveParameters) {
	if p.Key == s.activeKey && p.Preset == s.activePreset {
		return
	}

	base, err := s.catalog.Library(p.Key, p.Preset)
	if err != nil {
		logger.Warn("Keeping previous chord library", logger.Fields{
			"key":    p.Key.String(),
			"preset": p.Preset,
			"error":  err.Error(),
		})
		s.activeKey, s.activePreset = p.Key, p.Preset
		return
	}

	if p.Key != s.activeKey || s.tense == nil {
		s.tense = s.tenseLibrary(p.Key)
	}
	s.base = base
	s.adaptive.SetLibraries(base, s.tense)
	s.activeKey, s.activePreset = p.Key, p.Preset
}

func (s *Scheduler) applyArp(p LiveParameters) {
	s.arp.SetMode(p.ArpMode)
	s.arp.SetVelocity(p.ArpVelocity)
}

func (s *Scheduler) tenseLibrary(key harmony.PitchClass) *harmony.Library {
	if !s.cfg.Adaptive.ContextSwitch {
		return nil
	}
	lib, err := s.catalog.Library(key, harmony.PresetTense)
	if err != nil {
		logger.Warn("Tense library unavailable", logger.Fields{"key": key.String(), "error": err.Error()})
		return nil
	}
	return lib
}

func (s *Scheduler) emit(ev Event) {
	s.seq++
	ev.Seq = s.seq
	ev.SessionID = s.sessionID
	s.dispatch.Publish(ev)
}

func (s *Scheduler) recordLateness(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.jitter[s.jitterPos] = float64(d) / float64(time.Millisecond)
	s.jitterPos = (s.jitterPos + 1) % jitterWindow
	if s.jitterLen < jitterWindow {
		s.jitterLen++
	}
	if d > s.maxJitter {
		s.maxJitter = d
	}
}

func (s *Scheduler) summary(now time.Time) Summary {
	sum := Summary{
		SessionID:   s.sessionID,
		Started:     s.sessionStart,
		Ended:       now,
		Duration:    now.Sub(s.sessionStart),
		Chords:      s.chords,
		Notes:       s.notes,
		MaxJitterMs: float64(s.maxJitter) / float64(time.Millisecond),
		Dropped:     s.dispatch.Dropped(),
	}
	switch {
	case s.jitterLen >= 2:
		sum.JitterMeanMs, sum.JitterStdMs = stat.MeanStdDev(s.jitter[:s.jitterLen], nil)
	case s.jitterLen == 1:
		sum.JitterMeanMs = s.jitter[0]
	}
	return sum
}

func (s *Scheduler) publishStatus() {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	s.status = Status{
		State:        s.state,
		SessionID:    s.sessionID,
		Schedule:     s.st,
		ActiveKey:    s.activeKey.String(),
		ActivePreset: s.activePreset,
		Target:       s.adaptive.LastTarget(),
		TenseActive:  s.adaptive.TenseActive(),
		Chords:       s.chords,
		Notes:        s.notes,
		MaxJitterMs:  float64(s.maxJitter) / float64(time.Millisecond),
		library:      s.adaptive.Harmonizer().Library(),
	}
}

// Status returns the latest published view plus live parameters and signal
func (s *Scheduler) Status() Status {
	s.statusMu.Lock()
	st := s.status
	s.statusMu.Unlock()

	st.Params = s.params.Snapshot()
	st.Confidence = s.signal.Snapshot()
	st.Dropped = s.dispatch.Dropped()
	st.Sinks = s.dispatch.Stats()
	return st
}

// State returns the last published run state
func (s *Scheduler) State() RunState {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status.State
}

// ActiveLibrary returns the library in use and the current chord
func (s *Scheduler) ActiveLibrary() (*harmony.Library, harmony.Chord) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status.library, s.status.Schedule.CurrentChord
}
