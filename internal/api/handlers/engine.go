package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Conceptual-Machines/tension-engine/internal/bci"
	"github.com/Conceptual-Machines/tension-engine/internal/control"
	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
	"github.com/Conceptual-Machines/tension-engine/internal/logger"
	"github.com/Conceptual-Machines/tension-engine/internal/scheduler"
)

// Engine is the read side of the scheduler
type Engine interface {
	Status() scheduler.Status
	ActiveLibrary() (*harmony.Library, harmony.Chord)
}

type EngineHandler struct {
	engine Engine
	router *control.Router
	state  *bci.State
}

func NewEngineHandler(engine Engine, router *control.Router, state *bci.State) *EngineHandler {
	return &EngineHandler{engine: engine, router: router, state: state}
}

type StateResponse struct {
	scheduler.Status
	BCIState string `json:"bci_state"`
}

// GetState returns the engine status snapshot
func (h *EngineHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, StateResponse{
		Status:   h.engine.Status(),
		BCIState: h.state.Label(),
	})
}

type ControlRequest struct {
	Address string `json:"address" binding:"required"`
	Args    []any  `json:"args"`
}

// Control routes one message through the same router as OSC
func (h *EngineHandler) Control(c *gin.Context) {
	var req ControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	h.apply(c, req.Address, req.Args)
}

type SignalRequest struct {
	Value *float64 `json:"value" binding:"required"`
}

// Signal feeds one confidence sample
func (h *EngineHandler) Signal(c *gin.Context) {
	var req SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	h.apply(c, control.AddrProbImg, []any{*req.Value})
}

func (h *EngineHandler) apply(c *gin.Context, address string, args []any) {
	if err := h.router.Handle(address, args); err != nil {
		fields := logger.WithContext(c)
		fields["address"] = address
		fields["error"] = err.Error()
		logger.Warn("Control message rejected", fields)

		status := http.StatusUnprocessableEntity
		if errors.Is(err, control.ErrUnknownAddress) {
			status = http.StatusNotFound
		} else if errors.Is(err, scheduler.ErrCommandQueueFull) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "address": address})
}

type LibraryChord struct {
	Chord   harmony.Chord `json:"chord"`
	Pitches []int         `json:"pitches"`
	Tension float64       `json:"tension"`
}

type LibraryResponse struct {
	Key     harmony.PitchClass `json:"key"`
	Preset  string             `json:"preset"`
	Current harmony.Chord      `json:"current"`
	Chords  []LibraryChord     `json:"chords"`
}

// GetLibrary lists the active library with each chord's tension from the current root
func (h *EngineHandler) GetLibrary(c *gin.Context) {
	lib, current := h.engine.ActiveLibrary()
	if lib == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No chord library loaded"})
		return
	}

	resp := LibraryResponse{
		Key:     lib.Key(),
		Preset:  lib.Preset().Name,
		Current: current,
		Chords:  make([]LibraryChord, lib.Len()),
	}
	for idx := range resp.Chords {
		resp.Chords[idx] = LibraryChord{
			Chord:   lib.Chord(idx),
			Pitches: lib.Pitches(idx),
			Tension: lib.Tension(current.Root, idx),
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Addresses lists the accepted control addresses
func (h *EngineHandler) Addresses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"addresses": h.router.Addresses()})
}
