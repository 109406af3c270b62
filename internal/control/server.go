package control

import (
	"context"
	"fmt"
	"net"

	"github.com/hypebeast/go-osc/osc"

	"github.com/Conceptual-Machines/tension-engine/internal/logger"
	"github.com/Conceptual-Machines/tension-engine/internal/scheduler"
)

// Server receives OSC control and signal messages over UDP
type Server struct {
	addr       string
	router     *Router
	dispatcher *osc.StandardDispatcher
}

// NewServer registers a handler for every address the router knows
func NewServer(addr string, router *Router) (*Server, error) {
	d := osc.NewStandardDispatcher()
	for _, address := range router.Addresses() {
		if err := d.AddMsgHandler(address, func(msg *osc.Message) {
			if err := router.Handle(msg.Address, msg.Arguments); err != nil {
				logger.Warn("Rejected control message", logger.Fields{
					"address": msg.Address,
					"error":   err.Error(),
				})
			}
		}); err != nil {
			return nil, fmt.Errorf("register %s: %w", address, err)
		}
	}
	return &Server{addr: addr, router: router, dispatcher: d}, nil
}

// ListenAndServe listens on the configured UDP address until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	logger.Info("OSC control listening", logger.Fields{"addr": conn.LocalAddr().String()})
	return s.Serve(ctx, conn)
}

// Serve reads packets from conn until ctx is cancelled; conn is closed on return
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	srv := &osc.Server{Dispatcher: s.dispatcher}
	err := srv.Serve(conn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Emitter sends chord and note events to the audio bridge. Delivered from a
// dispatcher goroutine, never from the timing loop.
type Emitter struct {
	client *osc.Client
	target string
}

// NewEmitter creates an emitter for host:port
func NewEmitter(host string, port int) *Emitter {
	return &Emitter{
		client: osc.NewClient(host, port),
		target: fmt.Sprintf("%s:%d", host, port),
	}
}

func (e *Emitter) Name() string { return "osc_out" }

// Deliver sends chord events (always) and note events
func (e *Emitter) Deliver(_ context.Context, ev scheduler.Event) error {
	var msg *osc.Message
	switch ev.Kind {
	case scheduler.KindChord:
		msg = EncodeChord(ev.Chord, ev.Target, ev.Pitches)
	case scheduler.KindNote:
		msg = EncodeNote(ev.Pitch, ev.Velocity)
	default:
		return nil
	}
	if err := e.client.Send(msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Address, e.target, err)
	}
	return nil
}
