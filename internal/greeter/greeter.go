// Package greeter drives a connection.Handle. It greets the server once the
// connection opens, logs every frame that comes back and sends a fixed
// payload when triggered.
package greeter

import (
	"log/slog"
	"sync/atomic"

	"github.com/rickgao/ws-greeter/internal/connection"
	"github.com/rickgao/ws-greeter/internal/model"
)

// Recorder receives every inbound frame and every outbound payload that was
// written successfully. Implementations must be safe for concurrent use.
//
// Record calls are not globally ordered: a ManualSend may be recorded after
// the echo it provoked. Seq orders frames within one direction; At orders
// them across directions.
type Recorder interface {
	Record(f model.Frame)
}

// Config configures a Greeter.
type Config struct {
	Greetings     []string // Sent in order once the connection opens
	ManualPayload string   // Sent by ManualSend
}

// DefaultConfig returns the two-greeting variant.
func DefaultConfig() Config {
	return Config{
		Greetings:     []string{"js says hi", "another"},
		ManualPayload: "manualsend",
	}
}

// Option configures optional Greeter behavior.
type Option func(*Greeter)

// WithRecorder hands every frame to r.
func WithRecorder(r Recorder) Option {
	return func(g *Greeter) {
		g.recorder = r
	}
}

// Greeter logs connection events and sends the fixed payloads.
type Greeter struct {
	h        connection.Handle
	cfg      Config
	logger   *slog.Logger
	recorder Recorder

	sendSeq atomic.Int64
}

// New registers the greeter's handlers on h. h must not be open yet for the
// greetings to go out.
func New(h connection.Handle, cfg Config, logger *slog.Logger, opts ...Option) *Greeter {
	if logger == nil {
		logger = slog.Default()
	}

	g := &Greeter{
		h:      h,
		cfg:    cfg,
		logger: logger.With("conn_id", h.ID().String()),
	}
	for _, opt := range opts {
		opt(g)
	}

	h.OnOpen(g.handleOpen)
	h.OnMessage(g.handleMessage)
	h.OnClose(g.handleClose)
	h.OnError(g.handleError)

	return g
}

// Handle returns the connection the greeter drives.
func (g *Greeter) Handle() connection.Handle {
	return g.h
}

// ManualSend transmits the manual payload. It performs no state check of its
// own: before open or after close the handle's ErrNotConnected is returned.
func (g *Greeter) ManualSend() error {
	return g.send(g.cfg.ManualPayload)
}

func (g *Greeter) handleOpen() {
	g.logger.Info("found server", "url", g.h.URL())

	for _, payload := range g.cfg.Greetings {
		if err := g.send(payload); err != nil {
			g.logger.Error("greeting failed", "payload", payload, "error", err)
			return
		}
	}
}

func (g *Greeter) handleMessage(f model.Frame) {
	g.logger.Info("msg", "data", f.Text(), "seq", f.Seq)
	g.record(f)
}

func (g *Greeter) handleClose(code int, reason string) {
	g.logger.Info("websocket closed", "code", code, "reason", reason)
}

func (g *Greeter) handleError(err error) {
	g.logger.Error("websocket error", "error", err)
}

// send stamps the outbound frame before writing it, so its At never trails
// the echo it provokes. Only written frames are recorded.
func (g *Greeter) send(payload string) error {
	f := model.NewFrame(g.h.ID(), model.Outbound, 0, []byte(payload))
	if err := g.h.SendText(payload); err != nil {
		return err
	}

	f.Seq = g.sendSeq.Add(1)
	g.logger.Debug("sent", "data", payload, "seq", f.Seq)
	g.record(f)
	return nil
}

func (g *Greeter) record(f model.Frame) {
	if g.recorder != nil {
		g.recorder.Record(f)
	}
}
