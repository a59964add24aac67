package greeter

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/ws-greeter/internal/connection"
	"github.com/rickgao/ws-greeter/internal/echo"
	"github.com/rickgao/ws-greeter/internal/model"
)

// captureHandler is a slog.Handler that keeps every record in memory.
type captureHandler struct {
	mu      *sync.Mutex
	records *[]slog.Record
	attrs   []slog.Attr
}

func newCaptureLogger() (*slog.Logger, *captureHandler) {
	h := &captureHandler{mu: &sync.Mutex{}, records: &[]slog.Record{}}
	return slog.New(h), h
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	r = r.Clone()
	r.AddAttrs(h.attrs...)
	h.mu.Lock()
	*h.records = append(*h.records, r)
	h.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &captureHandler{mu: h.mu, records: h.records, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

// messages returns the value of key for every record whose message is msg.
func (h *captureHandler) messages(msg, key string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []string
	for _, r := range *h.records {
		if r.Message != msg {
			continue
		}
		val := ""
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == key {
				val = a.Value.String()
				return false
			}
			return true
		})
		out = append(out, val)
	}
	return out
}

// frameRecorder collects recorded frames.
type frameRecorder struct {
	mu     sync.Mutex
	frames []model.Frame
}

func (r *frameRecorder) Record(f model.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *frameRecorder) byDirection(dir model.Direction) []model.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Frame
	for _, f := range r.frames {
		if f.Direction == dir {
			out = append(out, f)
		}
	}
	return out
}

func (r *frameRecorder) texts(dir model.Direction) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, f := range r.frames {
		if f.Direction == dir {
			out = append(out, f.Text())
		}
	}
	return out
}

func startEcho(t *testing.T) string {
	t.Helper()
	srv := echo.NewServer(echo.DefaultConfig(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func newHandle(url string) connection.Handle {
	cfg := connection.DefaultConfig()
	cfg.URL = url
	return connection.NewHandle(cfg, nil)
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func assertStrings(t *testing.T, what string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %q, want %q", what, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s[%d] = %q, want %q", what, i, got[i], want[i])
		}
	}
}

func TestGreeter_GreetsAndLogsEchoes(t *testing.T) {
	h := newHandle(startEcho(t))
	logger, logs := newCaptureLogger()
	rec := &frameRecorder{}

	New(h, DefaultConfig(), logger, WithRecorder(rec))

	if err := h.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer h.Close()

	waitFor(t, "two echoed frames", func() bool { return len(rec.texts(model.Inbound)) == 2 })

	if n := len(logs.messages("found server", "url")); n != 1 {
		t.Errorf("found server logged %d times, want 1", n)
	}
	assertStrings(t, "sent", rec.texts(model.Outbound), []string{"js says hi", "another"})
	assertStrings(t, "received", rec.texts(model.Inbound), []string{"js says hi", "another"})
	assertStrings(t, "msg logs", logs.messages("msg", "data"), []string{"js says hi", "another"})
}

func TestGreeter_SingleGreeting(t *testing.T) {
	h := newHandle(startEcho(t))
	logger, logs := newCaptureLogger()

	New(h, Config{Greetings: []string{"js says hi"}, ManualPayload: "manualsend"}, logger)

	if err := h.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer h.Close()

	waitFor(t, "echoed greeting", func() bool { return len(logs.messages("msg", "data")) == 1 })
	time.Sleep(50 * time.Millisecond)

	assertStrings(t, "msg logs", logs.messages("msg", "data"), []string{"js says hi"})
}

func TestGreeter_ManualSend(t *testing.T) {
	h := newHandle(startEcho(t))
	logger, logs := newCaptureLogger()
	rec := &frameRecorder{}

	g := New(h, Config{ManualPayload: "manualsend"}, logger, WithRecorder(rec))
	if g.Handle() != h {
		t.Error("Handle() should return the injected handle")
	}

	if err := h.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer h.Close()

	if err := g.ManualSend(); err != nil {
		t.Fatalf("ManualSend failed: %v", err)
	}

	waitFor(t, "echoed manual payload", func() bool { return len(logs.messages("msg", "data")) == 1 })

	assertStrings(t, "sent", rec.texts(model.Outbound), []string{"manualsend"})
	assertStrings(t, "msg logs", logs.messages("msg", "data"), []string{"manualsend"})
}

func TestGreeter_ManualSendStampedBeforeEcho(t *testing.T) {
	h := newHandle(startEcho(t))
	rec := &frameRecorder{}
	g := New(h, Config{ManualPayload: "manualsend"}, nil, WithRecorder(rec))

	if err := h.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer h.Close()

	for i := 0; i < 5; i++ {
		if err := g.ManualSend(); err != nil {
			t.Fatalf("ManualSend failed: %v", err)
		}
	}
	waitFor(t, "five echoes", func() bool { return len(rec.byDirection(model.Inbound)) == 5 })
	waitFor(t, "five sends", func() bool { return len(rec.byDirection(model.Outbound)) == 5 })

	out := rec.byDirection(model.Outbound)
	in := rec.byDirection(model.Inbound)
	for i := range out {
		if out[i].Seq != int64(i+1) {
			t.Errorf("outbound[%d].Seq = %d, want %d", i, out[i].Seq, i+1)
		}
		if out[i].At.After(in[i].At) {
			t.Errorf("outbound[%d] stamped %v after its echo at %v", i, out[i].At, in[i].At)
		}
	}
}

func TestGreeter_ManualSendBeforeOpen(t *testing.T) {
	h := newHandle("ws://127.0.0.1:1")
	rec := &frameRecorder{}
	g := New(h, DefaultConfig(), nil, WithRecorder(rec))

	if err := g.ManualSend(); !errors.Is(err, connection.ErrNotConnected) {
		t.Errorf("ManualSend error = %v, want ErrNotConnected", err)
	}
	if n := len(rec.texts(model.Outbound)); n != 0 {
		t.Errorf("recorded %d outbound frames, want 0", n)
	}
}

func TestGreeter_LogsClose(t *testing.T) {
	h := newHandle(startEcho(t))
	logger, logs := newCaptureLogger()
	New(h, Config{}, logger)

	if err := h.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close")
	}

	if n := len(logs.messages("websocket closed", "code")); n != 1 {
		t.Errorf("websocket closed logged %d times, want 1", n)
	}
	if n := len(logs.messages("websocket error", "error")); n != 0 {
		t.Errorf("websocket error logged %d times, want 0", n)
	}
}

func TestGreeter_LogsDialError(t *testing.T) {
	h := newHandle("ws://127.0.0.1:1")
	logger, logs := newCaptureLogger()
	New(h, DefaultConfig(), logger)

	if err := h.Open(context.Background()); err == nil {
		t.Fatal("expected Open to fail")
	}

	if n := len(logs.messages("websocket error", "error")); n != 1 {
		t.Errorf("websocket error logged %d times, want 1", n)
	}
	if n := len(logs.messages("found server", "url")); n != 0 {
		t.Errorf("found server logged %d times, want 0", n)
	}
}
