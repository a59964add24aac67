package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/ws-greeter/internal/model"
)

// Handle represents a single WebSocket connection to a fixed address.
type Handle interface {
	// ID identifies this handle in logs and recorded frames.
	ID() uuid.UUID

	// URL returns the address fixed at construction.
	URL() string

	// State returns the current lifecycle state.
	State() State

	// Open dials the address. It returns once the open handlers have run,
	// or with the dial error after the error handlers have run. If Close wins
	// the race with Open, no event fires and ErrAlreadyClosed is returned.
	Open(ctx context.Context) error

	// Send writes data as one text frame.
	// Returns ErrNotConnected unless the handle is open.
	Send(data []byte) error

	// SendText writes s as one text frame.
	SendText(s string) error

	// Close gracefully closes the connection. Safe to call more than once.
	Close() error

	// OnOpen registers a handler invoked once when the connection opens.
	OnOpen(fn func())

	// OnMessage registers a handler invoked once per inbound frame, in arrival order.
	OnMessage(fn func(model.Frame))

	// OnClose registers a handler invoked once when an open connection ends.
	OnClose(fn func(code int, text string))

	// OnError registers a handler for transport errors.
	OnError(fn func(error))

	// Done is closed after the handle has finished and all close handlers ran.
	Done() <-chan struct{}
}

// handle implements the Handle interface.
type handle struct {
	cfg    Config
	logger *slog.Logger
	id     uuid.UUID
	dialer *websocket.Dialer

	// State
	mu      sync.RWMutex
	state   State
	conn    *websocket.Conn
	opened    bool // Open was called
	closing   bool // Close was called
	announced bool // open handlers ran

	// Event handlers
	handlersMu sync.Mutex
	onOpen     []func()
	onMessage  []func(model.Frame)
	onClose    []func(int, string)
	onError    []func(error)

	// Write serialization
	writeMu sync.Mutex

	// Owned by the dispatch goroutine
	recvSeq int64

	ready    chan struct{}
	stop     chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// NewHandle creates a Handle for cfg.URL. It does not dial.
func NewHandle(cfg Config, logger *slog.Logger) Handle {
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.New()
	return &handle{
		cfg:    cfg,
		logger: logger.With("conn_id", id.String()),
		id:     id,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		state: StateConnecting,
		ready: make(chan struct{}),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (h *handle) ID() uuid.UUID { return h.id }

func (h *handle) URL() string { return h.cfg.URL }

func (h *handle) Done() <-chan struct{} { return h.done }

// State returns the current lifecycle state.
func (h *handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Open dials the configured URL and starts the dispatch goroutine.
func (h *handle) Open(ctx context.Context) error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return ErrAlreadyClosed
	}
	if h.opened {
		h.mu.Unlock()
		return ErrAlreadyOpened
	}
	h.opened = true
	h.mu.Unlock()

	h.logger.Debug("websocket connecting", "url", h.cfg.URL)

	conn, resp, err := h.dialer.DialContext(ctx, h.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("dial %s: %w (status %d)", h.cfg.URL, err, resp.StatusCode)
		} else {
			err = fmt.Errorf("dial %s: %w", h.cfg.URL, err)
		}

		h.mu.Lock()
		h.state = StateFailed
		h.mu.Unlock()

		h.logger.Warn("websocket connect failed", "error", err)
		h.emitError(err)
		h.finish()
		return err
	}

	h.mu.Lock()
	if h.closing {
		// Close was called while dialing
		h.state = StateClosed
		h.mu.Unlock()
		conn.Close()
		h.finish()
		return ErrAlreadyClosed
	}
	h.conn = conn
	h.mu.Unlock()

	if h.cfg.ReadLimit > 0 {
		conn.SetReadLimit(h.cfg.ReadLimit)
	}

	go h.dispatch(conn)
	if h.cfg.PingInterval > 0 {
		go h.keepalive(conn)
	}

	<-h.ready

	h.mu.RLock()
	announced := h.announced
	h.mu.RUnlock()
	if !announced {
		return ErrAlreadyClosed
	}
	return nil
}

// Send writes data as one text frame.
func (h *handle) Send(data []byte) error {
	h.mu.RLock()
	conn := h.conn
	state := h.state
	h.mu.RUnlock()

	if state != StateOpen || conn == nil {
		return ErrNotConnected
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if h.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write text frame: %w", err)
	}
	return nil
}

// SendText writes s as one text frame.
func (h *handle) SendText(s string) error {
	return h.Send([]byte(s))
}

// Close gracefully closes the connection.
func (h *handle) Close() error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return nil
	}
	h.closing = true
	conn := h.conn

	if conn == nil {
		if !h.opened {
			// Never dialed: nothing to tear down
			h.state = StateClosed
			h.mu.Unlock()
			h.finish()
			return nil
		}
		// Dial in progress or failed; Open finishes the handle
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	// Signal keepalive to stop
	close(h.stop)

	h.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	h.writeMu.Unlock()

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (h *handle) OnOpen(fn func()) {
	h.handlersMu.Lock()
	h.onOpen = append(h.onOpen, fn)
	h.handlersMu.Unlock()
}

func (h *handle) OnMessage(fn func(model.Frame)) {
	h.handlersMu.Lock()
	h.onMessage = append(h.onMessage, fn)
	h.handlersMu.Unlock()
}

func (h *handle) OnClose(fn func(code int, text string)) {
	h.handlersMu.Lock()
	h.onClose = append(h.onClose, fn)
	h.handlersMu.Unlock()
}

func (h *handle) OnError(fn func(error)) {
	h.handlersMu.Lock()
	h.onError = append(h.onError, fn)
	h.handlersMu.Unlock()
}

// dispatch runs the open handlers, then reads frames until the connection
// ends, then runs the close handlers. Every handler runs on this goroutine.
func (h *handle) dispatch(conn *websocket.Conn) {
	defer h.finish()

	h.mu.Lock()
	if h.closing {
		// Close got in after the dial: the connection never reports open,
		// so it never reports closed either
		h.state = StateClosed
		h.mu.Unlock()
		conn.Close()
		close(h.ready)
		return
	}
	h.state = StateOpen
	h.announced = true
	h.mu.Unlock()

	h.logger.Debug("websocket opened", "url", h.cfg.URL)

	h.handlersMu.Lock()
	openHandlers := append([]func(){}, h.onOpen...)
	h.handlersMu.Unlock()
	for _, fn := range openHandlers {
		fn()
	}
	close(h.ready)

	var code int
	var text string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code, text = h.classify(err)
			break
		}

		h.recvSeq++
		frame := model.NewFrame(h.id, model.Inbound, h.recvSeq, data)

		h.handlersMu.Lock()
		msgHandlers := append([]func(model.Frame){}, h.onMessage...)
		h.handlersMu.Unlock()
		for _, fn := range msgHandlers {
			fn(frame)
		}
	}

	h.mu.Lock()
	h.state = StateClosed
	h.mu.Unlock()
	conn.Close()

	h.logger.Debug("websocket closed", "code", code, "reason", text)

	h.handlersMu.Lock()
	closeHandlers := append([]func(int, string){}, h.onClose...)
	h.handlersMu.Unlock()
	for _, fn := range closeHandlers {
		fn(code, text)
	}
}

// classify turns a read error into a close code and reason, reporting
// anything other than a clean close to the error handlers.
func (h *handle) classify(err error) (int, string) {
	h.mu.RLock()
	closing := h.closing
	h.mu.RUnlock()

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if !closing && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			h.emitError(err)
		}
		return ce.Code, ce.Text
	}

	// Local Close tears the socket down under the reader
	if closing {
		return websocket.CloseNormalClosure, ""
	}

	h.emitError(err)
	return websocket.CloseAbnormalClosure, err.Error()
}

func (h *handle) emitError(err error) {
	h.handlersMu.Lock()
	errHandlers := append([]func(error){}, h.onError...)
	h.handlersMu.Unlock()
	for _, fn := range errHandlers {
		fn(err)
	}
}

// keepalive pings the server until the handle is closed.
func (h *handle) keepalive(conn *websocket.Conn) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-h.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(time.Second)
			if h.cfg.WriteTimeout > 0 {
				deadline = time.Now().Add(h.cfg.WriteTimeout)
			}
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				h.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}

func (h *handle) finish() {
	h.doneOnce.Do(func() { close(h.done) })
}
