package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// frame is the wire envelope: {"event": "...", "data": {...}}.
type frame struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Socket is the websocket-backed Channel. A single reader goroutine
// decodes frames and dispatches to handlers, so handlers never run
// concurrently with each other.
type Socket struct {
	conn *websocket.Conn
	log  *slog.Logger

	mu       sync.Mutex
	handlers map[Event]Handler
	closed   bool
	cancel   context.CancelFunc
}

// Dial connects to the push endpoint and starts the read loop. The
// returned Socket delivers events until the connection drops or Close is
// called.
func Dial(ctx context.Context, socketURL string, log *slog.Logger) (*Socket, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, _, err := websocket.Dial(ctx, socketURL, nil)
	if err != nil {
		return nil, err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		conn:     conn,
		log:      log,
		handlers: make(map[Event]Handler),
		cancel:   cancel,
	}
	go s.readLoop(readCtx)
	return s, nil
}

// On implements Channel.
func (s *Socket) On(event Event, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

// Off implements Channel.
func (s *Socket) Off(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

// Emit implements Channel.
func (s *Socket) Emit(ctx context.Context, event Event, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	out, err := json.Marshal(frame{Event: event, Data: b})
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, out)
}

// Close tears the connection down. Idempotent.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "client shutdown")
}

func (s *Socket) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.log.Debug("push socket closed", "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.log.Warn("discarding malformed push frame", "error", err)
			continue
		}

		s.mu.Lock()
		h := s.handlers[f.Event]
		s.mu.Unlock()
		if h != nil {
			h(f.Data)
		}
	}
}
