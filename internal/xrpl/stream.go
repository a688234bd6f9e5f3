package xrpl

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Transaction stream: websocket subscription to every validated transaction
// ---------------------------------------------------------------------------

// StreamConfig configures the ledger websocket subscriber.
type StreamConfig struct {
	WSEndpoint       string
	ReconnectDelayMs int
	PingIntervalS    int
	MaxReconnects    int // 0 = unlimited
	BufferSize       int
}

// Stream keeps a "transactions" subscription open and emits decoded events.
type Stream struct {
	config StreamConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc

	events chan TransactionEvent
	nextID atomic.Int64

	// Stats.
	messagesRecv atomic.Int64
	txSeen       atomic.Int64
	decodeErrors atomic.Int64
	reconnects   atomic.Int64
	connected    atomic.Bool
}

// NewStream creates an unstarted stream.
func NewStream(config StreamConfig) *Stream {
	if config.ReconnectDelayMs <= 0 {
		config.ReconnectDelayMs = 1000
	}
	if config.PingIntervalS <= 0 {
		config.PingIntervalS = 30
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1024
	}
	return &Stream{
		config: config,
		events: make(chan TransactionEvent, config.BufferSize),
	}
}

// Start connects in the background and returns the event channel. The
// channel is closed after ctx is cancelled or Close is called.
func (s *Stream) Start(ctx context.Context) <-chan TransactionEvent {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.runLoop(ctx)
	return s.events
}

// Close stops the subscription and drops the connection.
func (s *Stream) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.disconnect()
}

// Connected reports whether a websocket is currently open.
func (s *Stream) Connected() bool { return s.connected.Load() }

func (s *Stream) runLoop(ctx context.Context) {
	defer close(s.events)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("xrpl: stream loop panic recovered")
		}
	}()

	baseDelay := time.Duration(s.config.ReconnectDelayMs) * time.Millisecond
	const maxDelay = 30 * time.Second
	delay := baseDelay
	failures := 0
	connectedBefore := false

	for {
		if ctx.Err() != nil {
			s.disconnect()
			return
		}

		if s.config.MaxReconnects > 0 && failures >= s.config.MaxReconnects {
			log.Error().Int("max", s.config.MaxReconnects).Msg("xrpl: max reconnects reached, restarting counter after cooldown")
			if !sleepCtx(ctx, time.Minute) {
				return
			}
			failures = 0
		}

		conn, err := s.connect(ctx)
		if err == nil {
			err = s.subscribe(conn)
		}
		if err != nil {
			log.Warn().Err(err).Int("attempt", failures).Msg("xrpl: connection failed")
			s.disconnect()
			failures++
			if !sleepCtx(ctx, delay) {
				return
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}

		if connectedBefore {
			s.reconnects.Add(1)
		}
		connectedBefore = true
		failures = 0
		delay = baseDelay

		s.readLoop(ctx, conn)
		s.disconnect()

		if !sleepCtx(ctx, baseDelay) {
			return
		}
	}
}

func (s *Stream) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.config.WSEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("xrpl: dial %s: %w", s.config.WSEndpoint, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)

	log.Info().Str("endpoint", s.config.WSEndpoint).Msg("xrpl: connected")
	return conn, nil
}

func (s *Stream) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.connected.Store(false)
}

func (s *Stream) subscribe(conn *websocket.Conn) error {
	req := map[string]any{
		"id":      s.nextID.Add(1),
		"command": "subscribe",
		"streams": []string{"transactions"},
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("xrpl: write subscribe: %w", err)
	}
	log.Info().Msg("xrpl: subscribed to transactions stream")
	return nil
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	pingInterval := time.Duration(s.config.PingIntervalS) * time.Second
	readTimeout := 2 * pingInterval
	if readTimeout < 60*time.Second {
		readTimeout = 60 * time.Second
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// Unblocks ReadMessage.
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					log.Debug().Err(err).Msg("xrpl: ping failed")
				}
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case websocket.IsCloseError(err, websocket.CloseNormalClosure):
				log.Info().Msg("xrpl: connection closed normally")
			default:
				log.Warn().Err(err).Msg("xrpl: read error, reconnecting")
			}
			s.connected.Store(false)
			return
		}

		s.messagesRecv.Add(1)
		ev, ok := s.handleMessage(message)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

type responseMessage struct {
	Type   string `json:"type"`
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (s *Stream) handleMessage(data []byte) (ev TransactionEvent, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("xrpl: handleMessage panic recovered")
			ok = false
		}
	}()

	ev, ok, err := DecodeTransactionEvent(data)
	if err != nil {
		s.decodeErrors.Add(1)
		log.Debug().Err(err).Msg("xrpl: dropping undecodable stream message")
		return TransactionEvent{}, false
	}
	if ok {
		s.txSeen.Add(1)
		return ev, true
	}

	var resp responseMessage
	if json.Unmarshal(data, &resp) == nil && resp.Type == "response" {
		if resp.Status == "error" {
			log.Error().Int64("id", resp.ID).Str("error", resp.Error).Msg("xrpl: subscribe rejected")
		} else {
			log.Debug().Int64("id", resp.ID).Msg("xrpl: subscription confirmed")
		}
	}
	return TransactionEvent{}, false
}

// StreamStats returns stream statistics.
type StreamStats struct {
	Connected    bool  `json:"connected"`
	MessagesRecv int64 `json:"messages_recv"`
	Transactions int64 `json:"transactions"`
	DecodeErrors int64 `json:"decode_errors"`
	Reconnects   int64 `json:"reconnects"`
}

func (s *Stream) Stats() StreamStats {
	return StreamStats{
		Connected:    s.connected.Load(),
		MessagesRecv: s.messagesRecv.Load(),
		Transactions: s.txSeen.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		Reconnects:   s.reconnects.Load(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
