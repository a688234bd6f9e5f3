package xrpl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLedger accepts websocket clients, checks the subscribe command and
// replays the given messages on every connection, then closes it.
type fakeLedger struct {
	messages   []string
	holdOpen   bool
	subscribes atomic.Int32
}

func (f *fakeLedger) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req struct {
			Command string   `json:"command"`
			Streams []string `json:"streams"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		assert.Equal(t, "subscribe", req.Command)
		assert.Equal(t, []string{"transactions"}, req.Streams)
		f.subscribes.Add(1)

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"response","status":"success","result":{}}`))
		for _, m := range f.messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		if f.holdOpen {
			// Wait for the client to hang up.
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
	}
}

func startFakeLedger(t *testing.T, f *fakeLedger) string {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func receive(t *testing.T, ch <-chan TransactionEvent) TransactionEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transaction")
		return TransactionEvent{}
	}
}

func TestStream_DeliversTransactions(t *testing.T) {
	ledger := &fakeLedger{messages: []string{`{"type":"ledgerClosed"}`, `garbage`, ammCreateV1}, holdOpen: true}
	stream := NewStream(StreamConfig{WSEndpoint: startFakeLedger(t, ledger), ReconnectDelayMs: 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := stream.Start(ctx)

	ev := receive(t, events)
	assert.Equal(t, "A1B2", ev.Hash)
	assert.Equal(t, int32(1), ledger.subscribes.Load())

	stats := stream.Stats()
	assert.True(t, stats.Connected)
	assert.Equal(t, int64(1), stats.Transactions)
	assert.Equal(t, int64(1), stats.DecodeErrors)
}

func TestStream_ResubscribesAfterDisconnect(t *testing.T) {
	ledger := &fakeLedger{messages: []string{ammCreateV1}}
	stream := NewStream(StreamConfig{WSEndpoint: startFakeLedger(t, ledger), ReconnectDelayMs: 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := stream.Start(ctx)

	receive(t, events)
	receive(t, events)

	assert.GreaterOrEqual(t, ledger.subscribes.Load(), int32(2))
	assert.GreaterOrEqual(t, stream.Stats().Reconnects, int64(1))
}

func TestStream_CloseEndsChannel(t *testing.T) {
	ledger := &fakeLedger{holdOpen: true}
	stream := NewStream(StreamConfig{WSEndpoint: startFakeLedger(t, ledger), ReconnectDelayMs: 10})
	events := stream.Start(context.Background())

	require.Eventually(t, stream.Connected, 5*time.Second, 10*time.Millisecond)
	stream.Close()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after Close")
	}
	assert.False(t, stream.Connected())
}

func TestStream_RetriesUnreachableEndpoint(t *testing.T) {
	stream := NewStream(StreamConfig{WSEndpoint: "ws://127.0.0.1:1/", ReconnectDelayMs: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	events := stream.Start(ctx)

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after context deadline")
	}
	assert.False(t, stream.Connected())
}
