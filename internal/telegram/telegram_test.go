package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ABC", "ABC"},
		{"0.00005", `0\.00005`},
		{"20.00%", `20\.00%`},
		{"2024-03-01T12:30:00Z", `2024\-03\-01T12:30:00Z`},
		{"a_b*c[d]e(f)g~h`i>j#k+l-m=n|o{p}q.r!s\\t", `a\_b\*c\[d\]e\(f\)g\~h\` + "`" + `i\>j\#k\+l\-m\=n\|o\{p\}q\.r\!s\\t`},
		{"🚀 LIVE", "🚀 LIVE"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Escape(tt.in), "input %q", tt.in)
	}
}

// fakeBotAPI is a minimal Bot API server: getMe and getChat succeed,
// sendMessage answers with the configured status sequence.
type fakeBotAPI struct {
	mu          sync.Mutex
	sends       []map[string]string
	statuses    []int // per sendMessage attempt; last value repeats
	attempts    atomic.Int32
	chatLookups []string
}

func (f *fakeBotAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"alerts","username":"alerts_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/getChat"):
			f.mu.Lock()
			f.chatLookups = append(f.chatLookups, r.PostForm.Get("chat_id"))
			f.mu.Unlock()
			fmt.Fprint(w, `{"ok":true,"result":{"id":-1001234567890,"type":"channel","username":"firstledger_launches"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			n := int(f.attempts.Add(1)) - 1
			f.mu.Lock()
			f.sends = append(f.sends, map[string]string{
				"chat_id":    r.PostForm.Get("chat_id"),
				"text":       r.PostForm.Get("text"),
				"parse_mode": r.PostForm.Get("parse_mode"),
			})
			status := http.StatusOK
			if len(f.statuses) > 0 {
				status = f.statuses[len(f.statuses)-1]
				if n < len(f.statuses) {
					status = f.statuses[n]
				}
			}
			f.mu.Unlock()
			if status == http.StatusOK {
				fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":42,"type":"private"}}}`)
				return
			}
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"ok":false,"error_code":%d,"description":"status %d"}`, status, status)
		default:
			http.NotFound(w, r)
		}
	}
}

func (f *fakeBotAPI) sent() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.sends...)
}

func newTestNotifier(t *testing.T, api *fakeBotAPI, chatID string) *Notifier {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	n, err := NewNotifier(NotifierConfig{
		BotToken:       "123:test",
		ChatID:         chatID,
		APIEndpoint:    srv.URL + "/bot%s/%s",
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return n
}

func TestNotifier_Send(t *testing.T) {
	api := &fakeBotAPI{}
	n := newTestNotifier(t, api, "42")

	require.NoError(t, n.Send(context.Background(), `*Token:* ABC\.X`))

	sends := api.sent()
	require.Len(t, sends, 1)
	assert.Equal(t, "42", sends[0]["chat_id"])
	assert.Equal(t, `*Token:* ABC\.X`, sends[0]["text"])
	assert.Equal(t, "MarkdownV2", sends[0]["parse_mode"])
}

func TestNotifier_ChannelTarget(t *testing.T) {
	api := &fakeBotAPI{}
	n := newTestNotifier(t, api, "@launch_alerts")

	require.NoError(t, n.Send(context.Background(), "hello"))
	sends := api.sent()
	require.Len(t, sends, 1)
	assert.Equal(t, "@launch_alerts", sends[0]["chat_id"])
}

func TestNotifier_BadChatID(t *testing.T) {
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	_, err := NewNotifier(NotifierConfig{BotToken: "1:x", ChatID: "launch_alerts", APIEndpoint: srv.URL + "/bot%s/%s"})
	assert.Error(t, err)
}

func TestNotifier_ClientErrorIsNotRetried(t *testing.T) {
	api := &fakeBotAPI{statuses: []int{http.StatusBadRequest}}
	n := newTestNotifier(t, api, "42")

	err := n.Send(context.Background(), "broken *markup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), api.attempts.Load())
}

func TestNotifier_ServerErrorRetriedThenSucceeds(t *testing.T) {
	api := &fakeBotAPI{statuses: []int{http.StatusBadGateway, http.StatusOK}}
	n := newTestNotifier(t, api, "42")

	require.NoError(t, n.Send(context.Background(), "hello"))
	assert.Equal(t, int32(2), api.attempts.Load())
}

func TestNotifier_RetriesAreBounded(t *testing.T) {
	api := &fakeBotAPI{statuses: []int{http.StatusInternalServerError}}
	n := newTestNotifier(t, api, "42")

	err := n.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, int32(3), api.attempts.Load(), "one attempt plus two retries")
}

func TestResolveChannel(t *testing.T) {
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	feed, err := NewChannelFeed("456:listener", srv.URL+"/bot%s/%s", 1)
	require.NoError(t, err)

	for _, name := range []string{"firstledger_launches", "@firstledger_launches", " firstledger_launches "} {
		id, err := feed.ResolveChannel(name)
		require.NoError(t, err)
		assert.Equal(t, int64(-1001234567890), id)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []string{"@firstledger_launches", "@firstledger_launches", "@firstledger_launches"}, api.chatLookups)
}

func TestInboundFromUpdate(t *testing.T) {
	chat := &tgbotapi.Chat{ID: -1001234567890, Type: "channel"}

	msg, ok := inboundFromUpdate(tgbotapi.Update{ChannelPost: &tgbotapi.Message{Chat: chat, Text: "📈 ABC", Date: 1700000000}})
	require.True(t, ok)
	assert.Equal(t, int64(-1001234567890), msg.ChatID)
	assert.Equal(t, "📈 ABC", msg.Text)
	assert.Equal(t, time.Unix(1700000000, 0), msg.ReceivedAt)

	msg, ok = inboundFromUpdate(tgbotapi.Update{ChannelPost: &tgbotapi.Message{Chat: chat, Caption: "Supply: 10"}})
	require.True(t, ok)
	assert.Equal(t, "Supply: 10", msg.Text)

	_, ok = inboundFromUpdate(tgbotapi.Update{ChannelPost: &tgbotapi.Message{Chat: chat}})
	assert.False(t, ok, "no text and no caption")

	_, ok = inboundFromUpdate(tgbotapi.Update{})
	assert.False(t, ok)

	msg, ok = inboundFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 5}, Text: "hi"}})
	require.True(t, ok)
	assert.Equal(t, int64(5), msg.ChatID)
}
