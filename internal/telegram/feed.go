package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// InboundMessage is one announcement seen by the feed.
type InboundMessage struct {
	ChatID     int64 // stable numeric chat id, e.g. -1001234567890 for channels
	Text       string
	ReceivedAt time.Time
}

// ChannelFeed long-polls the Bot API with the listener session and yields
// channel posts and group messages.
type ChannelFeed struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
}

// NewChannelFeed authenticates the listener session token.
func NewChannelFeed(sessionToken, apiEndpoint string, pollTimeoutS int) (*ChannelFeed, error) {
	if apiEndpoint == "" {
		apiEndpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(sessionToken, apiEndpoint, &http.Client{})
	if err != nil {
		return nil, fmt.Errorf("telegram: start listener session: %w", err)
	}
	log.Info().Str("listener", api.Self.UserName).Msg("telegram listener session started")
	return &ChannelFeed{api: api, pollTimeout: pollTimeoutS}, nil
}

// ResolveChannel looks up the numeric id of a public channel. Names can be
// reassigned, so the publisher filters on the id returned here.
// A bare name is accepted as well as @name.
func (f *ChannelFeed) ResolveChannel(username string) (int64, error) {
	username = channelHandle(username)
	chat, err := f.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: username},
	})
	if err != nil {
		return 0, fmt.Errorf("telegram: resolve channel %s: %w", username, err)
	}
	return chat.ID, nil
}

// channelHandle returns name in the @name form getChat expects.
func channelHandle(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "@") {
		return name
	}
	return "@" + name
}

// Messages starts long polling and returns the inbound stream. The channel is
// closed once ctx is cancelled.
func (f *ChannelFeed) Messages(ctx context.Context) <-chan InboundMessage {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = f.pollTimeout
	updates := f.api.GetUpdatesChan(u)

	out := make(chan InboundMessage, 64)
	go func() {
		defer close(out)
		defer f.api.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				msg, ok := inboundFromUpdate(update)
				if !ok {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// inboundFromUpdate extracts the announcement text and origin of an update.
// Media posts carry their text in the caption.
func inboundFromUpdate(update tgbotapi.Update) (InboundMessage, bool) {
	m := update.ChannelPost
	if m == nil {
		m = update.Message
	}
	if m == nil || m.Chat == nil {
		return InboundMessage{}, false
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if text == "" {
		return InboundMessage{}, false
	}
	received := time.Now()
	if m.Date != 0 {
		received = m.Time()
	}
	return InboundMessage{ChatID: m.Chat.ID, Text: text, ReceivedAt: received}, true
}
