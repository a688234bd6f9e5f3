package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// NotifierConfig configures the alert sender.
type NotifierConfig struct {
	BotToken       string
	ChatID         string // numeric chat id or @channel username
	APIEndpoint    string // Bot API URL format, e.g. https://api.telegram.org/bot%s/%s
	MaxRetries     int
	InitialBackoff time.Duration
	Timeout        time.Duration
}

// Notifier delivers MarkdownV2 messages to one chat through the Bot API
// sendMessage method.
type Notifier struct {
	api            *tgbotapi.BotAPI
	chatID         int64
	channel        string
	maxRetries     int
	initialBackoff time.Duration
}

// NewNotifier authenticates the bot (getMe) and resolves the chat target.
func NewNotifier(cfg NotifierConfig) (*Notifier, error) {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, cfg.APIEndpoint, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}

	n := &Notifier{
		api:            api,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
	}
	if strings.HasPrefix(cfg.ChatID, "@") {
		n.channel = cfg.ChatID
	} else {
		id, err := strconv.ParseInt(cfg.ChatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram: chat_id %q is neither numeric nor @channel", cfg.ChatID)
		}
		n.chatID = id
	}

	log.Info().Str("bot", api.Self.UserName).Str("chat", cfg.ChatID).Msg("telegram notifier ready")
	return n, nil
}

func (n *Notifier) newMessage(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if n.channel != "" {
		msg = tgbotapi.NewMessageToChannel(n.channel, text)
	} else {
		msg = tgbotapi.NewMessage(n.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true
	return msg
}

// Send delivers text, already formatted as MarkdownV2. Transient failures are
// retried with exponential backoff; the final error is logged and returned.
func (n *Notifier) Send(ctx context.Context, text string) error {
	msg := n.newMessage(text)

	operation := func() error {
		_, err := n.api.Send(msg)
		if err == nil {
			return nil
		}
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
			// Malformed markup, unknown chat or revoked token.
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = n.initialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(n.maxRetries)), ctx)

	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("telegram: send failed, retrying")
	})
	if err != nil {
		evt := log.Error().Err(err)
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			evt = evt.Int("code", apiErr.Code).Str("response", apiErr.Message)
		}
		evt.Msg("telegram: failed to send notification")
		return fmt.Errorf("telegram: send message: %w", err)
	}

	log.Info().Msg("telegram notification sent")
	return nil
}
