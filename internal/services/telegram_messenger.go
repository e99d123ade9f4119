package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"dailyfeed/internal/config"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/serviceinterfaces"
	contextutils "dailyfeed/internal/utils"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.opentelemetry.io/otel/attribute"
)

// TelegramSender is the part of *bot.Bot the messenger uses
type TelegramSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramMessenger delivers notifications as bot messages. A user's push
// token is their chat id.
type TelegramMessenger struct {
	sender      TelegramSender
	concurrency int
	sendTimeout time.Duration
	logger      *observability.Logger
}

var _ serviceinterfaces.Messenger = (*TelegramMessenger)(nil)

// NewTelegramMessenger creates a bot client without the startup getMe call
func NewTelegramMessenger(cfg config.PushConfig, logger *observability.Logger) (*TelegramMessenger, error) {
	if cfg.Telegram.Token == "" {
		return nil, contextutils.WrapError(contextutils.ErrConfigInvalid, "telegram token is required")
	}
	b, err := bot.New(cfg.Telegram.Token, bot.WithSkipGetMe())
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrConfigInvalid, "failed to create telegram bot: %w", err)
	}
	return newTelegramMessengerWithSender(b, cfg, logger), nil
}

func newTelegramMessengerWithSender(sender TelegramSender, cfg config.PushConfig, logger *observability.Logger) *TelegramMessenger {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = config.DefaultPushConcurrency
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = config.PushSendTimeout
	}
	return &TelegramMessenger{
		sender:      sender,
		concurrency: concurrency,
		sendTimeout: timeout,
		logger:      logger,
	}
}

// Name implements Messenger
func (t *TelegramMessenger) Name() string { return "telegram" }

// SendOne implements Messenger
func (t *TelegramMessenger) SendOne(ctx context.Context, chatID string, msg serviceinterfaces.PushMessage) (messageID string, err error) {
	ctx, span := observability.TraceGatewayFunction(ctx, "telegram_send_one")
	defer observability.FinishSpan(span, &err)

	result := t.send(ctx, chatID, msg)
	if !result.Success {
		return "", &serviceinterfaces.SendError{Code: result.ErrorCode, Message: result.ErrorMessage}
	}
	return result.MessageID, nil
}

// SendMulticast implements Messenger
func (t *TelegramMessenger) SendMulticast(ctx context.Context, chatIDs []string, msg serviceinterfaces.PushMessage) (results []serviceinterfaces.SendResult, err error) {
	ctx, span := observability.TraceGatewayFunction(ctx, "telegram_send_multicast",
		attribute.Int("recipients", len(chatIDs)),
	)
	defer observability.FinishSpan(span, &err)

	return fanOut(ctx, chatIDs, t.concurrency, func(ctx context.Context, chatID string) serviceinterfaces.SendResult {
		return t.send(ctx, chatID, msg)
	})
}

func (t *TelegramMessenger) send(ctx context.Context, chatID string, msg serviceinterfaces.PushMessage) serviceinterfaces.SendResult {
	sendCtx, cancel := context.WithTimeout(ctx, t.sendTimeout)
	defer cancel()

	text := msg.Title
	if msg.Body != "" {
		text += "\n\n" + msg.Body
	}

	sent, err := t.sender.SendMessage(sendCtx, &bot.SendMessageParams{
		ChatID: telegramChatID(chatID),
		Text:   text,
	})
	if err != nil {
		code := telegramErrorCode(err)
		t.logger.Warn(ctx, "Telegram send failed", map[string]interface{}{
			"chat_id": redactToken(chatID),
			"code":    code,
			"error":   err.Error(),
		})
		return serviceinterfaces.SendResult{Token: chatID, ErrorCode: code, ErrorMessage: err.Error()}
	}
	return serviceinterfaces.SendResult{Token: chatID, Success: true, MessageID: strconv.Itoa(sent.ID)}
}

// telegramChatID passes numeric ids as int64 and @channel names as strings
func telegramChatID(token string) any {
	if id, err := strconv.ParseInt(token, 10, 64); err == nil {
		return id
	}
	return token
}

func telegramErrorCode(err error) string {
	var tooMany *bot.TooManyRequestsError
	switch {
	case errors.As(err, &tooMany):
		return serviceinterfaces.PushErrorRateLimited
	case errors.Is(err, bot.ErrorForbidden):
		// bot blocked or user deactivated
		return serviceinterfaces.PushErrorUnregistered
	case errors.Is(err, bot.ErrorBadRequest):
		if strings.Contains(strings.ToLower(err.Error()), "chat not found") {
			return serviceinterfaces.PushErrorInvalidToken
		}
		return serviceinterfaces.PushErrorSendFailed
	}
	return serviceinterfaces.PushErrorUnavailable
}
