package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"dailyfeed/internal/config"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/serviceinterfaces"
	contextutils "dailyfeed/internal/utils"

	"golang.org/x/sync/errgroup"
)

// NewMessenger builds the push gateway selected by push.provider
func NewMessenger(cfg config.PushConfig, logger *observability.Logger) (serviceinterfaces.Messenger, error) {
	switch cfg.Provider {
	case "apns":
		return NewAPNSMessenger(cfg, logger)
	case "telegram":
		return NewTelegramMessenger(cfg, logger)
	case "log", "":
		return NewLogMessenger(logger), nil
	default:
		return nil, contextutils.WrapErrorf(contextutils.ErrConfigInvalid, "unknown push provider %q", cfg.Provider)
	}
}

// fanOut runs send for every token with at most limit in flight. Results keep
// the input order. Only cancellation of ctx fails the whole call.
func fanOut(ctx context.Context, tokens []string, limit int, send func(ctx context.Context, token string) serviceinterfaces.SendResult) ([]serviceinterfaces.SendResult, error) {
	results := make([]serviceinterfaces.SendResult, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, tok := range tokens {
		g.Go(func() error {
			results[i] = send(gctx, tok)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrPushUnavailable, "multicast interrupted: %w", err)
	}
	return results, nil
}

// LogMessenger accepts every message and only logs it. Used in development
// and wherever no real push provider is configured.
type LogMessenger struct {
	logger *observability.Logger
	seq    atomic.Int64
}

var _ serviceinterfaces.Messenger = (*LogMessenger)(nil)

// NewLogMessenger creates a LogMessenger
func NewLogMessenger(logger *observability.Logger) *LogMessenger {
	return &LogMessenger{logger: logger}
}

// Name implements Messenger
func (l *LogMessenger) Name() string { return "log" }

// SendOne implements Messenger
func (l *LogMessenger) SendOne(ctx context.Context, token string, msg serviceinterfaces.PushMessage) (string, error) {
	id := fmt.Sprintf("log-%d", l.seq.Add(1))
	l.logger.Info(ctx, "Notification", map[string]interface{}{
		"token":      redactToken(token),
		"title":      msg.Title,
		"body":       msg.Body,
		"message_id": id,
	})
	return id, nil
}

// SendMulticast implements Messenger
func (l *LogMessenger) SendMulticast(ctx context.Context, tokens []string, msg serviceinterfaces.PushMessage) ([]serviceinterfaces.SendResult, error) {
	results := make([]serviceinterfaces.SendResult, 0, len(tokens))
	for _, tok := range tokens {
		id, _ := l.SendOne(ctx, tok, msg)
		results = append(results, serviceinterfaces.SendResult{Token: tok, Success: true, MessageID: id})
	}
	return results, nil
}
