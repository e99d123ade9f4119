// Package services implements the daily feed pipeline: the orchestrator,
// the notification dispatcher, the answer generator and their gateways.
package services

import (
	"context"
	"net/http"
	"time"

	"dailyfeed/internal/config"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/serviceinterfaces"
	contextutils "dailyfeed/internal/utils"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"go.opentelemetry.io/otel/attribute"
)

// APNSPusher is the part of *apns2.Client the messenger uses
type APNSPusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// APNSMessenger delivers notifications through Apple Push Notification service
type APNSMessenger struct {
	client      APNSPusher
	topic       string
	concurrency int
	sendTimeout time.Duration
	logger      *observability.Logger
}

var _ serviceinterfaces.Messenger = (*APNSMessenger)(nil)

// NewAPNSMessenger loads the .p8 signing key and creates a token-auth client
func NewAPNSMessenger(cfg config.PushConfig, logger *observability.Logger) (*APNSMessenger, error) {
	if cfg.APNS.KeyPath == "" || cfg.APNS.KeyID == "" || cfg.APNS.TeamID == "" || cfg.APNS.Topic == "" {
		return nil, contextutils.WrapError(contextutils.ErrConfigInvalid, "apns requires key_path, key_id, team_id and topic")
	}

	authKey, err := token.AuthKeyFromFile(cfg.APNS.KeyPath)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrConfigInvalid, "failed to load APNS key from %s: %w", cfg.APNS.KeyPath, err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.APNS.KeyID,
		TeamID:  cfg.APNS.TeamID,
	})
	if cfg.APNS.Production {
		client.Production()
	} else {
		client.Development()
	}

	logger.Info(context.Background(), "APNS messenger initialized", map[string]interface{}{
		"topic":      cfg.APNS.Topic,
		"production": cfg.APNS.Production,
		"key_id":     cfg.APNS.KeyID,
	})

	return newAPNSMessengerWithClient(client, cfg, logger), nil
}

func newAPNSMessengerWithClient(client APNSPusher, cfg config.PushConfig, logger *observability.Logger) *APNSMessenger {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = config.DefaultPushConcurrency
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = config.PushSendTimeout
	}
	return &APNSMessenger{
		client:      client,
		topic:       cfg.APNS.Topic,
		concurrency: concurrency,
		sendTimeout: timeout,
		logger:      logger,
	}
}

// Name implements Messenger
func (a *APNSMessenger) Name() string { return "apns" }

// SendOne implements Messenger
func (a *APNSMessenger) SendOne(ctx context.Context, deviceToken string, msg serviceinterfaces.PushMessage) (messageID string, err error) {
	ctx, span := observability.TraceGatewayFunction(ctx, "apns_send_one",
		attribute.String("device_token", redactToken(deviceToken)),
	)
	defer observability.FinishSpan(span, &err)

	result := a.push(ctx, deviceToken, msg)
	if !result.Success {
		return "", &serviceinterfaces.SendError{Code: result.ErrorCode, Message: result.ErrorMessage}
	}
	span.SetAttributes(attribute.String("apns.apns_id", result.MessageID))
	return result.MessageID, nil
}

// SendMulticast pushes to every token with bounded concurrency. APNs has no
// multicast endpoint so a whole-call error only happens on cancellation.
func (a *APNSMessenger) SendMulticast(ctx context.Context, tokens []string, msg serviceinterfaces.PushMessage) (results []serviceinterfaces.SendResult, err error) {
	ctx, span := observability.TraceGatewayFunction(ctx, "apns_send_multicast",
		attribute.Int("recipients", len(tokens)),
	)
	defer observability.FinishSpan(span, &err)

	return fanOut(ctx, tokens, a.concurrency, func(ctx context.Context, tok string) serviceinterfaces.SendResult {
		return a.push(ctx, tok, msg)
	})
}

func (a *APNSMessenger) push(ctx context.Context, deviceToken string, msg serviceinterfaces.PushMessage) serviceinterfaces.SendResult {
	p := payload.NewPayload().AlertTitle(msg.Title).AlertBody(msg.Body).Sound("default")
	for k, v := range msg.Data {
		p.Custom(k, v)
	}

	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       a.topic,
		Payload:     p,
		Priority:    apns2.PriorityHigh,
		PushType:    apns2.PushTypeAlert,
	}

	sendCtx, cancel := context.WithTimeout(ctx, a.sendTimeout)
	defer cancel()

	res, err := a.client.PushWithContext(sendCtx, notification)
	if err != nil {
		a.logger.Warn(ctx, "APNS push failed", map[string]interface{}{
			"device_token": redactToken(deviceToken),
			"error":        err.Error(),
		})
		return serviceinterfaces.SendResult{
			Token:        deviceToken,
			ErrorCode:    serviceinterfaces.PushErrorUnavailable,
			ErrorMessage: err.Error(),
		}
	}

	if !res.Sent() {
		code := apnsReasonCode(res.StatusCode, res.Reason)
		a.logger.Warn(ctx, "APNS notification rejected", map[string]interface{}{
			"device_token": redactToken(deviceToken),
			"status_code":  res.StatusCode,
			"reason":       res.Reason,
			"code":         code,
		})
		return serviceinterfaces.SendResult{
			Token:        deviceToken,
			ErrorCode:    code,
			ErrorMessage: res.Reason,
		}
	}

	return serviceinterfaces.SendResult{Token: deviceToken, Success: true, MessageID: res.ApnsID}
}

// apnsReasonCode maps APNs rejection reasons onto the gateway-neutral codes
func apnsReasonCode(status int, reason string) string {
	switch reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonDeviceTokenNotForTopic, apns2.ReasonMissingDeviceToken:
		return serviceinterfaces.PushErrorInvalidToken
	case apns2.ReasonUnregistered:
		return serviceinterfaces.PushErrorUnregistered
	case apns2.ReasonTooManyRequests:
		return serviceinterfaces.PushErrorRateLimited
	}
	switch {
	case status == http.StatusGone:
		return serviceinterfaces.PushErrorUnregistered
	case status == http.StatusTooManyRequests:
		return serviceinterfaces.PushErrorRateLimited
	case status >= 500:
		return serviceinterfaces.PushErrorUnavailable
	}
	return serviceinterfaces.PushErrorSendFailed
}

// redactToken keeps only a short prefix of a push token for logs
func redactToken(tok string) string {
	if len(tok) <= 8 {
		return "***"
	}
	return tok[:8] + "..."
}
