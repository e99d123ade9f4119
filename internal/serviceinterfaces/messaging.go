// Package serviceinterfaces defines service interfaces for dependency injection and testing.
package serviceinterfaces

import (
	"context"
)

// Normalized gateway failure codes. Every Messenger maps its provider's
// reasons onto these so the dispatcher never sees provider-specific strings.
const (
	PushErrorInvalidToken = "invalid_token"
	PushErrorUnregistered = "unregistered"
	PushErrorRateLimited  = "rate_limited"
	PushErrorUnavailable  = "unavailable"
	PushErrorSendFailed   = "send_failed"
	PushErrorBatch        = "batch_error"
)

// IsInvalidTokenCode reports whether code means the recipient token should be flagged
func IsInvalidTokenCode(code string) bool {
	return code == PushErrorInvalidToken || code == PushErrorUnregistered
}

// PushMessage is the provider-neutral notification content
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// SendResult is the per-token outcome of a multicast, in input order
type SendResult struct {
	Token        string
	Success      bool
	MessageID    string
	ErrorCode    string
	ErrorMessage string
}

// SendError is returned by SendOne when the gateway refused the message
type SendError struct {
	Code    string
	Message string
}

func (e *SendError) Error() string {
	return e.Code + ": " + e.Message
}

// Messenger defines the push delivery gateway
type Messenger interface {
	// SendOne delivers a single message and returns the provider's message id.
	// Delivery refusals come back as *SendError.
	SendOne(ctx context.Context, token string, msg PushMessage) (string, error)

	// SendMulticast delivers msg to every token and reports one SendResult per token.
	// An error return means the whole call failed and no per-token results exist.
	SendMulticast(ctx context.Context, tokens []string, msg PushMessage) ([]SendResult, error)

	// Name identifies the provider in logs
	Name() string
}
