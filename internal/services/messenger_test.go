package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"dailyfeed/internal/config"
	"dailyfeed/internal/serviceinterfaces"
	contextutils "dailyfeed/internal/utils"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	mu        sync.Mutex
	responses map[string]*apns2.Response
	errs      map[string]error
	pushed    []*apns2.Notification
}

func (f *fakePusher) PushWithContext(_ apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, n)
	if err, ok := f.errs[n.DeviceToken]; ok {
		return nil, err
	}
	if res, ok := f.responses[n.DeviceToken]; ok {
		return res, nil
	}
	return &apns2.Response{StatusCode: http.StatusOK, ApnsID: "id-" + n.DeviceToken}, nil
}

func testPushConfig() config.PushConfig {
	return config.PushConfig{
		BatchSize:   500,
		Concurrency: 4,
		SendTimeout: time.Second,
		APNS:        config.APNSConfig{Topic: "com.example.dailyfeed"},
	}
}

func TestAPNSMessenger_SendMulticastKeepsOrder(t *testing.T) {
	pusher := &fakePusher{
		responses: map[string]*apns2.Response{
			"tok-bad":  {StatusCode: http.StatusBadRequest, Reason: apns2.ReasonBadDeviceToken},
			"tok-gone": {StatusCode: http.StatusGone, Reason: apns2.ReasonUnregistered},
		},
		errs: map[string]error{"tok-down": errors.New("connection refused")},
	}
	m := newAPNSMessengerWithClient(pusher, testPushConfig(), newTestLogger())

	tokens := []string{"tok-1", "tok-bad", "tok-2", "tok-gone", "tok-down"}
	results, err := m.SendMulticast(context.Background(), tokens, serviceinterfaces.PushMessage{
		Title: "Daily Go question",
		Body:  "What is a slice?",
		Data:  map[string]string{"selectionId": "7"},
	})
	require.NoError(t, err)
	require.Len(t, results, len(tokens))

	for i, tok := range tokens {
		assert.Equal(t, tok, results[i].Token)
	}
	assert.True(t, results[0].Success)
	assert.Equal(t, "id-tok-1", results[0].MessageID)
	assert.Equal(t, serviceinterfaces.PushErrorInvalidToken, results[1].ErrorCode)
	assert.True(t, results[2].Success)
	assert.Equal(t, serviceinterfaces.PushErrorUnregistered, results[3].ErrorCode)
	assert.Equal(t, serviceinterfaces.PushErrorUnavailable, results[4].ErrorCode)

	require.Len(t, pusher.pushed, len(tokens))
	assert.Equal(t, "com.example.dailyfeed", pusher.pushed[0].Topic)
}

func TestAPNSMessenger_SendOneReturnsSendError(t *testing.T) {
	pusher := &fakePusher{responses: map[string]*apns2.Response{
		"tok-bad": {StatusCode: http.StatusBadRequest, Reason: apns2.ReasonDeviceTokenNotForTopic},
	}}
	m := newAPNSMessengerWithClient(pusher, testPushConfig(), newTestLogger())

	id, err := m.SendOne(context.Background(), "tok-ok", serviceinterfaces.PushMessage{Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, "id-tok-ok", id)

	_, err = m.SendOne(context.Background(), "tok-bad", serviceinterfaces.PushMessage{Title: "t"})
	var sendErr *serviceinterfaces.SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, serviceinterfaces.PushErrorInvalidToken, sendErr.Code)
	assert.Equal(t, "invalid_token: DeviceTokenNotForTopic", sendErr.Error())
}

func TestAPNSReasonCode(t *testing.T) {
	assert.Equal(t, serviceinterfaces.PushErrorInvalidToken, apnsReasonCode(400, apns2.ReasonMissingDeviceToken))
	assert.Equal(t, serviceinterfaces.PushErrorRateLimited, apnsReasonCode(429, apns2.ReasonTooManyRequests))
	assert.Equal(t, serviceinterfaces.PushErrorUnavailable, apnsReasonCode(503, "ServiceUnavailable"))
	assert.Equal(t, serviceinterfaces.PushErrorSendFailed, apnsReasonCode(400, "PayloadTooLarge"))
	assert.Equal(t, serviceinterfaces.PushErrorUnregistered, apnsReasonCode(410, ""))
}

func TestAPNSMessenger_CancelledMulticastFails(t *testing.T) {
	m := newAPNSMessengerWithClient(&fakePusher{}, testPushConfig(), newTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.SendMulticast(ctx, []string{"a", "b"}, serviceinterfaces.PushMessage{})
	require.Error(t, err)
	assert.Equal(t, contextutils.KindTransientExternal, contextutils.KindOf(err))
}

type fakeTelegramSender struct {
	mu   sync.Mutex
	errs map[any]error
	sent []*bot.SendMessageParams
}

func (f *fakeTelegramSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, params)
	if err, ok := f.errs[params.ChatID]; ok {
		return nil, err
	}
	return &tgmodels.Message{ID: len(f.sent)}, nil
}

func TestTelegramMessenger_SendMulticast(t *testing.T) {
	sender := &fakeTelegramSender{errs: map[any]error{
		int64(200): fmt.Errorf("%w, %s", bot.ErrorForbidden, "bot was blocked by the user"),
		int64(300): fmt.Errorf("%w, %s", bot.ErrorBadRequest, "Bad Request: chat not found"),
		int64(400): &bot.TooManyRequestsError{Message: "Too Many Requests", RetryAfter: 3},
	}}
	m := newTelegramMessengerWithSender(sender, testPushConfig(), newTestLogger())

	results, err := m.SendMulticast(context.Background(), []string{"100", "200", "300", "400", "@channel"},
		serviceinterfaces.PushMessage{Title: "Daily Go question", Body: "What is a map?"})
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.True(t, results[0].Success)
	assert.Equal(t, serviceinterfaces.PushErrorUnregistered, results[1].ErrorCode)
	assert.Equal(t, serviceinterfaces.PushErrorInvalidToken, results[2].ErrorCode)
	assert.Equal(t, serviceinterfaces.PushErrorRateLimited, results[3].ErrorCode)
	assert.True(t, results[4].Success)

	var channelMsg *bot.SendMessageParams
	for _, p := range sender.sent {
		if p.ChatID == "@channel" {
			channelMsg = p
		}
	}
	require.NotNil(t, channelMsg)
	assert.Equal(t, "Daily Go question\n\nWhat is a map?", channelMsg.Text)
}

func TestNewMessenger(t *testing.T) {
	m, err := NewMessenger(config.PushConfig{Provider: "log"}, newTestLogger())
	require.NoError(t, err)
	assert.Equal(t, "log", m.Name())

	_, err = NewMessenger(config.PushConfig{Provider: "pigeon"}, newTestLogger())
	require.Error(t, err)

	_, err = NewMessenger(config.PushConfig{Provider: "apns"}, newTestLogger())
	require.Error(t, err)
	assert.Equal(t, contextutils.ErrorCodeConfigInvalid, contextutils.GetErrorCode(err))
}

func TestLogMessenger_AcceptsEverything(t *testing.T) {
	m := NewLogMessenger(newTestLogger())
	results, err := m.SendMulticast(context.Background(), []string{"a", "b"}, serviceinterfaces.PushMessage{Title: "t"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.NotEqual(t, results[0].MessageID, results[1].MessageID)
}
