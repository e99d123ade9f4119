package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dailyfeed/internal/config"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/serviceinterfaces"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

func newObservedLogger() (*observability.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &observability.Logger{Logger: zap.New(core)}, logs
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeMessenger succeeds for every token except those listed in failures,
// which map a token to the error code it gets back
type fakeMessenger struct {
	mu         sync.Mutex
	failures   map[string]string
	batchErrAt map[int]error
	multicasts [][]string
	singles    []string
	seq        int
	// delay is slept before each multicast, outside the lock
	delay time.Duration
	// afterSend runs once a multicast has been answered
	afterSend func(tokens []string)
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{failures: map[string]string{}, batchErrAt: map[int]error{}}
}

func (f *fakeMessenger) Name() string { return "fake" }

func (f *fakeMessenger) SendOne(_ context.Context, token string, _ serviceinterfaces.PushMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singles = append(f.singles, token)
	if code, ok := f.failures[token]; ok {
		return "", &serviceinterfaces.SendError{Code: code, Message: "rejected"}
	}
	f.seq++
	return fmt.Sprintf("msg-%d", f.seq), nil
}

func (f *fakeMessenger) SendMulticast(_ context.Context, tokens []string, _ serviceinterfaces.PushMessage) ([]serviceinterfaces.SendResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.afterSend != nil {
		defer f.afterSend(tokens)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	call := len(f.multicasts)
	f.multicasts = append(f.multicasts, append([]string(nil), tokens...))
	if err, ok := f.batchErrAt[call]; ok {
		return nil, err
	}

	results := make([]serviceinterfaces.SendResult, len(tokens))
	for i, tok := range tokens {
		if code, ok := f.failures[tok]; ok {
			results[i] = serviceinterfaces.SendResult{Token: tok, ErrorCode: code, ErrorMessage: "rejected"}
			continue
		}
		f.seq++
		results[i] = serviceinterfaces.SendResult{Token: tok, Success: true, MessageID: fmt.Sprintf("msg-%d", f.seq)}
	}
	return results, nil
}

func (f *fakeMessenger) multicastCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.multicasts...)
}

func strPtr(s string) *string { return &s }
