package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"dailyfeed/internal/config"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/serviceinterfaces"
	contextutils "dailyfeed/internal/utils"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AnthropicClient implements TextGenerator on the Messages API
type AnthropicClient struct {
	client anthropic.Client
	logger *observability.Logger
}

var _ serviceinterfaces.TextGenerator = (*AnthropicClient)(nil)

// NewAnthropicClient creates a client. SDK retries are disabled so the
// answer generator's own retry policy is the only one in effect.
func NewAnthropicClient(cfg config.GenerationConfig, logger *observability.Logger) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
			),
		}),
	}
	if cfg.URL != "" {
		opts = append(opts, option.WithBaseURL(cfg.URL))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		logger: logger,
	}
}

// Complete sends one message and maps SDK errors onto GenerationError
func (c *AnthropicClient) Complete(ctx context.Context, req serviceinterfaces.CompletionRequest) (result *serviceinterfaces.CompletionResult, err error) {
	ctx, span := observability.TraceGatewayFunction(ctx, "anthropic_complete",
		attribute.String("ai.model", req.Model),
		attribute.Int("prompt.length", len(req.UserPrompt)),
	)
	defer observability.FinishSpan(span, &err)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			span.SetAttributes(attribute.Int("http.status_code", apiErr.StatusCode))
			return nil, &serviceinterfaces.GenerationError{
				StatusCode: apiErr.StatusCode,
				Code:       "api_error",
				Message:    truncate(apiErr.Error(), 500),
				Err:        err,
			}
		}
		return nil, &serviceinterfaces.GenerationError{Code: GenerationCodeNetwork, Message: err.Error(), Err: err}
	}

	var text strings.Builder
	for _, block := range msg.Content {
		text.WriteString(block.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, contextutils.WrapError(contextutils.ErrGenerationResponseInvalid, "completion returned no content")
	}

	tokens := int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	span.SetAttributes(attribute.String("call.result", "success"), attribute.Int("usage.total_tokens", tokens))
	return &serviceinterfaces.CompletionResult{
		Text:        text.String(),
		TotalTokens: tokens,
		Model:       string(msg.Model),
	}, nil
}
