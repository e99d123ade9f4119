package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"dailyfeed/internal/config"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/serviceinterfaces"
	contextutils "dailyfeed/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultOpenAIURL is used when generation.url is empty
const DefaultOpenAIURL = "https://api.openai.com/v1"

// GenerationCodeNetwork marks a failure that never produced an HTTP response
const GenerationCodeNetwork = "network_error"

// Message is one chat message in an OpenAI-compatible request
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIRequest is the chat completions request body
type OpenAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// OpenAIResponse is the subset of the chat completions response that is read
type OpenAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *OpenAIError `json:"error,omitempty"`
}

// OpenAIError is the error object returned by OpenAI-compatible APIs
type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// OpenAIClient talks to any OpenAI-compatible /chat/completions endpoint
type OpenAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *observability.Logger
}

var _ serviceinterfaces.TextGenerator = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client with an otelhttp-instrumented transport.
// The per-request deadline comes from the caller's context.
func NewOpenAIClient(cfg config.GenerationConfig, logger *observability.Logger) *OpenAIClient {
	baseURL := strings.TrimRight(cfg.URL, "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	return &OpenAIClient{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
			),
		},
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

// Complete sends one chat completion. HTTP failures come back as
// *GenerationError carrying the status code; transport failures carry
// GenerationCodeNetwork and wrap the original error.
func (c *OpenAIClient) Complete(ctx context.Context, req serviceinterfaces.CompletionRequest) (result *serviceinterfaces.CompletionResult, err error) {
	ctx, span := observability.TraceGatewayFunction(ctx, "openai_complete",
		attribute.String("ai.model", req.Model),
		attribute.Int("prompt.length", len(req.UserPrompt)),
	)
	defer observability.FinishSpan(span, &err)

	messages := []Message{}
	if req.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: req.UserPrompt})

	jsonData, err := json.Marshal(OpenAIRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to marshal request body")
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to create HTTP request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "dailyfeed/1.0")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(startTime)
	if err != nil {
		span.SetAttributes(attribute.String("call.result", "http_request_failed"))
		return nil, &serviceinterfaces.GenerationError{Code: GenerationCodeNetwork, Message: err.Error(), Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode), attribute.String("duration", duration.String()))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &serviceinterfaces.GenerationError{StatusCode: resp.StatusCode, Code: GenerationCodeNetwork, Message: err.Error(), Err: err}
	}

	var parsed OpenAIResponse
	parseErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK {
		genErr := &serviceinterfaces.GenerationError{StatusCode: resp.StatusCode, Code: "http_error", Message: truncate(string(body), 500)}
		if parseErr == nil && parsed.Error != nil {
			genErr.Code = parsed.Error.Type
			genErr.Message = parsed.Error.Message
		}
		span.SetAttributes(attribute.String("call.result", "http_error"))
		return nil, genErr
	}

	if parseErr != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrGenerationResponseInvalid, "failed to parse completion response: %w", parseErr)
	}
	if parsed.Error != nil {
		return nil, &serviceinterfaces.GenerationError{StatusCode: resp.StatusCode, Code: parsed.Error.Type, Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return nil, contextutils.WrapError(contextutils.ErrGenerationResponseInvalid, "completion returned no content")
	}

	model := parsed.Model
	if model == "" {
		model = req.Model
	}

	span.SetAttributes(attribute.String("call.result", "success"), attribute.Int("usage.total_tokens", parsed.Usage.TotalTokens))
	return &serviceinterfaces.CompletionResult{
		Text:        parsed.Choices[0].Message.Content,
		TotalTokens: parsed.Usage.TotalTokens,
		Model:       model,
	}, nil
}

// truncate shortens s to at most n runes, appending "..." when cut
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
