package serviceinterfaces

import (
	"context"
	"fmt"
)

// CompletionRequest is one prompt to the text generation gateway
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// CompletionResult is the gateway's answer
type CompletionResult struct {
	Text        string
	TotalTokens int
	Model       string
}

// GenerationError is a gateway failure with the HTTP status when one exists
type GenerationError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("generation failed with status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("generation failed (%s): %s", e.Code, e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// TextGenerator defines the text generation gateway
type TextGenerator interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}
