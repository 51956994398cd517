// Package ai provides the optional model-completion capability. Tools that
// need a model degrade gracefully when no API key is configured.
package ai

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"codewarden/internal/apperr"
	"codewarden/internal/logging"
)

const defaultModel = "claude-sonnet-4-5"

// Capability is the minimal completion surface the tools use.
type Capability interface {
	// Complete returns the model's text answer for prompt.
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	// Available reports whether completions can succeed.
	Available() bool
}

// FromKey selects the implementation: a real client when a key is configured,
// otherwise the null capability.
func FromKey(apiKey string) Capability {
	if apiKey == "" {
		return Null{}
	}
	return NewAnthropic(apiKey)
}

// Null is the no-model fallback. Every completion fails with Unavailable.
type Null struct{}

func (Null) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return "", apperr.New(apperr.KindUnavailable, "no model configured; set ANTHROPIC_API_KEY")
}

func (Null) Available() bool { return false }

// Anthropic completes prompts through the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropic builds a client for the given key.
func NewAnthropic(apiKey string) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(defaultModel),
	}
}

func (a *Anthropic) Available() bool { return true }

func (a *Anthropic) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	timer := logging.StartTimer(logging.CategoryTools, "ai.Complete")
	defer timer.StopWithThreshold(2000)

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindUnavailable, err, "model completion failed")
	}
	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}
