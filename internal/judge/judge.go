// Package judge consults an LLM for an advisory second opinion on a
// transcript. The verdict never replaces rule-based scoring; callers log and
// drop judge failures.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hsinlab/cogscreen/internal/model"
)

// Client wraps an OpenAI-compatible chat API.
type Client struct {
	api     *openai.Client
	model   string
	variant Variant
}

// New creates a judge client. An empty baseURL uses the service default.
func New(baseURL, apiKey, modelName string, variant Variant) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: variant,
	}
}

// Ping verifies the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("judge health check: %w", err)
	}
	return nil
}

// Judge evaluates a transcript against the expanded expected answers and
// returns the structured verdict.
func (c *Client) Judge(ctx context.Context, transcript string, expected []string, ruleType model.RuleType) (*model.JudgeVerdict, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: BuildSystemPrompt(c.variant)},
			{Role: openai.ChatMessageRoleUser, Content: BuildUserPrompt(transcript, expected, ruleType)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("judge API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("judge returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("judge response", "raw", raw)

	var verdict model.JudgeVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("parse judge response: %w (raw: %s)", err, raw)
	}
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}
	return &verdict, nil
}
