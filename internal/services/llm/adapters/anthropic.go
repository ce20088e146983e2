package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// AnthropicVersion is sent in the anthropic-version header.
const AnthropicVersion = "2023-06-01"

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// AnthropicAdapter speaks the Anthropic messages API.
type AnthropicAdapter struct {
	transport
}

// NewAnthropicAdapter creates an Anthropic messages adapter.
func NewAnthropicAdapter(httpClient *http.Client) *AnthropicAdapter {
	return &AnthropicAdapter{transport{name: KindAnthropic, httpClient: httpClient}}
}

// Kind returns KindAnthropic.
func (a *AnthropicAdapter) Kind() Kind { return KindAnthropic }

// Complete sends a messages request. The system message travels in the
// top-level system field.
func (a *AnthropicAdapter) Complete(ctx context.Context, req *Request) (*Completion, error) {
	body, err := json.Marshal(&anthropicRequest{
		Model:       req.Model,
		System:      req.SystemMessage,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"x-api-key":         req.APIKey,
		"anthropic-version": AnthropicVersion,
	}
	data, err := a.post(ctx, req.Endpoint, body, headers)
	if err != nil {
		return nil, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, malformed(KindAnthropic, err)
	}
	if len(resp.Content) == 0 {
		return nil, malformed(KindAnthropic, fmt.Errorf("no content blocks"))
	}

	return &Completion{
		Content: resp.Content[0].Text,
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}
