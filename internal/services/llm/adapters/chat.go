package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ChatAdapter speaks the OpenAI chat-completions format, which DeepInfra and
// Grok also accept.
type ChatAdapter struct {
	transport
}

// NewChatAdapter creates a chat-completions adapter reporting the given kind.
func NewChatAdapter(kind Kind, httpClient *http.Client) *ChatAdapter {
	return &ChatAdapter{transport{name: kind, httpClient: httpClient}}
}

// Kind returns the adapter kind.
func (a *ChatAdapter) Kind() Kind { return a.name }

// Complete sends a chat completion.
func (a *ChatAdapter) Complete(ctx context.Context, req *Request) (*Completion, error) {
	body, err := json.Marshal(&chatRequest{
		Model:       req.Model,
		Messages:    chatMessages(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	data, err := a.post(ctx, req.Endpoint, body, bearer(req.APIKey))
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, malformed(a.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, malformed(a.name, fmt.Errorf("no choices"))
	}

	content := resp.Choices[0].Message.Content
	usage := estimatedUsage(req.Prompt, content)
	if resp.Usage != nil {
		usage = Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
		if usage.TotalTokens == 0 {
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
	}
	return &Completion{Content: content, Usage: usage}, nil
}

func chatMessages(req *Request) []chatMessage {
	messages := make([]chatMessage, 0, 2)
	if req.SystemMessage != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemMessage})
	}
	return append(messages, chatMessage{Role: "user", Content: req.Prompt})
}
