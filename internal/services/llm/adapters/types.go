// Package adapters translates completion requests into the wire formats of the
// supported upstream LLM APIs.
package adapters

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/opsbridge/control-service/internal/domain/models"
)

// Kind is the closed set of upstream API shapes.
type Kind string

const (
	KindOpenAI      Kind = "openai"
	KindDeepInfra   Kind = "deepinfra"
	KindGrok        Kind = "grok"
	KindAnthropic   Kind = "anthropic"
	KindHuggingFace Kind = "huggingface"
	KindGeneric     Kind = "generic"
)

// KindFor returns the adapter kind for a provider. An explicit type wins;
// otherwise the lowercased provider name is matched, then generic.
func KindFor(p *models.Provider) Kind {
	candidate := string(p.Type)
	if candidate == "" {
		candidate = strings.ToLower(strings.TrimSpace(p.Name))
	}
	switch Kind(candidate) {
	case KindOpenAI, KindDeepInfra, KindGrok, KindAnthropic, KindHuggingFace:
		return Kind(candidate)
	default:
		return KindGeneric
	}
}

// Request is the provider-neutral completion request.
type Request struct {
	Endpoint      string
	APIKey        string
	Model         string
	Prompt        string
	SystemMessage string
	Temperature   float64
	MaxTokens     int
}

// Usage is the token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Completion is the provider-neutral completion result.
type Completion struct {
	Content string
	Usage   Usage
}

// Adapter performs a single completion against one upstream API.
// Implementations never retry; failures surface as UPSTREAM_ERROR.
type Adapter interface {
	Kind() Kind
	Complete(ctx context.Context, req *Request) (*Completion, error)
}

// EstimateTokens approximates a token count as one token per four characters.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / 4))
}

func estimatedUsage(prompt, content string) Usage {
	in := EstimateTokens(prompt)
	out := EstimateTokens(content)
	return Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
}
