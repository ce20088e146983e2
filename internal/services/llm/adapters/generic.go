package adapters

import (
	"context"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// contentPaths are probed in order against an unknown response shape.
var contentPaths = []string{
	"choices.0.message.content",
	"choices.0.text",
	"content",
	"generated_text",
}

// GenericAdapter handles providers of unknown type on a best-effort basis.
type GenericAdapter struct {
	transport
}

// NewGenericAdapter creates the best-effort adapter.
func NewGenericAdapter(httpClient *http.Client) *GenericAdapter {
	return &GenericAdapter{transport{name: KindGeneric, httpClient: httpClient}}
}

// Kind returns KindGeneric.
func (a *GenericAdapter) Kind() Kind { return KindGeneric }

// Complete sends both chat and plain prompt fields and extracts whatever the
// upstream returns.
func (a *GenericAdapter) Complete(ctx context.Context, req *Request) (*Completion, error) {
	body, err := genericPayload(req)
	if err != nil {
		return nil, err
	}

	data, err := a.post(ctx, req.Endpoint, body, bearer(req.APIKey))
	if err != nil {
		return nil, err
	}

	content := extractContent(data)
	return &Completion{Content: content, Usage: extractUsage(data, req.Prompt, content)}, nil
}

func genericPayload(req *Request) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	set := func(path string, value interface{}) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, value)
		}
	}

	set("model", req.Model)
	set("temperature", req.Temperature)
	set("max_tokens", req.MaxTokens)
	set("messages", chatMessages(req))
	if req.SystemMessage == "" {
		set("prompt", req.Prompt)
	}
	return body, err
}

func extractContent(data []byte) string {
	if gjson.ValidBytes(data) {
		for _, path := range contentPaths {
			if r := gjson.GetBytes(data, path); r.Exists() && r.Type == gjson.String {
				return r.String()
			}
		}
		if r := gjson.ParseBytes(data); r.Type == gjson.String {
			return r.String()
		}
	}
	return string(data)
}

func extractUsage(data []byte, prompt, content string) Usage {
	usage := gjson.GetBytes(data, "usage")
	if !usage.Exists() || !usage.IsObject() {
		return estimatedUsage(prompt, content)
	}

	in := firstInt(usage, "prompt_tokens", "input_tokens")
	out := firstInt(usage, "completion_tokens", "output_tokens")
	total := int(usage.Get("total_tokens").Int())
	if total == 0 {
		total = in + out
	}
	return Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: total}
}

func firstInt(obj gjson.Result, keys ...string) int {
	for _, k := range keys {
		if v := obj.Get(k); v.Exists() {
			return int(v.Int())
		}
	}
	return 0
}
