package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type huggingFaceRequest struct {
	Inputs     string                `json:"inputs"`
	Parameters huggingFaceParameters `json:"parameters"`
}

type huggingFaceParameters struct {
	Temperature    float64 `json:"temperature"`
	MaxNewTokens   int     `json:"max_new_tokens"`
	ReturnFullText bool    `json:"return_full_text"`
}

// HuggingFaceAdapter speaks the Hugging Face text-generation inference API.
// The upstream reports no usage, so token counts are estimated.
type HuggingFaceAdapter struct {
	transport
}

// NewHuggingFaceAdapter creates a Hugging Face inference adapter.
func NewHuggingFaceAdapter(httpClient *http.Client) *HuggingFaceAdapter {
	return &HuggingFaceAdapter{transport{name: KindHuggingFace, httpClient: httpClient}}
}

// Kind returns KindHuggingFace.
func (a *HuggingFaceAdapter) Kind() Kind { return KindHuggingFace }

// Complete sends a text-generation request.
func (a *HuggingFaceAdapter) Complete(ctx context.Context, req *Request) (*Completion, error) {
	prompt := req.Prompt
	if req.SystemMessage != "" {
		prompt = req.SystemMessage + "\n\n" + req.Prompt
	}

	body, err := json.Marshal(&huggingFaceRequest{
		Inputs: prompt,
		Parameters: huggingFaceParameters{
			Temperature:  req.Temperature,
			MaxNewTokens: req.MaxTokens,
		},
	})
	if err != nil {
		return nil, err
	}

	data, err := a.post(ctx, req.Endpoint, body, bearer(req.APIKey))
	if err != nil {
		return nil, err
	}

	var resp []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, malformed(KindHuggingFace, err)
	}
	if len(resp) == 0 {
		return nil, malformed(KindHuggingFace, fmt.Errorf("empty generation list"))
	}

	content := resp[0].GeneratedText
	return &Completion{Content: content, Usage: estimatedUsage(prompt, content)}, nil
}
