package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
)

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 512

type transport struct {
	name       Kind
	httpClient *http.Client
}

// post sends a JSON body and returns the raw response body of a 2xx reply.
func (t *transport) post(ctx context.Context, endpoint string, body []byte, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domainerrors.NewUpstreamError(string(t.name), fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, domainerrors.NewUpstreamError(string(t.name), fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domainerrors.NewUpstreamError(string(t.name), fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := data
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, domainerrors.NewUpstreamError(string(t.name),
			fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)))
	}
	return data, nil
}

func bearer(apiKey string) map[string]string {
	if apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

func malformed(kind Kind, err error) error {
	return domainerrors.NewUpstreamError(string(kind), fmt.Errorf("malformed response: %w", err))
}
