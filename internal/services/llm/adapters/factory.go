package adapters

import (
	"net/http"
	"time"
)

// DefaultHTTPTimeout bounds a single upstream call when no client is supplied.
const DefaultHTTPTimeout = 60 * time.Second

// Set holds one adapter per kind.
type Set struct {
	adapters map[Kind]Adapter
}

// NewSet creates the adapter for every supported kind over a shared HTTP client.
func NewSet(httpClient *http.Client) *Set {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	s := &Set{adapters: make(map[Kind]Adapter)}
	for _, kind := range []Kind{KindOpenAI, KindDeepInfra, KindGrok, KindAnthropic, KindHuggingFace, KindGeneric} {
		s.adapters[kind] = New(kind, httpClient)
	}
	return s
}

// New creates the adapter for a kind. Unknown kinds get the generic adapter.
func New(kind Kind, httpClient *http.Client) Adapter {
	switch kind {
	case KindOpenAI, KindDeepInfra, KindGrok:
		return NewChatAdapter(kind, httpClient)
	case KindAnthropic:
		return NewAnthropicAdapter(httpClient)
	case KindHuggingFace:
		return NewHuggingFaceAdapter(httpClient)
	default:
		return NewGenericAdapter(httpClient)
	}
}

// For returns the adapter for a kind, falling back to the generic adapter.
func (s *Set) For(kind Kind) Adapter {
	if a, ok := s.adapters[kind]; ok {
		return a
	}
	return s.adapters[KindGeneric]
}
