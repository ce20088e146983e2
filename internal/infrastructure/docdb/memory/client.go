// Package memory provides an in-process document store for local development
// and tests. Documents are stored bson-encoded so reads return the same shapes
// a MongoDB round trip would.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/opsbridge/control-service/internal/core/docdb"
	"github.com/opsbridge/control-service/internal/domain/models"
)

// Client implements the docdb.Client interface in memory.
type Client struct {
	providers *ProvidersCollection
	prompts   *PromptsCollection
	usage     *UsageCollection
}

// NewClient creates an empty in-memory store.
func NewClient() *Client {
	return &Client{
		providers: &ProvidersCollection{store: newStore()},
		prompts:   &PromptsCollection{store: newStore()},
		usage:     &UsageCollection{store: newStore()},
	}
}

// Providers returns the providers collection.
func (c *Client) Providers() docdb.ProvidersCollection { return c.providers }

// Prompts returns the prompts collection.
func (c *Client) Prompts() docdb.PromptsCollection { return c.prompts }

// Usage returns the usage collection.
func (c *Client) Usage() docdb.UsageCollection { return c.usage }

// EnsureIndexes is a no-op.
func (c *Client) EnsureIndexes(ctx context.Context) error { return nil }

// Ping always succeeds.
func (c *Client) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (c *Client) Close(ctx context.Context) error { return nil }

type entry struct {
	seq  uint64
	data []byte
}

// store is a mutex-guarded map of bson documents keyed by id.
type store struct {
	mu   sync.RWMutex
	seq  uint64
	docs map[string]entry
}

func newStore() *store {
	return &store{docs: make(map[string]entry)}
}

func (s *store) insert(id string, doc interface{}) error {
	data, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[id]; exists {
		return fmt.Errorf("duplicate key: %s", id)
	}
	s.seq++
	s.docs[id] = entry{seq: s.seq, data: data}
	return nil
}

func (s *store) replace(id string, doc interface{}, upsert bool) error {
	data, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.docs[id]
	if !ok {
		if !upsert {
			return fmt.Errorf("%s: %w", id, docdb.ErrNotFound)
		}
		s.seq++
		existing.seq = s.seq
	}
	s.docs[id] = entry{seq: existing.seq, data: data}
	return nil
}

func (s *store) get(id string, out interface{}) (bool, error) {
	s.mu.RLock()
	e, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := bson.Unmarshal(e.data, out); err != nil {
		return false, fmt.Errorf("failed to decode document: %w", err)
	}
	return true, nil
}

func (s *store) delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%s: %w", id, docdb.ErrNotFound)
	}
	delete(s.docs, id)
	return nil
}

// snapshot returns the raw documents in insertion order.
func (s *store) snapshot() [][]byte {
	s.mu.RLock()
	entries := make([]entry, 0, len(s.docs))
	for _, e := range s.docs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.data
	}
	return out
}

// ProvidersCollection implements docdb.ProvidersCollection in memory.
type ProvidersCollection struct {
	store *store
}

// Create inserts a new provider.
func (c *ProvidersCollection) Create(ctx context.Context, provider *models.Provider) error {
	if provider.ID == "" {
		return fmt.Errorf("provider ID is required")
	}
	return c.store.insert(provider.ID, provider)
}

// Get retrieves a provider by ID.
func (c *ProvidersCollection) Get(ctx context.Context, id string) (*models.Provider, error) {
	var provider models.Provider
	found, err := c.store.get(id, &provider)
	if err != nil || !found {
		return nil, err
	}
	return &provider, nil
}

// List returns providers ordered by creation time.
func (c *ProvidersCollection) List(ctx context.Context, opts *docdb.ListProvidersOptions) ([]*models.Provider, error) {
	var providers []*models.Provider
	for _, data := range c.store.snapshot() {
		var p models.Provider
		if err := bson.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode provider: %w", err)
		}
		if opts != nil && opts.ActiveOnly && !p.IsActive {
			continue
		}
		providers = append(providers, &p)
	}
	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].CreatedAt.Before(providers[j].CreatedAt)
	})
	return providers, nil
}

// Update replaces an existing provider.
func (c *ProvidersCollection) Update(ctx context.Context, provider *models.Provider) error {
	return c.store.replace(provider.ID, provider, false)
}

// Delete removes a provider by ID.
func (c *ProvidersCollection) Delete(ctx context.Context, id string) error {
	return c.store.delete(id)
}

// EnsureIndexes is a no-op.
func (c *ProvidersCollection) EnsureIndexes(ctx context.Context) error { return nil }

// PromptsCollection implements docdb.PromptsCollection in memory.
type PromptsCollection struct {
	store *store
}

// Create inserts a new prompt.
func (c *PromptsCollection) Create(ctx context.Context, prompt *models.Prompt) error {
	if prompt.ID == "" {
		return fmt.Errorf("prompt ID is required")
	}
	return c.store.insert(prompt.ID, prompt)
}

// Get retrieves a prompt by ID.
func (c *PromptsCollection) Get(ctx context.Context, id string) (*models.Prompt, error) {
	var prompt models.Prompt
	found, err := c.store.get(id, &prompt)
	if err != nil || !found {
		return nil, err
	}
	return &prompt, nil
}

// List retrieves prompts with pagination and filtering.
func (c *PromptsCollection) List(ctx context.Context, opts *docdb.ListPromptsOptions) ([]*models.Prompt, error) {
	if opts == nil {
		opts = &docdb.ListPromptsOptions{}
	}

	var prompts []*models.Prompt
	for _, data := range c.store.snapshot() {
		var p models.Prompt
		if err := bson.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode prompt: %w", err)
		}
		if !matchPrompt(&p, opts) {
			continue
		}
		prompts = append(prompts, &p)
	}

	sort.SliceStable(prompts, func(i, j int) bool {
		if opts.OrderBy == docdb.SortOrderAsc {
			return prompts[i].CreatedAt.Before(prompts[j].CreatedAt)
		}
		return prompts[i].CreatedAt.After(prompts[j].CreatedAt)
	})

	if opts.Skip > 0 {
		if opts.Skip >= int64(len(prompts)) {
			return nil, nil
		}
		prompts = prompts[opts.Skip:]
	}
	if opts.Limit > 0 && int64(len(prompts)) > opts.Limit {
		prompts = prompts[:opts.Limit]
	}
	return prompts, nil
}

func matchPrompt(p *models.Prompt, opts *docdb.ListPromptsOptions) bool {
	if opts.OrganizationID != "" && p.OrganizationID != opts.OrganizationID {
		if !(opts.IncludeSystem && p.IsSystem()) {
			return false
		}
	}
	if opts.Category != "" && p.Category != opts.Category {
		return false
	}
	if opts.ActiveOnly && !p.IsActive {
		return false
	}
	return true
}

// Update replaces an existing prompt.
func (c *PromptsCollection) Update(ctx context.Context, prompt *models.Prompt) error {
	return c.store.replace(prompt.ID, prompt, false)
}

// Delete removes a prompt by ID.
func (c *PromptsCollection) Delete(ctx context.Context, id string) error {
	return c.store.delete(id)
}

// EnsureIndexes is a no-op.
func (c *PromptsCollection) EnsureIndexes(ctx context.Context) error { return nil }

// UsageCollection implements docdb.UsageCollection in memory.
type UsageCollection struct {
	store *store
}

// Get retrieves a tenant's usage record.
func (c *UsageCollection) Get(ctx context.Context, organizationID string) (*models.UsageRecord, error) {
	var record models.UsageRecord
	found, err := c.store.get(organizationID, &record)
	if err != nil || !found {
		return nil, err
	}
	return &record, nil
}

// Save upserts a tenant's usage record.
func (c *UsageCollection) Save(ctx context.Context, record *models.UsageRecord) error {
	if record.OrganizationID == "" {
		return fmt.Errorf("organization ID is required")
	}
	return c.store.replace(record.OrganizationID, record, true)
}
