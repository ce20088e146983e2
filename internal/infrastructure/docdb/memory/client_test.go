package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsbridge/control-service/internal/core/docdb"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/infrastructure/docdb/memory"
)

func TestProviders_ListInCreationOrderAndFiltersInactive(t *testing.T) {
	// Arrange
	ctx := context.Background()
	client := memory.NewClient()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, client.Providers().Create(ctx, &models.Provider{ID: "b", Name: "second", IsActive: true, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, client.Providers().Create(ctx, &models.Provider{ID: "a", Name: "first", IsActive: true, CreatedAt: base}))
	require.NoError(t, client.Providers().Create(ctx, &models.Provider{ID: "c", Name: "off", IsActive: false, CreatedAt: base}))

	// Act
	active, err := client.Providers().List(ctx, &docdb.ListProvidersOptions{ActiveOnly: true})

	// Assert
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "b", active[1].ID)
}

func TestProviders_GetReturnsCopyWithCredential(t *testing.T) {
	ctx := context.Background()
	client := memory.NewClient()
	require.NoError(t, client.Providers().Create(ctx, &models.Provider{ID: "p1", APIKey: "sealed"}))

	got, err := client.Providers().Get(ctx, "p1")
	require.NoError(t, err)
	got.APIKey = "changed"

	again, err := client.Providers().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "sealed", again.APIKey)

	missing, err := client.Providers().Get(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProviders_UpdateAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	client := memory.NewClient()

	err := client.Providers().Update(ctx, &models.Provider{ID: "ghost"})
	assert.ErrorIs(t, err, docdb.ErrNotFound)

	err = client.Providers().Delete(ctx, "ghost")
	assert.ErrorIs(t, err, docdb.ErrNotFound)
}

func TestPrompts_ListIncludesSystemPrompts(t *testing.T) {
	ctx := context.Background()
	client := memory.NewClient()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, client.Prompts().Create(ctx, &models.Prompt{ID: "sys", Category: models.PromptCategoryGeneral, IsActive: true, CreatedAt: base}))
	require.NoError(t, client.Prompts().Create(ctx, &models.Prompt{ID: "mine", OrganizationID: "org-a", Category: models.PromptCategorySupport, IsActive: true, CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, client.Prompts().Create(ctx, &models.Prompt{ID: "theirs", OrganizationID: "org-b", Category: models.PromptCategorySupport, IsActive: true, CreatedAt: base}))

	withSystem, err := client.Prompts().List(ctx, &docdb.ListPromptsOptions{OrganizationID: "org-a", IncludeSystem: true})
	require.NoError(t, err)
	require.Len(t, withSystem, 2)
	assert.Equal(t, "mine", withSystem[0].ID)
	assert.Equal(t, "sys", withSystem[1].ID)

	support, err := client.Prompts().List(ctx, &docdb.ListPromptsOptions{OrganizationID: "org-a", IncludeSystem: true, Category: models.PromptCategorySupport})
	require.NoError(t, err)
	require.Len(t, support, 1)
	assert.Equal(t, "mine", support[0].ID)
}

func TestUsage_SaveUpserts(t *testing.T) {
	ctx := context.Background()
	client := memory.NewClient()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	record := models.NewUsageRecord("org-a", now)
	record.Usage.CurrentMonth.Tokens = 42
	require.NoError(t, client.Usage().Save(ctx, record))

	got, err := client.Usage().Get(ctx, "org-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.Usage.CurrentMonth.Tokens)
	assert.True(t, got.Usage.CurrentMonth.LastUpdated.Equal(now))
}
