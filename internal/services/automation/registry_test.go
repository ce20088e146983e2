package automation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/opsbridge/control-service/internal/core/events"
	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/domain/models"
	rediscache "github.com/opsbridge/control-service/internal/infrastructure/cache/redis"
	"github.com/opsbridge/control-service/internal/pkg/clock"
	"github.com/opsbridge/control-service/internal/pkg/encryption"
	"github.com/opsbridge/control-service/internal/services/automation"
	"github.com/opsbridge/control-service/tests/mocks"
)

func newRegistry(t *testing.T, publisher events.Publisher) (*automation.Registry, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
	reg, err := automation.NewRegistry(&automation.Config{Publisher: publisher, Clock: clk})
	require.NoError(t, err)
	return reg, clk
}

func start(t *testing.T, reg *automation.Registry, id, org string) {
	t.Helper()
	_, err := reg.Start(context.Background(), &automation.StartRequest{ID: id, Name: "deploy", OrganizationID: org, UserID: "u1"})
	require.NoError(t, err)
}

func TestStart_ConflictOnDuplicateID(t *testing.T) {
	// Arrange
	reg, _ := newRegistry(t, nil)
	start(t, reg, "s1", "org-a")

	// Act
	_, err := reg.Start(context.Background(), &automation.StartRequest{ID: "s1", Name: "again", OrganizationID: "org-a"})

	// Assert
	assert.True(t, domainerrors.IsConflict(err))
}

func TestStart_Validation(t *testing.T) {
	reg, _ := newRegistry(t, nil)

	_, err := reg.Start(context.Background(), &automation.StartRequest{Name: "x"})
	assert.True(t, domainerrors.IsValidationError(err))

	s, err := reg.Start(context.Background(), &automation.StartRequest{Name: "x", OrganizationID: "org-a"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, models.SessionStatusStarting, s.Status)
}

func TestUpdate_MergesProvidedFields(t *testing.T) {
	// Arrange
	reg, _ := newRegistry(t, nil)
	start(t, reg, "s1", "org-a")
	status := models.SessionStatusRunning
	progress := 40

	// Act
	s, err := reg.Update(context.Background(), "s1", &models.SessionUpdate{Status: &status, Progress: &progress, LogMessage: "cloning"})
	require.NoError(t, err)
	step := "build"
	s, err = reg.Update(context.Background(), "s1", &models.SessionUpdate{CurrentStep: &step})
	require.NoError(t, err)

	// Assert
	assert.Equal(t, models.SessionStatusRunning, s.Status)
	assert.Equal(t, 40, s.Progress)
	assert.Equal(t, "build", s.CurrentStep)
	require.Len(t, s.Logs, 1)
	assert.Equal(t, models.LogLevelInfo, s.Logs[0].Level)
}

func TestUpdate_Errors(t *testing.T) {
	reg, _ := newRegistry(t, nil)
	start(t, reg, "s1", "org-a")

	_, err := reg.Update(context.Background(), "ghost", &models.SessionUpdate{LogMessage: "x"})
	assert.True(t, domainerrors.IsNotFound(err))

	bad := 101
	_, err = reg.Update(context.Background(), "s1", &models.SessionUpdate{Progress: &bad})
	assert.True(t, domainerrors.IsValidationError(err))

	status := models.SessionStatus("paused")
	_, err = reg.Update(context.Background(), "s1", &models.SessionUpdate{Status: &status})
	assert.True(t, domainerrors.IsValidationError(err))
}

func TestUpdate_LogRingBufferKeepsLast100InOrder(t *testing.T) {
	// Arrange
	reg, _ := newRegistry(t, nil)
	start(t, reg, "s1", "org-a")
	var last *models.AutomationSession

	// Act
	for i := 0; i < 150; i++ {
		s, err := reg.Update(context.Background(), "s1", &models.SessionUpdate{LogMessage: fmt.Sprintf("line %d", i)})
		require.NoError(t, err)
		last = s
	}

	// Assert
	require.Len(t, last.Logs, models.SessionLogCapacity)
	assert.Equal(t, "line 50", last.Logs[0].Message)
	assert.Equal(t, "line 149", last.Logs[99].Message)

	snapshot, err := reg.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, snapshot.Logs, automation.SnapshotLogCount)
	assert.Equal(t, "line 140", snapshot.Logs[0].Message)
}

func TestEnd_RetentionThenRemoval(t *testing.T) {
	// Arrange
	reg, clk := newRegistry(t, nil)
	ctx := context.Background()
	start(t, reg, "ok", "org-a")
	start(t, reg, "bad", "org-a")

	// Act
	done, err := reg.End(ctx, "ok", &models.SessionResult{Success: true})
	require.NoError(t, err)
	failed, err := reg.End(ctx, "bad", &models.SessionResult{Success: false, Error: "disk full"})
	require.NoError(t, err)

	// Assert
	assert.Equal(t, models.SessionStatusCompleted, done.Status)
	assert.NotNil(t, done.EndTime)
	assert.Equal(t, models.SessionStatusFailed, failed.Status)
	assert.Equal(t, "Session failed: disk full", failed.Logs[len(failed.Logs)-1].Message)
	assert.Equal(t, 0, reg.ActiveCount())

	clk.Advance(59 * time.Minute)
	assert.Equal(t, 0, reg.SweepExpired(ctx))
	_, err = reg.Get(ctx, "ok")
	assert.NoError(t, err)

	clk.Advance(time.Minute)
	assert.Equal(t, 2, reg.SweepExpired(ctx))
	_, err = reg.Get(ctx, "ok")
	assert.True(t, domainerrors.IsNotFound(err))

	_, err = reg.End(ctx, "ok", nil)
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestUpdate_StoppedStatusStartsRetention(t *testing.T) {
	reg, clk := newRegistry(t, nil)
	ctx := context.Background()
	start(t, reg, "s1", "org-a")
	stopped := models.SessionStatusStopped

	s, err := reg.Update(ctx, "s1", &models.SessionUpdate{Status: &stopped, LogMessage: "cancelled by operator"})
	require.NoError(t, err)

	assert.NotNil(t, s.EndTime)
	assert.Equal(t, 0, reg.ActiveCount())
	clk.Advance(time.Hour)
	assert.Equal(t, 1, reg.SweepExpired(ctx))
}

func TestUpdate_TerminalStatusCannotBeReopened(t *testing.T) {
	// Arrange
	reg, clk := newRegistry(t, nil)
	ctx := context.Background()
	start(t, reg, "s1", "org-a")
	stopped, running := models.SessionStatusStopped, models.SessionStatusRunning
	_, err := reg.Update(ctx, "s1", &models.SessionUpdate{Status: &stopped})
	require.NoError(t, err)

	// Act
	_, err = reg.Update(ctx, "s1", &models.SessionUpdate{Status: &running})

	// Assert
	assert.True(t, domainerrors.IsConflict(err))
	s, err := reg.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusStopped, s.Status)
	assert.NotNil(t, s.EndTime)
	clk.Advance(time.Hour)
	assert.Equal(t, 1, reg.SweepExpired(ctx))
}

// slowPublisher stalls on each delivery and keeps the last progress seen per
// session key.
type slowPublisher struct {
	mu    sync.Mutex
	calls int
	last  map[string]interface{}
}

func (p *slowPublisher) PublishEvent(topic string, params events.Params, data interface{}) int {
	p.mu.Lock()
	p.calls++
	delay := time.Duration(p.calls%4) * time.Millisecond
	p.mu.Unlock()
	time.Sleep(delay)

	if id := params["sessionId"]; id != "" {
		p.mu.Lock()
		p.last[id] = data.(map[string]interface{})["progress"]
		p.mu.Unlock()
	}
	return 1
}

func TestUpdate_ConcurrentEventsEndOnLatestState(t *testing.T) {
	// Arrange
	publisher := &slowPublisher{last: map[string]interface{}{}}
	reg, _ := newRegistry(t, publisher)
	ctx := context.Background()
	start(t, reg, "s1", "org-a")

	// Act
	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(progress int) {
			defer wg.Done()
			_, _ = reg.Update(ctx, "s1", &models.SessionUpdate{Progress: &progress})
		}(i * 5)
	}
	wg.Wait()

	// Assert
	s, err := reg.Get(ctx, "s1")
	require.NoError(t, err)
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	assert.Equal(t, s.Progress, publisher.last["s1"])
}

func TestPublish_FansOutToSessionAndTenantKeys(t *testing.T) {
	// Arrange
	publisher := &mocks.MockPublisher{}
	sessionKey := events.Params{"organizationId": "org-a", "sessionId": "s1"}
	tenantKey := events.Params{"organizationId": "org-a"}
	publisher.On("PublishEvent", events.TopicAutomation, sessionKey, mock.Anything).Return(1)
	publisher.On("PublishEvent", events.TopicAutomation, tenantKey, mock.Anything).Return(1)
	reg, _ := newRegistry(t, publisher)
	start(t, reg, "s1", "org-a")
	progress := 50

	// Act
	_, err := reg.Update(context.Background(), "s1", &models.SessionUpdate{Progress: &progress, LogMessage: "halfway"})
	require.NoError(t, err)

	// Assert
	publisher.AssertNumberOfCalls(t, "PublishEvent", 4)
	publisher.AssertCalled(t, "PublishEvent", events.TopicAutomation, tenantKey, mock.MatchedBy(func(data map[string]interface{}) bool {
		entry, ok := data["log"].(*models.SessionLogEntry)
		return data["event"] == events.SessionUpdated && data["progress"] == 50 && ok && entry.Message == "halfway"
	}))
}

func TestState_ScopedToTenant(t *testing.T) {
	reg, _ := newRegistry(t, nil)
	ctx := context.Background()
	start(t, reg, "s1", "org-a")
	start(t, reg, "s2", "org-b")

	state, ok := reg.State(ctx, events.Params{"organizationId": "org-a", "sessionId": "s1"})
	require.True(t, ok)
	assert.Equal(t, "s1", state.(*models.AutomationSession).ID)

	_, ok = reg.State(ctx, events.Params{"organizationId": "org-a", "sessionId": "s2"})
	assert.False(t, ok)

	state, ok = reg.State(ctx, events.Params{"organizationId": "org-b"})
	require.True(t, ok)
	assert.Len(t, state.([]*models.AutomationSession), 1)
}

func TestUpdate_ConcurrentSessions(t *testing.T) {
	reg, _ := newRegistry(t, nil)
	for i := 0; i < 4; i++ {
		start(t, reg, fmt.Sprintf("s%d", i), "org-a")
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		for j := 0; j < 25; j++ {
			wg.Add(1)
			go func(id string, n int) {
				defer wg.Done()
				_, _ = reg.Update(context.Background(), id, &models.SessionUpdate{LogMessage: fmt.Sprintf("%d", n)})
			}(fmt.Sprintf("s%d", i), j)
		}
	}
	wg.Wait()

	for _, s := range reg.List("org-a") {
		full, err := reg.Update(context.Background(), s.ID, &models.SessionUpdate{})
		require.NoError(t, err)
		assert.Len(t, full.Logs, 25)
	}
}

func TestMirror_SurvivesRegistryRestart(t *testing.T) {
	// Arrange
	mr := miniredis.RunT(t)
	cacheClient, err := rediscache.NewClient(rediscache.Config{Host: mr.Host(), Port: mr.Port()})
	require.NoError(t, err)
	enc, err := encryption.NewAESEncryptor("test-key-for-aes-256-gcm-00000!!")
	require.NoError(t, err)
	mirror, err := automation.NewMirror(&automation.MirrorConfig{CacheClient: cacheClient, Encryptor: enc})
	require.NoError(t, err)

	first, err := automation.NewRegistry(&automation.Config{Mirror: mirror})
	require.NoError(t, err)
	_, err = first.Start(context.Background(), &automation.StartRequest{ID: "s1", Name: "n", OrganizationID: "org-a"})
	require.NoError(t, err)

	// Act
	second, err := automation.NewRegistry(&automation.Config{Mirror: mirror})
	require.NoError(t, err)
	got, err := second.Get(context.Background(), "s1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "org-a", got.OrganizationID)
	assert.True(t, mr.Exists(rediscache.DefaultKeyPrefix + automation.MirrorKey("s1")))
}
