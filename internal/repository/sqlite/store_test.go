package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/infra/database"
	"github.com/arklim/deadline-jail/internal/repository"
)

var baseTime = time.Date(2025, 3, 14, 9, 0, 0, 123456000, time.UTC)

func newTestRepositories(t *testing.T) (*Store, *Repositories) {
	t.Helper()

	ctx := context.Background()
	db, err := database.NewSQLiteDB(ctx, ":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)

	store := NewStore(db)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, Migrate(ctx, db, zaptest.NewLogger(t)))
	return store, NewRepositories(store)
}

func seedUser(t *testing.T, repos *Repositories, email string) domain.User {
	t.Helper()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		PasswordAlgo: domain.PasswordAlgoArgon2id,
		CreatedAt:    baseTime,
	}
	require.NoError(t, repos.Users.Create(context.Background(), user))
	return user
}

func newTask(userID, title string) domain.Task {
	return domain.Task{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Description: title + " description",
		Deadline:    baseTime.Add(time.Hour),
		Duration:    domain.Duration{Hours: 1, Minutes: 30},
		Status:      domain.TaskStatusActive,
		CreatedAt:   baseTime,
	}
}

func newConsequence(userID string, kind domain.ConsequenceType, enabled bool) domain.Consequence {
	return domain.Consequence{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        kind,
		Name:        string(kind) + " punishment",
		Description: "simulated",
		Severity:    domain.SeverityMedium,
		Enabled:     enabled,
		Config:      map[string]any{"message": "I failed", "amount": float64(5)},
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
}

func TestMigrations(t *testing.T) {
	ctx := context.Background()

	t.Run("migrate is idempotent", func(t *testing.T) {
		store, _ := newTestRepositories(t)
		require.NoError(t, Migrate(ctx, store.DB(), nil))

		version, err := SchemaVersion(ctx, store.DB())
		require.NoError(t, err)
		assert.Equal(t, 1, version)
	})

	t.Run("down then up", func(t *testing.T) {
		store, _ := newTestRepositories(t)

		require.NoError(t, MigrateDown(ctx, store.DB(), 1, nil))
		version, err := SchemaVersion(ctx, store.DB())
		require.NoError(t, err)
		assert.Equal(t, 0, version)

		require.Error(t, MigrateDown(ctx, store.DB(), 1, nil))
		require.NoError(t, Migrate(ctx, store.DB(), nil))
	})

	t.Run("filename parsing", func(t *testing.T) {
		version, name, direction, err := parseMigrationFilename("0007_add_index.down.sql")
		require.NoError(t, err)
		assert.Equal(t, 7, version)
		assert.Equal(t, "add_index", name)
		assert.Equal(t, "down", direction)

		_, _, _, err = parseMigrationFilename("init.sql")
		assert.Error(t, err)
		_, _, _, err = parseMigrationFilename("0000_zero.up.sql")
		assert.Error(t, err)
	})
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	_, repos := newTestRepositories(t)

	user := seedUser(t, repos, "ada@example.com")

	got, err := repos.Users.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.PasswordHash, got.PasswordHash)
	assert.True(t, got.CreatedAt.Equal(baseTime))

	dup := user
	dup.ID = uuid.NewString()
	err = repos.Users.Create(ctx, dup)
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	_, err = repos.Users.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTaskRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip preserves optional fields", func(t *testing.T) {
		_, repos := newTestRepositories(t)
		user := seedUser(t, repos, "ada@example.com")

		task := newTask(user.ID, "write report")
		consequenceID := uuid.NewString()
		task.ConsequenceID = &consequenceID
		require.NoError(t, repos.Tasks.Create(ctx, task))

		got, err := repos.Tasks.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.Title, got.Title)
		assert.Equal(t, task.Duration, got.Duration)
		assert.True(t, got.Deadline.Equal(task.Deadline))
		require.NotNil(t, got.ConsequenceID)
		assert.Equal(t, consequenceID, *got.ConsequenceID)
		assert.Nil(t, got.CompletedAt)
		assert.Nil(t, got.FailedAt)
	})

	t.Run("list keeps insertion order and filters by status", func(t *testing.T) {
		_, repos := newTestRepositories(t)
		user := seedUser(t, repos, "ada@example.com")
		other := seedUser(t, repos, "bob@example.com")

		first := newTask(user.ID, "first")
		second := newTask(user.ID, "second")
		third := newTask(user.ID, "third")
		for _, task := range []domain.Task{first, second, third, newTask(other.ID, "foreign")} {
			require.NoError(t, repos.Tasks.Create(ctx, task))
		}

		failedAt := baseTime.Add(2 * time.Hour)
		second.Status = domain.TaskStatusFailed
		second.FailedAt = &failedAt
		require.NoError(t, repos.Tasks.Update(ctx, second))

		all, err := repos.Tasks.ListByUser(ctx, user.ID, domain.TaskFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"first", "second", "third"}, []string{all[0].Title, all[1].Title, all[2].Title})

		failed, err := repos.Tasks.ListByUser(ctx, user.ID, domain.TaskFilter{Status: domain.TaskStatusFailed})
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, second.ID, failed[0].ID)
		require.NotNil(t, failed[0].FailedAt)
		assert.True(t, failed[0].FailedAt.Equal(failedAt))
	})

	t.Run("far future deadline round trips", func(t *testing.T) {
		_, repos := newTestRepositories(t)
		user := seedUser(t, repos, "ada@example.com")

		task := newTask(user.ID, "next millennium")
		task.Deadline = time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repos.Tasks.Create(ctx, task))

		got, err := repos.Tasks.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, got.Deadline.Equal(task.Deadline), "got %s", got.Deadline)
		assert.False(t, got.IsOverdue(baseTime))
	})

	t.Run("sub-microsecond precision is truncated", func(t *testing.T) {
		_, repos := newTestRepositories(t)
		user := seedUser(t, repos, "ada@example.com")

		task := newTask(user.ID, "precise")
		task.Deadline = baseTime.Add(789 * time.Nanosecond)
		require.NoError(t, repos.Tasks.Create(ctx, task))

		got, err := repos.Tasks.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, got.Deadline.Equal(baseTime))
	})

	t.Run("update of terminal task conflicts", func(t *testing.T) {
		_, repos := newTestRepositories(t)
		user := seedUser(t, repos, "ada@example.com")

		task := newTask(user.ID, "raced")
		require.NoError(t, repos.Tasks.Create(ctx, task))

		completedAt := baseTime.Add(time.Minute)
		completed := task
		completed.Status = domain.TaskStatusCompleted
		completed.CompletedAt = &completedAt
		require.NoError(t, repos.Tasks.Update(ctx, completed))

		failedAt := baseTime.Add(2 * time.Minute)
		failed := task
		failed.Status = domain.TaskStatusFailed
		failed.FailedAt = &failedAt
		assert.ErrorIs(t, repos.Tasks.Update(ctx, failed), repository.ErrConflict)

		got, err := repos.Tasks.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, got.Status)
		assert.Nil(t, got.FailedAt)
	})

	t.Run("update missing task", func(t *testing.T) {
		_, repos := newTestRepositories(t)
		user := seedUser(t, repos, "ada@example.com")

		err := repos.Tasks.Update(ctx, newTask(user.ID, "ghost"))
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("delete is owner scoped and idempotent", func(t *testing.T) {
		_, repos := newTestRepositories(t)
		user := seedUser(t, repos, "ada@example.com")
		other := seedUser(t, repos, "bob@example.com")

		task := newTask(user.ID, "keep me")
		require.NoError(t, repos.Tasks.Create(ctx, task))

		require.NoError(t, repos.Tasks.Delete(ctx, other.ID, task.ID))
		_, err := repos.Tasks.GetByID(ctx, task.ID)
		require.NoError(t, err)

		require.NoError(t, repos.Tasks.Delete(ctx, user.ID, task.ID))
		require.NoError(t, repos.Tasks.Delete(ctx, user.ID, task.ID))
		_, err = repos.Tasks.GetByID(ctx, task.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestConsequenceRepository(t *testing.T) {
	ctx := context.Background()
	_, repos := newTestRepositories(t)
	user := seedUser(t, repos, "ada@example.com")

	social := newConsequence(user.ID, domain.ConsequenceTypeSocial, true)
	financial := newConsequence(user.ID, domain.ConsequenceTypeFinancial, false)
	tech := newConsequence(user.ID, domain.ConsequenceTypeTech, true)
	for _, c := range []domain.Consequence{social, financial, tech} {
		require.NoError(t, repos.Consequences.Create(ctx, c))
	}

	got, err := repos.Consequences.GetByID(ctx, social.ID)
	require.NoError(t, err)
	assert.Equal(t, "I failed", got.Config["message"])
	assert.Equal(t, float64(5), got.Config["amount"])
	assert.True(t, got.Enabled)

	enabled, err := repos.Consequences.ListByUser(ctx, user.ID, domain.ConsequenceFilter{EnabledOnly: true})
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, social.ID, enabled[0].ID)
	assert.Equal(t, tech.ID, enabled[1].ID)

	byType, err := repos.Consequences.ListByUser(ctx, user.ID, domain.ConsequenceFilter{Type: domain.ConsequenceTypeFinancial})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.False(t, byType[0].Enabled)

	executedAt := baseTime.Add(3 * time.Hour)
	require.NoError(t, repos.Consequences.MarkExecuted(ctx, tech.ID, executedAt))
	got, err = repos.Consequences.GetByID(ctx, tech.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastExecutedAt)
	assert.True(t, got.LastExecutedAt.Equal(executedAt))

	assert.ErrorIs(t, repos.Consequences.MarkExecuted(ctx, uuid.NewString(), executedAt), repository.ErrNotFound)

	require.NoError(t, repos.Consequences.Delete(ctx, user.ID, social.ID))
	require.NoError(t, repos.Consequences.Delete(ctx, user.ID, social.ID))
	_, err = repos.Consequences.GetByID(ctx, social.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestExecutionLog(t *testing.T) {
	ctx := context.Background()
	_, repos := newTestRepositories(t)
	user := seedUser(t, repos, "ada@example.com")

	consequence := newConsequence(user.ID, domain.ConsequenceTypeSocial, true)
	require.NoError(t, repos.Consequences.Create(ctx, consequence))

	taskID := uuid.NewString()
	older := domain.ConsequenceExecution{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		ConsequenceID: consequence.ID,
		TaskID:        &taskID,
		Snapshot:      consequence,
		ExecutedAt:    baseTime,
	}
	newer := older
	newer.ID = uuid.NewString()
	newer.TaskID = nil
	newer.ExecutedAt = baseTime.Add(time.Minute)
	require.NoError(t, repos.Executions.Append(ctx, older))
	require.NoError(t, repos.Executions.Append(ctx, newer))

	// The log outlives the definition it snapshots.
	require.NoError(t, repos.Consequences.Delete(ctx, user.ID, consequence.ID))

	log, err := repos.Executions.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, newer.ID, log[0].ID)
	assert.Nil(t, log[0].TaskID)
	assert.Equal(t, older.ID, log[1].ID)
	require.NotNil(t, log[1].TaskID)
	assert.Equal(t, taskID, *log[1].TaskID)
	assert.Equal(t, consequence.Name, log[1].Snapshot.Name)
	assert.Equal(t, "I failed", log[1].Snapshot.Config["message"])
}
