package storage

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/logging"
)

var testStore *PostgresStore

func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(run(m))
}

func run(m *testing.M) int {
	if testing.Short() {
		return m.Run()
	}
	pool, err := dockertest.NewPool("")
	if err != nil || pool.Client.Ping() != nil {
		fmt.Fprintln(os.Stderr, "docker is not available, skipping postgres tests")
		return m.Run()
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=app",
			"POSTGRES_PASSWORD=app",
			"POSTGRES_DB=jobs",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not start postgres: %v\n", err)
		return 1
	}
	defer func() { _ = pool.Purge(resource) }()
	_ = resource.Expire(180)

	dsn := fmt.Sprintf("postgres://app:app@%s/jobs?sslmode=disable", resource.GetHostPort("5432/tcp"))
	ctx := context.Background()
	pool.MaxWait = 90 * time.Second
	if err := pool.Retry(func() error {
		store, err := Open(ctx, Config{DSN: dsn, MaxConns: 8}, logging.Discard())
		if err != nil {
			return err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return err
		}
		testStore = store
		return nil
	}); err != nil {
		fmt.Fprintf(os.Stderr, "could not connect to postgres: %v\n", err)
		return 1
	}
	defer testStore.Close()

	if err := testStore.InitSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "init schema: %v\n", err)
		return 1
	}
	return m.Run()
}

func requireStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testStore == nil {
		t.Skip("postgres is not available")
	}
	return testStore
}

func newJob(id string) *jobs.Job {
	return &jobs.Job{
		ID:       id,
		Type:     "full",
		Status:   jobs.StatusQueued,
		Stage:    jobs.StageIngest,
		Payload:  jobs.Payload{S3Key: "docs/a.pdf", LanguageCode: "en"},
		Meta:     map[string]any{"languageCode": "en"},
		Result:   map[string]any{},
		Progress: 0,
	}
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	store := requireStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newJob("schema-keep")))
	require.NoError(t, store.InitSchema(ctx))

	_, err := store.Get(ctx, "schema-keep")
	assert.NoError(t, err)
}

func TestInsertAndGet(t *testing.T) {
	store := requireStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newJob("insert-get")))
	assert.ErrorIs(t, store.Insert(ctx, newJob("insert-get")), jobs.ErrExists)

	got, err := store.Get(ctx, "insert-get")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusQueued, got.Status)
	assert.Equal(t, jobs.StageIngest, got.Stage)
	assert.Equal(t, "docs/a.pdf", got.Payload.S3Key)
	assert.Equal(t, "en", got.MetaString("languageCode"))
	assert.Nil(t, got.ErrorMessage)
	assert.EqualValues(t, 1, got.Version)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestUpdateAppliesTransitionsAndStampsUpdatedAt(t *testing.T) {
	store := requireStore(t)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, newJob("update-flow")))
	before, err := store.Get(ctx, "update-flow")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	updated, err := store.Update(ctx, "update-flow", jobs.Patch{
		Status:       jobs.StatusPtr(jobs.StatusProcessing),
		Progress:     jobs.IntPtr(10),
		ErrorMessage: jobs.ClearError(),
	})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(before.UpdatedAt))

	_, err = store.Update(ctx, "update-flow", jobs.Patch{Stage: jobs.StagePtr(jobs.StageNLP)})
	assert.ErrorIs(t, err, jobs.ErrInvalidTransition)

	_, err = store.Update(ctx, "update-flow", jobs.Patch{
		Status:       jobs.StatusPtr(jobs.StatusFailed),
		ErrorMessage: jobs.StringPtr("boom"),
	})
	require.NoError(t, err)

	_, err = store.Update(ctx, "update-flow", jobs.Patch{IncrementAttempt: true})
	assert.ErrorIs(t, err, jobs.ErrTerminal)

	got, err := store.Get(ctx, "update-flow")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "boom", *got.ErrorMessage)
	assert.Equal(t, 0, got.AttemptCount)
}

func TestConcurrentResultMergesAreNotLost(t *testing.T) {
	store := requireStore(t)
	ctx := context.Background()
	job := newJob("concurrent-merge")
	job.Status = jobs.StatusProcessing
	require.NoError(t, store.Insert(ctx, job))

	const writers = 6
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Update(ctx, "concurrent-merge", jobs.Patch{
				Result: map[string]any{fmt.Sprintf("k%d", i): i},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.Get(ctx, "concurrent-merge")
	require.NoError(t, err)
	assert.Len(t, got.Result, writers)
	assert.EqualValues(t, writers+1, got.Version)
}

func TestStats(t *testing.T) {
	store := requireStore(t)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, newJob("stats-a")))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)

	var queued int
	for _, s := range stats {
		if s.Status == jobs.StatusQueued && s.Stage == jobs.StageIngest {
			queued = s.Total
		}
	}
	assert.GreaterOrEqual(t, queued, 1)
}
