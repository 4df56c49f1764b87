//go:build integration

package tenant

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/cases"
	"github.com/platinummonkey/docket/pkg/numbering"
	"github.com/platinummonkey/docket/pkg/storage"
	"github.com/platinummonkey/docket/pkg/storage/storagetest"
	"github.com/platinummonkey/docket/pkg/tasks"
)

func TestUpdateCase_ConcurrentEditsOnPostgres(t *testing.T) {
	db := storagetest.OpenPostgres(t)
	storagetest.SeedDepartment(t, db, "LEGAL-LIT", "LIT")
	storagetest.SeedUser(t, db, "atty", "ATTORNEY", "LEGAL-LIT")
	logger, _ := test.NewNullLogger()

	blobs, err := storage.NewFilesystemBlobStore(t.TempDir())
	require.NoError(t, err)
	f := &fixture{db: db, blobs: blobs, deps: Deps{
		DB:        db,
		Cases:     cases.NewStore(db),
		Tasks:     tasks.NewStore(db),
		Sequencer: numbering.NewSequencer(),
		Resolver:  NewResolver(db, storage.DefaultConfig(), ResolverOptions{Logger: logger}),
		Blobs:     blobs,
		Logger:    logger,
	}}
	svc := f.as(t, "atty", "LEGAL-LIT", auth.RoleAttorney)
	ctx := context.Background()

	t.Run("Case numbers stay unique", func(t *testing.T) {
		const workers = 16
		var wg sync.WaitGroup
		numbers := make(chan string, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c, err := svc.CreateCase(ctx, cases.CreateInput{Title: "Parallel intake"})
				if assert.NoError(t, err) {
					numbers <- c.CaseNumber
				}
			}()
		}
		wg.Wait()
		close(numbers)

		seen := make(map[string]bool)
		for n := range numbers {
			assert.False(t, seen[n], "duplicate case number %s", n)
			seen[n] = true
		}
		assert.Len(t, seen, workers)
	})

	t.Run("Title edits never reopen a closed case", func(t *testing.T) {
		c, err := svc.CreateCase(ctx, cases.CreateInput{Title: "Contested"})
		require.NoError(t, err)

		const editors = 12
		closed := cases.StatusClosed
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			conflicts int
			closes    int
		)
		for i := 0; i < editors; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				u := cases.Update{}
				if i == editors/2 {
					u.Status = &closed
				} else {
					title := "Renamed"
					u.Title = &title
				}
				_, err := svc.UpdateCase(ctx, c.ID, u)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					if u.Status != nil {
						closes++
					}
				case errors.Is(err, cases.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		got, err := f.deps.Cases.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, cases.StatusClosed, got.Status)
		assert.NotNil(t, got.ClosedAt)
		assert.Equal(t, 1, closes, "the close lands exactly once")
		assert.Equal(t, 1, f.count(t,
			"SELECT COUNT(*) FROM activities WHERE case_id = $1 AND action = $2",
			c.ID, "CASE_STATUS_CHANGED"))
		t.Logf("%d title edits lost to the close", conflicts)
	})

	t.Run("Only one of many closers changes the status", func(t *testing.T) {
		c, err := svc.CreateCase(ctx, cases.CreateInput{Title: "Race to close"})
		require.NoError(t, err)

		const closers = 8
		var wg sync.WaitGroup
		for i := 0; i < closers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				status := cases.StatusClosed
				if i%2 == 1 {
					status = cases.StatusDismissed
				}
				_, err := svc.UpdateCase(ctx, c.ID, cases.Update{Status: &status})
				if err != nil && !errors.Is(err, cases.ErrConflict) && !errors.Is(err, cases.ErrInvalidTransition) {
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		got, err := f.deps.Cases.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, got.Status.Terminal())
		assert.Equal(t, 1, f.count(t,
			"SELECT COUNT(*) FROM activities WHERE case_id = $1 AND action = $2",
			c.ID, "CASE_STATUS_CHANGED"))
	})
}
