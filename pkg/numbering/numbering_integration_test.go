//go:build integration

package numbering

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/storage"
	"github.com/platinummonkey/docket/pkg/storage/storagetest"
)

func TestCaseNumber_ConcurrentTransactionsOnPostgres(t *testing.T) {
	db := storagetest.OpenPostgres(t)
	storagetest.SeedDepartment(t, db, "d1", "LIT")

	seq := NewSequencer()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	const workers = 24

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		numbers = make(map[string]int)
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var number string
			err := storage.WithTx(context.Background(), db, func(tx *sql.Tx) error {
				var err error
				number, err = seq.CaseNumber(context.Background(), tx, "d1", "LIT", at)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers[number]++
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, numbers, workers, "every transaction gets a distinct number")
	for i := int64(1); i <= workers; i++ {
		assert.Equal(t, 1, numbers[FormatCaseNumber("LIT", 2025, i)], "number %d issued once", i)
	}

	var last int64
	require.NoError(t, db.QueryRow(
		"SELECT last_value FROM identifier_sequences WHERE kind = $1 AND department_id = $2 AND year = $3",
		string(KindCase), "d1", 2025).Scan(&last))
	assert.Equal(t, int64(workers), last)
}
