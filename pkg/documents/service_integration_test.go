//go:build integration

package documents

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/storage"
	"github.com/platinummonkey/docket/pkg/storage/storagetest"
)

func TestNewVersion_ConcurrentSupersedeOnPostgres(t *testing.T) {
	db := storagetest.OpenPostgres(t)
	storagetest.SeedDepartment(t, db, "d1", "LIT")
	storagetest.SeedCase(t, db, "c1", "d1", "atty", "")

	root := t.TempDir()
	blobs, err := storage.NewFilesystemBlobStore(root)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	svc := NewService(db, blobs, logger)
	atty := deptScope{db, &auth.Session{UserID: "atty", DepartmentID: "d1", Role: auth.RoleAttorney}}
	ctx := context.Background()

	v1, err := svc.Upload(ctx, atty, upload("first"))
	require.NoError(t, err)

	const writers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []*Document
		notHeads int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, err := svc.NewVersion(ctx, atty, v1.ID, Upload{
				FileName:    "complaint.pdf",
				ContentType: "application/pdf",
				Content:     strings.NewReader(fmt.Sprintf("second draft %d", i)),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, doc)
			case errors.Is(err, ErrNotHead):
				notHeads++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1, "the chain never forks")
	assert.Equal(t, writers-1, notHeads)
	assert.Equal(t, 2, winners[0].Version)

	var children int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM documents WHERE parent_id = $1", v1.ID).Scan(&children))
	assert.Equal(t, 1, children)

	var stored int
	require.NoError(t, filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			stored++
		}
		return err
	}))
	assert.Equal(t, 2, stored, "losing writers remove their content")
}
