package departments

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/storage/storagetest"
)

func ptr(s string) *string { return &s }

func TestStore_CreateAndGet(t *testing.T) {
	db := storagetest.OpenDB(t)
	store := NewStore(db)
	ctx := context.Background()

	d := &Department{Name: " Litigation ", Code: " legal-lit "}
	require.NoError(t, store.Create(ctx, d))
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "LEGAL-LIT", d.Code)
	assert.Equal(t, "Litigation", d.Name)

	got, err := store.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Code, got.Code)

	got, err = store.GetByCode(ctx, "legal-lit")
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Create(ctx, &Department{Name: "Dup", Code: "LEGAL-LIT"})
	assert.ErrorIs(t, err, ErrCodeTaken)
}

func TestStore_CreateValidation(t *testing.T) {
	store := NewStore(storagetest.OpenDB(t))
	ctx := context.Background()

	assert.ErrorIs(t, store.Create(ctx, &Department{Name: "", Code: "LIT"}), ErrInvalid)
	assert.ErrorIs(t, store.Create(ctx, &Department{Name: "Lit", Code: "LIT CORP"}), ErrInvalid)
	assert.ErrorIs(t, store.Create(ctx, &Department{Name: "Lit", Code: "-LIT"}), ErrInvalid)
}

func TestStore_List(t *testing.T) {
	store := NewStore(storagetest.OpenDB(t))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Department{Name: "Corporate", Code: "CORP"}))
	require.NoError(t, store.Create(ctx, &Department{Name: "Appeals", Code: "APP"}))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "APP", list[0].Code)
	assert.Equal(t, "CORP", list[1].Code)
}

func TestStore_UpdateCodeLockedByCases(t *testing.T) {
	db := storagetest.OpenDB(t)
	store := NewStore(db)
	ctx := context.Background()

	d := &Department{Name: "Litigation", Code: "LIT"}
	require.NoError(t, store.Create(ctx, d))

	updated, err := store.Update(ctx, d.ID, ptr("Litigation Unit"), ptr("LITU"))
	require.NoError(t, err)
	assert.Equal(t, "LITU", updated.Code)
	assert.Equal(t, "Litigation Unit", updated.Name)

	storagetest.SeedCase(t, db, "c1", d.ID, "u1", "")

	_, err = store.Update(ctx, d.ID, nil, ptr("LIT"))
	assert.ErrorIs(t, err, ErrCodeLocked)

	// Renaming is still allowed, and so is resubmitting the same code
	updated, err = store.Update(ctx, d.ID, ptr("Lit"), ptr("litu"))
	require.NoError(t, err)
	assert.Equal(t, "Lit", updated.Name)

	_, err = store.Update(ctx, "missing", ptr("x"), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	db := storagetest.OpenDB(t)
	store := NewStore(db)
	ctx := context.Background()

	used := &Department{Name: "Litigation", Code: "LIT"}
	require.NoError(t, store.Create(ctx, used))
	storagetest.SeedUser(t, db, "u1", "USER", used.ID)
	assert.ErrorIs(t, store.Delete(ctx, used.ID), ErrInUse)

	empty := &Department{Name: "Archive", Code: "ARCH"}
	require.NoError(t, store.Create(ctx, empty))
	require.NoError(t, store.Delete(ctx, empty.ID))
	assert.ErrorIs(t, store.Delete(ctx, empty.ID), ErrNotFound)
}

func TestStore_CreatePostgresUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO departments").
		WillReturnError(&pq.Error{Code: "23505"})

	err = NewStore(db).Create(context.Background(), &Department{Name: "Lit", Code: "LIT"})
	assert.ErrorIs(t, err, ErrCodeTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}
