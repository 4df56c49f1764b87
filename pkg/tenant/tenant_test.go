package tenant

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/cases"
	"github.com/platinummonkey/docket/pkg/documents"
	"github.com/platinummonkey/docket/pkg/numbering"
	"github.com/platinummonkey/docket/pkg/storage"
	"github.com/platinummonkey/docket/pkg/storage/storagetest"
	"github.com/platinummonkey/docket/pkg/tasks"
)

type fixture struct {
	db    *sql.DB
	deps  Deps
	blobs *storage.FilesystemBlobStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storagetest.OpenDB(t)
	storagetest.SeedDepartment(t, db, "LEGAL-LIT", "LIT")
	storagetest.SeedDepartment(t, db, "HR", "HR")
	storagetest.SeedUser(t, db, "atty", "ATTORNEY", "LEGAL-LIT")
	storagetest.SeedUser(t, db, "para", "PARALEGAL", "LEGAL-LIT")
	storagetest.SeedUser(t, db, "client", "CLIENT_DEPT", "LEGAL-LIT")
	storagetest.SeedUser(t, db, "hr-atty", "ATTORNEY", "HR")
	storagetest.SeedUser(t, db, "root", "ADMIN", "HR")

	blobs, err := storage.NewFilesystemBlobStore(t.TempDir())
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	return &fixture{
		db:    db,
		blobs: blobs,
		deps: Deps{
			DB:        db,
			Cases:     cases.NewStore(db),
			Tasks:     tasks.NewStore(db),
			Sequencer: numbering.NewSequencer(),
			Resolver:  NewResolver(db, storage.DefaultConfig(), ResolverOptions{Logger: logger}),
			Blobs:     blobs,
			Logger:    logger,
		},
	}
}

func (f *fixture) as(t *testing.T, userID, dept string, role auth.Role) *Service {
	t.Helper()
	svc := New(&auth.Session{SessionID: "s-" + userID, UserID: userID, DepartmentID: dept, Role: role}, f.deps)
	require.NotNil(t, svc)
	return svc
}

func (f *fixture) count(t *testing.T, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestNewRequiresDepartment(t *testing.T) {
	f := newFixture(t)

	assert.Nil(t, New(nil, f.deps))
	assert.Nil(t, New(&auth.Session{UserID: "root", Role: auth.RoleAdmin}, f.deps), "ADMIN without a department gets no tenant service")
	assert.Nil(t, New(&auth.Session{UserID: "u", Role: auth.RoleUser}, f.deps))

	svc := New(&auth.Session{UserID: "atty", DepartmentID: "LEGAL-LIT", Role: auth.RoleAttorney}, f.deps)
	require.NotNil(t, svc)
	assert.Equal(t, Context{DepartmentID: "LEGAL-LIT", UserID: "atty", Role: auth.RoleAttorney}, svc.Context())
}

func TestCreateCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.as(t, "para", "LEGAL-LIT", auth.RoleParalegal)

	c, err := svc.CreateCase(ctx, cases.CreateInput{Title: "  Smith v. City ", AssignedToID: "atty"})
	require.NoError(t, err)

	year := time.Now().UTC().Year()
	assert.Equal(t, numbering.FormatCaseNumber("LIT", year, 1), c.CaseNumber)
	assert.Equal(t, "LEGAL-LIT", c.DepartmentID)
	assert.Equal(t, "para", c.CreatedByID)
	assert.Equal(t, "Smith v. City", c.Title)
	assert.Equal(t, cases.PriorityMedium, c.Priority)
	assert.Equal(t, cases.StatusOpen, c.Status)

	second, err := svc.CreateCase(ctx, cases.CreateInput{Title: "Second"})
	require.NoError(t, err)
	assert.Equal(t, numbering.FormatCaseNumber("LIT", year, 2), second.CaseNumber)

	feed, err := svc.GetActivities(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "CASE_CREATED", feed[0].Action)

	_, err = svc.CreateCase(ctx, cases.CreateInput{Title: "X", AssignedToID: "hr-atty"})
	assert.ErrorIs(t, err, ErrInvalidAssignee)
	assert.Equal(t, 2, f.count(t, "SELECT COUNT(*) FROM cases"))
}

func TestDepartmentWall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storagetest.SeedCase(t, f.db, "c1", "LEGAL-LIT", "atty", "")
	hr := f.as(t, "hr-atty", "HR", auth.RoleAttorney)

	ok, err := hr.CanAccessCase(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = hr.CanAccessCase(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = hr.GetCase(ctx, "c1")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = hr.GetCase(ctx, "missing")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = hr.GetDocuments(ctx, "c1")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = hr.GetTasks(ctx, tasks.Filter{CaseID: "c1"})
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = hr.GetActivities(ctx, "c1", 10)
	assert.ErrorIs(t, err, ErrAccessDenied)

	title := "hijacked"
	_, err = hr.UpdateCase(ctx, "c1", cases.Update{Title: &title})
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = hr.UpdateCase(ctx, "missing", cases.Update{Title: &title})
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.ErrorIs(t, hr.DeleteCase(ctx, "c1"), ErrAccessDenied)
	assert.ErrorIs(t, hr.DeleteCase(ctx, "missing"), ErrAccessDenied)

	list, err := hr.GetCases(ctx, cases.Filter{DepartmentID: "LEGAL-LIT"})
	require.NoError(t, err)
	assert.Empty(t, list, "client supplied department is ignored")
	assert.Equal(t, 1, f.count(t, "SELECT COUNT(*) FROM cases"))
}

func TestAttorneyEditsWithinDepartment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storagetest.SeedCase(t, f.db, "c1", "LEGAL-LIT", "atty", "")
	atty := f.as(t, "atty", "LEGAL-LIT", auth.RoleAttorney)

	title := "Amended complaint"
	status := cases.StatusInProgress
	c, err := atty.UpdateCase(ctx, "c1", cases.Update{Title: &title, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "Amended complaint", c.Title)
	assert.Equal(t, cases.StatusInProgress, c.Status)

	feed, err := atty.GetActivities(ctx, "c1", 10)
	require.NoError(t, err)
	actions := make([]string, 0, len(feed))
	for _, a := range feed {
		actions = append(actions, a.Action)
	}
	assert.ElementsMatch(t, []string{"CASE_STATUS_CHANGED", "CASE_UPDATED"}, actions)

	open := cases.StatusOpen
	closed := cases.StatusClosed
	_, err = atty.UpdateCase(ctx, "c1", cases.Update{Status: &closed})
	require.NoError(t, err)
	_, err = atty.UpdateCase(ctx, "c1", cases.Update{Status: &open})
	assert.ErrorIs(t, err, cases.ErrInvalidTransition)
}

func TestParalegalEditsOwnedCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storagetest.SeedCase(t, f.db, "mine", "LEGAL-LIT", "atty", "para")
	storagetest.SeedCase(t, f.db, "other", "LEGAL-LIT", "atty", "atty")
	para := f.as(t, "para", "LEGAL-LIT", auth.RoleParalegal)

	title := "Updated"
	_, err := para.UpdateCase(ctx, "mine", cases.Update{Title: &title})
	require.NoError(t, err)

	_, err = para.UpdateCase(ctx, "other", cases.Update{Title: &title})
	assert.ErrorIs(t, err, ErrAccessDenied)

	assert.ErrorIs(t, para.DeleteCase(ctx, "mine"), ErrAccessDenied, "paralegals cannot delete")

	helper := "para"
	atty := f.as(t, "atty", "LEGAL-LIT", auth.RoleAttorney)
	_, err = atty.UpdateCase(ctx, "other", cases.Update{ParalegalID: &helper})
	require.NoError(t, err)
	_, err = para.UpdateCase(ctx, "other", cases.Update{Title: &title})
	assert.NoError(t, err, "paralegal id grants edit")

	outsider := "hr-atty"
	_, err = atty.UpdateCase(ctx, "other", cases.Update{AssignedToID: &outsider})
	assert.ErrorIs(t, err, ErrInvalidAssignee)
}

func TestAdminCrossDepartmentDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storagetest.SeedCase(t, f.db, "c1", "LEGAL-LIT", "atty", "")
	storagetest.SeedTask(t, f.db, "t1", "c1", "atty", "")

	atty := f.as(t, "atty", "LEGAL-LIT", auth.RoleAttorney)
	docs := documents.NewService(f.db, f.blobs, f.deps.Logger)
	doc, err := docs.Upload(ctx, atty, documents.Upload{
		CaseID:   "c1",
		Title:    "Brief",
		FileName: "brief.txt",
		Content:  strings.NewReader("content"),
	})
	require.NoError(t, err)

	admin := f.as(t, "root", "HR", auth.RoleAdmin)
	ok, err := admin.CanAccessCase(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = admin.CanAccessDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	listed, err := admin.GetDocuments(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, admin.DeleteCase(ctx, "c1"))

	assert.Equal(t, 0, f.count(t, "SELECT COUNT(*) FROM cases"))
	assert.Equal(t, 0, f.count(t, "SELECT COUNT(*) FROM tasks"))
	assert.Equal(t, 0, f.count(t, "SELECT COUNT(*) FROM documents"))

	_, err = f.blobs.Get(ctx, doc.StorageKey)
	assert.ErrorIs(t, err, storage.ErrBlobNotFound)

	ok, err = admin.CanAccessCase(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok, "cached department is forgotten")
	ok, err = atty.CanAccessDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTasksForClientDepartment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storagetest.SeedCase(t, f.db, "c1", "LEGAL-LIT", "atty", "")
	storagetest.SeedTask(t, f.db, "t-client", "c1", "atty", "client")
	storagetest.SeedTask(t, f.db, "t-para", "c1", "atty", "para")
	storagetest.SeedTask(t, f.db, "t-open", "c1", "atty", "")

	client := f.as(t, "client", "LEGAL-LIT", auth.RoleClientDept)
	visible, err := client.GetTasks(ctx, tasks.Filter{AssignedToID: "para"})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "t-client", visible[0].ID)

	atty := f.as(t, "atty", "LEGAL-LIT", auth.RoleAttorney)
	all, err := atty.GetTasks(ctx, tasks.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	done := tasks.StatusDone
	_, err = client.UpdateTask(ctx, "t-para", tasks.Update{Status: &done})
	assert.ErrorIs(t, err, ErrAccessDenied)

	updated, err := client.UpdateTask(ctx, "t-client", tasks.Update{Status: &done})
	require.NoError(t, err)
	assert.NotNil(t, updated.CompletedAt)

	feed, err := atty.GetActivities(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "TASK_COMPLETED", feed[0].Action)

	hr := f.as(t, "hr-atty", "HR", auth.RoleAttorney)
	_, err = hr.UpdateTask(ctx, "t-open", tasks.Update{Status: &done})
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = hr.UpdateTask(ctx, "missing", tasks.Update{Status: &done})
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestCreateTaskAndApplyTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storagetest.SeedCase(t, f.db, "c1", "LEGAL-LIT", "atty", "")
	atty := f.as(t, "atty", "LEGAL-LIT", auth.RoleAttorney)

	task, err := atty.CreateTask(ctx, "c1", tasks.CreateInput{Title: "File answer", AssignedToID: "para"})
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusTodo, task.Status)

	tpl := &tasks.Template{
		DepartmentID: "LEGAL-LIT",
		Name:         "Intake",
		Items: []tasks.TemplateItem{
			{Title: "Conflict check", OffsetDays: 0},
			{Title: "Engagement letter", OffsetDays: 3},
			{Title: "Initial filing", OffsetDays: 14, Priority: "HIGH"},
		},
		CreatedByID: "atty",
	}
	require.NoError(t, f.deps.Tasks.CreateTemplate(ctx, tpl))

	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	created, err := atty.ApplyTemplate(ctx, "c1", tasks.ApplyInput{TemplateID: tpl.ID, AssignedToID: "para", StartDate: &start})
	require.NoError(t, err)
	require.Len(t, created, 3)
	assert.True(t, start.AddDate(0, 0, 3).Equal(*created[1].DueDate))
	assert.Equal(t, "HIGH", created[2].Priority)
	assert.Equal(t, 4, f.count(t, "SELECT COUNT(*) FROM tasks WHERE case_id = $1", "c1"))

	hr := f.as(t, "hr-atty", "HR", auth.RoleAttorney)
	_, err = hr.ApplyTemplate(ctx, "c1", tasks.ApplyInput{TemplateID: tpl.ID})
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = hr.CreateTask(ctx, "c1", tasks.CreateInput{Title: "x"})
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestAddNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storagetest.SeedCase(t, f.db, "c1", "LEGAL-LIT", "atty", "")

	note, err := f.as(t, "para", "LEGAL-LIT", auth.RoleParalegal).AddNote(ctx, "c1", " Called opposing counsel ")
	require.NoError(t, err)
	assert.Equal(t, "NOTE_ADDED", note.Action)
	assert.Equal(t, "Called opposing counsel", note.Description)

	_, err = f.as(t, "hr-atty", "HR", auth.RoleAttorney).AddNote(ctx, "c1", "peek")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = f.as(t, "para", "LEGAL-LIT", auth.RoleParalegal).AddNote(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Equal(t, 1, f.count(t, "SELECT COUNT(*) FROM activities WHERE case_id = $1", "c1"))
}
