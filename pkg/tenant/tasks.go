package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/docket/pkg/activity"
	"github.com/platinummonkey/docket/pkg/storage"
	"github.com/platinummonkey/docket/pkg/tasks"
)

// CreateTask adds a task to an accessible case
func (s *Service) CreateTask(ctx context.Context, caseID string, in tasks.CreateInput) (*tasks.Task, error) {
	dept, err := s.caseDepartment(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAssignee(ctx, dept, in.AssignedToID); err != nil {
		return nil, err
	}

	t := &tasks.Task{
		CaseID:       caseID,
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Priority:     in.Priority,
		AssignedToID: in.AssignedToID,
		CreatedByID:  s.ctx.UserID,
		DueDate:      in.DueDate,
	}
	err = storage.WithTx(ctx, s.deps.DB, func(tx *sql.Tx) error {
		if err := s.deps.Tasks.Insert(ctx, tx, t); err != nil {
			return err
		}
		return activity.Insert(ctx, tx, activity.New(caseID, s.ctx.UserID, activity.TaskCreated,
			fmt.Sprintf("Task %q created", t.Title)))
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTask changes a task on an accessible case. PARALEGAL and
// CLIENT_DEPT sessions may only change tasks assigned to them.
func (s *Service) UpdateTask(ctx context.Context, taskID string, u tasks.Update) (*tasks.Task, error) {
	t, err := s.deps.Tasks.Get(ctx, taskID)
	if errors.Is(err, tasks.ErrNotFound) {
		return nil, ErrAccessDenied
	}
	if err != nil {
		return nil, err
	}
	dept, err := s.caseDepartment(ctx, t.CaseID)
	if err != nil {
		return nil, err
	}
	if !tasks.CanUpdate(s.session, t) {
		return nil, ErrAccessDenied
	}
	if u.AssignedToID != nil {
		if err := s.checkAssignee(ctx, dept, *u.AssignedToID); err != nil {
			return nil, err
		}
	}

	wasDone := t.Status == tasks.StatusDone
	if err := s.deps.Tasks.Apply(ctx, t, u); err != nil {
		return nil, err
	}
	if t.Status == tasks.StatusDone && !wasDone {
		if err := activity.Insert(ctx, s.deps.DB, activity.New(t.CaseID, s.ctx.UserID, activity.TaskCompleted,
			fmt.Sprintf("Task %q completed", t.Title))); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ApplyTemplate instantiates a template of the session's department on an
// accessible case. All tasks are created in one transaction.
func (s *Service) ApplyTemplate(ctx context.Context, caseID string, in tasks.ApplyInput) ([]*tasks.Task, error) {
	dept, err := s.caseDepartment(ctx, caseID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.deps.Tasks.GetTemplate(ctx, s.ctx.DepartmentID, in.TemplateID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAssignee(ctx, dept, in.AssignedToID); err != nil {
		return nil, err
	}

	start := s.now()
	if in.StartDate != nil {
		start = *in.StartDate
	}

	var created []*tasks.Task
	err = storage.WithTx(ctx, s.deps.DB, func(tx *sql.Tx) error {
		var err error
		created, err = s.deps.Tasks.ApplyTemplate(ctx, tx, tpl, caseID, in.AssignedToID, s.ctx.UserID, start)
		if err != nil {
			return err
		}
		return activity.Insert(ctx, tx, activity.New(caseID, s.ctx.UserID, activity.TemplateApplied,
			fmt.Sprintf("Template %q applied (%d tasks)", tpl.Name, len(created))))
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
