package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"boardflow/internal/domain"
)

const taskColumns = `id,appeal_id,parent_id,type,status,assigned_to_id,assigned_to_org,assigned_by_id,cancelled_by_id,instructions_json,on_hold_duration,placed_on_hold_at,created_at,closed_at`

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var (
		t            domain.Task
		parent       sql.NullString
		toID         sql.NullString
		toOrg        sql.NullString
		byID         sql.NullString
		cancelledBy  sql.NullString
		instructions sql.NullString
		holdDuration sql.NullInt64
		onHoldAt     sql.NullString
		closedAt     sql.NullString
	)
	err := row.Scan(&t.ID, &t.AppealID, &parent, &t.Type, &t.Status, &toID, &toOrg, &byID, &cancelledBy,
		&instructions, &holdDuration, &onHoldAt, &t.CreatedAt, &closedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.ParentID = optional(parent)
	t.AssignedToID = optional(toID)
	t.AssignedToOrg = optional(toOrg)
	t.AssignedByID = optional(byID)
	t.CancelledByID = optional(cancelledBy)
	t.PlacedOnHoldAt = optional(onHoldAt)
	t.ClosedAt = optional(closedAt)
	if holdDuration.Valid {
		d := int(holdDuration.Int64)
		t.OnHoldDuration = &d
	}
	if instructions.Valid && instructions.String != "" {
		if err := json.Unmarshal([]byte(instructions.String), &t.Instructions); err != nil {
			return t, fmt.Errorf("task %s instructions: %w", t.ID, err)
		}
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	instructions, err := marshalInstructions(t.Instructions)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.AppealID, nullableString(t.ParentID), t.Type, t.Status,
		nullableString(t.AssignedToID), nullableString(t.AssignedToOrg), nullableString(t.AssignedByID), nullableString(t.CancelledByID),
		instructions, nullableInt(t.OnHoldDuration), nullableString(t.PlacedOnHoldAt), t.CreatedAt, nullableString(t.ClosedAt))
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	instructions, err := marshalInstructions(t.Instructions)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, assigned_to_id=?, assigned_to_org=?, cancelled_by_id=?, instructions_json=?, on_hold_duration=?, placed_on_hold_at=?, closed_at=? WHERE id=?`,
		t.Status, nullableString(t.AssignedToID), nullableString(t.AssignedToOrg), nullableString(t.CancelledByID),
		instructions, nullableInt(t.OnHoldDuration), nullableString(t.PlacedOnHoldAt), nullableString(t.ClosedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// ListChildren returns the direct children of a task, oldest first.
func (r Repo) ListChildren(ctx context.Context, taskID string) ([]domain.Task, error) {
	return r.queryTasks(ctx, r.DB, `SELECT `+taskColumns+` FROM tasks WHERE parent_id=? ORDER BY created_at, id`, taskID)
}

// ListOpenChildrenTx returns children still in a non-terminal status.
func (r Repo) ListOpenChildrenTx(ctx context.Context, tx *sql.Tx, taskID string) ([]domain.Task, error) {
	return r.queryTasks(ctx, tx, `SELECT `+taskColumns+` FROM tasks WHERE parent_id=? AND status NOT IN (?,?) ORDER BY created_at, id`,
		taskID, domain.TaskStatusCompleted, domain.TaskStatusCancelled)
}

// ListAppealTasks returns every task on an appeal, roots first.
func (r Repo) ListAppealTasks(ctx context.Context, appealID string) ([]domain.Task, error) {
	return r.queryTasks(ctx, r.DB, `SELECT `+taskColumns+` FROM tasks WHERE appeal_id=? ORDER BY created_at, id`, appealID)
}

// OpenAppealTaskAssignedTo finds an open task on the appeal held by any of
// the given users. Pool affinity checks use this.
func (r Repo) OpenAppealTaskAssignedTo(ctx context.Context, appealID string, userIDs []string) (domain.Task, error) {
	if len(userIDs) == 0 {
		return domain.Task{}, ErrNotFound
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(userIDs)), ",")
	args := []any{appealID, domain.TaskStatusCompleted, domain.TaskStatusCancelled}
	for _, id := range userIDs {
		args = append(args, id)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE appeal_id=? AND status NOT IN (?,?) AND assigned_to_id IN (` + placeholders + `) ORDER BY created_at, id LIMIT 1`
	return scanTask(r.DB.QueryRowContext(ctx, query, args...))
}

// ActiveOrgTasks returns assigned/in-progress tasks of a type sitting in an
// organization's queue, oldest first. The bulk assigner consumes these.
func (r Repo) ActiveOrgTasks(ctx context.Context, orgName, taskType string) ([]domain.Task, error) {
	return r.queryTasks(ctx, r.DB, `SELECT `+taskColumns+` FROM tasks WHERE assigned_to_org=? AND type=? AND status IN (?,?) ORDER BY created_at, id`,
		orgName, taskType, domain.TaskStatusAssigned, domain.TaskStatusInProgress)
}

// ActiveOrgTasksForRegionalOffice narrows the organization's queue to tasks
// whose appeal sits in the given regional office.
func (r Repo) ActiveOrgTasksForRegionalOffice(ctx context.Context, orgName, taskType, regionalOffice string) ([]domain.Task, error) {
	return r.queryTasks(ctx, r.DB, `SELECT `+taskColumns+` FROM tasks WHERE assigned_to_org=? AND type=? AND status IN (?,?) AND appeal_id IN (SELECT id FROM appeals WHERE regional_office=?) ORDER BY created_at, id`,
		orgName, taskType, domain.TaskStatusAssigned, domain.TaskStatusInProgress, regionalOffice)
}

// LatestTaskAssignedTo returns the most recently created task of a type held
// by one of the pool members. Round-robin seeding reads this when no cursor
// row exists yet.
func (r Repo) LatestTaskAssignedTo(ctx context.Context, taskType string, userIDs []string) (domain.Task, error) {
	if len(userIDs) == 0 {
		return domain.Task{}, ErrNotFound
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(userIDs)), ",")
	args := []any{taskType}
	for _, id := range userIDs {
		args = append(args, id)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE type=? AND assigned_to_id IN (` + placeholders + `) ORDER BY created_at DESC, id DESC LIMIT 1`
	return scanTask(r.DB.QueryRowContext(ctx, query, args...))
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r Repo) queryTasks(ctx context.Context, q querier, query string, args ...any) ([]domain.Task, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func marshalInstructions(in []string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
