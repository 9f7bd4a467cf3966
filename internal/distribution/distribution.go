// Package distribution picks assignees for tasks flowing into an
// organization's queue. The round-robin distributor walks the assignable
// membership in turn; the colocated distributor adds appeal affinity on top
// so follow-up work lands with whoever already holds the case.
package distribution

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"

	"boardflow/internal/domain"
	"boardflow/internal/repo"
)

// ErrEmptyAssigneePool means the organization has no assignable members.
// That is a configuration problem, not a transient condition.
var ErrEmptyAssigneePool = errors.New("organization has no assignable members")

// Request identifies the task being routed.
type Request struct {
	AppealID string
	TaskType string
}

// Distributor picks the next assignee for a task entering a queue.
type Distributor interface {
	NextAssignee(ctx context.Context, req Request) (domain.User, error)
}

// RoundRobin cycles through an organization's non-admin members, ordered by
// user id, persisting its position so restarts pick up where it left off.
type RoundRobin struct {
	DB      *sql.DB
	Repo    repo.Repo
	OrgName string
	Logger  *slog.Logger

	mu sync.Mutex
}

// NextAssignee advances the cursor and returns the member at the old
// position. The first call seeds the cursor just past the member holding the
// most recently assigned task of this type, so a fresh cursor continues an
// existing rotation instead of restarting it.
func (d *RoundRobin) NextAssignee(ctx context.Context, req Request) (domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pool, err := d.pool(ctx)
	if err != nil {
		return domain.User{}, err
	}
	u, err := d.nextFromPool(ctx, req, pool)
	if err != nil {
		return domain.User{}, err
	}
	d.log(req, u, "round_robin")
	return u, nil
}

func (d *RoundRobin) pool(ctx context.Context) ([]domain.User, error) {
	pool, err := d.Repo.OrgMembers(ctx, d.OrgName, true)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, ErrEmptyAssigneePool
	}
	return pool, nil
}

func (d *RoundRobin) nextFromPool(ctx context.Context, req Request, pool []domain.User) (domain.User, error) {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	cursorName := d.OrgName + "/" + req.TaskType
	if err := d.seedFromLatest(ctx, tx, cursorName, req.TaskType, pool); err != nil {
		return domain.User{}, err
	}
	position, err := d.Repo.AdvanceCursorTx(ctx, tx, cursorName, len(pool))
	if err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return pool[position%len(pool)], nil
}

// seedFromLatest writes an initial cursor position pointing past the holder
// of the newest task of this type, when no cursor row exists yet.
func (d *RoundRobin) seedFromLatest(ctx context.Context, tx *sql.Tx, cursorName, taskType string, pool []domain.User) error {
	ids := make([]string, len(pool))
	for i, u := range pool {
		ids[i] = u.ID
	}
	latest, err := d.Repo.LatestTaskAssignedTo(ctx, taskType, ids)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for i, u := range pool {
		if latest.AssignedToID != nil && *latest.AssignedToID == u.ID {
			return d.Repo.SeedCursorTx(ctx, tx, cursorName, i+1)
		}
	}
	return nil
}

func (d *RoundRobin) log(req Request, u domain.User, path string) {
	if d.Logger == nil {
		return
	}
	d.Logger.Info("picked assignee",
		"org", d.OrgName,
		"task_type", req.TaskType,
		"appeal_id", req.AppealID,
		"assignee", u.Handle,
		"path", path)
}

// Colocated routes to whoever in the pool already holds an open task on the
// appeal, falling back to the round-robin rotation when nobody does.
type Colocated struct {
	RoundRobin
}

func (d *Colocated) NextAssignee(ctx context.Context, req Request) (domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pool, err := d.pool(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if req.AppealID != "" {
		ids := make([]string, len(pool))
		for i, u := range pool {
			ids[i] = u.ID
		}
		t, err := d.Repo.OpenAppealTaskAssignedTo(ctx, req.AppealID, ids)
		if err == nil && t.AssignedToID != nil {
			for _, u := range pool {
				if u.ID == *t.AssignedToID {
					d.log(req, u, "affinity")
					return u, nil
				}
			}
		}
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, err
		}
	}
	u, err := d.nextFromPool(ctx, req, pool)
	if err != nil {
		return domain.User{}, err
	}
	d.log(req, u, "round_robin")
	return u, nil
}

// ForOrg builds the distributor variant an organization is configured with.
func ForOrg(db *sql.DB, orgName string, colocated bool, logger *slog.Logger) Distributor {
	if colocated {
		return &Colocated{RoundRobin: RoundRobin{DB: db, Repo: repo.Repo{DB: db}, OrgName: orgName, Logger: logger}}
	}
	return &RoundRobin{DB: db, Repo: repo.Repo{DB: db}, OrgName: orgName, Logger: logger}
}
