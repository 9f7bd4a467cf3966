package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"boardflow/internal/config"
	"boardflow/internal/domain"
	"boardflow/internal/events"
	"boardflow/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

const dateLayout = "2006-01-02"

// SyncOrganizations materializes the configured organization registry into
// the database, including memberships resolved by user handle.
func (e Engine) SyncOrganizations(ctx context.Context) error {
	if e.Config == nil {
		return errors.New("config not loaded")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	for name, org := range e.Config.Organizations {
		if err := e.Repo.EnsureOrg(ctx, tx, name, org.Label, now); err != nil {
			return fmt.Errorf("ensure org %s: %w", name, err)
		}
		admins := map[string]bool{}
		for _, a := range org.Admins {
			admins[a] = true
		}
		for _, handle := range org.Members {
			u, err := e.Repo.GetUserByHandle(ctx, handle)
			if err != nil {
				return fmt.Errorf("org %s member %s: %w", name, handle, err)
			}
			if err := e.Repo.AddOrgMember(ctx, tx, name, u.ID, admins[handle]); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// AppealCreateOptions are parameters for case intake.
type AppealCreateOptions struct {
	ID             string
	Docket         string
	Stream         string
	ReceiptDate    string
	AOD            bool
	CAVC           bool
	TiedJudgeID    string
	RegionalOffice string
	Ready          bool
	ActorID        string
}

// CreateAppeal performs intake: the appeal row, its root task, and the
// docket's initial tasks, all in one transaction.
func (e Engine) CreateAppeal(ctx context.Context, opts AppealCreateOptions) (domain.Appeal, error) {
	if e.Config == nil {
		return domain.Appeal{}, errors.New("config not loaded")
	}
	if !validDocket(opts.Docket) {
		return domain.Appeal{}, fmt.Errorf("unknown docket %s", opts.Docket)
	}
	if opts.ReceiptDate == "" {
		return domain.Appeal{}, errors.New("receipt date is required")
	}
	receipt, err := time.Parse(dateLayout, opts.ReceiptDate)
	if err != nil {
		return domain.Appeal{}, fmt.Errorf("receipt date: %w", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Appeal{}, err
	}
	defer tx.Rollback()

	a, err := e.createAppealTx(ctx, tx, opts, receipt)
	if err != nil {
		return domain.Appeal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Appeal{}, err
	}
	return a, nil
}

func (e Engine) createAppealTx(ctx context.Context, tx *sql.Tx, opts AppealCreateOptions, receipt time.Time) (domain.Appeal, error) {
	now := e.now().UTC()
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	a := domain.Appeal{
		ID:             id,
		Docket:         opts.Docket,
		Stream:         opts.Stream,
		ReceiptDate:    opts.ReceiptDate,
		AOD:            opts.AOD,
		CAVC:           opts.CAVC,
		TiedJudgeID:    optionalString(opts.TiedJudgeID),
		RegionalOffice: optionalString(opts.RegionalOffice),
		CreatedAt:      now.Format(time.RFC3339),
	}
	if a.Stream == "" {
		a.Stream = domain.StreamOriginal
	}
	if a.Docket == domain.DocketDirectReview {
		target := receipt.AddDate(0, 0, e.Config.Docket.DaysToDecisionGoal).Format(dateLayout)
		a.TargetDecisionDate = &target
	}
	if opts.Ready {
		ready := now.Format(time.RFC3339)
		a.ReadyAt = &ready
	}
	if err := e.Repo.InsertAppeal(ctx, tx, a); err != nil {
		return domain.Appeal{}, fmt.Errorf("insert appeal: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "appeal.created", a.ID, "appeal", a.ID, opts.ActorID, events.EventPayload{
		"docket": a.Docket, "stream": a.Stream, "aod": a.AOD, "cavc": a.CAVC,
	}); err != nil {
		return domain.Appeal{}, err
	}
	if err := e.createInitialTasksTx(ctx, tx, a, opts.ActorID); err != nil {
		return domain.Appeal{}, err
	}
	return a, nil
}

// createInitialTasksTx builds the post-intake task tree for an appeal.
func (e Engine) createInitialTasksTx(ctx context.Context, tx *sql.Tx, a domain.Appeal, actorID string) error {
	root, err := e.createTaskTx(ctx, tx, nil, TaskCreateOptions{
		AppealID:      a.ID,
		Type:          domain.TaskTypeRoot,
		AssignedToOrg: config.OrgBva,
		ActorID:       actorID,
	})
	if err != nil {
		return err
	}
	switch a.Docket {
	case domain.DocketHearing:
		hearingTask, err := e.createTaskTx(ctx, tx, &root, TaskCreateOptions{
			AppealID:      a.ID,
			Type:          domain.TaskTypeHearing,
			AssignedToOrg: config.OrgBva,
			ActorID:       actorID,
		})
		if err != nil {
			return err
		}
		if _, err := e.createTaskTx(ctx, tx, &hearingTask, TaskCreateOptions{
			AppealID:      a.ID,
			Type:          domain.TaskTypeScheduleHearing,
			AssignedToOrg: config.OrgHearingsManagement,
			ActorID:       actorID,
		}); err != nil {
			return err
		}
	case domain.DocketEvidenceSubmission:
		if _, err := e.createTaskTx(ctx, tx, &root, TaskCreateOptions{
			AppealID:      a.ID,
			Type:          domain.TaskTypeEvidenceSubmissionWindow,
			AssignedToOrg: config.OrgMail,
			ActorID:       actorID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID            string
	AppealID      string
	ParentID      string
	Type          string
	AssignedToID  string
	AssignedToOrg string
	AssignedByID  string
	Instructions  []string
	ActorID       string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.AppealID == "" {
		return domain.Task{}, errors.New("appeal is required")
	}
	if _, err := e.Repo.GetAppeal(ctx, opts.AppealID); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	var parent *domain.Task
	if opts.ParentID != "" {
		p, err := e.Repo.GetTaskTx(ctx, tx, opts.ParentID)
		if err != nil {
			return domain.Task{}, err
		}
		if p.AppealID != opts.AppealID {
			return domain.Task{}, errors.New("parent task on different appeal")
		}
		parent = &p
	}
	t, err := e.createTaskTx(ctx, tx, parent, opts)
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) createTaskTx(ctx context.Context, tx *sql.Tx, parent *domain.Task, opts TaskCreateOptions) (domain.Task, error) {
	policy, ok := taskPolicies[opts.Type]
	if !ok {
		return domain.Task{}, fmt.Errorf("unknown task type %s", opts.Type)
	}
	if err := policy.checkParent(opts.Type, parent); err != nil {
		return domain.Task{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	t := domain.Task{
		ID:            id,
		AppealID:      opts.AppealID,
		Type:          opts.Type,
		Status:        domain.TaskStatusAssigned,
		AssignedToID:  optionalString(opts.AssignedToID),
		AssignedToOrg: optionalString(opts.AssignedToOrg),
		AssignedByID:  optionalString(opts.AssignedByID),
		Instructions:  opts.Instructions,
		CreatedAt:     e.now().UTC().Format(time.RFC3339),
	}
	if parent != nil {
		t.ParentID = &parent.ID
	}
	if t.AssignedToID == nil && t.AssignedToOrg == nil {
		return domain.Task{}, ErrNoAssignee
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.AppealID, "task", t.ID, opts.ActorID, events.EventPayload{
		"type": t.Type, "status": t.Status,
	}); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// ErrNoAssignee rejects task creation with neither a user nor an
// organization assignee.
var ErrNoAssignee = errors.New("task must be assigned to a user or an organization")

// TaskUpdateOptions encapsulates allowed updates.
type TaskUpdateOptions struct {
	ID           string
	Status       string
	AssignTo     *string
	Instructions []string
	ActorID      string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	original := t
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if opts.AssignTo != nil {
		if *opts.AssignTo == "" {
			t.AssignedToID = nil
		} else {
			if _, err := e.Repo.GetUser(ctx, *opts.AssignTo); err != nil {
				return t, fmt.Errorf("assignee: %w", err)
			}
			t.AssignedToID = opts.AssignTo
		}
	}
	if len(opts.Instructions) > 0 {
		// Instructions are append-only.
		t.Instructions = append(t.Instructions, opts.Instructions...)
	}
	if opts.Status != "" && opts.Status != t.Status {
		if err := ensureTaskTransition(t.Status, opts.Status); err != nil {
			return t, err
		}
		switch opts.Status {
		case domain.TaskStatusCompleted, domain.TaskStatusCancelled:
			if err := e.closeTaskTx(ctx, tx, &t, opts.Status, opts.ActorID); err != nil {
				return t, err
			}
		case domain.TaskStatusOnHold:
			now := e.now().UTC().Format(time.RFC3339)
			t.PlacedOnHoldAt = &now
			t.Status = opts.Status
		default:
			t.Status = opts.Status
			t.PlacedOnHoldAt = nil
			t.OnHoldDuration = nil
		}
	}
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", t.AppealID, "task", t.ID, opts.ActorID, events.EventPayload{
		"from_status": original.Status,
		"to_status":   t.Status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// PlaceOnTimedHold puts a task on hold for a number of days.
func (e Engine) PlaceOnTimedHold(ctx context.Context, taskID string, days int, instructions []string, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return t, err
	}
	if !t.Open() {
		return t, fmt.Errorf("invalid task status transition %s -> %s", t.Status, domain.TaskStatusOnHold)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.placeOnTimedHoldTx(ctx, tx, &t, days, instructions, actorID); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) placeOnTimedHoldTx(ctx context.Context, tx *sql.Tx, t *domain.Task, days int, instructions []string, actorID string) error {
	now := e.now().UTC().Format(time.RFC3339)
	t.Status = domain.TaskStatusOnHold
	t.OnHoldDuration = &days
	t.PlacedOnHoldAt = &now
	t.Instructions = append(t.Instructions, instructions...)
	if err := e.Repo.UpdateTask(ctx, tx, *t); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, "task.on_hold", t.AppealID, "task", t.ID, actorID, events.EventPayload{
		"days": days,
	})
}

// closeTaskTx closes a task and, when its type's policy cascades, force-closes
// every open descendant with the same status and closed-at stamp in the same
// transaction. Cancellation additionally stamps the cancelling user.
func (e Engine) closeTaskTx(ctx context.Context, tx *sql.Tx, t *domain.Task, status, actorID string) error {
	now := e.now().UTC().Format(time.RFC3339)
	t.Status = status
	t.ClosedAt = &now
	if status == domain.TaskStatusCancelled && actorID != "" {
		t.CancelledByID = &actorID
	}
	if err := e.Repo.UpdateTask(ctx, tx, *t); err != nil {
		return err
	}
	if !taskPolicies[t.Type].cascadeClosure {
		return nil
	}
	return e.closeOpenChildrenTx(ctx, tx, t.ID, status, now, actorID)
}

func (e Engine) closeOpenChildrenTx(ctx context.Context, tx *sql.Tx, parentID, status, closedAt, actorID string) error {
	children, err := e.Repo.ListOpenChildrenTx(ctx, tx, parentID)
	if err != nil {
		return err
	}
	for _, child := range children {
		child.Status = status
		child.ClosedAt = &closedAt
		if status == domain.TaskStatusCancelled && actorID != "" {
			child.CancelledByID = &actorID
		}
		if err := e.Repo.UpdateTask(ctx, tx, child); err != nil {
			return err
		}
		if err := e.closeOpenChildrenTx(ctx, tx, child.ID, status, closedAt, actorID); err != nil {
			return err
		}
	}
	return nil
}

func ensureTaskTransition(oldStatus, newStatus string) error {
	ok := false
	switch oldStatus {
	case domain.TaskStatusAssigned:
		ok = newStatus == domain.TaskStatusInProgress || newStatus == domain.TaskStatusOnHold ||
			newStatus == domain.TaskStatusCompleted || newStatus == domain.TaskStatusCancelled
	case domain.TaskStatusInProgress:
		ok = newStatus == domain.TaskStatusOnHold || newStatus == domain.TaskStatusCompleted ||
			newStatus == domain.TaskStatusCancelled
	case domain.TaskStatusOnHold:
		ok = newStatus == domain.TaskStatusAssigned || newStatus == domain.TaskStatusInProgress ||
			newStatus == domain.TaskStatusCompleted || newStatus == domain.TaskStatusCancelled
	}
	if !ok {
		return fmt.Errorf("invalid task status transition %s -> %s", oldStatus, newStatus)
	}
	return nil
}

// --- helpers ---

func validDocket(d string) bool {
	for _, known := range domain.Dockets {
		if d == known {
			return true
		}
	}
	return false
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
