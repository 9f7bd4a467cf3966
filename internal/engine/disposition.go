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

// Disposition actions fail loudly when the hearing's recorded disposition
// does not match the action being taken.
var (
	ErrDispositionNotHeld        = errors.New("hearing disposition is not held")
	ErrDispositionNotCancelled   = errors.New("hearing disposition is not cancelled")
	ErrDispositionNotPostponed   = errors.New("hearing disposition is not postponed")
	ErrDispositionNotNoShow      = errors.New("hearing disposition is not no_show")
	ErrHearingAssociationMissing = errors.New("task has no associated hearing")
)

// Follow-up actions after marking a hearing postponed.
const (
	PostponeActionReschedule    = "reschedule"
	PostponeActionScheduleLater = "schedule_later"
)

const noShowInstruction = "Mail must be received within 14 days of the original hearing date."

// ScheduleHearingOptions are parameters for slotting an appeal onto a
// hearing day.
type ScheduleHearingOptions struct {
	TaskID               string
	HearingDayID         string
	ScheduledTime        string
	EvidenceWindowWaived bool
	ActorID              string
}

// ScheduleHearing completes a schedule_hearing task, records the hearing on
// the chosen day, and opens the disposition-selection task under the hearing
// task, all in one transaction.
func (e Engine) ScheduleHearing(ctx context.Context, opts ScheduleHearingOptions) (domain.Hearing, error) {
	t, err := e.Repo.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.Hearing{}, err
	}
	if t.Type != domain.TaskTypeScheduleHearing {
		return domain.Hearing{}, fmt.Errorf("task %s is not a %s task", t.ID, domain.TaskTypeScheduleHearing)
	}
	if !t.Open() {
		return domain.Hearing{}, fmt.Errorf("task %s is already closed", t.ID)
	}
	if t.ParentID == nil {
		return domain.Hearing{}, fmt.Errorf("task %s has no parent hearing task", t.ID)
	}
	if _, err := e.Repo.GetHearingDay(ctx, opts.HearingDayID); err != nil {
		return domain.Hearing{}, fmt.Errorf("hearing day: %w", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Hearing{}, err
	}
	defer tx.Rollback()

	h, err := e.scheduleHearingTx(ctx, tx, t, *t.ParentID, opts)
	if err != nil {
		return domain.Hearing{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Hearing{}, err
	}
	return h, nil
}

func (e Engine) scheduleHearingTx(ctx context.Context, tx *sql.Tx, scheduleTask domain.Task, hearingTaskID string, opts ScheduleHearingOptions) (domain.Hearing, error) {
	if err := e.closeTaskTx(ctx, tx, &scheduleTask, domain.TaskStatusCompleted, opts.ActorID); err != nil {
		return domain.Hearing{}, err
	}
	h := domain.Hearing{
		ID:                   uuid.New().String(),
		AppealID:             scheduleTask.AppealID,
		HearingDayID:         opts.HearingDayID,
		HearingTaskID:        &hearingTaskID,
		ScheduledTime:        opts.ScheduledTime,
		EvidenceWindowWaived: opts.EvidenceWindowWaived,
		CreatedAt:            e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertHearing(ctx, tx, h); err != nil {
		return domain.Hearing{}, fmt.Errorf("insert hearing: %w", err)
	}
	hearingTask, err := e.Repo.GetTaskTx(ctx, tx, hearingTaskID)
	if err != nil {
		return domain.Hearing{}, err
	}
	if _, err := e.createTaskTx(ctx, tx, &hearingTask, TaskCreateOptions{
		AppealID:      scheduleTask.AppealID,
		Type:          domain.TaskTypeAssignHearingDisposition,
		AssignedToOrg: config.OrgBva,
		ActorID:       opts.ActorID,
	}); err != nil {
		return domain.Hearing{}, err
	}
	if err := e.Events.Append(ctx, tx, "hearing.scheduled", scheduleTask.AppealID, "hearing", h.ID, opts.ActorID, events.EventPayload{
		"hearing_day_id": opts.HearingDayID,
		"scheduled_time": opts.ScheduledTime,
	}); err != nil {
		return domain.Hearing{}, err
	}
	return h, nil
}

// AfterDispositionUpdate directs what happens once a hearing is marked
// postponed: reschedule onto a new day immediately, or send the appeal back
// to the scheduling queue.
type AfterDispositionUpdate struct {
	Action                  string
	NewHearingDayID         string
	NewScheduledTime        string
	WithAdminAction         bool
	AdminActionInstructions []string
}

// SetDispositionOptions are parameters for recording a hearing disposition
// from a disposition-selection task and dispatching its follow-up in one
// transaction.
type SetDispositionOptions struct {
	TaskID       string
	Disposition  string
	Instructions []string
	After        *AfterDispositionUpdate
	ActorID      string
}

// SetHearingDisposition records the disposition on the hearing tied to the
// task's parent hearing task and runs the matching follow-up action.
func (e Engine) SetHearingDisposition(ctx context.Context, opts SetDispositionOptions) (domain.Hearing, error) {
	t, h, a, err := e.dispositionContext(ctx, opts.TaskID)
	if err != nil {
		return h, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return h, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateHearingDispositionTx(ctx, tx, h.ID, opts.Disposition); err != nil {
		return h, err
	}
	h.Disposition = &opts.Disposition
	if len(opts.Instructions) > 0 {
		t.Instructions = append(t.Instructions, opts.Instructions...)
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return h, err
		}
	}
	if err := e.Events.Append(ctx, tx, "hearing.disposition", t.AppealID, "hearing", h.ID, opts.ActorID, events.EventPayload{
		"disposition": opts.Disposition,
	}); err != nil {
		return h, err
	}
	switch opts.Disposition {
	case domain.DispositionHeld:
		err = e.holdTx(ctx, tx, t, h, a, opts.ActorID)
	case domain.DispositionCancelled:
		err = e.cancelTx(ctx, tx, t, h, a, opts.ActorID)
	case domain.DispositionNoShow:
		err = e.noShowTx(ctx, tx, t, opts.ActorID)
	case domain.DispositionPostponed:
		after := opts.After
		if after == nil {
			after = &AfterDispositionUpdate{Action: PostponeActionScheduleLater}
		}
		err = e.postponeTx(ctx, tx, t, *after, opts.ActorID)
	default:
		err = fmt.Errorf("unknown hearing disposition %s", opts.Disposition)
	}
	if err != nil {
		return h, err
	}
	if err := tx.Commit(); err != nil {
		return h, err
	}
	return h, nil
}

// Hold completes the held-hearing flow for a disposition task. The hearing's
// recorded disposition must already be held.
func (e Engine) Hold(ctx context.Context, taskID, actorID string) error {
	return e.runDisposition(ctx, taskID, domain.DispositionHeld, ErrDispositionNotHeld,
		func(tx *sql.Tx, t domain.Task, h domain.Hearing, a domain.Appeal) error {
			return e.holdTx(ctx, tx, t, h, a, actorID)
		})
}

// Cancel completes the cancelled-hearing flow for a disposition task.
func (e Engine) Cancel(ctx context.Context, taskID, actorID string) error {
	return e.runDisposition(ctx, taskID, domain.DispositionCancelled, ErrDispositionNotCancelled,
		func(tx *sql.Tx, t domain.Task, h domain.Hearing, a domain.Appeal) error {
			return e.cancelTx(ctx, tx, t, h, a, actorID)
		})
}

// NoShow opens the no-show follow-up for a disposition task.
func (e Engine) NoShow(ctx context.Context, taskID, actorID string) error {
	return e.runDisposition(ctx, taskID, domain.DispositionNoShow, ErrDispositionNotNoShow,
		func(tx *sql.Tx, t domain.Task, h domain.Hearing, a domain.Appeal) error {
			return e.noShowTx(ctx, tx, t, actorID)
		})
}

// Postpone runs the postponed-hearing follow-up for a disposition task.
func (e Engine) Postpone(ctx context.Context, taskID string, after AfterDispositionUpdate, actorID string) error {
	return e.runDisposition(ctx, taskID, domain.DispositionPostponed, ErrDispositionNotPostponed,
		func(tx *sql.Tx, t domain.Task, h domain.Hearing, a domain.Appeal) error {
			return e.postponeTx(ctx, tx, t, after, actorID)
		})
}

func (e Engine) runDisposition(ctx context.Context, taskID, want string, mismatch error, fn func(*sql.Tx, domain.Task, domain.Hearing, domain.Appeal) error) error {
	t, h, a, err := e.dispositionContext(ctx, taskID)
	if err != nil {
		return err
	}
	if h.Disposition == nil || *h.Disposition != want {
		return mismatch
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx, t, h, a); err != nil {
		return err
	}
	return tx.Commit()
}

// dispositionContext resolves a disposition-family task to its hearing and
// appeal. The hearing hangs off the task's parent hearing task.
func (e Engine) dispositionContext(ctx context.Context, taskID string) (domain.Task, domain.Hearing, domain.Appeal, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return t, domain.Hearing{}, domain.Appeal{}, err
	}
	if t.Type != domain.TaskTypeAssignHearingDisposition && t.Type != domain.TaskTypeDisposition &&
		t.Type != domain.TaskTypeChangeHearingDisposition {
		return t, domain.Hearing{}, domain.Appeal{}, fmt.Errorf("task %s does not take hearing dispositions", t.Type)
	}
	if !t.Open() {
		return t, domain.Hearing{}, domain.Appeal{}, fmt.Errorf("task %s is already closed", t.ID)
	}
	if t.ParentID == nil {
		return t, domain.Hearing{}, domain.Appeal{}, ErrHearingAssociationMissing
	}
	h, err := e.Repo.HearingForTask(ctx, *t.ParentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return t, h, domain.Appeal{}, ErrHearingAssociationMissing
		}
		return t, h, domain.Appeal{}, err
	}
	a, err := e.Repo.GetAppeal(ctx, t.AppealID)
	if err != nil {
		return t, h, a, err
	}
	return t, h, a, nil
}

// holdTx handles a held hearing. Legacy appeals just complete the task; for
// the rest a transcription task is opened, plus an evidence submission window
// unless the appellant waived it. The disposition task stays open until its
// children finish.
func (e Engine) holdTx(ctx context.Context, tx *sql.Tx, t domain.Task, h domain.Hearing, a domain.Appeal, actorID string) error {
	if a.Docket == domain.DocketLegacy {
		return e.closeTaskTx(ctx, tx, &t, domain.TaskStatusCompleted, actorID)
	}
	if _, err := e.createTaskTx(ctx, tx, &t, TaskCreateOptions{
		AppealID:      t.AppealID,
		Type:          domain.TaskTypeTranscription,
		AssignedToOrg: config.OrgTranscription,
		ActorID:       actorID,
	}); err != nil {
		return err
	}
	if h.EvidenceWindowWaived {
		return nil
	}
	_, err := e.createTaskTx(ctx, tx, &t, TaskCreateOptions{
		AppealID:      t.AppealID,
		Type:          domain.TaskTypeEvidenceSubmissionWindow,
		AssignedToOrg: config.OrgMail,
		ActorID:       actorID,
	})
	return err
}

// cancelTx handles a cancelled hearing: the disposition task and its subtree
// are cancelled, and when nothing else on those branches remains open the
// parent hearing task closes with it. Non-legacy appeals still owe the
// appellant an evidence submission window, opened under the hearing task's
// parent so it survives the cancellation.
func (e Engine) cancelTx(ctx context.Context, tx *sql.Tx, t domain.Task, h domain.Hearing, a domain.Appeal, actorID string) error {
	if a.Docket != domain.DocketLegacy && !h.EvidenceWindowWaived {
		hearingTask, err := e.Repo.GetTaskTx(ctx, tx, *t.ParentID)
		if err != nil {
			return err
		}
		if hearingTask.ParentID != nil {
			grandparent, err := e.Repo.GetTaskTx(ctx, tx, *hearingTask.ParentID)
			if err != nil {
				return err
			}
			if _, err := e.createTaskTx(ctx, tx, &grandparent, TaskCreateOptions{
				AppealID:      t.AppealID,
				Type:          domain.TaskTypeEvidenceSubmissionWindow,
				AssignedToOrg: config.OrgMail,
				ActorID:       actorID,
			}); err != nil {
				return err
			}
		}
	}
	if err := e.closeTaskTx(ctx, tx, &t, domain.TaskStatusCancelled, actorID); err != nil {
		return err
	}
	return e.closeHearingTaskIfIdleTx(ctx, tx, *t.ParentID, domain.TaskStatusCancelled, actorID)
}

// noShowTx opens the no-show follow-up child and immediately places it on a
// timed hold so mail has a window to arrive before anyone acts on it.
func (e Engine) noShowTx(ctx context.Context, tx *sql.Tx, t domain.Task, actorID string) error {
	child, err := e.createTaskTx(ctx, tx, &t, TaskCreateOptions{
		AppealID:      t.AppealID,
		Type:          domain.TaskTypeNoShowHearing,
		AssignedToOrg: config.OrgHearingsManagement,
		ActorID:       actorID,
	})
	if err != nil {
		return err
	}
	return e.placeOnTimedHoldTx(ctx, tx, &child, e.Config.Hearings.NoShowHoldDays, []string{noShowInstruction}, actorID)
}

// postponeTx cancels the current hearing task subtree and rebuilds the branch
// either with a new hearing on a chosen day or with a fresh scheduling task.
func (e Engine) postponeTx(ctx context.Context, tx *sql.Tx, t domain.Task, after AfterDispositionUpdate, actorID string) error {
	newHearingTask, err := e.cancelAndRecreateHearingTaskTx(ctx, tx, *t.ParentID, actorID)
	if err != nil {
		return err
	}
	switch after.Action {
	case PostponeActionReschedule:
		if after.NewHearingDayID == "" {
			return errors.New("reschedule requires a hearing day")
		}
		if _, err := e.Repo.GetHearingDay(ctx, after.NewHearingDayID); err != nil {
			return fmt.Errorf("hearing day: %w", err)
		}
		h := domain.Hearing{
			ID:            uuid.New().String(),
			AppealID:      t.AppealID,
			HearingDayID:  after.NewHearingDayID,
			HearingTaskID: &newHearingTask.ID,
			ScheduledTime: after.NewScheduledTime,
			CreatedAt:     e.now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertHearing(ctx, tx, h); err != nil {
			return fmt.Errorf("insert hearing: %w", err)
		}
		if _, err := e.createTaskTx(ctx, tx, &newHearingTask, TaskCreateOptions{
			AppealID:      t.AppealID,
			Type:          domain.TaskTypeAssignHearingDisposition,
			AssignedToOrg: config.OrgBva,
			ActorID:       actorID,
		}); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "hearing.rescheduled", t.AppealID, "hearing", h.ID, actorID, events.EventPayload{
			"hearing_day_id": after.NewHearingDayID,
		})
	case PostponeActionScheduleLater, "":
		scheduleTask, err := e.createTaskTx(ctx, tx, &newHearingTask, TaskCreateOptions{
			AppealID:      t.AppealID,
			Type:          domain.TaskTypeScheduleHearing,
			AssignedToOrg: config.OrgHearingsManagement,
			ActorID:       actorID,
		})
		if err != nil {
			return err
		}
		if after.WithAdminAction {
			if _, err := e.createTaskTx(ctx, tx, &scheduleTask, TaskCreateOptions{
				AppealID:      t.AppealID,
				Type:          domain.TaskTypeHearingAdminAction,
				AssignedToOrg: config.OrgHearingsManagement,
				Instructions:  after.AdminActionInstructions,
				ActorID:       actorID,
			}); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown postponement action %s", after.Action)
	}
}

// cancelAndRecreateHearingTaskTx cancels the hearing task and everything
// under it, then opens a fresh hearing task under the same parent.
func (e Engine) cancelAndRecreateHearingTaskTx(ctx context.Context, tx *sql.Tx, hearingTaskID, actorID string) (domain.Task, error) {
	old, err := e.Repo.GetTaskTx(ctx, tx, hearingTaskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.closeTaskTx(ctx, tx, &old, domain.TaskStatusCancelled, actorID); err != nil {
		return domain.Task{}, err
	}
	var parent *domain.Task
	if old.ParentID != nil {
		p, err := e.Repo.GetTaskTx(ctx, tx, *old.ParentID)
		if err != nil {
			return domain.Task{}, err
		}
		parent = &p
	}
	return e.createTaskTx(ctx, tx, parent, TaskCreateOptions{
		AppealID:      old.AppealID,
		Type:          domain.TaskTypeHearing,
		AssignedToOrg: config.OrgBva,
		ActorID:       actorID,
	})
}

// closeHearingTaskIfIdleTx closes the hearing task once none of its children
// remain open.
func (e Engine) closeHearingTaskIfIdleTx(ctx context.Context, tx *sql.Tx, hearingTaskID, status, actorID string) error {
	open, err := e.Repo.ListOpenChildrenTx(ctx, tx, hearingTaskID)
	if err != nil {
		return err
	}
	if len(open) > 0 {
		return nil
	}
	ht, err := e.Repo.GetTaskTx(ctx, tx, hearingTaskID)
	if err != nil {
		return err
	}
	if !ht.Open() {
		return nil
	}
	return e.closeTaskTx(ctx, tx, &ht, status, actorID)
}

// CompleteWithChangeDisposition closes a disposition task and routes a
// change_hearing_disposition task to hearings management so the recorded
// disposition can be corrected.
func (e Engine) CompleteWithChangeDisposition(ctx context.Context, taskID string, instructions []string, actorID string) (domain.Task, error) {
	t, _, _, err := e.dispositionContext(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.closeTaskTx(ctx, tx, &t, domain.TaskStatusCompleted, actorID); err != nil {
		return domain.Task{}, err
	}
	hearingTask, err := e.Repo.GetTaskTx(ctx, tx, *t.ParentID)
	if err != nil {
		return domain.Task{}, err
	}
	change, err := e.createTaskTx(ctx, tx, &hearingTask, TaskCreateOptions{
		AppealID:      t.AppealID,
		Type:          domain.TaskTypeChangeHearingDisposition,
		AssignedToOrg: config.OrgHearingsManagement,
		Instructions:  instructions,
		ActorID:       actorID,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return change, nil
}
