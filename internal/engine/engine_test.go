package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"boardflow/internal/config"
	"boardflow/internal/db"
	"boardflow/internal/domain"
	"boardflow/internal/engine"
	"boardflow/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("test-board")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if err := eng.SyncOrganizations(ctx); err != nil {
		t.Fatalf("sync orgs: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) addUser(t *testing.T, u domain.User) domain.User {
	t.Helper()
	if u.CreatedAt == "" {
		u.CreatedAt = "2024-01-01T00:00:00Z"
	}
	if err := env.Engine.Repo.InsertUser(env.Ctx, u); err != nil {
		t.Fatalf("insert user %s: %v", u.ID, err)
	}
	return u
}

func (env testEnv) addOrgMember(t *testing.T, org, userID string, admin bool) {
	t.Helper()
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := env.Engine.Repo.AddOrgMember(env.Ctx, tx, org, userID, admin); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func (env testEnv) createAppeal(t *testing.T, docket string) domain.Appeal {
	t.Helper()
	a, err := env.Engine.CreateAppeal(env.Ctx, engine.AppealCreateOptions{
		Docket:      docket,
		ReceiptDate: "2024-01-01",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("create %s appeal: %v", docket, err)
	}
	return a
}

func (env testEnv) tasksByType(t *testing.T, appealID string) map[string][]domain.Task {
	t.Helper()
	tasks, err := env.Engine.Repo.ListAppealTasks(env.Ctx, appealID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	byType := map[string][]domain.Task{}
	for _, tk := range tasks {
		byType[tk.Type] = append(byType[tk.Type], tk)
	}
	return byType
}

func (env testEnv) singleTask(t *testing.T, appealID, taskType string) domain.Task {
	t.Helper()
	tasks := env.tasksByType(t, appealID)[taskType]
	if len(tasks) != 1 {
		t.Fatalf("expected one %s task, got %d", taskType, len(tasks))
	}
	return tasks[0]
}

func TestCreateAppealHearingDocketTaskTree(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketHearing)

	root := env.singleTask(t, a.ID, domain.TaskTypeRoot)
	if root.ParentID != nil {
		t.Fatalf("root task should have no parent")
	}
	if root.AssignedToOrg == nil || *root.AssignedToOrg != config.OrgBva {
		t.Fatalf("root task should sit with %s", config.OrgBva)
	}
	hearing := env.singleTask(t, a.ID, domain.TaskTypeHearing)
	if hearing.ParentID == nil || *hearing.ParentID != root.ID {
		t.Fatalf("hearing task should hang off the root")
	}
	schedule := env.singleTask(t, a.ID, domain.TaskTypeScheduleHearing)
	if schedule.ParentID == nil || *schedule.ParentID != hearing.ID {
		t.Fatalf("schedule task should hang off the hearing task")
	}
	if schedule.AssignedToOrg == nil || *schedule.AssignedToOrg != config.OrgHearingsManagement {
		t.Fatalf("schedule task should sit with %s", config.OrgHearingsManagement)
	}
}

func TestCreateAppealEvidenceSubmissionWindow(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketEvidenceSubmission)

	root := env.singleTask(t, a.ID, domain.TaskTypeRoot)
	window := env.singleTask(t, a.ID, domain.TaskTypeEvidenceSubmissionWindow)
	if window.ParentID == nil || *window.ParentID != root.ID {
		t.Fatalf("evidence window should hang off the root")
	}
	if window.AssignedToOrg == nil || *window.AssignedToOrg != config.OrgMail {
		t.Fatalf("evidence window should sit with %s", config.OrgMail)
	}
}

func TestCreateAppealDirectReviewTarget(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketDirectReview)
	if a.TargetDecisionDate == nil {
		t.Fatalf("direct review appeal should carry a target decision date")
	}
	// receipt 2024-01-01 plus the 365 day decision goal
	if *a.TargetDecisionDate != "2024-12-31" {
		t.Fatalf("unexpected target decision date %s", *a.TargetDecisionDate)
	}
	if a.Stream != domain.StreamOriginal {
		t.Fatalf("stream should default to %s", domain.StreamOriginal)
	}
}

func TestCreateAppealUnknownDocket(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateAppeal(env.Ctx, engine.AppealCreateOptions{
		Docket:      "postcard",
		ReceiptDate: "2024-01-01",
		ActorID:     "tester",
	})
	if err == nil || !strings.Contains(err.Error(), "unknown docket") {
		t.Fatalf("expected unknown docket error, got %v", err)
	}
}

func TestCreateTaskRequiresAssignee(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketDirectReview)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		AppealID: a.ID,
		Type:     domain.TaskTypeGeneric,
		ActorID:  "tester",
	})
	if !errors.Is(err, engine.ErrNoAssignee) {
		t.Fatalf("expected ErrNoAssignee, got %v", err)
	}
}

func TestCreateTaskParentPolicy(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketDirectReview)
	root := env.singleTask(t, a.ID, domain.TaskTypeRoot)

	// disposition tasks only attach under a hearing task
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		AppealID:      a.ID,
		ParentID:      root.ID,
		Type:          domain.TaskTypeAssignHearingDisposition,
		AssignedToOrg: config.OrgBva,
		ActorID:       "tester",
	})
	if err == nil {
		t.Fatalf("expected parent policy rejection")
	}
}

func TestCreateTaskParentOnOtherAppeal(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketDirectReview)
	b := env.createAppeal(t, domain.DocketDirectReview)
	rootB := env.singleTask(t, b.ID, domain.TaskTypeRoot)

	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		AppealID:      a.ID,
		ParentID:      rootB.ID,
		Type:          domain.TaskTypeGeneric,
		AssignedToOrg: config.OrgBva,
		ActorID:       "tester",
	})
	if err == nil || !strings.Contains(err.Error(), "different appeal") {
		t.Fatalf("expected cross-appeal parent rejection, got %v", err)
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketDirectReview)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		AppealID:      a.ID,
		Type:          domain.TaskTypeGeneric,
		AssignedToOrg: config.OrgBva,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: domain.TaskStatusInProgress, ActorID: "tester"})
	if err != nil || task.Status != domain.TaskStatusInProgress {
		t.Fatalf("to in_progress: %v", err)
	}
	task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: domain.TaskStatusOnHold, ActorID: "tester"})
	if err != nil || task.Status != domain.TaskStatusOnHold {
		t.Fatalf("to on_hold: %v", err)
	}
	task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: domain.TaskStatusCompleted, ActorID: "tester"})
	if err != nil || task.Status != domain.TaskStatusCompleted {
		t.Fatalf("to completed: %v", err)
	}
	if task.ClosedAt == nil {
		t.Fatalf("completed task should carry closed_at")
	}
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: domain.TaskStatusAssigned, ActorID: "tester"})
	if err == nil || !strings.Contains(err.Error(), "invalid task status transition") {
		t.Fatalf("expected transition error, got %v", err)
	}
}

func TestCancelCascadesToOpenDescendants(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketHearing)
	root := env.singleTask(t, a.ID, domain.TaskTypeRoot)

	root, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID:      root.ID,
		Status:  domain.TaskStatusCancelled,
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("cancel root: %v", err)
	}
	if root.CancelledByID == nil || *root.CancelledByID != "tester" {
		t.Fatalf("cancelled task should record the actor")
	}
	tasks, err := env.Engine.Repo.ListAppealTasks(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	for _, tk := range tasks {
		if tk.Status != domain.TaskStatusCancelled {
			t.Fatalf("task %s (%s) should be cancelled, is %s", tk.ID, tk.Type, tk.Status)
		}
		if tk.ClosedAt == nil {
			t.Fatalf("task %s should carry closed_at", tk.ID)
		}
	}
}

func TestPlaceOnTimedHold(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketDirectReview)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		AppealID:      a.ID,
		Type:          domain.TaskTypeGeneric,
		AssignedToOrg: config.OrgBva,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	held, err := env.Engine.PlaceOnTimedHold(env.Ctx, task.ID, 30, []string{"awaiting records"}, "tester")
	if err != nil {
		t.Fatalf("timed hold: %v", err)
	}
	if held.Status != domain.TaskStatusOnHold {
		t.Fatalf("task should be on hold, is %s", held.Status)
	}
	if held.OnHoldDuration == nil || *held.OnHoldDuration != 30 {
		t.Fatalf("hold duration not recorded")
	}
	if held.PlacedOnHoldAt == nil {
		t.Fatalf("hold start not recorded")
	}
	if len(held.Instructions) != 1 || held.Instructions[0] != "awaiting records" {
		t.Fatalf("hold instructions not appended: %v", held.Instructions)
	}

	// resuming clears the hold fields
	resumed, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: domain.TaskStatusAssigned, ActorID: "tester"})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.OnHoldDuration != nil || resumed.PlacedOnHoldAt != nil {
		t.Fatalf("hold fields should clear on resume")
	}
}

func TestTimedHoldRejectsClosedTask(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketDirectReview)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		AppealID:      a.ID,
		Type:          domain.TaskTypeGeneric,
		AssignedToOrg: config.OrgBva,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: domain.TaskStatusCompleted, ActorID: "tester"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := env.Engine.PlaceOnTimedHold(env.Ctx, task.ID, 10, nil, "tester"); err == nil {
		t.Fatalf("expected hold rejection on closed task")
	}
}

func TestInstructionsAppendOnly(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketDirectReview)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		AppealID:      a.ID,
		Type:          domain.TaskTypeGeneric,
		AssignedToOrg: config.OrgBva,
		Instructions:  []string{"first"},
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Instructions: []string{"second"}, ActorID: "tester"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(task.Instructions) != 2 || task.Instructions[0] != "first" || task.Instructions[1] != "second" {
		t.Fatalf("instructions should append, got %v", task.Instructions)
	}
}

func TestUpdateTaskAssignment(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, domain.User{ID: "u-1", Handle: "casey"})
	a := env.createAppeal(t, domain.DocketDirectReview)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		AppealID:      a.ID,
		Type:          domain.TaskTypeGeneric,
		AssignedToOrg: config.OrgBva,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	assignee := u.ID
	task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, AssignTo: &assignee, ActorID: "tester"})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if task.AssignedToID == nil || *task.AssignedToID != u.ID {
		t.Fatalf("assignment not applied")
	}
	nobody := ""
	task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, AssignTo: &nobody, ActorID: "tester"})
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if task.AssignedToID != nil {
		t.Fatalf("empty assignment should clear the user")
	}
	ghost := "no-such-user"
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, AssignTo: &ghost, ActorID: "tester"}); err == nil {
		t.Fatalf("expected unknown assignee rejection")
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketHearing)
	events, err := env.Engine.Repo.ListEvents(env.Ctx, a.ID, 50)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	types := map[string]int{}
	for _, ev := range events {
		types[ev.Type]++
	}
	if types["appeal.created"] != 1 {
		t.Fatalf("expected one appeal.created event, got %d", types["appeal.created"])
	}
	// root, hearing, and schedule_hearing tasks each log creation
	if types["task.created"] < 3 {
		t.Fatalf("expected task.created events for the initial tree, got %d", types["task.created"])
	}
}
