package distribution_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"boardflow/internal/config"
	"boardflow/internal/db"
	"boardflow/internal/distribution"
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

func (env testEnv) addMember(t *testing.T, org, id, handle string, admin bool) {
	t.Helper()
	err := env.Engine.Repo.InsertUser(env.Ctx, domain.User{
		ID:        id,
		Handle:    handle,
		CreatedAt: "2024-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("insert user %s: %v", id, err)
	}
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := env.Engine.Repo.AddOrgMember(env.Ctx, tx, org, id, admin); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func (env testEnv) seedPool(t *testing.T, org string) {
	t.Helper()
	env.addMember(t, org, "u-1", "amy", false)
	env.addMember(t, org, "u-2", "ben", false)
	env.addMember(t, org, "u-3", "cat", false)
	env.addMember(t, org, "u-9", "dee", true)
}

func TestRoundRobinCyclesPool(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, config.OrgColocated)
	rr := &distribution.RoundRobin{DB: env.Engine.DB, Repo: env.Engine.Repo, OrgName: config.OrgColocated}

	// admins never enter the rotation; members come back around in id order
	want := []string{"u-1", "u-2", "u-3", "u-1", "u-2"}
	for i, expect := range want {
		u, err := rr.NextAssignee(env.Ctx, distribution.Request{TaskType: domain.TaskTypeGeneric})
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if u.ID != expect {
			t.Fatalf("pick %d should be %s, got %s", i, expect, u.ID)
		}
	}
}

func TestRoundRobinCursorSurvivesRestart(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, config.OrgColocated)

	first := &distribution.RoundRobin{DB: env.Engine.DB, Repo: env.Engine.Repo, OrgName: config.OrgColocated}
	u, err := first.NextAssignee(env.Ctx, distribution.Request{TaskType: domain.TaskTypeGeneric})
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u-1" {
		t.Fatalf("fresh rotation should start at u-1, got %s", u.ID)
	}

	second := &distribution.RoundRobin{DB: env.Engine.DB, Repo: env.Engine.Repo, OrgName: config.OrgColocated}
	u, err = second.NextAssignee(env.Ctx, distribution.Request{TaskType: domain.TaskTypeGeneric})
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u-2" {
		t.Fatalf("new instance should continue the rotation at u-2, got %s", u.ID)
	}
}

func TestRoundRobinSeedsFromLatestAssignment(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, config.OrgColocated)

	a, err := env.Engine.CreateAppeal(env.Ctx, engine.AppealCreateOptions{
		Docket:      domain.DocketDirectReview,
		ReceiptDate: "2024-01-01",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	// an existing rotation left off at u-2
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		AppealID:     a.ID,
		Type:         domain.TaskTypeGeneric,
		AssignedToID: "u-2",
		ActorID:      "tester",
	}); err != nil {
		t.Fatal(err)
	}

	rr := &distribution.RoundRobin{DB: env.Engine.DB, Repo: env.Engine.Repo, OrgName: config.OrgColocated}
	u, err := rr.NextAssignee(env.Ctx, distribution.Request{TaskType: domain.TaskTypeGeneric})
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u-3" {
		t.Fatalf("rotation should continue past u-2, got %s", u.ID)
	}
}

func TestColocatedAffinity(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, config.OrgColocated)

	a, err := env.Engine.CreateAppeal(env.Ctx, engine.AppealCreateOptions{
		Docket:      domain.DocketDirectReview,
		ReceiptDate: "2024-01-01",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		AppealID:     a.ID,
		Type:         domain.TaskTypeGeneric,
		AssignedToID: "u-3",
		ActorID:      "tester",
	}); err != nil {
		t.Fatal(err)
	}

	d := &distribution.Colocated{RoundRobin: distribution.RoundRobin{DB: env.Engine.DB, Repo: env.Engine.Repo, OrgName: config.OrgColocated}}
	// every request on this appeal sticks with its current holder
	for i := 0; i < 3; i++ {
		u, err := d.NextAssignee(env.Ctx, distribution.Request{AppealID: a.ID, TaskType: domain.TaskTypeGeneric})
		if err != nil {
			t.Fatal(err)
		}
		if u.ID != "u-3" {
			t.Fatalf("affinity should pick u-3, got %s", u.ID)
		}
	}
}

func TestColocatedFallsBackToRotation(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, config.OrgColocated)

	a, err := env.Engine.CreateAppeal(env.Ctx, engine.AppealCreateOptions{
		Docket:      domain.DocketDirectReview,
		ReceiptDate: "2024-01-01",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	d := &distribution.Colocated{RoundRobin: distribution.RoundRobin{DB: env.Engine.DB, Repo: env.Engine.Repo, OrgName: config.OrgColocated}}
	u, err := d.NextAssignee(env.Ctx, distribution.Request{AppealID: a.ID, TaskType: domain.TaskTypeGeneric})
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u-1" {
		t.Fatalf("no holder on the appeal, rotation should pick u-1, got %s", u.ID)
	}
}

func TestEmptyPool(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, config.OrgColocated, "u-9", "dee", true)

	rr := &distribution.RoundRobin{DB: env.Engine.DB, Repo: env.Engine.Repo, OrgName: config.OrgColocated}
	_, err := rr.NextAssignee(env.Ctx, distribution.Request{TaskType: domain.TaskTypeGeneric})
	if !errors.Is(err, distribution.ErrEmptyAssigneePool) {
		t.Fatalf("expected ErrEmptyAssigneePool, got %v", err)
	}
}
