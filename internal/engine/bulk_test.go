package engine_test

import (
	"errors"
	"testing"
	"time"

	"boardflow/internal/config"
	"boardflow/internal/domain"
	"boardflow/internal/engine"
)

func TestBulkAssignValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.BulkAssign(env.Ctx, engine.BulkAssignmentOptions{
		OrgName:        "warehouse",
		TaskType:       "sweeping",
		AssignedToID:   "nobody",
		Count:          0,
		RegionalOffice: "RO99",
	})
	var verr *engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := map[string]bool{}
	for _, fe := range verr.Errors {
		fields[fe.Field] = true
	}
	for _, want := range []string{"count", "task_type", "regional_office", "organization"} {
		if !fields[want] {
			t.Fatalf("expected %s error, got %+v", want, verr.Errors)
		}
	}
}

func TestBulkAssignRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, domain.User{ID: "u-out", Handle: "outsider"})
	env.addUser(t, domain.User{ID: "u-adm", Handle: "boss"})
	env.addOrgMember(t, config.OrgBva, "u-adm", true)
	_, err := env.Engine.BulkAssign(env.Ctx, engine.BulkAssignmentOptions{
		OrgName:      config.OrgBva,
		TaskType:     domain.TaskTypeGeneric,
		AssignedToID: "u-out",
		AssignedByID: "u-adm",
		Count:        1,
	})
	var verr *engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Errors) != 1 || verr.Errors[0].Field != "assigned_to" {
		t.Fatalf("expected assigned_to error, got %+v", verr.Errors)
	}
}

func TestBulkAssignRequiresAdminAssigner(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, domain.User{ID: "u-1", Handle: "worker"})
	env.addUser(t, domain.User{ID: "u-2", Handle: "peer"})
	env.addOrgMember(t, config.OrgBva, "u-1", false)
	env.addOrgMember(t, config.OrgBva, "u-2", false)

	opts := engine.BulkAssignmentOptions{
		OrgName:      config.OrgBva,
		TaskType:     domain.TaskTypeGeneric,
		AssignedToID: "u-1",
		Count:        1,
	}
	_, err := env.Engine.BulkAssign(env.Ctx, opts)
	var verr *engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for missing assigner, got %v", err)
	}
	if len(verr.Errors) != 1 || verr.Errors[0].Field != "assigned_by" {
		t.Fatalf("expected assigned_by error, got %+v", verr.Errors)
	}

	opts.AssignedByID = "u-2"
	_, err = env.Engine.BulkAssign(env.Ctx, opts)
	verr = nil
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for non-admin assigner, got %v", err)
	}
	if len(verr.Errors) != 1 || verr.Errors[0].Field != "assigned_by" {
		t.Fatalf("expected assigned_by error, got %+v", verr.Errors)
	}
}

func TestBulkAssignFiltersByRegionalOffice(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, domain.User{ID: "u-1", Handle: "worker"})
	env.addUser(t, domain.User{ID: "u-9", Handle: "boss"})
	env.addOrgMember(t, config.OrgBva, "u-1", false)
	env.addOrgMember(t, config.OrgBva, "u-9", true)

	offices := map[string]string{"a-den1": "RO17", "a-den2": "RO17", "a-phl": "RO22"}
	for id, office := range offices {
		if _, err := env.Engine.CreateAppeal(env.Ctx, engine.AppealCreateOptions{
			ID:             id,
			Docket:         domain.DocketDirectReview,
			ReceiptDate:    "2024-01-01",
			RegionalOffice: office,
			ActorID:        "tester",
		}); err != nil {
			t.Fatalf("create appeal %s: %v", id, err)
		}
		if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
			AppealID:      id,
			Type:          domain.TaskTypeGeneric,
			AssignedToOrg: config.OrgBva,
			ActorID:       "tester",
		}); err != nil {
			t.Fatalf("queue task for %s: %v", id, err)
		}
	}

	created, err := env.Engine.BulkAssign(env.Ctx, engine.BulkAssignmentOptions{
		OrgName:        config.OrgBva,
		TaskType:       domain.TaskTypeGeneric,
		AssignedToID:   "u-1",
		AssignedByID:   "u-9",
		Count:          5,
		RegionalOffice: "RO17",
	})
	if err != nil {
		t.Fatalf("bulk assign: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected the two RO17 tasks, got %d", len(created))
	}
	for _, c := range created {
		if offices[c.AppealID] != "RO17" {
			t.Fatalf("assigned a task outside RO17: appeal %s", c.AppealID)
		}
	}
}

func TestBulkAssignPriorityOrdering(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, domain.User{ID: "u-1", Handle: "worker"})
	env.addUser(t, domain.User{ID: "u-9", Handle: "boss"})
	env.addOrgMember(t, config.OrgBva, "u-1", false)
	env.addOrgMember(t, config.OrgBva, "u-9", true)

	// advance the clock per call so queue order is stable
	tick := 0
	env.Engine.Now = func() time.Time {
		tick++
		return time.Date(2024, 1, 1, 0, 0, tick, 0, time.UTC)
	}

	type caseSpec struct {
		id   string
		aod  bool
		cavc bool
	}
	// intake order: two ordinary cases, then the priority ones
	specs := []caseSpec{
		{id: "a-old", aod: false, cavc: false},
		{id: "a-mid", aod: false, cavc: false},
		{id: "a-cavc", aod: false, cavc: true},
		{id: "a-aod", aod: true, cavc: false},
	}
	for _, s := range specs {
		if _, err := env.Engine.CreateAppeal(env.Ctx, engine.AppealCreateOptions{
			ID:          s.id,
			Docket:      domain.DocketDirectReview,
			ReceiptDate: "2024-01-01",
			AOD:         s.aod,
			CAVC:        s.cavc,
			ActorID:     "tester",
		}); err != nil {
			t.Fatalf("create appeal %s: %v", s.id, err)
		}
		if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
			AppealID:      s.id,
			Type:          domain.TaskTypeGeneric,
			AssignedToOrg: config.OrgBva,
			ActorID:       "tester",
		}); err != nil {
			t.Fatalf("queue task for %s: %v", s.id, err)
		}
	}

	created, err := env.Engine.BulkAssign(env.Ctx, engine.BulkAssignmentOptions{
		OrgName:      config.OrgBva,
		TaskType:     domain.TaskTypeGeneric,
		AssignedToID: "u-1",
		AssignedByID: "u-9",
		Count:        3,
	})
	if err != nil {
		t.Fatalf("bulk assign: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(created))
	}
	// AOD first, CAVC second, oldest ordinary case third
	wantOrder := []string{"a-aod", "a-cavc", "a-old"}
	for i, want := range wantOrder {
		if created[i].AppealID != want {
			t.Fatalf("assignment %d should be %s, got %s", i, want, created[i].AppealID)
		}
		if created[i].AssignedToID == nil || *created[i].AssignedToID != "u-1" {
			t.Fatalf("assignment %d should go to u-1", i)
		}
		if created[i].ParentID == nil {
			t.Fatalf("assignment %d should be a child of the queue task", i)
		}
	}
}
