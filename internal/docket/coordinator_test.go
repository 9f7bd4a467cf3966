package docket_test

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"boardflow/internal/config"
	"boardflow/internal/db"
	"boardflow/internal/docket"
	"boardflow/internal/domain"
	"boardflow/internal/migrate"
	"boardflow/internal/repo"
)

type testEnv struct {
	Coordinator *docket.Coordinator
	Repo        repo.Repo
	Ctx         context.Context
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
	r := repo.Repo{DB: conn}
	c := &docket.Coordinator{
		Repo:   r,
		Config: config.Default("test-board"),
		Now:    func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
	}
	return testEnv{Coordinator: c, Repo: r, Ctx: context.Background()}
}

func (env testEnv) addAppeal(t *testing.T, a domain.Appeal) {
	t.Helper()
	if a.Stream == "" {
		a.Stream = domain.StreamOriginal
	}
	if a.ReceiptDate == "" {
		a.ReceiptDate = "2023-06-01"
	}
	if a.CreatedAt == "" {
		a.CreatedAt = "2023-06-01T00:00:00Z"
	}
	tx, err := env.Repo.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := env.Repo.InsertAppeal(env.Ctx, tx, a); err != nil {
		t.Fatalf("insert appeal %s: %v", a.ID, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func (env testEnv) addAttorneys(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := env.Repo.InsertUser(env.Ctx, domain.User{
			ID:        fmt.Sprintf("atty-%02d", i),
			Handle:    fmt.Sprintf("attorney%02d", i),
			Attorney:  true,
			CreatedAt: "2023-06-01T00:00:00Z",
		})
		if err != nil {
			t.Fatalf("insert attorney: %v", err)
		}
	}
}

// seedCaseload builds the distribution snapshot the proportion examples work
// from: 20 attorneys, 10 ready priority appeals, 10 nonpriority legacy, due
// direct review cases, and 5 each on the evidence and hearing dockets.
func (env testEnv) seedCaseload(t *testing.T, dueDirectReview int) {
	t.Helper()
	env.addAttorneys(t, 20)
	ready := "2024-05-01T00:00:00Z"
	for i := 0; i < 10; i++ {
		env.addAppeal(t, domain.Appeal{
			ID:      fmt.Sprintf("prio-%03d", i),
			Docket:  domain.DocketEvidenceSubmission,
			AOD:     true,
			ReadyAt: &ready,
		})
	}
	for i := 0; i < 10; i++ {
		env.addAppeal(t, domain.Appeal{
			ID:      fmt.Sprintf("leg-%03d", i),
			Docket:  domain.DocketLegacy,
			ReadyAt: &ready,
		})
	}
	// targets inside the 30-day due window as of 2024-06-01
	target := "2024-06-15"
	for i := 0; i < dueDirectReview; i++ {
		env.addAppeal(t, domain.Appeal{
			ID:                 fmt.Sprintf("dr-%03d", i),
			Docket:             domain.DocketDirectReview,
			TargetDecisionDate: &target,
		})
	}
	for i := 0; i < 5; i++ {
		env.addAppeal(t, domain.Appeal{
			ID:     fmt.Sprintf("ev-%03d", i),
			Docket: domain.DocketEvidenceSubmission,
		})
	}
	for i := 0; i < 5; i++ {
		env.addAppeal(t, domain.Appeal{
			ID:     fmt.Sprintf("hr-%03d", i),
			Docket: domain.DocketHearing,
		})
	}
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestDocketProportionsCoverDueDirectReview(t *testing.T) {
	env := newTestEnv(t)
	env.seedCaseload(t, 10)

	props, err := env.Coordinator.DocketProportions(env.Ctx)
	if err != nil {
		t.Fatalf("proportions: %v", err)
	}
	// margin is 60 batch slots minus 10 priority; 10 due of 50 pins direct
	// review at 0.2 and the rest split 10:5:5
	want := map[string]float64{
		domain.DocketLegacy:             0.4,
		domain.DocketDirectReview:       0.2,
		domain.DocketEvidenceSubmission: 0.2,
		domain.DocketHearing:            0.2,
	}
	for d, w := range want {
		if !approx(props[d], w) {
			t.Fatalf("%s should be %v, got %v", d, w, props[d])
		}
	}
}

func TestDocketProportionsCapAndLegacyFloor(t *testing.T) {
	env := newTestEnv(t)
	env.seedCaseload(t, 170)

	props, err := env.Coordinator.DocketProportions(env.Ctx)
	if err != nil {
		t.Fatalf("proportions: %v", err)
	}
	// 170 due of 50 would take everything; the cap holds direct review at
	// 0.8 and legacy lands on exactly its 0.1 minimum
	want := map[string]float64{
		domain.DocketLegacy:             0.1,
		domain.DocketDirectReview:       0.8,
		domain.DocketEvidenceSubmission: 0.05,
		domain.DocketHearing:            0.05,
	}
	for d, w := range want {
		if !approx(props[d], w) {
			t.Fatalf("%s should be %v, got %v", d, w, props[d])
		}
	}
}

func TestLegacyFloorLimitedByReadyCaseload(t *testing.T) {
	env := newTestEnv(t)
	env.addAttorneys(t, 20)
	ready := "2024-05-01T00:00:00Z"
	for i := 0; i < 10; i++ {
		env.addAppeal(t, domain.Appeal{
			ID:      fmt.Sprintf("prio-%03d", i),
			Docket:  domain.DocketEvidenceSubmission,
			AOD:     true,
			ReadyAt: &ready,
		})
	}
	// a single ready legacy case cannot fill the 0.1 floor
	env.addAppeal(t, domain.Appeal{ID: "leg-only", Docket: domain.DocketLegacy, ReadyAt: &ready})
	target := "2024-06-15"
	for i := 0; i < 10; i++ {
		env.addAppeal(t, domain.Appeal{
			ID:                 fmt.Sprintf("dr-%03d", i),
			Docket:             domain.DocketDirectReview,
			TargetDecisionDate: &target,
		})
	}
	for i := 0; i < 5; i++ {
		env.addAppeal(t, domain.Appeal{ID: fmt.Sprintf("ev-%03d", i), Docket: domain.DocketEvidenceSubmission})
		env.addAppeal(t, domain.Appeal{ID: fmt.Sprintf("hr-%03d", i), Docket: domain.DocketHearing})
	}

	props, err := env.Coordinator.DocketProportions(env.Ctx)
	if err != nil {
		t.Fatalf("proportions: %v", err)
	}
	// floor relaxes to 1 fillable case of the 50-slot margin
	if !approx(props[domain.DocketLegacy], 0.02) {
		t.Fatalf("legacy should relax to 0.02, got %v", props[domain.DocketLegacy])
	}
	if !approx(props[domain.DocketEvidenceSubmission], 0.39) || !approx(props[domain.DocketHearing], 0.39) {
		t.Fatalf("remainder should split evenly, got %v / %v",
			props[domain.DocketEvidenceSubmission], props[domain.DocketHearing])
	}
}

func TestDocketProportionsSumToOne(t *testing.T) {
	env := newTestEnv(t)
	env.seedCaseload(t, 7)

	props, err := env.Coordinator.DocketProportions(env.Ctx)
	if err != nil {
		t.Fatalf("proportions: %v", err)
	}
	sum := 0.0
	for d, p := range props {
		if p < 0 || p > 1 {
			t.Fatalf("%s proportion out of range: %v", d, p)
		}
		sum += p
	}
	if !approx(sum, 1) {
		t.Fatalf("proportions should sum to 1, got %v", sum)
	}
}

func TestPacesettingProportion(t *testing.T) {
	env := newTestEnv(t)
	if got := env.Coordinator.PacesettingDirectReviewProportion(); !approx(got, 0.1) {
		t.Fatalf("pacesetting proportion should be 0.1, got %v", got)
	}
}

func TestInterpolatedMinimumFullyRampedWhenOverdue(t *testing.T) {
	env := newTestEnv(t)
	target := "2024-06-15" // due window already reached as of 2024-06-01
	env.addAppeal(t, domain.Appeal{
		ID:                 "dr-old",
		Docket:             domain.DocketDirectReview,
		TargetDecisionDate: &target,
	})

	got, err := env.Coordinator.InterpolatedMinimumDirectReviewProportion(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	// pacesetting 0.1 times the 0.67 adjustment, rounded to three places
	if !approx(got, 0.067) {
		t.Fatalf("interpolated minimum should be 0.067, got %v", got)
	}
}

func TestInterpolatedMinimumRampsDownForYoungDocket(t *testing.T) {
	env := newTestEnv(t)
	target := "2025-05-15" // nowhere near due
	env.addAppeal(t, domain.Appeal{
		ID:                 "dr-young",
		Docket:             domain.DocketDirectReview,
		TargetDecisionDate: &target,
	})

	got, err := env.Coordinator.InterpolatedMinimumDirectReviewProportion(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got >= 0.067 {
		t.Fatalf("young docket should interpolate below the full minimum, got %v", got)
	}
}

func TestTotalBatchSizeAndPriorityCounts(t *testing.T) {
	env := newTestEnv(t)
	env.seedCaseload(t, 10)

	batch, err := env.Coordinator.TotalBatchSize(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if batch != 60 {
		t.Fatalf("20 attorneys at 3 cases each should be 60, got %d", batch)
	}
	prio, err := env.Coordinator.PriorityCount(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if prio != 10 {
		t.Fatalf("expected 10 ready priority appeals, got %d", prio)
	}

	// tie one priority appeal to a judge; the genpop count excludes it
	judge := "j-1"
	ready := "2024-05-01T00:00:00Z"
	env.addAppeal(t, domain.Appeal{
		ID:          "prio-tied",
		Docket:      domain.DocketEvidenceSubmission,
		CAVC:        true,
		TiedJudgeID: &judge,
		ReadyAt:     &ready,
	})
	genpop, err := env.Coordinator.GenpopPriorityCount(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if genpop != 10 {
		t.Fatalf("genpop count should exclude the tied appeal, got %d", genpop)
	}
}

func TestTargetNumberOfAMAHearings(t *testing.T) {
	env := newTestEnv(t)
	env.seedCaseload(t, 10)

	// hearing proportion 0.2 of 1000 decisions per year
	got, err := env.Coordinator.TargetNumberOfAMAHearings(env.Ctx, 365)
	if err != nil {
		t.Fatal(err)
	}
	if got < 199 || got > 200 {
		t.Fatalf("expected about 200 hearings over a year, got %d", got)
	}
}

func TestMarkInRange(t *testing.T) {
	env := newTestEnv(t)
	near := "2024-06-20"
	far := "2025-06-20"
	env.addAppeal(t, domain.Appeal{ID: "hr-near", Docket: domain.DocketHearing, TargetDecisionDate: &near})
	env.addAppeal(t, domain.Appeal{ID: "hr-far", Docket: domain.DocketHearing, TargetDecisionDate: &far})

	upcoming, err := env.Coordinator.UpcomingAppealsInRange(env.Ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(upcoming) != 1 || upcoming[0].ID != "hr-near" {
		t.Fatalf("only the near appeal should be in range, got %+v", upcoming)
	}
	if err := env.Coordinator.MarkInRange(env.Ctx, []string{"hr-near"}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	a, err := env.Repo.GetAppeal(env.Ctx, "hr-near")
	if err != nil {
		t.Fatal(err)
	}
	if a.DocketRangeDate == nil || *a.DocketRangeDate != "2024-06-01" {
		t.Fatalf("range date not stamped")
	}
	// marked appeals drop out of the upcoming list
	upcoming, err = env.Coordinator.UpcomingAppealsInRange(env.Ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(upcoming) != 0 {
		t.Fatalf("marked appeal should not reappear, got %+v", upcoming)
	}
}
