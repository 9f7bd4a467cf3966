// Package schedule allocates judges onto the hearing days of a schedule
// period, honoring per-judge non-availability dates and travel board
// blackouts.
package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"boardflow/internal/config"
	"boardflow/internal/domain"
	"boardflow/internal/events"
	"boardflow/internal/repo"
)

var (
	// ErrHearingDaysNotAllocated means the period has no unassigned video or
	// central days to hand out.
	ErrHearingDaysNotAllocated = errors.New("schedule period has no hearing days awaiting a judge")
	// ErrNoJudgesProvided means no judges exist to assign.
	ErrNoJudgesProvided = errors.New("no judges available to assign")
)

// CannotAssignJudgesError reports a sweep that stalled: a full pass over the
// judges placed nobody on any of the remaining days.
type CannotAssignJudgesError struct {
	Remaining int
}

func (e *CannotAssignJudgesError) Error() string {
	return fmt.Sprintf("cannot assign judges to %d remaining hearing days", e.Remaining)
}

// JudgeAssignment pairs one hearing day with the judge chosen for it.
type JudgeAssignment struct {
	HearingDayID   string  `json:"hearing_day_id"`
	Type           string  `json:"type"`
	Date           string  `json:"date"`
	Room           string  `json:"room,omitempty"`
	RegionalOffice *string `json:"regional_office,omitempty"`
	JudgeID        string  `json:"judge_id"`
	JudgeName      string  `json:"judge_name"`
}

// Assigner plans and applies judge-to-day allocations for a schedule period.
type Assigner struct {
	DB     *sql.DB
	Repo   repo.Repo
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time
	// Rand drives the one-time shuffle of the day list. Tests inject a
	// seeded source; nil falls back to the global source.
	Rand *rand.Rand
}

const dateLayout = "2006-01-02"

// Plan computes the allocation without touching the database. Days are
// shuffled once so room assignment does not always favor the same offices,
// then judges are swept most-constrained-first, each taking the first
// remaining day they can sit.
func (a *Assigner) Plan(ctx context.Context, periodID string) ([]JudgeAssignment, error) {
	period, err := a.Repo.GetSchedulePeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	judges, err := a.Repo.ListJudges(ctx)
	if err != nil {
		return nil, err
	}
	if len(judges) == 0 {
		return nil, ErrNoJudgesProvided
	}
	videoCentral, _, err := a.Repo.LoadDays(ctx, period.StartDate, period.EndDate)
	if err != nil {
		return nil, err
	}
	na, err := a.nonAvailability(ctx, period, judges)
	if err != nil {
		return nil, err
	}
	days := filterAssignable(videoCentral, na)
	if len(days) == 0 {
		return nil, ErrHearingDaysNotAllocated
	}
	shuffle := rand.Shuffle
	if a.Rand != nil {
		shuffle = a.Rand.Shuffle
	}
	shuffle(len(days), func(i, j int) { days[i], days[j] = days[j], days[i] })

	// Most-constrained judges pick first so their few open dates are not
	// taken by judges who could sit anywhere.
	sort.SliceStable(judges, func(i, j int) bool {
		return len(na[judges[i].ID]) > len(na[judges[j].ID])
	})
	return sweep(days, judges, na)
}

// sweep hands out days round by round, one day per judge per round, until
// every day is assigned or a full round places nobody.
func sweep(days []domain.HearingDay, judges []domain.User, na map[string]map[string]bool) ([]JudgeAssignment, error) {
	assignments := make([]JudgeAssignment, 0, len(days))
	taken := make([]bool, len(days))
	remaining := len(days)
	for remaining > 0 {
		assignedThisRound := 0
		for _, judge := range judges {
			if remaining == 0 {
				break
			}
			for i, day := range days {
				if taken[i] || na[judge.ID][day.Date] {
					continue
				}
				taken[i] = true
				remaining--
				assignedThisRound++
				assignments = append(assignments, JudgeAssignment{
					HearingDayID:   day.ID,
					Type:           day.Type,
					Date:           day.Date,
					Room:           day.Room,
					RegionalOffice: day.RegionalOffice,
					JudgeID:        judge.ID,
					JudgeName:      judge.DisplayName(),
				})
				// One day per judge per round keeps the load even.
				break
			}
		}
		if assignedThisRound == 0 {
			return nil, &CannotAssignJudgesError{Remaining: remaining}
		}
	}
	return assignments, nil
}

// Apply persists a planned allocation in one transaction. Each write guards
// against a concurrent run having already claimed the day.
func (a *Assigner) Apply(ctx context.Context, periodID string, assignments []JudgeAssignment, actorID string) error {
	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	w := events.Writer{DB: a.DB, Now: a.Now}
	for _, as := range assignments {
		if err := a.Repo.AssignJudgeToDayTx(ctx, tx, as.HearingDayID, as.JudgeID); err != nil {
			return err
		}
		if err := w.Append(ctx, tx, "hearing_day.judge_assigned", "", "hearing_day", as.HearingDayID, actorID, events.EventPayload{
			"judge_id": as.JudgeID,
			"date":     as.Date,
		}); err != nil {
			return err
		}
		if a.Logger != nil {
			a.Logger.Info("assigned judge to hearing day",
				"period", periodID,
				"hearing_day", as.HearingDayID,
				"date", as.Date,
				"judge", as.JudgeID)
		}
	}
	return tx.Commit()
}

// nonAvailability builds the per-judge blocked-date sets: the entered
// non-availability dates, travel board blackouts padded with business days
// on both sides, and the dates of days a judge was assigned by hand.
func (a *Assigner) nonAvailability(ctx context.Context, period domain.SchedulePeriod, judges []domain.User) (map[string]map[string]bool, error) {
	blocked := make(map[string]map[string]bool, len(judges))
	byHandle := make(map[string]string, len(judges))
	for _, j := range judges {
		blocked[j.ID] = map[string]bool{}
		byHandle[j.Handle] = j.ID
	}
	entered, err := a.Repo.ListNonAvailabilities(ctx, period.ID)
	if err != nil {
		return nil, err
	}
	for handle, dates := range entered {
		id, ok := byHandle[handle]
		if !ok {
			continue
		}
		for _, d := range dates {
			blocked[id][d] = true
		}
	}
	padding := 0
	if a.Config != nil {
		padding = a.Config.Hearings.TravelBoardPaddingDays
	}
	tbs, err := a.Repo.ListTravelBoardDays(ctx)
	if err != nil {
		return nil, err
	}
	for _, tb := range tbs {
		start, err := time.Parse(dateLayout, tb.StartDate)
		if err != nil {
			return nil, fmt.Errorf("travel board %s start date: %w", tb.ID, err)
		}
		end, err := time.Parse(dateLayout, tb.EndDate)
		if err != nil {
			return nil, fmt.Errorf("travel board %s end date: %w", tb.ID, err)
		}
		from := addBusinessDays(start, -padding)
		to := addBusinessDays(end, padding)
		for _, memberID := range tb.MemberIDs {
			set, ok := blocked[memberID]
			if !ok {
				continue
			}
			for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
				if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
					continue
				}
				set[d.Format(dateLayout)] = true
			}
		}
	}
	return blocked, nil
}

// filterAssignable drops days that already carry a judge, adding each such
// date to that judge's blocked set, and drops central days falling outside
// Wednesday, the only weekday central hearings run.
func filterAssignable(days []domain.HearingDay, na map[string]map[string]bool) []domain.HearingDay {
	out := days[:0]
	for _, day := range days {
		if day.JudgeID != nil {
			if set, ok := na[*day.JudgeID]; ok {
				set[day.Date] = true
			}
			continue
		}
		if day.RegionalOffice == nil && !isWednesday(day.Date) {
			continue
		}
		out = append(out, day)
	}
	return out
}

func isWednesday(date string) bool {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return false
	}
	return t.Weekday() == time.Wednesday
}

// addBusinessDays moves n business days forward (or backward when negative),
// skipping weekends.
func addBusinessDays(t time.Time, n int) time.Time {
	step := 1
	if n < 0 {
		step = -1
		n = -n
	}
	for n > 0 {
		t = t.AddDate(0, 0, step)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return t
}
