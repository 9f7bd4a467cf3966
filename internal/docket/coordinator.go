// Package docket computes how each docket shares the board's decision
// capacity and tracks which hearing-docket appeals are coming into range.
package docket

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"boardflow/internal/config"
	"boardflow/internal/domain"
	"boardflow/internal/repo"
)

const dateLayout = "2006-01-02"

// Coordinator derives docket proportions from the current caseload and the
// configured decision rates.
type Coordinator struct {
	Repo   repo.Repo
	Config *config.Config
	Now    func() time.Time
	Logger *slog.Logger
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// DocketProportions returns each docket's share of the next distribution
// batch, rounded to three decimals and summing to exactly 1.
//
// The direct review docket is pinned first: enough to cover the decisions
// coming due within the goal window, never below the interpolated minimum
// that keeps pace with intake, and never above the configured maximum. The
// remainder is split across the other dockets in proportion to their
// pending nonpriority caseloads. When that leaves the legacy docket below
// its configured floor, legacy is pinned too, at the floor or at what its
// ready caseload can actually fill, whichever is smaller.
func (c *Coordinator) DocketProportions(ctx context.Context) (map[string]float64, error) {
	weights, err := c.Repo.CountNonpriority(ctx)
	if err != nil {
		return nil, err
	}
	margin, err := c.nonpriorityDecisionMargin(ctx)
	if err != nil {
		return nil, err
	}
	direct, err := c.directReviewProportion(ctx, margin)
	if err != nil {
		return nil, err
	}
	fixed := map[string]float64{domain.DocketDirectReview: direct}
	proportions := addFixedProportions(weights, fixed)

	if proportions[domain.DocketLegacy] < c.Config.Docket.MinimumLegacy {
		legacy := c.Config.Docket.MinimumLegacy
		if margin > 0 {
			ready, err := c.Repo.CountLegacyNonpriorityReady(ctx)
			if err != nil {
				return nil, err
			}
			if fillable := float64(ready) / float64(margin); fillable < legacy {
				legacy = fillable
			}
		}
		fixed[domain.DocketLegacy] = legacy
		proportions = addFixedProportions(weights, fixed)
	}
	out := normalize(proportions)
	if c.Logger != nil {
		c.Logger.Debug("computed docket proportions",
			"direct_review", out[domain.DocketDirectReview],
			"legacy", out[domain.DocketLegacy],
			"evidence_submission", out[domain.DocketEvidenceSubmission],
			"hearing", out[domain.DocketHearing])
	}
	return out, nil
}

// directReviewProportion covers the due count within the decision margin,
// clamped between the interpolated minimum and the configured maximum.
func (c *Coordinator) directReviewProportion(ctx context.Context, margin int) (float64, error) {
	dueBy := c.now().AddDate(0, 0, c.Config.Docket.DaysBeforeGoalDue).Format(dateLayout)
	due, err := c.Repo.CountDirectReviewDue(ctx, dueBy)
	if err != nil {
		return 0, err
	}
	maximum := c.Config.Docket.MaximumDirectReview
	needed := maximum
	if margin > 0 {
		needed = float64(due) / float64(margin)
	} else if due == 0 {
		needed = 0
	}
	minimum, err := c.InterpolatedMinimumDirectReviewProportion(ctx)
	if err != nil {
		return 0, err
	}
	return math.Min(math.Max(needed, minimum), maximum), nil
}

// PacesettingDirectReviewProportion is the share of decision capacity that
// intake alone would demand: receipts over decisions, both per year.
func (c *Coordinator) PacesettingDirectReviewProportion() float64 {
	return float64(c.Config.Docket.NonpriorityReceiptsPerYear) /
		float64(c.Config.Docket.NonpriorityDecisionsPerYear)
}

// InterpolatedMinimumDirectReviewProportion ramps the pacesetting proportion
// in as the oldest direct review appeal approaches its due date, discounted
// by the configured adjustment so the other dockets are not starved early.
func (c *Coordinator) InterpolatedMinimumDirectReviewProportion(ctx context.Context) (float64, error) {
	interpolator := 1.0
	oldest, err := c.Repo.OldestDirectReviewTarget(ctx)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return 0, err
	}
	if err == nil && oldest != "" {
		target, err := time.Parse(dateLayout, oldest)
		if err != nil {
			return 0, err
		}
		due := target.AddDate(0, 0, -c.Config.Docket.DaysBeforeGoalDue)
		oldestDueIn := due.Sub(c.now()).Hours() / 24
		newDueIn := float64(c.Config.Docket.DaysToDecisionGoal - c.Config.Docket.DaysBeforeGoalDue)
		interpolator = clamp01(1 - oldestDueIn/newDueIn)
	}
	return round3(c.PacesettingDirectReviewProportion() * interpolator * c.Config.Docket.InterpolatedAdjustment), nil
}

// nonpriorityDecisionMargin is how much of the next batch remains after
// priority appeals take their cut off the top.
func (c *Coordinator) nonpriorityDecisionMargin(ctx context.Context) (int, error) {
	batch, err := c.TotalBatchSize(ctx)
	if err != nil {
		return 0, err
	}
	priority, err := c.PriorityCount(ctx)
	if err != nil {
		return 0, err
	}
	if margin := batch - priority; margin > 0 {
		return margin, nil
	}
	return 0, nil
}

// TotalBatchSize is the board's decision capacity for one distribution:
// every attorney times the configured cases per attorney.
func (c *Coordinator) TotalBatchSize(ctx context.Context) (int, error) {
	attorneys, err := c.Repo.CountAttorneys(ctx)
	if err != nil {
		return 0, err
	}
	return attorneys * c.Config.Docket.CasesPerAttorney, nil
}

// PriorityCount is the number of priority appeals ready for distribution.
func (c *Coordinator) PriorityCount(ctx context.Context) (int, error) {
	return c.Repo.CountPriorityReady(ctx, false)
}

// GenpopPriorityCount excludes priority appeals tied to a specific judge.
func (c *Coordinator) GenpopPriorityCount(ctx context.Context) (int, error) {
	return c.Repo.CountPriorityReady(ctx, true)
}

// TargetNumberOfAMAHearings is how many hearings must be held over the given
// number of days for the hearing docket to keep up with its proportion of
// decisions.
func (c *Coordinator) TargetNumberOfAMAHearings(ctx context.Context, days int) (int, error) {
	proportions, err := c.DocketProportions(ctx)
	if err != nil {
		return 0, err
	}
	perDay := float64(c.Config.Docket.NonpriorityDecisionsPerYear) / 365
	return int(perDay * float64(days) * proportions[domain.DocketHearing]), nil
}

// UpcomingAppealsInRange lists hearing-docket appeals whose decision target
// falls within the window and that have not yet been marked in range.
func (c *Coordinator) UpcomingAppealsInRange(ctx context.Context, days int) ([]domain.Appeal, error) {
	windowEnd := c.now().AddDate(0, 0, days).Format(dateLayout)
	return c.Repo.AppealsInRange(ctx, domain.DocketHearing, windowEnd)
}

// MarkInRange stamps the given appeals with today's docket range date.
// Already-stamped appeals keep their original date.
func (c *Coordinator) MarkInRange(ctx context.Context, appealIDs []string) error {
	return c.Repo.MarkInRange(ctx, appealIDs, c.now().Format(dateLayout))
}

// addFixedProportions pins the fixed dockets at their given shares and
// splits what is left across the rest in proportion to their weights.
func addFixedProportions(weights map[string]int, fixed map[string]float64) map[string]float64 {
	remainder := 1.0
	for _, p := range fixed {
		remainder -= p
	}
	if remainder < 0 {
		remainder = 0
	}
	total := 0
	for docket, w := range weights {
		if _, ok := fixed[docket]; !ok {
			total += w
		}
	}
	out := make(map[string]float64, len(weights))
	for docket, w := range weights {
		if p, ok := fixed[docket]; ok {
			out[docket] = p
		} else if total > 0 {
			out[docket] = remainder * float64(w) / float64(total)
		} else {
			out[docket] = 0
		}
	}
	return out
}

// normalize rounds each share to three decimals and hands any leftover to
// the largest bucket so the result sums to exactly 1.
func normalize(proportions map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(proportions))
	sum := 0.0
	largest := ""
	for docket, p := range proportions {
		out[docket] = round3(p)
		sum += out[docket]
		if largest == "" || out[docket] > out[largest] {
			largest = docket
		}
	}
	if largest != "" {
		out[largest] = round3(out[largest] + 1 - sum)
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
