package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"boardflow/internal/domain"
)

const appealColumns = `id,docket,stream,receipt_date,target_decision_date,aod,cavc,tied_judge_id,ready_at,docket_range_date,regional_office,created_at`

func scanAppeal(row interface{ Scan(...any) error }) (domain.Appeal, error) {
	var (
		a          domain.Appeal
		target     sql.NullString
		tiedJudge  sql.NullString
		readyAt    sql.NullString
		rangeDate  sql.NullString
		regionalRO sql.NullString
	)
	err := row.Scan(&a.ID, &a.Docket, &a.Stream, &a.ReceiptDate, &target, &a.AOD, &a.CAVC, &tiedJudge, &readyAt, &rangeDate, &regionalRO, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.TargetDecisionDate = optional(target)
	a.TiedJudgeID = optional(tiedJudge)
	a.ReadyAt = optional(readyAt)
	a.DocketRangeDate = optional(rangeDate)
	a.RegionalOffice = optional(regionalRO)
	return a, nil
}

func (r Repo) InsertAppeal(ctx context.Context, tx *sql.Tx, a domain.Appeal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO appeals(`+appealColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Docket, a.Stream, a.ReceiptDate, nullableString(a.TargetDecisionDate), a.AOD, a.CAVC,
		nullableString(a.TiedJudgeID), nullableString(a.ReadyAt), nullableString(a.DocketRangeDate),
		nullableString(a.RegionalOffice), a.CreatedAt)
	return err
}

func (r Repo) GetAppeal(ctx context.Context, id string) (domain.Appeal, error) {
	return scanAppeal(r.DB.QueryRowContext(ctx, `SELECT `+appealColumns+` FROM appeals WHERE id=?`, id))
}

// KnownRegionalOffice reports whether any appeal or hearing day carries the
// office. There is no separate office registry; the caseload is the registry.
func (r Repo) KnownRegionalOffice(ctx context.Context, office string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM appeals WHERE regional_office=?) + (SELECT COUNT(*) FROM hearing_days WHERE regional_office=?)`,
		office, office).Scan(&n)
	return n > 0, err
}

func (r Repo) queryAppeals(ctx context.Context, query string, args ...any) ([]domain.Appeal, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Appeal
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountNonpriority returns the per-docket count of non-priority appeals,
// the docket weights for proportion allocation.
func (r Repo) CountNonpriority(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT docket, COUNT(*) FROM appeals WHERE aod=0 AND cavc=0 GROUP BY docket`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for _, d := range domain.Dockets {
		counts[d] = 0
	}
	for rows.Next() {
		var docket string
		var n int
		if err := rows.Scan(&docket, &n); err != nil {
			return nil, err
		}
		counts[docket] = n
	}
	return counts, rows.Err()
}

// CountPriorityReady counts priority appeals ready for distribution across
// all dockets. The genpop variant excludes appeals tied to a judge.
func (r Repo) CountPriorityReady(ctx context.Context, genpopOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM appeals WHERE (aod=1 OR cavc=1) AND ready_at IS NOT NULL`
	if genpopOnly {
		query += ` AND tied_judge_id IS NULL`
	}
	var n int
	err := r.DB.QueryRowContext(ctx, query).Scan(&n)
	return n, err
}

// CountLegacyNonpriorityReady supports the legacy proportion floor relaxation.
func (r Repo) CountLegacyNonpriorityReady(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appeals WHERE docket=? AND aod=0 AND cavc=0 AND ready_at IS NOT NULL`,
		domain.DocketLegacy).Scan(&n)
	return n, err
}

// CountDirectReviewDue counts direct review appeals whose decision target is
// within the due window as of the given date.
func (r Repo) CountDirectReviewDue(ctx context.Context, dueBy string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appeals WHERE docket=? AND target_decision_date IS NOT NULL AND target_decision_date<=?`,
		domain.DocketDirectReview, dueBy).Scan(&n)
	return n, err
}

// OldestDirectReviewTarget returns the earliest direct review target decision
// date, or ErrNotFound when the docket is empty.
func (r Repo) OldestDirectReviewTarget(ctx context.Context) (string, error) {
	var target sql.NullString
	err := r.DB.QueryRowContext(ctx,
		`SELECT MIN(target_decision_date) FROM appeals WHERE docket=? AND target_decision_date IS NOT NULL`,
		domain.DocketDirectReview).Scan(&target)
	if err != nil {
		return "", err
	}
	if !target.Valid {
		return "", ErrNotFound
	}
	return target.String, nil
}

// AppealsInRange returns appeals of a docket with a target decision date on
// or before the window end that have not yet been marked in range.
func (r Repo) AppealsInRange(ctx context.Context, docket, windowEnd string) ([]domain.Appeal, error) {
	return r.queryAppeals(ctx,
		`SELECT `+appealColumns+` FROM appeals WHERE docket=? AND target_decision_date IS NOT NULL AND target_decision_date<=? AND docket_range_date IS NULL ORDER BY target_decision_date, id`,
		docket, windowEnd)
}

// MarkInRange stamps appeals with the docket range date; already-marked rows
// are untouched, so marking is idempotent.
func (r Repo) MarkInRange(ctx context.Context, appealIDs []string, rangeDate string) error {
	if len(appealIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(appealIDs)), ",")
	args := []any{rangeDate}
	for _, id := range appealIDs {
		args = append(args, id)
	}
	_, err := r.DB.ExecContext(ctx,
		`UPDATE appeals SET docket_range_date=? WHERE id IN (`+placeholders+`) AND docket_range_date IS NULL`, args...)
	return err
}

func (r Repo) InsertDecisionIssue(ctx context.Context, di domain.DecisionIssue) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO decision_issues(id,appeal_id,description) VALUES (?,?,?)`,
		di.ID, di.AppealID, nullable(di.Description))
	return err
}

func (r Repo) ListDecisionIssueIDs(ctx context.Context, appealID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM decision_issues WHERE appeal_id=? ORDER BY id`, appealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) InsertCavcRemand(ctx context.Context, tx *sql.Tx, c domain.CavcRemand) error {
	issueIDs, err := json.Marshal(c.DecisionIssueIDs)
	if err != nil {
		return fmt.Errorf("marshal decision issue ids: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO cavc_remands(id,appeal_id,cavc_docket_number,decision_type,remand_subtype,judge_name,decision_date,judgement_date,mandate_date,decision_issue_ids_json,instructions,remand_appeal_id,created_by_id,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.AppealID, c.CavcDocketNumber, c.DecisionType, nullableString(c.RemandSubtype), c.JudgeName,
		c.DecisionDate, nullableString(c.JudgementDate), nullableString(c.MandateDate), string(issueIDs),
		c.Instructions, nullableString(c.RemandAppealID), c.CreatedByID, c.CreatedAt)
	return err
}

func (r Repo) GetCavcRemand(ctx context.Context, id string) (domain.CavcRemand, error) {
	var (
		c         domain.CavcRemand
		subtype   sql.NullString
		judgement sql.NullString
		mandate   sql.NullString
		remandID  sql.NullString
		issueIDs  string
	)
	err := r.DB.QueryRowContext(ctx, `SELECT id,appeal_id,cavc_docket_number,decision_type,remand_subtype,judge_name,decision_date,judgement_date,mandate_date,decision_issue_ids_json,instructions,remand_appeal_id,created_by_id,created_at FROM cavc_remands WHERE id=?`, id).
		Scan(&c.ID, &c.AppealID, &c.CavcDocketNumber, &c.DecisionType, &subtype, &c.JudgeName,
			&c.DecisionDate, &judgement, &mandate, &issueIDs, &c.Instructions, &remandID, &c.CreatedByID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.RemandSubtype = optional(subtype)
	c.JudgementDate = optional(judgement)
	c.MandateDate = optional(mandate)
	c.RemandAppealID = optional(remandID)
	if err := json.Unmarshal([]byte(issueIDs), &c.DecisionIssueIDs); err != nil {
		return c, fmt.Errorf("cavc remand %s issue ids: %w", c.ID, err)
	}
	return c, nil
}
