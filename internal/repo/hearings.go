package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"boardflow/internal/domain"
)

func (r Repo) InsertSchedulePeriod(ctx context.Context, p domain.SchedulePeriod) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO schedule_periods(id,start_date,end_date,created_at) VALUES (?,?,?,?)`,
		p.ID, p.StartDate, p.EndDate, p.CreatedAt)
	return err
}

func (r Repo) GetSchedulePeriod(ctx context.Context, id string) (domain.SchedulePeriod, error) {
	var p domain.SchedulePeriod
	err := r.DB.QueryRowContext(ctx, `SELECT id,start_date,end_date,created_at FROM schedule_periods WHERE id=?`, id).
		Scan(&p.ID, &p.StartDate, &p.EndDate, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

const hearingDayColumns = `id,schedule_period_id,date,type,room,regional_office,judge_id`

func scanHearingDay(row interface{ Scan(...any) error }) (domain.HearingDay, error) {
	var (
		d        domain.HearingDay
		regional sql.NullString
		judge    sql.NullString
	)
	err := row.Scan(&d.ID, &d.SchedulePeriodID, &d.Date, &d.Type, &d.Room, &regional, &judge)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.RegionalOffice = optional(regional)
	d.JudgeID = optional(judge)
	return d, nil
}

func (r Repo) InsertHearingDay(ctx context.Context, d domain.HearingDay) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO hearing_days(`+hearingDayColumns+`) VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.SchedulePeriodID, d.Date, d.Type, d.Room, nullableString(d.RegionalOffice), nullableString(d.JudgeID))
	return err
}

func (r Repo) GetHearingDay(ctx context.Context, id string) (domain.HearingDay, error) {
	return scanHearingDay(r.DB.QueryRowContext(ctx, `SELECT `+hearingDayColumns+` FROM hearing_days WHERE id=?`, id))
}

// LoadDays returns all hearing days in [start, end], partitioned into
// video/central days and travel board days.
func (r Repo) LoadDays(ctx context.Context, start, end string) (videoCentral, travelBoard []domain.HearingDay, err error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+hearingDayColumns+` FROM hearing_days WHERE date>=? AND date<=? ORDER BY date, id`, start, end)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		d, err := scanHearingDay(rows)
		if err != nil {
			return nil, nil, err
		}
		if d.Type == domain.HearingDayTypeTravelBoard {
			travelBoard = append(travelBoard, d)
		} else {
			videoCentral = append(videoCentral, d)
		}
	}
	return videoCentral, travelBoard, rows.Err()
}

// AssignJudgeToDayTx writes a judge onto a hearing day, failing with
// ErrNotFound if the day was assigned by a concurrent run in the meantime.
func (r Repo) AssignJudgeToDayTx(ctx context.Context, tx *sql.Tx, dayID, judgeID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE hearing_days SET judge_id=? WHERE id=? AND judge_id IS NULL`, judgeID, dayID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("hearing day %s: %w", dayID, ErrNotFound)
	}
	return nil
}

func (r Repo) InsertNonAvailability(ctx context.Context, na domain.NonAvailability) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO non_availabilities(schedule_period_id,judge_handle,date) VALUES (?,?,?)
ON CONFLICT(schedule_period_id,judge_handle,date) DO NOTHING`,
		na.SchedulePeriodID, na.JudgeHandle, na.Date)
	return err
}

// ListNonAvailabilities returns per-judge non-availability date sets for a
// schedule period.
func (r Repo) ListNonAvailabilities(ctx context.Context, periodID string) (map[string][]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT judge_handle,date FROM non_availabilities WHERE schedule_period_id=? ORDER BY judge_handle, date`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]string{}
	for rows.Next() {
		var handle, date string
		if err := rows.Scan(&handle, &date); err != nil {
			return nil, err
		}
		res[handle] = append(res[handle], date)
	}
	return res, rows.Err()
}

func (r Repo) InsertTravelBoardDay(ctx context.Context, tb domain.TravelBoardDay) error {
	members, err := json.Marshal(tb.MemberIDs)
	if err != nil {
		return fmt.Errorf("marshal travel board members: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO travel_board_days(id,start_date,end_date,member_ids_json) VALUES (?,?,?,?)`,
		tb.ID, tb.StartDate, tb.EndDate, string(members))
	return err
}

func (r Repo) ListTravelBoardDays(ctx context.Context) ([]domain.TravelBoardDay, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,start_date,end_date,member_ids_json FROM travel_board_days ORDER BY start_date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TravelBoardDay
	for rows.Next() {
		var tb domain.TravelBoardDay
		var members string
		if err := rows.Scan(&tb.ID, &tb.StartDate, &tb.EndDate, &members); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(members), &tb.MemberIDs); err != nil {
			return nil, fmt.Errorf("travel board day %s members: %w", tb.ID, err)
		}
		res = append(res, tb)
	}
	return res, rows.Err()
}

const hearingColumns = `id,appeal_id,hearing_day_id,hearing_task_id,disposition,scheduled_time,evidence_window_waived,created_at`

func scanHearing(row interface{ Scan(...any) error }) (domain.Hearing, error) {
	var (
		h           domain.Hearing
		taskID      sql.NullString
		disposition sql.NullString
	)
	err := row.Scan(&h.ID, &h.AppealID, &h.HearingDayID, &taskID, &disposition, &h.ScheduledTime, &h.EvidenceWindowWaived, &h.CreatedAt)
	if err == sql.ErrNoRows {
		return h, ErrNotFound
	}
	if err != nil {
		return h, err
	}
	h.HearingTaskID = optional(taskID)
	h.Disposition = optional(disposition)
	return h, nil
}

func (r Repo) InsertHearing(ctx context.Context, tx *sql.Tx, h domain.Hearing) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO hearings(`+hearingColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		h.ID, h.AppealID, h.HearingDayID, nullableString(h.HearingTaskID), nullableString(h.Disposition),
		h.ScheduledTime, h.EvidenceWindowWaived, h.CreatedAt)
	return err
}

func (r Repo) GetHearing(ctx context.Context, id string) (domain.Hearing, error) {
	return scanHearing(r.DB.QueryRowContext(ctx, `SELECT `+hearingColumns+` FROM hearings WHERE id=?`, id))
}

// HearingForTask resolves the hearing associated with a hearing task.
func (r Repo) HearingForTask(ctx context.Context, hearingTaskID string) (domain.Hearing, error) {
	return scanHearing(r.DB.QueryRowContext(ctx, `SELECT `+hearingColumns+` FROM hearings WHERE hearing_task_id=?`, hearingTaskID))
}

func (r Repo) UpdateHearingDispositionTx(ctx context.Context, tx *sql.Tx, hearingID, disposition string) error {
	res, err := tx.ExecContext(ctx, `UPDATE hearings SET disposition=? WHERE id=?`, disposition, hearingID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
