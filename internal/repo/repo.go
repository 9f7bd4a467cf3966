package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"boardflow/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const userColumns = `id,handle,COALESCE(full_name,''),COALESCE(first_name,''),COALESCE(middle_initial,''),COALESCE(last_name,''),judge,attorney,created_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Handle, &u.FullName, &u.FirstName, &u.MiddleInitial, &u.LastName, &u.Judge, &u.Attorney, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,handle,full_name,first_name,middle_initial,last_name,judge,attorney,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Handle, nullable(u.FullName), nullable(u.FirstName), nullable(u.MiddleInitial), nullable(u.LastName), u.Judge, u.Attorney, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByHandle(ctx context.Context, handle string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE handle=?`, handle))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	return r.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

// ListJudges returns users flagged as judges, keyed by handle order.
func (r Repo) ListJudges(ctx context.Context) ([]domain.User, error) {
	return r.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE judge=1 ORDER BY id`)
}

// CountAttorneys is the input for total decision batch capacity.
func (r Repo) CountAttorneys(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE attorney=1`).Scan(&n)
	return n, err
}

func (r Repo) queryUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) EnsureOrg(ctx context.Context, tx *sql.Tx, name, label, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO organizations(name,label,created_at) VALUES (?,?,?)
ON CONFLICT(name) DO UPDATE SET label=excluded.label`, name, nullable(label), now)
	return err
}

func (r Repo) GetOrg(ctx context.Context, name string) (domain.Organization, error) {
	var o domain.Organization
	err := r.DB.QueryRowContext(ctx, `SELECT name,COALESCE(label,''),created_at FROM organizations WHERE name=?`, name).
		Scan(&o.Name, &o.Label, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) AddOrgMember(ctx context.Context, tx *sql.Tx, orgName, userID string, admin bool) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO org_memberships(org_name,user_id,admin) VALUES (?,?,?)
ON CONFLICT(org_name,user_id) DO UPDATE SET admin=excluded.admin`, orgName, userID, admin)
	return err
}

// OrgMembers returns members of an organization ordered by ascending user id.
// Admins are excluded when nonAdminsOnly is set; distributor pools use that
// variant so administrators never receive rotated work.
func (r Repo) OrgMembers(ctx context.Context, orgName string, nonAdminsOnly bool) ([]domain.User, error) {
	query := `SELECT ` + prefixColumns("u", userColumns) + ` FROM users u
JOIN org_memberships m ON m.user_id = u.id
WHERE m.org_name=?`
	if nonAdminsOnly {
		query += ` AND m.admin=0`
	}
	query += ` ORDER BY u.id`
	return r.queryUsers(ctx, query, orgName)
}

func (r Repo) IsOrgMember(ctx context.Context, orgName, userID string) (bool, error) {
	return r.membershipExists(ctx, orgName, userID, false)
}

func (r Repo) IsOrgAdmin(ctx context.Context, orgName, userID string) (bool, error) {
	return r.membershipExists(ctx, orgName, userID, true)
}

func (r Repo) membershipExists(ctx context.Context, orgName, userID string, adminOnly bool) (bool, error) {
	query := `SELECT 1 FROM org_memberships WHERE org_name=? AND user_id=?`
	if adminOnly {
		query += ` AND admin=1`
	}
	rows, err := r.DB.QueryContext(ctx, query, orgName, userID)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), nil
}

// ListEvents returns audit events, newest first, optionally scoped to an appeal.
func (r Repo) ListEvents(ctx context.Context, appealID string, limit int) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if appealID != "" {
		clauses = []string{"appeal_id=?"}
		args = append(args, appealID)
	}
	query := `SELECT id,ts,type,COALESCE(appeal_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.AppealID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with id greater than cursor, oldest first.
// Webhook delivery walks the log forward with this.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(appeal_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, cursor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.AppealID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		if strings.HasPrefix(p, "COALESCE(") {
			parts[i] = strings.Replace(p, "COALESCE(", "COALESCE("+alias+".", 1)
		} else {
			parts[i] = alias + "." + p
		}
	}
	return strings.Join(parts, ",")
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableString(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func optional(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
