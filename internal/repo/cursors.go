package repo

import (
	"context"
	"database/sql"
)

// AdvanceCursorTx reads and advances the named round-robin cursor as one
// read-modify-write inside the caller's transaction, returning the position
// to use for this assignment. Callers serialize with the distributor mutex;
// the transaction protects against lost updates across processes.
func (r Repo) AdvanceCursorTx(ctx context.Context, tx *sql.Tx, name string, poolSize int) (int, error) {
	var position int
	err := tx.QueryRowContext(ctx, `SELECT position FROM distribution_cursors WHERE name=?`, name).Scan(&position)
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx, `INSERT INTO distribution_cursors(name,position) VALUES (?,1)`, name); err != nil {
			return 0, err
		}
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	position %= poolSize
	if _, err := tx.ExecContext(ctx, `UPDATE distribution_cursors SET position=? WHERE name=?`, position+1, name); err != nil {
		return 0, err
	}
	return position, nil
}

// SeedCursorTx sets the cursor only if no row exists yet.
func (r Repo) SeedCursorTx(ctx context.Context, tx *sql.Tx, name string, position int) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO distribution_cursors(name,position) VALUES (?,?)
ON CONFLICT(name) DO NOTHING`, name, position)
	return err
}

// GetCursor returns the current cursor position, zero when absent.
func (r Repo) GetCursor(ctx context.Context, name string) (int, error) {
	var position int
	err := r.DB.QueryRowContext(ctx, `SELECT position FROM distribution_cursors WHERE name=?`, name).Scan(&position)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return position, err
}
