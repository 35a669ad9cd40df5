package computer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrComputerNotFound = errors.New("computer not found")

// MissingComputersError reports the IDs of a bulk operation that do
// not exist; the whole operation is rolled back.
type MissingComputersError struct {
	IDs []int64
}

func (e *MissingComputersError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return "computers not found: " + strings.Join(ids, ", ")
}

const computerColumns = "id, name, ip_address, status, status_note, installed_version, created_at, updated_at"

// Repository is the Postgres-backed computer store.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) List(ctx context.Context) ([]Computer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+computerColumns+`
		FROM computers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query computers: %w", err)
	}
	defer rows.Close()

	computers := make([]Computer, 0)
	for rows.Next() {
		c, err := scanComputer(rows)
		if err != nil {
			return nil, err
		}
		computers = append(computers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate computers: %w", err)
	}

	return computers, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Computer, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+computerColumns+`
		FROM computers
		WHERE id = $1
	`, id)

	c, err := scanComputer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Computer{}, ErrComputerNotFound
		}
		return Computer{}, err
	}

	return c, nil
}

func (r *Repository) StatusHistory(ctx context.Context, id int64, limit int) ([]StatusChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT old_status, new_status, changed_by, change_note, changed_at
		FROM status_changes
		WHERE computer_id = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	history := make([]StatusChange, 0)
	for rows.Next() {
		var entry StatusChange
		if err := rows.Scan(&entry.OldStatus, &entry.NewStatus, &entry.ChangedBy, &entry.ChangeNote, &entry.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}

	return history, nil
}

// UpdateStatus sets the status of every listed computer in one
// transaction, appending a history note and recording a status_changes
// row attributed to changedBy. All-or-nothing: any missing ID rolls
// back the whole batch.
func (r *Repository) UpdateStatus(ctx context.Context, ids []int64, status, note, changedBy string) ([]Computer, error) {
	now := r.now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin status update tx: %w", err)
	}
	defer tx.Rollback()

	updated := make([]Computer, 0, len(ids))
	var missing []int64

	for _, id := range ids {
		var oldStatus, oldNote string
		err := tx.QueryRowContext(ctx, `
			SELECT status, status_note FROM computers WHERE id = $1
		`, id).Scan(&oldStatus, &oldNote)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				missing = append(missing, id)
				continue
			}
			return nil, fmt.Errorf("read computer %d: %w", id, err)
		}

		historyNote := statusChangeNote(oldStatus, status, now)
		finalNote := historyNote
		if strings.TrimSpace(note) != "" {
			finalNote = note + " (" + historyNote + ")"
		}

		c, err := scanComputer(tx.QueryRowContext(ctx, `
			UPDATE computers
			SET status = $2, status_note = $3, updated_at = $4
			WHERE id = $1
			RETURNING `+computerColumns+`
		`, id, status, finalNote, now))
		if err != nil {
			return nil, fmt.Errorf("update computer %d: %w", id, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO status_changes (computer_id, old_status, new_status, changed_by, change_note, changed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, oldStatus, status, changedBy, note, now)
		if err != nil {
			return nil, fmt.Errorf("record status change for computer %d: %w", id, err)
		}

		updated = append(updated, c)
	}

	if len(missing) > 0 {
		return nil, &MissingComputersError{IDs: missing}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status update tx: %w", err)
	}

	return updated, nil
}

// UpdateVersion sets the installed software version of every listed
// computer in one transaction, appending a history note.
func (r *Repository) UpdateVersion(ctx context.Context, ids []int64, version, changedBy string) ([]Computer, error) {
	now := r.now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin version update tx: %w", err)
	}
	defer tx.Rollback()

	updated := make([]Computer, 0, len(ids))
	var missing []int64

	for _, id := range ids {
		var oldVersion, oldNote string
		err := tx.QueryRowContext(ctx, `
			SELECT installed_version, status_note FROM computers WHERE id = $1
		`, id).Scan(&oldVersion, &oldNote)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				missing = append(missing, id)
				continue
			}
			return nil, fmt.Errorf("read computer %d: %w", id, err)
		}

		finalNote := appendNote(oldNote, versionChangeNote(oldVersion, version, now))

		c, err := scanComputer(tx.QueryRowContext(ctx, `
			UPDATE computers
			SET installed_version = $2, status_note = $3, updated_at = $4
			WHERE id = $1
			RETURNING `+computerColumns+`
		`, id, version, finalNote, now))
		if err != nil {
			return nil, fmt.Errorf("update computer %d: %w", id, err)
		}

		updated = append(updated, c)
	}

	if len(missing) > 0 {
		return nil, &MissingComputersError{IDs: missing}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit version update tx: %w", err)
	}

	return updated, nil
}

// RecordReboot appends a reboot note to every listed computer in one
// transaction. The reboot itself is mocked; no command reaches the
// machine.
func (r *Repository) RecordReboot(ctx context.Context, ids []int64) ([]Computer, error) {
	now := r.now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reboot tx: %w", err)
	}
	defer tx.Rollback()

	rebooted := make([]Computer, 0, len(ids))
	var missing []int64

	for _, id := range ids {
		var oldNote string
		err := tx.QueryRowContext(ctx, `
			SELECT status_note FROM computers WHERE id = $1
		`, id).Scan(&oldNote)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				missing = append(missing, id)
				continue
			}
			return nil, fmt.Errorf("read computer %d: %w", id, err)
		}

		finalNote := appendNote(oldNote, rebootNote(now))

		c, err := scanComputer(tx.QueryRowContext(ctx, `
			UPDATE computers
			SET status_note = $2, updated_at = $3
			WHERE id = $1
			RETURNING `+computerColumns+`
		`, id, finalNote, now))
		if err != nil {
			return nil, fmt.Errorf("update computer %d: %w", id, err)
		}

		rebooted = append(rebooted, c)
	}

	if len(missing) > 0 {
		return nil, &MissingComputersError{IDs: missing}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reboot tx: %w", err)
	}

	return rebooted, nil
}

// PruneStatusHistory deletes history entries older than cutoff in
// batches, returning the number of rows removed.
func (r *Repository) PruneStatusHistory(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM status_changes
			WHERE changed_at < $1
			ORDER BY changed_at ASC
			LIMIT $2
		)
		DELETE FROM status_changes t
		USING stale
		WHERE t.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale status changes: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale status changes rows affected: %w", err)
	}

	return affected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComputer(row rowScanner) (Computer, error) {
	var c Computer
	err := row.Scan(&c.ID, &c.Name, &c.IPAddress, &c.Status, &c.StatusNote, &c.InstalledVersion, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Computer{}, err
		}
		return Computer{}, fmt.Errorf("scan computer: %w", err)
	}
	return c, nil
}
