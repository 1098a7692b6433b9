package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quayside/berthd/core/model"
)

// SQLiteJournal persists the audit trail to a SQLite database. Rows carry
// the full record as JSON next to the columns used for filtering.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens or creates the database at path and ensures schema.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS commits (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        version INTEGER,
        ts INTEGER,
        record TEXT
    );
    CREATE TABLE IF NOT EXISTS runs (
        id TEXT PRIMARY KEY,
        ts INTEGER,
        trigger_kind TEXT,
        record TEXT
    );
    CREATE TABLE IF NOT EXISTS conflicts (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        version INTEGER,
        ts INTEGER,
        schedule_id TEXT,
        record TEXT
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteJournal{db: db}, nil
}

// AppendCommit writes the committed batch.
func (j *SQLiteJournal) AppendCommit(ctx context.Context, rec CommitRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO commits (version, ts, record) VALUES (?, ?, ?)`,
		rec.Version, rec.At.Unix(), string(b))
	return err
}

// AppendRun writes one optimization run record.
func (j *SQLiteJournal) AppendRun(ctx context.Context, run model.OptimizationRun) error {
	b, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO runs (id, ts, trigger_kind, record) VALUES (?, ?, ?, ?)`,
		run.ID, run.StartedAt.Unix(), run.Trigger, string(b))
	return err
}

// AppendConflicts writes all conflict transitions of one version in a single
// transaction.
func (j *SQLiteJournal) AppendConflicts(ctx context.Context, version uint64, at time.Time, conflicts []model.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, c := range conflicts {
		rec := ConflictRecord{Version: version, At: at, Conflict: c}
		b, err := json.Marshal(rec)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conflicts (version, ts, schedule_id, record) VALUES (?, ?, ?, ?)`,
			version, at.Unix(), c.ScheduleID, string(b)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Commits returns commit records matching q, oldest first.
func (j *SQLiteJournal) Commits(ctx context.Context, q CommitQuery) ([]CommitRecord, error) {
	var args []any
	query := `SELECT record FROM commits WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.Unix())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.Unix())
	}
	query += ` ORDER BY version`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []CommitRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r CommitRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal commit record: %w", err)
		}
		if q.VesselID != "" && !touchesVessel(r, q.VesselID) {
			continue
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Runs returns run records matching q, oldest first.
func (j *SQLiteJournal) Runs(ctx context.Context, q RunQuery) ([]model.OptimizationRun, error) {
	var args []any
	query := `SELECT record FROM runs WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.Unix())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.Unix())
	}
	if q.Trigger != "" {
		query += ` AND trigger_kind = ?`
		args = append(args, q.Trigger)
	}
	query += ` ORDER BY ts`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.OptimizationRun
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r model.OptimizationRun
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal run record: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Conflicts returns the conflict history of one schedule, oldest first.
func (j *SQLiteJournal) Conflicts(ctx context.Context, scheduleID string) ([]ConflictRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT record FROM conflicts WHERE schedule_id = ? ORDER BY ts, id`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []ConflictRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r ConflictRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal conflict record: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error { return j.db.Close() }

func touchesVessel(r CommitRecord, vesselID string) bool {
	for _, sc := range r.Schedules {
		if sc.VesselID == vesselID {
			return true
		}
	}
	return false
}
