package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/aegismesh/aegis-meta/internal/models"
	"github.com/aegismesh/aegis-meta/internal/utils"
)

// Archive schema. Versions are tracked in the schema_versions table so later
// releases can append migrations.
var archiveMigrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS decision_archive (
    decision_id TEXT PRIMARY KEY,
    timestamp   REAL NOT NULL,
    decision    TEXT NOT NULL,
    context     TEXT,
    outcome     TEXT,
    success     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_archive_timestamp ON decision_archive(timestamp);
CREATE INDEX IF NOT EXISTS idx_archive_action    ON decision_archive(json_extract(decision, '$.action'));
`,
	},
}

// SQLiteArchive is the durable Archive implementation. Rows keep the stable
// shape decision_id / timestamp (fractional epoch seconds) / decision /
// context / outcome / success, with the document columns JSON-encoded.
type SQLiteArchive struct {
	db      *sql.DB
	maxSize int
}

// NewSQLiteArchive opens (or creates) the archive database at path and runs
// pending migrations. Pass ":memory:" for an ephemeral archive.
func NewSQLiteArchive(path string, maxSize int) (*SQLiteArchive, error) {
	if path == "" {
		return nil, errors.New("memory: sqlite archive path required")
	}
	if maxSize < 1 {
		maxSize = DefaultArchiveMaxSize
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, utils.WrapOp("archive.open", path, err)
	}
	// Single connection: one writer avoids SQLITE_BUSY on the eviction
	// transaction.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, utils.WrapOp("archive.open", "enable WAL", err)
	}
	a := &SQLiteArchive{db: db, maxSize: maxSize}
	if err := a.migrate(); err != nil {
		_ = db.Close()
		return nil, utils.WrapOp("archive.migrate", "", err)
	}
	return a, nil
}

func (a *SQLiteArchive) migrate() error {
	_, err := a.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}
	for _, m := range archiveMigrations {
		var count int
		if err := a.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := a.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := a.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

// Put upserts an entry and evicts the oldest rows while the table is over
// capacity, all in one transaction.
func (a *SQLiteArchive) Put(entry models.ArchiveEntry) error {
	if entry.DecisionID == "" {
		return errors.New("memory: archive entry missing decision id")
	}
	decisionJSON, err := json.Marshal(entry.Decision)
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	contextJSON, err := encodeDoc(entry.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	outcomeJSON, err := encodeDoc(entry.Outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	var success any
	if entry.Success != nil {
		success = *entry.Success
	}

	tx, err := a.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
        INSERT INTO decision_archive(decision_id, timestamp, decision, context, outcome, success)
        VALUES(?,?,?,?,?,?)
        ON CONFLICT(decision_id) DO UPDATE SET
            timestamp = excluded.timestamp,
            decision  = excluded.decision,
            context   = excluded.context,
            outcome   = excluded.outcome,
            success   = excluded.success
    `, entry.DecisionID, utils.EpochSeconds(entry.Timestamp), string(decisionJSON), contextJSON, outcomeJSON, success)
	if err != nil {
		return err
	}

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM decision_archive`).Scan(&count); err != nil {
		return err
	}
	if excess := count - a.maxSize; excess > 0 {
		_, err = tx.Exec(`
            DELETE FROM decision_archive WHERE decision_id IN (
                SELECT decision_id FROM decision_archive
                ORDER BY timestamp ASC, rowid ASC LIMIT ?)
        `, excess)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get returns the entry for id and whether a row exists.
func (a *SQLiteArchive) Get(id string) (models.ArchiveEntry, bool, error) {
	row := a.db.QueryRow(`
        SELECT decision_id, timestamp, decision, context, outcome, success
        FROM decision_archive WHERE decision_id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ArchiveEntry{}, false, nil
	}
	if err != nil {
		return models.ArchiveEntry{}, false, err
	}
	return entry, true, nil
}

// SetOutcome attaches feedback to a stored decision.
func (a *SQLiteArchive) SetOutcome(id string, outcome map[string]any, success bool) error {
	outcomeJSON, err := encodeDoc(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	res, err := a.db.Exec(`UPDATE decision_archive SET outcome = ?, success = ? WHERE decision_id = ?`,
		outcomeJSON, success, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Search filters the archive and returns matches newest first.
func (a *SQLiteArchive) Search(filter models.ArchiveFilter) ([]models.ArchiveEntry, error) {
	query := `SELECT decision_id, timestamp, decision, context, outcome, success FROM decision_archive WHERE 1=1`
	args := []any{}

	if filter.Action != "" {
		query += ` AND json_extract(decision, '$.action') = ?`
		args = append(args, string(filter.Action))
	}
	if filter.Success != nil {
		query += ` AND success = ?`
		args = append(args, *filter.Success)
	}
	if !filter.Start.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, utils.EpochSeconds(filter.Start))
	}
	if !filter.End.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, utils.EpochSeconds(filter.End))
	}
	query += ` ORDER BY timestamp DESC, rowid DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ArchiveEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Len returns the number of archived rows.
func (a *SQLiteArchive) Len() (int, error) {
	var count int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM decision_archive`).Scan(&count)
	return count, err
}

func (a *SQLiteArchive) Close() error { return a.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (models.ArchiveEntry, error) {
	var (
		entry      models.ArchiveEntry
		ts         float64
		decision   string
		contextDoc sql.NullString
		outcomeDoc sql.NullString
		success    sql.NullBool
	)
	if err := row.Scan(&entry.DecisionID, &ts, &decision, &contextDoc, &outcomeDoc, &success); err != nil {
		return models.ArchiveEntry{}, err
	}
	entry.Timestamp = utils.FromEpochSeconds(ts)
	if err := json.Unmarshal([]byte(decision), &entry.Decision); err != nil {
		return models.ArchiveEntry{}, fmt.Errorf("decode decision %s: %w", entry.DecisionID, err)
	}
	if contextDoc.Valid && contextDoc.String != "" {
		if err := json.Unmarshal([]byte(contextDoc.String), &entry.Context); err != nil {
			return models.ArchiveEntry{}, fmt.Errorf("decode context %s: %w", entry.DecisionID, err)
		}
	}
	if outcomeDoc.Valid && outcomeDoc.String != "" {
		if err := json.Unmarshal([]byte(outcomeDoc.String), &entry.Outcome); err != nil {
			return models.ArchiveEntry{}, fmt.Errorf("decode outcome %s: %w", entry.DecisionID, err)
		}
	}
	if success.Valid {
		v := success.Bool
		entry.Success = &v
	}
	return entry, nil
}

// encodeDoc marshals a document column, mapping empty maps to NULL.
func encodeDoc(doc map[string]any) (any, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
