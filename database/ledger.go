package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/baoteam/rag-bot/types"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const ledgerFileName = ".sqlite.ingest"

// IngestRecord is one ledger row: an entry name already ingested for an app,
// plus the source key its chunks carry in the index.
type IngestRecord struct {
	AppName    string    `json:"app_name"`
	EntryName  string    `json:"entry_name"`
	Source     string    `json:"source"`
	InsertedAt time.Time `json:"inserted_at"`
}

// LedgerEntry is the insert payload: the entry file name and the source key
// from its metadata. Source is what removal-by-source matches on.
type LedgerEntry struct {
	Name   string
	Source string
}

// IngestLedger records which source entries have been embedded and indexed,
// making ingestion idempotent across repeated runs over the same folder.
// The underlying *sql.DB pool is safe for concurrent callers; no transaction
// spans more than one operation.
type IngestLedger struct {
	db *sql.DB
}

func NewIngestLedger(dbRoot string) (*IngestLedger, error) {
	db, err := sql.Open("sqlite3", filepath.Join(dbRoot, ledgerFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open ledger: %v", types.ErrPersistence, err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: failed to ping ledger: %v", types.ErrPersistence, err)
	}

	ledger := &IngestLedger{db: db}
	if err = ledger.initSchema(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize ledger schema: %v", types.ErrPersistence, err)
	}
	return ledger, nil
}

func (l *IngestLedger) Close() error {
	return l.db.Close()
}

func (l *IngestLedger) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS ingest_events (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        app_name TEXT,
        entry_name TEXT,
        source TEXT DEFAULT '',
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (app_name, entry_name)
    );
    `
	if _, err := l.db.Exec(schema); err != nil {
		return err
	}
	// Ledgers created before the source column existed get it added here.
	// The ALTER fails with a duplicate-column error on current schemas.
	_, _ = l.db.Exec("ALTER TABLE ingest_events ADD COLUMN source TEXT DEFAULT ''")
	return nil
}

// FindNewEntries returns the subset of entryNames not yet recorded for app.
// An empty input short-circuits without touching the store.
func (l *IngestLedger) FindNewEntries(ctx context.Context, app string, entryNames []string) ([]string, error) {
	if len(entryNames) == 0 {
		return nil, nil
	}
	entryNames = dedupe(entryNames)
	existing, err := l.existingEntries(ctx, app, entryNames)
	if err != nil {
		return nil, err
	}
	var fresh []string
	for _, name := range entryNames {
		if !existing[name] {
			fresh = append(fresh, name)
		}
	}
	return fresh, nil
}

// BatchInsert records entries for app. Names already present are logged and
// left alone, never an error; OR IGNORE keeps that true even when a
// concurrent ingest lands the same name between the check and the insert.
func (l *IngestLedger) BatchInsert(ctx context.Context, app string, entries []LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	existing, err := l.existingEntries(ctx, app, dedupe(names))
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		dupes := make([]string, 0, len(existing))
		for name := range existing {
			dupes = append(dupes, name)
		}
		log.Printf("ledger: (%s, %v) already exists", app, dupes)
	}

	stmt, err := l.db.PrepareContext(ctx, "INSERT OR IGNORE INTO ingest_events (app_name, entry_name, source) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("%w: failed to prepare insert: %v", types.ErrPersistence, err)
	}
	defer stmt.Close()
	for _, entry := range entries {
		if _, err := stmt.ExecContext(ctx, app, entry.Name, entry.Source); err != nil {
			return fmt.Errorf("%w: failed to insert (%s, %s): %v", types.ErrPersistence, app, entry.Name, err)
		}
	}
	return nil
}

// Remove deletes matching ledger records, used alongside vector-index deletes.
func (l *IngestLedger) Remove(ctx context.Context, app string, entryNames []string) error {
	if len(entryNames) == 0 {
		return nil
	}
	entryNames = dedupe(entryNames)
	query := fmt.Sprintf(
		"DELETE FROM ingest_events WHERE app_name = ? AND entry_name IN (%s)",
		placeholders(len(entryNames)))
	if _, err := l.db.ExecContext(ctx, query, args(app, entryNames)...); err != nil {
		return fmt.Errorf("%w: failed to remove entries: %v", types.ErrPersistence, err)
	}
	return nil
}

// RemoveBySource deletes the records whose source matches, keyed the same way
// the indexed chunks are, so removal by source clears both stores.
func (l *IngestLedger) RemoveBySource(ctx context.Context, app string, sources []string) error {
	if len(sources) == 0 {
		return nil
	}
	sources = dedupe(sources)
	query := fmt.Sprintf(
		"DELETE FROM ingest_events WHERE app_name = ? AND source IN (%s)",
		placeholders(len(sources)))
	if _, err := l.db.ExecContext(ctx, query, args(app, sources)...); err != nil {
		return fmt.Errorf("%w: failed to remove entries by source: %v", types.ErrPersistence, err)
	}
	return nil
}

// Clear drops every record for app, used when the matching index collection
// is rebuilt from scratch.
func (l *IngestLedger) Clear(ctx context.Context, app string) error {
	if _, err := l.db.ExecContext(ctx, "DELETE FROM ingest_events WHERE app_name = ?", app); err != nil {
		return fmt.Errorf("%w: failed to clear app entries: %v", types.ErrPersistence, err)
	}
	return nil
}

// IsExistEntry reports whether (app, entryName) is recorded.
func (l *IngestLedger) IsExistEntry(ctx context.Context, app, entryName string) (bool, error) {
	var count int
	err := l.db.QueryRowContext(ctx,
		"SELECT count(entry_name) FROM ingest_events WHERE app_name = ? AND entry_name = ?",
		app, entryName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: failed to query entry: %v", types.ErrPersistence, err)
	}
	return count > 0, nil
}

// ListEntries returns the records for app ordered by recency, optionally
// filtered by an entry-name substring.
func (l *IngestLedger) ListEntries(ctx context.Context, app, nameLike string) ([]IngestRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(nameLike) != "" {
		rows, err = l.db.QueryContext(ctx,
			"SELECT app_name, entry_name, source, timestamp FROM ingest_events WHERE app_name = ? AND entry_name LIKE ? ORDER BY timestamp DESC",
			app, "%"+nameLike+"%")
	} else {
		rows, err = l.db.QueryContext(ctx,
			"SELECT app_name, entry_name, source, timestamp FROM ingest_events WHERE app_name = ? ORDER BY timestamp DESC",
			app)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list entries: %v", types.ErrPersistence, err)
	}
	defer rows.Close()

	var records []IngestRecord
	for rows.Next() {
		var rec IngestRecord
		if err := rows.Scan(&rec.AppName, &rec.EntryName, &rec.Source, &rec.InsertedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan entry: %v", types.ErrPersistence, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (l *IngestLedger) existingEntries(ctx context.Context, app string, entryNames []string) (map[string]bool, error) {
	query := fmt.Sprintf(
		"SELECT entry_name FROM ingest_events WHERE app_name = ? AND entry_name IN (%s)",
		placeholders(len(entryNames)))
	rows, err := l.db.QueryContext(ctx, query, args(app, entryNames)...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query entries: %v", types.ErrPersistence, err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: failed to scan entry: %v", types.ErrPersistence, err)
		}
		existing[name] = true
	}
	return existing, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func args(app string, names []string) []interface{} {
	out := make([]interface{}, 0, len(names)+1)
	out = append(out, app)
	for _, name := range names {
		out = append(out, name)
	}
	return out
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
