package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/cfstatic/internal/model"
)

// FileName is the database file inside the data directory.
const FileName = "cfstatic.db"

// RunDB stores the history of generation runs in SQLite. One database
// holds every site; runs are keyed by the origin they mirrored.
type RunDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a RunDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Path returns the database file path.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

func (rdb *RunDB) createTables() error {
	schema := `
	-- One row per generation run; run_json holds the complete model.Run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		succeeded INTEGER NOT NULL DEFAULT 0,
		page_count INTEGER NOT NULL DEFAULT 0,
		asset_count INTEGER NOT NULL DEFAULT 0,
		finding_count INTEGER NOT NULL DEFAULT 0,
		archive_name TEXT,
		run_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_site ON runs(site);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Pages written by each run, used to compare runs by content hash
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		url TEXT NOT NULL,
		status_code INTEGER,
		content_type TEXT,
		size INTEGER,
		hash TEXT,
		file TEXT,
		UNIQUE(run_id, path)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunSummary is the metadata of a stored run, without its pages.
type RunSummary struct {
	ID          int64     `json:"id"`
	Site        string    `json:"site"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Succeeded   bool      `json:"succeeded"`
	Pages       int       `json:"pages"`
	Assets      int       `json:"assets"`
	Findings    int       `json:"findings"`
	ArchiveName string    `json:"archive_name,omitempty"`
}

// Duration returns the wall-clock time of the run.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// SaveRun stores run and its pages in one transaction and sets run.ID.
func (rdb *RunDB) SaveRun(ctx context.Context, run *model.Run) (int64, error) {
	runJSON, err := json.Marshal(run)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize run: %w", err)
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	succeeded := 0
	if run.Succeeded() {
		succeeded = 1
	}

	var archiveName sql.NullString
	if run.Archive != nil {
		archiveName = sql.NullString{String: run.Archive.Name, Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (site, started_at, finished_at, succeeded, page_count, asset_count, finding_count, archive_name, run_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.Site,
		formatTimestamp(run.StartedAt),
		formatTimestamp(run.FinishedAt),
		succeeded,
		len(run.Pages),
		run.Assets.Written+run.Assets.Existing,
		len(run.Findings),
		archiveName,
		string(runJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO pages (run_id, path, url, status_code, content_type, size, hash, file)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, path) DO UPDATE SET
		url = excluded.url,
		status_code = excluded.status_code,
		content_type = excluded.content_type,
		size = excluded.size,
		hash = excluded.hash,
		file = excluded.file
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range run.Pages {
		if _, err := stmt.ExecContext(ctx, id, p.Path, p.URL, p.StatusCode, p.ContentType, p.Size, p.Hash, p.File); err != nil {
			return 0, fmt.Errorf("failed to insert page %s: %w", p.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	run.ID = id
	return id, nil
}

// GetRun retrieves a run by id. It returns nil, nil when no run matches.
func (rdb *RunDB) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	return rdb.queryRun(ctx, `SELECT id, run_json FROM runs WHERE id = ?`, id)
}

// LatestRun retrieves the most recent run of site, or nil, nil.
func (rdb *RunDB) LatestRun(ctx context.Context, site string) (*model.Run, error) {
	return rdb.queryRun(ctx, `
	SELECT id, run_json FROM runs
	WHERE site = ?
	ORDER BY started_at DESC, id DESC
	LIMIT 1
	`, site)
}

// PreviousRun retrieves the most recent successful run of site started
// before the run with id, or nil, nil.
func (rdb *RunDB) PreviousRun(ctx context.Context, site string, id int64) (*model.Run, error) {
	return rdb.queryRun(ctx, `
	SELECT id, run_json FROM runs
	WHERE site = ? AND id < ? AND succeeded = 1
	ORDER BY id DESC
	LIMIT 1
	`, site, id)
}

func (rdb *RunDB) queryRun(ctx context.Context, query string, args ...any) (*model.Run, error) {
	var id int64
	var runJSON string

	err := rdb.db.QueryRowContext(ctx, query, args...).Scan(&id, &runJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run model.Run
	if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
		return nil, fmt.Errorf("failed to parse run: %w", err)
	}
	run.ID = id
	return &run, nil
}

// ListRuns returns run summaries, newest first. An empty site lists every
// site; limit <= 0 means no limit.
func (rdb *RunDB) ListRuns(ctx context.Context, site string, limit int) ([]RunSummary, error) {
	query := `
	SELECT id, site, started_at, finished_at, succeeded, page_count, asset_count, finding_count, archive_name
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)

	if site != "" {
		query += " AND site = ?"
		args = append(args, site)
	}
	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var s RunSummary
		var started string
		var finished, archiveName sql.NullString

		if err := rows.Scan(&s.ID, &s.Site, &started, &finished, &s.Succeeded, &s.Pages, &s.Assets, &s.Findings, &archiveName); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		s.StartedAt = parseTimestamp(started)
		if finished.Valid {
			s.FinishedAt = parseTimestamp(finished.String)
		}
		s.ArchiveName = archiveName.String
		results = append(results, s)
	}

	return results, rows.Err()
}

// ListSites returns every site with at least one stored run.
func (rdb *RunDB) ListSites(ctx context.Context) ([]string, error) {
	rows, err := rdb.db.QueryContext(ctx, `SELECT DISTINCT site FROM runs ORDER BY site`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}

	return sites, rows.Err()
}

// Pages returns the pages stored for a run, ordered by path.
func (rdb *RunDB) Pages(ctx context.Context, runID int64) ([]model.Page, error) {
	rows, err := rdb.db.QueryContext(ctx, `
	SELECT path, url, status_code, content_type, size, hash, file
	FROM pages
	WHERE run_id = ?
	ORDER BY path
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pages: %w", err)
	}
	defer rows.Close()

	var pages []model.Page
	for rows.Next() {
		var p model.Page
		var contentType, hash, file sql.NullString
		if err := rows.Scan(&p.Path, &p.URL, &p.StatusCode, &contentType, &p.Size, &hash, &file); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.ContentType = contentType.String
		p.Hash = hash.String
		p.File = file.String
		pages = append(pages, p)
	}

	return pages, rows.Err()
}

// DeleteRunsBefore removes runs started before t and returns how many
// were removed.
func (rdb *RunDB) DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error) {
	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := formatTimestamp(t)
	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to delete pages: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return result.RowsAffected()
}

// storedTimestamp is the layout written to the DATETIME columns. It sorts
// lexically in time order.
const storedTimestamp = "2006-01-02 15:04:05.000"

func formatTimestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(storedTimestamp)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	storedTimestamp,
	"2006-01-02 15:04:05",  // SQLite default datetime format
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",  // ISO 8601 without timezone
	time.RFC3339,
	time.RFC3339Nano,
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
