package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/jobtrack/internal/application"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding applications, their event history,
// and user profiles. Every read and write is scoped to an owner.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "jobtrack.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and avoids
	// "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Applications ---

const applicationColumns = `id, owner_id, company_name, job_title, job_type, location, date_applied, status,
	job_url, meeting_url, other_urls, job_description, notes, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (application.Application, error) {
	var a application.Application
	var jobType, status, otherURLs, createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.OwnerID, &a.CompanyName, &a.JobTitle, &jobType, &a.Location, &a.DateApplied, &status,
		&a.JobURL, &a.MeetingURL, &otherURLs, &a.JobDescription, &a.Notes, &createdAt, &updatedAt)
	if err != nil {
		return application.Application{}, err
	}
	a.JobType = application.JobType(jobType)
	a.Status = application.Status(status)
	if err := json.Unmarshal([]byte(otherURLs), &a.OtherURLs); err != nil {
		return application.Application{}, fmt.Errorf("parsing other_urls for %s: %w", a.ID, err)
	}
	if a.OtherURLs == nil {
		a.OtherURLs = []application.Link{}
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return application.Application{}, fmt.Errorf("parsing created_at for %s: %w", a.ID, err)
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return application.Application{}, fmt.Errorf("parsing updated_at for %s: %w", a.ID, err)
	}
	return a, nil
}

func encodeLinks(links []application.Link) (string, error) {
	if links == nil {
		links = []application.Link{}
	}
	b, err := json.Marshal(links)
	if err != nil {
		return "", fmt.Errorf("encoding other_urls: %w", err)
	}
	return string(b), nil
}

// InsertApplication stores a new application. It returns ErrAlreadyExists if
// the ID is taken.
func (s *Store) InsertApplication(ctx context.Context, a application.Application) error {
	links, err := encodeLinks(a.OtherURLs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO applications (`+applicationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OwnerID, a.CompanyName, a.JobTitle, string(a.JobType), a.Location, a.DateApplied, string(a.Status),
		a.JobURL, a.MeetingURL, links, a.JobDescription, a.Notes,
		a.CreatedAt.UTC().Format(time.RFC3339), a.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrAlreadyExists
	}
	return err
}

// GetApplication returns the application with id if owner owns it.
func (s *Store) GetApplication(ctx context.Context, owner, id string) (application.Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ? AND owner_id = ?`, id, owner)
	a, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return application.Application{}, ErrNotFound
	}
	return a, err
}

// ListApplications returns every application owned by owner, oldest first.
func (s *Store) ListApplications(ctx context.Context, owner string) ([]application.Application, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+applicationColumns+`
		FROM applications WHERE owner_id = ? ORDER BY created_at ASC, rowid ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []application.Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// UpdateApplication overwrites the editable columns and updated_at. The
// owner, ID and created_at columns are never written.
func (s *Store) UpdateApplication(ctx context.Context, a application.Application) error {
	links, err := encodeLinks(a.OtherURLs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE applications SET
		company_name = ?, job_title = ?, job_type = ?, location = ?, date_applied = ?, status = ?,
		job_url = ?, meeting_url = ?, other_urls = ?, job_description = ?, notes = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		a.CompanyName, a.JobTitle, string(a.JobType), a.Location, a.DateApplied, string(a.Status),
		a.JobURL, a.MeetingURL, links, a.JobDescription, a.Notes, a.UpdatedAt.UTC().Format(time.RFC3339),
		a.ID, a.OwnerID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *Store) DeleteApplication(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM applications WHERE id = ? AND owner_id = ?`, id, owner)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Events ---

func (s *Store) AppendEvent(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO application_events (id, application_id, owner_id, event_type, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ApplicationID, e.OwnerID, e.Type, e.Details, e.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListEvents returns the history of one application, oldest first. Events
// outlive the application they describe.
func (s *Store) ListEvents(ctx context.Context, owner, applicationID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, application_id, owner_id, event_type, details, created_at
		FROM application_events WHERE owner_id = ? AND application_id = ?
		ORDER BY created_at ASC, rowid ASC`, owner, applicationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Event{}
	for rows.Next() {
		var e Event
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ApplicationID, &e.OwnerID, &e.Type, &e.Details, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		results = append(results, e)
	}
	return results, rows.Err()
}

// --- User Profile ---

func (s *Store) SetProfileKey(owner, key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO user_profile (owner_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		owner, key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetProfileKey(owner, key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM user_profile WHERE owner_id = ? AND key = ?", owner, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

func (s *Store) GetAllProfileKeys(owner string) (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM user_profile WHERE owner_id = ?", owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}
