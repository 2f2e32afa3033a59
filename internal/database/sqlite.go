package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go-version-updater/internal/models"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a version is not in the ledger.
var ErrNotFound = errors.New("key not found")

// DB wraps the SQLite install ledger and provides helper methods.
type DB struct {
	db *sql.DB
	sync.RWMutex
	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// Open initializes and returns a DB instance.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database at %s: %w", path, err)
	}

	dbWrapper := &DB{db: db}
	if err := dbWrapper.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	log.Debugf("SQLite ledger opened at %s", path)
	return dbWrapper, nil
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS versions (
		version_id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		release_time INTEGER,
		updated_time INTEGER,
		status TEXT NOT NULL CHECK (status IN ('Pending', 'Installed', 'Incomplete')),
		failures INTEGER NOT NULL DEFAULT 0,
		installed_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version_id TEXT NOT NULL,
		path TEXT NOT NULL,
		url TEXT,
		size INTEGER NOT NULL,
		hash_blake3 TEXT,
		timestamp INTEGER NOT NULL,
		UNIQUE (version_id, path),
		FOREIGN KEY (version_id) REFERENCES versions(version_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_versions_status ON versions(status);
	CREATE INDEX IF NOT EXISTS idx_files_version_id ON files(version_id);
	`
	_, err := d.db.Exec(schema)
	return err
}

// Close safely closes the database connection.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		d.Lock()
		defer d.Unlock()

		d.closeErr = d.db.Close()
		d.closed = true

		if d.closeErr != nil {
			log.Errorf("Error during database close operation: %v", d.closeErr)
		} else {
			log.Debug("Database closed successfully.")
		}
	})
	return d.closeErr
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// RecordVersion inserts or replaces the ledger row for v. Existing file
// rows are kept.
func (d *DB) RecordVersion(v models.InstalledVersion) error {
	if v.ID == "" {
		return fmt.Errorf("cannot record a version without an id")
	}
	if v.Status == "" {
		v.Status = models.StatusPending
	}
	if v.InstalledAt.IsZero() {
		v.InstalledAt = time.Now()
	}

	d.Lock()
	defer d.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO versions (version_id, type, release_time, updated_time, status, failures, installed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id) DO UPDATE SET
			type = excluded.type,
			release_time = excluded.release_time,
			updated_time = excluded.updated_time,
			status = excluded.status,
			failures = excluded.failures,
			installed_at = excluded.installed_at
	`, v.ID, string(v.Type), unixOrZero(v.ReleaseTime), unixOrZero(v.UpdatedTime), v.Status, v.Failures, v.InstalledAt.Unix())
	if err != nil {
		return fmt.Errorf("error recording version %s: %w", v.ID, err)
	}
	return nil
}

// RecordFile inserts or replaces the row for f. The version must already
// be recorded.
func (d *DB) RecordFile(f models.InstalledFile) error {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}

	d.Lock()
	defer d.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO files (version_id, path, url, size, hash_blake3, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id, path) DO UPDATE SET
			url = excluded.url,
			size = excluded.size,
			hash_blake3 = excluded.hash_blake3,
			timestamp = excluded.timestamp
	`, f.VersionID, f.Path, f.URL, f.Size, f.Blake3, f.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("error recording file %s for %s: %w", f.Path, f.VersionID, err)
	}
	return nil
}

// Version returns the ledger row for id with its files.
func (d *DB) Version(id string) (models.InstalledVersion, error) {
	d.RLock()
	defer d.RUnlock()

	v, err := d.scanVersion(d.db.QueryRow(`
		SELECT version_id, type, release_time, updated_time, status, failures, installed_at
		FROM versions WHERE version_id = ?`, id))
	if err == sql.ErrNoRows {
		return models.InstalledVersion{}, ErrNotFound
	} else if err != nil {
		return models.InstalledVersion{}, fmt.Errorf("error querying version %s: %w", id, err)
	}

	v.Files, err = d.files(id)
	if err != nil {
		return models.InstalledVersion{}, err
	}
	return v, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (d *DB) scanVersion(row rowScanner) (models.InstalledVersion, error) {
	var v models.InstalledVersion
	var typ string
	var released, updated, installed int64
	if err := row.Scan(&v.ID, &typ, &released, &updated, &v.Status, &v.Failures, &installed); err != nil {
		return v, err
	}
	v.Type = models.ReleaseType(typ)
	v.ReleaseTime = timeOrZero(released)
	v.UpdatedTime = timeOrZero(updated)
	v.InstalledAt = timeOrZero(installed)
	return v, nil
}

// Files lists the recorded files of versionID ordered by path. An unknown
// version returns ErrNotFound.
func (d *DB) Files(versionID string) ([]models.InstalledFile, error) {
	d.RLock()
	defer d.RUnlock()

	var exists bool
	if err := d.db.QueryRow("SELECT EXISTS(SELECT 1 FROM versions WHERE version_id = ?)", versionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("error checking version %s: %w", versionID, err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return d.files(versionID)
}

// files expects the read lock to be held.
func (d *DB) files(versionID string) ([]models.InstalledFile, error) {
	rows, err := d.db.Query(`
		SELECT version_id, path, url, size, hash_blake3, timestamp
		FROM files WHERE version_id = ? ORDER BY path`, versionID)
	if err != nil {
		return nil, fmt.Errorf("error querying files for %s: %w", versionID, err)
	}
	defer rows.Close()

	var result []models.InstalledFile
	for rows.Next() {
		var f models.InstalledFile
		var url, hash sql.NullString
		var ts int64
		if err := rows.Scan(&f.VersionID, &f.Path, &url, &f.Size, &hash, &ts); err != nil {
			return nil, fmt.Errorf("error scanning file row for %s: %w", versionID, err)
		}
		f.URL = url.String
		f.Blake3 = hash.String
		f.Timestamp = timeOrZero(ts)
		result = append(result, f)
	}
	return result, rows.Err()
}

// Versions lists every recorded version ordered by id, without files.
func (d *DB) Versions() ([]models.InstalledVersion, error) {
	d.RLock()
	defer d.RUnlock()

	rows, err := d.db.Query(`
		SELECT version_id, type, release_time, updated_time, status, failures, installed_at
		FROM versions ORDER BY version_id`)
	if err != nil {
		return nil, fmt.Errorf("error querying versions: %w", err)
	}
	defer rows.Close()

	var result []models.InstalledVersion
	for rows.Next() {
		v, err := d.scanVersion(rows)
		if err != nil {
			log.WithError(err).Warn("Versions: Error scanning version row")
			continue
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// DeleteVersion removes versionID and, by cascade, its files.
func (d *DB) DeleteVersion(versionID string) error {
	d.Lock()
	defer d.Unlock()

	result, err := d.db.Exec("DELETE FROM versions WHERE version_id = ?", versionID)
	if err != nil {
		return fmt.Errorf("error deleting version %s: %w", versionID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Fold calls fn for every recorded version with its files. Returning an
// error from fn stops the iteration.
func (d *DB) Fold(fn func(v models.InstalledVersion) error) error {
	versions, err := d.Versions()
	if err != nil {
		return err
	}
	for _, v := range versions {
		d.RLock()
		v.Files, err = d.files(v.ID)
		d.RUnlock()
		if err != nil {
			log.WithError(err).Warnf("Fold: Error getting files for %s", v.ID)
			continue
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}
