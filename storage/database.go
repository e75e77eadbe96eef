package storage

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/blake2b"
)

// ErrCorrupt is returned when a stored payload no longer matches its digest.
var ErrCorrupt = errors.New("stored payload does not match its digest")

// Database is a KV backed by a single SQLite table. Every bucket row holds
// the JSON payload and its BLAKE2b-256 digest.
type Database struct {
	db *sql.DB

	getStmt *sql.Stmt
	putStmt *sql.Stmt
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies the
// schema, and prepares the bucket statements.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	database, err := newDatabase(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return database, nil
}

func newDatabase(db *sql.DB) (*Database, error) {
	if err := applySchema(db); err != nil {
		return nil, err
	}
	d := &Database{db: db}
	if err := d.prepareStatements(); err != nil {
		d.closeStatements()
		return nil, err
	}
	return d, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	d.closeStatements()
	return d.db.Close()
}

func (d *Database) closeStatements() {
	if d.getStmt != nil {
		d.getStmt.Close()
	}
	if d.putStmt != nil {
		d.putStmt.Close()
	}
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applySchema(db *sql.DB) error {
	// WAL lets readers proceed while a snapshot is being written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return fmt.Errorf("create meta: %w", err)
	}

	var current int
	err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS state (
            bucket TEXT PRIMARY KEY,
            payload BLOB NOT NULL,
            digest TEXT NOT NULL
        );`); err != nil {
		return fmt.Errorf("create state: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

func (d *Database) prepareStatements() error {
	var err error
	if d.getStmt, err = d.db.Prepare(`SELECT payload, digest FROM state WHERE bucket=?`); err != nil {
		return err
	}
	if d.putStmt, err = d.db.Prepare(`INSERT INTO state(bucket,payload,digest) VALUES(?,?,?)
            ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload, digest=excluded.digest`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// KV
// ---------------------------------------------------------------------------

// Get returns the payload stored for bucket after checking its digest.
func (d *Database) Get(bucket string) ([]byte, bool, error) {
	var (
		payload []byte
		digest  string
	)
	err := d.getStmt.QueryRow(bucket).Scan(&payload, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read bucket %s: %w", bucket, err)
	}
	if digestOf(payload) != digest {
		return nil, false, fmt.Errorf("bucket %s: %w", bucket, ErrCorrupt)
	}
	return payload, true, nil
}

// Put overwrites bucket with payload.
func (d *Database) Put(bucket string, payload []byte) error {
	if _, err := d.putStmt.Exec(bucket, payload, digestOf(payload)); err != nil {
		return fmt.Errorf("write bucket %s: %w", bucket, err)
	}
	return nil
}

// Buckets lists the stored collection names in name order. Counter
// buckets are left out.
func (d *Database) Buckets() ([]string, error) {
	rows, err := d.db.Query(`SELECT bucket FROM state ORDER BY bucket`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if IsCounterKey(name) {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Clear deletes bucket together with its id counter, so the collection
// starts again at id 1. Clearing a bucket that does not exist is an error.
func (d *Database) Clear(bucket string) error {
	result, err := d.db.Exec(`DELETE FROM state WHERE bucket IN (?, ?)`, bucket, CounterKey(bucket))
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("bucket %s does not exist", bucket)
	}
	return nil
}

func digestOf(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
