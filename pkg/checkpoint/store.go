package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alphaforge/alphaforge/pkg/errors"
)

// Store persists snapshots to a SQLite database, one row per generation.
// Saving the same generation twice overwrites the earlier snapshot.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the checkpoint database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to open checkpoint database")
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	// WAL keeps checkpoint writes from blocking a concurrent reader
	// inspecting a live run.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.Unknown, "failed to enable WAL mode")
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.Unknown, "failed to set synchronous pragma")
	}

	return store, nil
}

func (s *Store) initDB() error {
	query := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		generation INTEGER PRIMARY KEY,
		snapshot BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to initialize checkpoint schema")
	}
	return nil
}

// Save writes one generation's snapshot, replacing any existing row for
// the same generation.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "failed to serialize snapshot")
	}

	query := `
	INSERT INTO checkpoints (generation, snapshot, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(generation) DO UPDATE SET
		snapshot = excluded.snapshot,
		created_at = excluded.created_at
	`
	if _, err := s.db.ExecContext(ctx, query, snap.Generation, payload, time.Now().Unix()); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to save checkpoint")
	}
	return nil
}

// Load returns the snapshot for a specific generation.
func (s *Store) Load(ctx context.Context, generation int) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM checkpoints WHERE generation = ?", generation)
	return scanSnapshot(row)
}

// Latest returns the newest snapshot, or a ResourceNotFound error when
// the store is empty.
func (s *Store) Latest(ctx context.Context) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM checkpoints ORDER BY generation DESC LIMIT 1")
	return scanSnapshot(row)
}

// Generations lists the stored generation numbers in ascending order.
func (s *Store) Generations(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT generation FROM checkpoints ORDER BY generation ASC")
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to list checkpoints")
	}
	defer rows.Close()

	var generations []int
	for rows.Next() {
		var g int
		if err := rows.Scan(&g); err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "failed to scan checkpoint row")
		}
		generations = append(generations, g)
	}
	return generations, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanSnapshot(row *sql.Row) (*Snapshot, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.ResourceNotFound, "no checkpoint found")
		}
		return nil, errors.Wrap(err, errors.Unknown, "failed to read checkpoint")
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to decode snapshot")
	}
	return &snap, nil
}
