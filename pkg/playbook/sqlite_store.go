package playbook

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// SQLiteStore persists playbook snapshots in a SQLite database. The
// contract matches the JSON snapshot: sections are derived on load and
// corrupt rows abort the load.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string

	initialized sync.Once
}

// NewSQLiteStore opens (or creates) a playbook database at path. Use
// ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to open SQLite database"),
			errors.Fields{"path": path},
		)
	}

	store := &SQLiteStore{
		db:   db,
		path: path,
	}
	if err := store.ensureInitialized(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureInitialized() error {
	var initErr error
	s.initialized.Do(func() {
		// Enable WAL mode for better concurrency
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			initErr = errors.Wrap(err, errors.Unknown, "failed to enable WAL mode")
			return
		}

		query := `
        CREATE TABLE IF NOT EXISTS playbook_items (
            id TEXT PRIMARY KEY,
            content TEXT NOT NULL,
            kind TEXT NOT NULL,
            section TEXT NOT NULL,
            helpful_count INTEGER NOT NULL DEFAULT 0,
            harmful_count INTEGER NOT NULL DEFAULT 0,
            deprecated INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            embedding TEXT
        );

        CREATE INDEX IF NOT EXISTS idx_playbook_items_section
        ON playbook_items(section);
        `

		if _, err := s.db.Exec(query); err != nil {
			initErr = errors.Wrap(err, errors.Unknown, "failed to initialize database")
			return
		}
	})
	return initErr
}

// Save replaces the stored snapshot with the playbook's current items.
func (s *SQLiteStore) Save(ctx context.Context, p *Playbook) error {
	items := p.All()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to begin transaction")
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			logging.GetLogger().Error(ctx, "failed to rollback transaction: %v", err)
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM playbook_items"); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to clear previous snapshot")
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO playbook_items
            (id, content, kind, section, helpful_count, harmful_count, deprecated, created_at, updated_at, embedding)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to prepare insert")
	}
	defer stmt.Close()

	for _, item := range items {
		var embedding interface{}
		if item.Embedding != nil {
			data, err := json.Marshal(item.Embedding)
			if err != nil {
				return errors.WithFields(
					errors.Wrap(err, errors.Unknown, "failed to marshal embedding"),
					errors.Fields{"id": item.ID},
				)
			}
			embedding = string(data)
		}

		deprecated := 0
		if item.Deprecated {
			deprecated = 1
		}

		if _, err := stmt.ExecContext(ctx,
			item.ID, item.Content, string(item.Kind), item.Section,
			item.HelpfulCount, item.HarmfulCount, deprecated,
			item.CreatedAt.UTC(), item.UpdatedAt.UTC(), embedding,
		); err != nil {
			return errors.WithFields(
				errors.Wrap(err, errors.Unknown, "failed to insert item"),
				errors.Fields{"id": item.ID},
			)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to commit snapshot")
	}
	return nil
}

// Load rebuilds a playbook from the stored snapshot. Rows with missing
// required fields abort the load with PersistenceCorruption.
func (s *SQLiteStore) Load(ctx context.Context, config Config) (*Playbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, content, kind, section, helpful_count, harmful_count, deprecated, created_at, updated_at, embedding
        FROM playbook_items ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to query items")
	}
	defer rows.Close()

	var items []KnowledgeItem
	for rows.Next() {
		var (
			item       KnowledgeItem
			kind       string
			deprecated int
			createdAt  time.Time
			updatedAt  time.Time
			embedding  sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.Content, &kind, &item.Section,
			&item.HelpfulCount, &item.HarmfulCount, &deprecated,
			&createdAt, &updatedAt, &embedding); err != nil {
			return nil, errors.Wrap(err, errors.PersistenceCorruption, "failed to scan item row")
		}

		item.Kind = Kind(kind)
		item.Deprecated = deprecated != 0
		item.CreatedAt = createdAt
		item.UpdatedAt = updatedAt

		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &item.Embedding); err != nil {
				return nil, errors.WithFields(
					errors.Wrap(err, errors.PersistenceCorruption, "stored embedding is not valid JSON"),
					errors.Fields{"id": item.ID},
				)
			}
		}

		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed while reading items")
	}

	return Restore(config, items)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
