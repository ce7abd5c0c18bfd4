package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxLookupKeys bounds the number of placeholders in one IN query.
const maxLookupKeys = 500

// SQLiteStorage implements EmbeddingStore using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

var _ EmbeddingStore = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		model TEXT NOT NULL,
		text_key TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (model, text_key)
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_created_at ON embeddings(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// GetEmbeddings returns the stored embeddings for texts under model. Texts that
// are not stored are absent from the result.
func (s *SQLiteStorage) GetEmbeddings(ctx context.Context, model string, texts []string) (map[string][]float32, error) {
	byKey := make(map[string]string, len(texts))
	keys := make([]string, 0, len(texts))
	for _, text := range texts {
		k := TextKey(text)
		if _, ok := byKey[k]; ok {
			continue
		}
		byKey[k] = text
		keys = append(keys, k)
	}

	out := make(map[string][]float32, len(keys))
	for start := 0; start < len(keys); start += maxLookupKeys {
		end := min(start+maxLookupKeys, len(keys))
		if err := s.lookup(ctx, model, keys[start:end], byKey, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStorage) lookup(ctx context.Context, model string, keys []string, byKey map[string]string, out map[string][]float32) error {
	args := make([]any, 0, len(keys)+1)
	args = append(args, model)
	for _, k := range keys {
		args = append(args, k)
	}
	query := `SELECT text_key, dimensions, vector FROM embeddings
		WHERE model = ? AND text_key IN (?` + strings.Repeat(",?", len(keys)-1) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var dims int
		var blob []byte
		if err := rows.Scan(&key, &dims, &blob); err != nil {
			return err
		}
		v, err := decodeVector(blob, dims)
		if err != nil {
			return fmt.Errorf("embedding %s: %w", key, err)
		}
		out[byKey[key]] = v
	}
	return rows.Err()
}

// PutEmbeddings upserts embeddings for model in a transaction.
func (s *SQLiteStorage) PutEmbeddings(ctx context.Context, model string, embeddings map[string][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO embeddings (model, text_key, dimensions, vector, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for text, v := range embeddings {
		if _, err := stmt.ExecContext(ctx, model, TextKey(text), len(v), encodeVector(v), now); err != nil {
			return fmt.Errorf("failed to store embedding: %w", err)
		}
	}
	return tx.Commit()
}

// CountEmbeddings returns the total number of stored embeddings.
func (s *SQLiteStorage) CountEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count)
	return count, err
}

// Purge removes stored embeddings for model, including every weights version
// stored as "model@version", or all embeddings when model is empty.
func (s *SQLiteStorage) Purge(ctx context.Context, model string) (int64, error) {
	var res sql.Result
	var err error
	if model == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM embeddings`)
	} else {
		// '@' < 'A' in byte order, so the range covers exactly the "model@" prefix.
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM embeddings WHERE model = ? OR (model >= ? AND model < ?)`,
			model, model+"@", model+"A")
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SizeBytes returns the on-disk size of the database including WAL files.
func (s *SQLiteStorage) SizeBytes() (int64, error) {
	return DiskUsageBytes(sqliteFiles(s.path)...)
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string { return s.path }

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
