// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

// Package storage persists built corpora in SQLite so a restarted
// server can serve queries without re-extracting or re-embedding.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/storage/migrations"
)

const dbFile = "pdfqa.db"

var ErrNotFound = errors.New("corpus not found")

// Snapshot is everything needed to rebuild a corpus: its chunks, their
// vectors in chunk order and the parameters they were produced with.
type Snapshot struct {
	CorpusID     string
	Source       string
	Path         string
	TotalPages   int
	ChunkSize    int
	ChunkOverlap int
	Embedder     string
	Dimensions   int
	BuiltAt      time.Time
	Chunks       []api.Chunk
	Vectors      [][]float32
}

func (s *Snapshot) Info() api.DocumentInfo {
	return api.DocumentInfo{
		CorpusID:   s.CorpusID,
		Source:     s.Source,
		Path:       s.Path,
		TotalPages: s.TotalPages,
		ChunkCount: len(s.Chunks),
		BuiltAt:    s.BuiltAt.Unix(),
	}
}

type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database in dataDir and applies any
// pending migrations.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFile)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Save writes the snapshot in one transaction. Saving an id that
// already exists replaces it.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	if snap.CorpusID == "" {
		return api.EmptyInputError{Field: "corpus id"}
	}
	if len(snap.Vectors) != 0 && len(snap.Vectors) != len(snap.Chunks) {
		return fmt.Errorf("snapshot has %d chunks but %d vectors", len(snap.Chunks), len(snap.Vectors))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM corpora WHERE id = ?", snap.CorpusID); err != nil {
		return fmt.Errorf("replacing corpus: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO corpora (id, source, path, total_pages, chunk_size, chunk_overlap, embedder, dimensions, built_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.CorpusID, snap.Source, snap.Path, snap.TotalPages, snap.ChunkSize, snap.ChunkOverlap,
		snap.Embedder, snap.Dimensions, snap.BuiltAt.UnixNano())
	if err != nil {
		return fmt.Errorf("inserting corpus: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (corpus_id, chunk_id, page_number, source, text, vector)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range snap.Chunks {
		var blob []byte
		if len(snap.Vectors) > 0 {
			blob = encodeVector(snap.Vectors[i])
		}
		if _, err := stmt.ExecContext(ctx, snap.CorpusID, c.ID, c.PageNumber, c.Source, c.Text, blob); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// Latest returns the most recently built corpus, or ErrNotFound.
func (s *Store) Latest(ctx context.Context) (*Snapshot, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM corpora ORDER BY built_at DESC, rowid DESC LIMIT 1").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding latest corpus: %w", err)
	}
	return s.Load(ctx, id)
}

func (s *Store) Load(ctx context.Context, id string) (*Snapshot, error) {
	snap := &Snapshot{CorpusID: id}
	var builtAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT source, path, total_pages, chunk_size, chunk_overlap, embedder, dimensions, built_at
		FROM corpora WHERE id = ?`, id).
		Scan(&snap.Source, &snap.Path, &snap.TotalPages, &snap.ChunkSize, &snap.ChunkOverlap,
			&snap.Embedder, &snap.Dimensions, &builtAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading corpus %s: %w", id, err)
	}
	snap.BuiltAt = time.Unix(0, builtAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, page_number, source, text, vector
		FROM chunks WHERE corpus_id = ? ORDER BY chunk_id`, id)
	if err != nil {
		return nil, fmt.Errorf("loading chunks of %s: %w", id, err)
	}
	defer rows.Close()

	hasVectors := true
	for rows.Next() {
		var (
			c    api.Chunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.PageNumber, &c.Source, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		snap.Chunks = append(snap.Chunks, c)
		if blob == nil {
			hasVectors = false
		}
		snap.Vectors = append(snap.Vectors, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !hasVectors {
		snap.Vectors = nil
	}

	return snap, nil
}

// List returns the stored corpora, newest first.
func (s *Store) List(ctx context.Context) ([]api.DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.source, c.path, c.total_pages, c.built_at, COUNT(ch.chunk_id)
		FROM corpora c LEFT JOIN chunks ch ON ch.corpus_id = c.id
		GROUP BY c.id ORDER BY c.built_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing corpora: %w", err)
	}
	defer rows.Close()

	var infos []api.DocumentInfo
	for rows.Next() {
		var (
			info    api.DocumentInfo
			builtAt int64
		)
		if err := rows.Scan(&info.CorpusID, &info.Source, &info.Path, &info.TotalPages, &builtAt, &info.ChunkCount); err != nil {
			return nil, fmt.Errorf("scanning corpus: %w", err)
		}
		info.BuiltAt = time.Unix(0, builtAt).Unix()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM corpora WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting corpus %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	if data == nil {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
