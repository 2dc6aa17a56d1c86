// Package sqlite implements the storage contracts on an embedded SQLite
// database. Embeddings are serialized as little-endian float32 BLOBs and
// similarity is ranked in Go, which is fine at per-owner memory counts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Store implements storage.VectorStore and storage.HistoryStore using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database, configures WAL mode, and creates the schema.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode allows concurrent readers to proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Connections live for the lifetime of the store.

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout so that callers wait instead of getting an immediate
	// SQLITE_BUSY error when the connection is held by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Insert stores a batch of memories in one transaction.
func (s *Store) Insert(ctx context.Context, ids []string, vectors [][]float32, payloads []types.Memory) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return fmt.Errorf("%w: ids/vectors/payloads length mismatch (%d/%d/%d)",
			storage.ErrInvalidInput, len(ids), len(vectors), len(payloads))
	}
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO memories (id, owner_id, text, hash, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)
	`

	var failed []string
	for i, id := range ids {
		p := payloads[i]
		if id == "" || p.OwnerID == "" || p.Text == "" {
			return fmt.Errorf("%w: entry %d missing id, owner_id, or text", storage.ErrInvalidInput, i)
		}
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, query, id, p.OwnerID, p.Text, p.Hash,
			serializeVector(vectors[i]), createdAt); err != nil {
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to insert entries [%s]", strings.Join(failed, ", "))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert: %w", err)
	}
	return nil
}

// Search loads the owner's rows and ranks them by cosine similarity in Go.
func (s *Store) Search(ctx context.Context, vector []float32, ownerID string, limit int) ([]storage.SearchHit, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, text, hash, embedding, created_at, updated_at
		FROM memories WHERE owner_id = ?
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var hits []storage.SearchHit
	for rows.Next() {
		mem, blob, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		emb, err := deserializeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("memory %s: %w", mem.ID, err)
		}
		mem.Embedding = emb
		score := cosineSimilarity(vector, emb)
		mem.Score = score
		hits = append(hits, storage.SearchHit{Memory: mem, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memories: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Update replaces the vector, merges the patch, and refreshes updated_at.
func (s *Store) Update(ctx context.Context, id string, vector []float32, patch storage.UpdatePatch) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	sets := []string{"embedding = ?", "updated_at = ?"}
	args := []interface{}{serializeVector(vector), time.Now().UTC()}
	if patch.Text != nil {
		sets = append(sets, "text = ?")
		args = append(args, *patch.Text)
	}
	if patch.Hash != nil {
		sets = append(sets, "hash = ?")
		args = append(args, *patch.Hash)
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE memories SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update memory: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a memory by id. Absent ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

// Get retrieves a memory by id.
func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, text, hash, embedding, created_at, updated_at
		FROM memories WHERE id = ?
	`, id)
	mem, blob, err := scanMemory(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	emb, err := deserializeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("memory %s: %w", mem.ID, err)
	}
	mem.Embedding = emb
	return mem, nil
}

// GetAllByOwner returns every memory belonging to ownerID, newest first.
func (s *Store) GetAllByOwner(ctx context.Context, ownerID string) ([]*types.Memory, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, text, hash, embedding, created_at, updated_at
		FROM memories WHERE owner_id = ?
		ORDER BY created_at DESC, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	memories := make([]*types.Memory, 0)
	for rows.Next() {
		mem, blob, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		emb, err := deserializeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("memory %s: %w", mem.ID, err)
		}
		mem.Embedding = emb
		memories = append(memories, mem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memories: %w", err)
	}
	return memories, nil
}

// FindByHash returns the owner's memory with the given content hash.
func (s *Store) FindByHash(ctx context.Context, ownerID, hash string) (*types.Memory, error) {
	if ownerID == "" || hash == "" {
		return nil, fmt.Errorf("%w: owner ID and hash are required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, text, hash, embedding, created_at, updated_at
		FROM memories WHERE owner_id = ? AND hash = ?
	`, ownerID, hash)
	mem, blob, err := scanMemory(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	emb, err := deserializeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("memory %s: %w", mem.ID, err)
	}
	mem.Embedding = emb
	return mem, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (*types.Memory, []byte, error) {
	var mem types.Memory
	var blob []byte
	var updatedAt sql.NullTime
	if err := row.Scan(&mem.ID, &mem.OwnerID, &mem.Text, &mem.Hash, &blob,
		&mem.CreatedAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to scan memory: %w", err)
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		mem.UpdatedAt = &t
	}
	return &mem, blob, nil
}

// serializeVector converts a float32 slice to little-endian bytes.
func serializeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector converts little-endian bytes back to a float32 slice.
func deserializeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob size %d is not a multiple of 4", len(buf))
	}
	vector := make([]float32, len(buf)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vector, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, clamped
// to [0, 1]. Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

var _ storage.VectorStore = (*Store)(nil)
