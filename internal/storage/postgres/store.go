// Package postgres implements the storage contracts on PostgreSQL with the
// pgvector extension. Similarity search runs in the database via the cosine
// distance operator, so it scales past what the in-Go ranking backends handle.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Store implements storage.VectorStore and storage.HistoryStore on PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore connects to PostgreSQL, enables the pgvector extension, and
// creates the schema. The embedding column is fixed to dimension, so all
// inserted vectors must match it.
func NewStore(dsn string, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", storage.ErrInvalidInput)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	// The embedding column requires pgvector; unlike full-text layers there
	// is no degraded mode to fall back to.
	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgvector extension unavailable: %w", err)
	}

	if _, err := db.Exec(schema(dimension)); err != nil {
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

	const query = `
		INSERT INTO memories (id, owner_id, text, hash, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL)
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
			pgvector.NewVector(vectors[i]), createdAt); err != nil {
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

// Search performs owner-scoped k-NN ranked by cosine similarity, descending.
// pgvector's <=> operator yields cosine distance, so score = 1 - distance.
func (s *Store) Search(ctx context.Context, vector []float32, ownerID string, limit int) ([]storage.SearchHit, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidInput)
	}

	const query = `
		SELECT id, owner_id, text, hash, created_at, updated_at,
		       1 - (embedding <=> $1::vector) AS score
		FROM memories
		WHERE owner_id = $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vector), ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	defer rows.Close()

	var hits []storage.SearchHit
	for rows.Next() {
		var mem types.Memory
		var updatedAt sql.NullTime
		var score float64
		if err := rows.Scan(&mem.ID, &mem.OwnerID, &mem.Text, &mem.Hash,
			&mem.CreatedAt, &updatedAt, &score); err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		if updatedAt.Valid {
			t := updatedAt.Time
			mem.UpdatedAt = &t
		}
		if score < 0 {
			score = 0
		}
		mem.Score = score
		hits = append(hits, storage.SearchHit{Memory: &mem, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search hits: %w", err)
	}
	return hits, nil
}

// Update replaces the vector, merges the patch, and refreshes updated_at.
func (s *Store) Update(ctx context.Context, id string, vector []float32, patch storage.UpdatePatch) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	sets := []string{"embedding = $1", "updated_at = $2"}
	args := []interface{}{pgvector.NewVector(vector), time.Now().UTC()}
	if patch.Text != nil {
		sets = append(sets, fmt.Sprintf("text = $%d", len(args)+1))
		args = append(args, *patch.Text)
	}
	if patch.Hash != nil {
		sets = append(sets, fmt.Sprintf("hash = $%d", len(args)+1))
		args = append(args, *patch.Hash)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))
	result, err := s.db.ExecContext(ctx, query, args...)
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
	if _, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

// Get retrieves a memory by id.
func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	const query = `
		SELECT id, owner_id, text, hash, created_at, updated_at
		FROM memories WHERE id = $1
	`
	mem, err := scanOne(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return mem, err
}

// GetAllByOwner returns every memory belonging to ownerID, newest first.
func (s *Store) GetAllByOwner(ctx context.Context, ownerID string) ([]*types.Memory, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}

	const query = `
		SELECT id, owner_id, text, hash, created_at, updated_at
		FROM memories WHERE owner_id = $1
		ORDER BY created_at DESC, id
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	memories := make([]*types.Memory, 0)
	for rows.Next() {
		var mem types.Memory
		var updatedAt sql.NullTime
		if err := rows.Scan(&mem.ID, &mem.OwnerID, &mem.Text, &mem.Hash,
			&mem.CreatedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		if updatedAt.Valid {
			t := updatedAt.Time
			mem.UpdatedAt = &t
		}
		memories = append(memories, &mem)
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

	const query = `
		SELECT id, owner_id, text, hash, created_at, updated_at
		FROM memories WHERE owner_id = $1 AND hash = $2
	`
	mem, err := scanOne(s.db.QueryRowContext(ctx, query, ownerID, hash))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return mem, err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanOne(row *sql.Row) (*types.Memory, error) {
	var mem types.Memory
	var updatedAt sql.NullTime
	if err := row.Scan(&mem.ID, &mem.OwnerID, &mem.Text, &mem.Hash,
		&mem.CreatedAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan memory: %w", err)
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		mem.UpdatedAt = &t
	}
	return &mem, nil
}

var _ storage.VectorStore = (*Store)(nil)
