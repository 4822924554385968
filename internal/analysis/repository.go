package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinia-sante/clinia/internal/shared/metrics"
)

// Storage outcomes the orchestrator distinguishes between. A duplicate key
// is the expected outcome of a concurrent first-time race, not an error;
// any other storage failure is non-fatal and must never block the response.
var (
	ErrResultNotFound    = errors.New("analysis result not found")
	ErrPersistenceFailed = errors.New("persistence failed")
)

// ResultStore persists analysis results keyed by fingerprint
type ResultStore interface {
	// InsertOrReuse inserts the record, or returns the already-stored
	// record when another writer won the race for this fingerprint
	InsertOrReuse(ctx context.Context, result *Result) (*Result, error)

	// FindByFingerprint returns the stored record for a fingerprint,
	// or ErrResultNotFound
	FindByFingerprint(ctx context.Context, fingerprint string) (*Result, error)
}

// uniqueViolation is the Postgres SQLSTATE for a unique constraint violation
const uniqueViolation = "23505"

// Repository provides database operations for analysis results
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new analysis result repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ ResultStore = (*Repository)(nil)

// InsertOrReuse attempts the insert; on a fingerprint collision it reads
// back and returns the winner's record instead of propagating a failure.
func (r *Repository) InsertOrReuse(ctx context.Context, result *Result) (*Result, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert_result", time.Since(start)) }()

	input, err := json.Marshal(result.Input)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal input: %v", ErrPersistenceFailed, err)
	}
	output, err := json.Marshal(result.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal output: %v", ErrPersistenceFailed, err)
	}

	query := `
		INSERT INTO analysis.results (id, fingerprint, input, output, mode, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.pool.Exec(ctx, query,
		result.ID, result.Fingerprint, input, output,
		string(result.Mode), result.Model, result.CreatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// Concurrent first-time race: the other writer's record wins.
			existing, findErr := r.FindByFingerprint(ctx, result.Fingerprint)
			if findErr != nil {
				return nil, fmt.Errorf("%w: read back after duplicate: %v", ErrPersistenceFailed, findErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	return result, nil
}

// FindByFingerprint returns the stored record for a fingerprint
func (r *Repository) FindByFingerprint(ctx context.Context, fingerprint string) (*Result, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("find_result", time.Since(start)) }()

	query := `
		SELECT id, fingerprint, input, output, mode, model, created_at
		FROM analysis.results
		WHERE fingerprint = $1`

	var (
		result Result
		input  []byte
		output []byte
		mode   string
	)

	err := r.pool.QueryRow(ctx, query, fingerprint).Scan(
		&result.ID, &result.Fingerprint, &input, &output,
		&mode, &result.Model, &result.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	if err := json.Unmarshal(input, &result.Input); err != nil {
		return nil, fmt.Errorf("%w: unmarshal input: %v", ErrPersistenceFailed, err)
	}
	if err := json.Unmarshal(output, &result.Output); err != nil {
		return nil, fmt.Errorf("%w: unmarshal output: %v", ErrPersistenceFailed, err)
	}
	result.Mode = Mode(mode)

	return &result, nil
}
