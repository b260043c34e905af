package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
)

const (
	getAPIKeyByHashSQL = `SELECT id, key_hash, name, customer_id, scopes
		FROM api_keys WHERE key_hash = $1 AND active`

	createAPIKeySQL = `INSERT INTO api_keys (key_hash, name, customer_id, scopes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key_hash) DO UPDATE
		SET name = EXCLUDED.name, customer_id = EXCLUDED.customer_id,
		    scopes = EXCLUDED.scopes, active = TRUE
		RETURNING id`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
// Returns auth.ErrKeyNotFound when no matching key exists.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		info       auth.APIKeyInfo
		customerID *string
	)
	err := r.pool.QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&info.ID, &info.KeyHash, &info.Name, &customerID, &info.Scopes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	info.CustomerID = deref(customerID)
	return &info, nil
}

// Create stores a key digest. An empty customerID creates a key without a
// customer identity, used for back-office callers.
func (r *APIKeyRepository) Create(ctx context.Context, hash, name, customerID string, scopes []string) (string, error) {
	var id string
	if err := r.pool.QueryRow(ctx, createAPIKeySQL, hash, name, nullable(customerID), scopes).Scan(&id); err != nil {
		return "", fmt.Errorf("creating api key %q: %w", name, err)
	}
	return id, nil
}
