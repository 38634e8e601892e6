// Package postgres implements the catalog and result store ports on
// PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	catalogdomain "github.com/teuchmannluca/storefront-scanner/business/catalog/domain"
	"github.com/teuchmannluca/storefront-scanner/business/scan/app"
	"github.com/teuchmannluca/storefront-scanner/business/scan/domain"
	"github.com/teuchmannluca/storefront-scanner/internal/apperror"
	"github.com/teuchmannluca/storefront-scanner/internal/logger"
)

// Ensure Store satisfies both storage ports.
var (
	_ app.CatalogStore = (*Store)(nil)
	_ app.ResultStore  = (*Store)(nil)
)

// Store persists scan sessions and opportunities, and reads the product
// catalog a scan starts from. Marketplace entries are stored as a JSONB
// document; they are read back whole, never queried by field.
type Store struct {
	pool   *pgxpool.Pool
	logger logger.LoggerInterface
}

// Config holds the connection settings for the store.
type Config struct {
	URL            string
	MaxConns       int32
	ConnectTimeout time.Duration
}

// New connects a store to the database and verifies the connection.
func New(ctx context.Context, cfg Config, log logger.LoggerInterface) (*Store, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	return &Store{pool: pool, logger: log}, nil
}

// poolConfig translates the store settings onto the pgx pool config.
func poolConfig(cfg Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	return poolCfg, nil
}

// Ping verifies database connectivity, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the scanner tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	sql := `
	CREATE TABLE IF NOT EXISTS products (
		owner_id TEXT NOT NULL,
		asin TEXT NOT NULL,
		storefront_id TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		image_ref TEXT NOT NULL DEFAULT '',
		sales_rank BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (owner_id, asin, storefront_id)
	);

	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL DEFAULT '',
		scope TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		fail_cause TEXT NOT NULL DEFAULT '',
		total_units INT NOT NULL DEFAULT 0,
		processed_units INT NOT NULL DEFAULT 0,
		opportunities INT NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS opportunities (
		id BIGSERIAL PRIMARY KEY,
		scan_id TEXT NOT NULL REFERENCES scans(id),
		asin TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		home_price NUMERIC(12,2) NOT NULL,
		home_currency TEXT NOT NULL,
		total_fees NUMERIC(12,2) NOT NULL,
		service_fee NUMERIC(12,2) NOT NULL,
		category TEXT NOT NULL,
		payload JSONB NOT NULL,
		evaluated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_opportunities_scan ON opportunities(scan_id, id);
	CREATE INDEX IF NOT EXISTS idx_products_storefront ON products(owner_id, storefront_id);
	`
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// LoadRows reads the owner's catalog rows in scope for a scan.
func (s *Store) LoadRows(ctx context.Context, owner string, scope app.Scope) ([]catalogdomain.ProductRow, error) {
	query := `SELECT asin, display_name, image_ref, sales_rank, storefront_id
		FROM products WHERE owner_id = $1`
	args := []any{owner}
	switch {
	case len(scope.StorefrontIDs) > 0:
		query += ` AND storefront_id = ANY($2)`
		args = append(args, scope.StorefrontIDs)
	case len(scope.ASINs) > 0:
		query += ` AND asin = ANY($2)`
		args = append(args, scope.ASINs)
	}
	query += ` ORDER BY storefront_id, asin`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog rows: %w", err)
	}
	defer rows.Close()

	var out []catalogdomain.ProductRow
	for rows.Next() {
		var r catalogdomain.ProductRow
		if err := rows.Scan(&r.ASIN, &r.DisplayName, &r.ImageRef, &r.SalesRank, &r.StorefrontID); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog rows: %w", err)
	}
	return out, nil
}

// CreateSession inserts a new scan record.
func (s *Store) CreateSession(ctx context.Context, snap domain.SessionSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scans (id, owner_id, scope, status, started_at, total_units, processed_units, opportunities)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		snap.ID, snap.Owner, snap.Scope, string(snap.Status), snap.StartedAt,
		snap.TotalUnits, snap.ProcessedUnits, snap.Opportunities)
	if err != nil {
		return fmt.Errorf("failed to create scan %s: %w", snap.ID, err)
	}
	return nil
}

// UpdateSession writes the current session snapshot over the scan record.
func (s *Store) UpdateSession(ctx context.Context, snap domain.SessionSnapshot) error {
	var endedAt *time.Time
	if !snap.EndedAt.IsZero() {
		endedAt = &snap.EndedAt
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE scans
		SET status = $2, ended_at = $3, fail_cause = $4,
		    total_units = $5, processed_units = $6, opportunities = $7
		WHERE id = $1`,
		snap.ID, string(snap.Status), endedAt, snap.FailCause,
		snap.TotalUnits, snap.ProcessedUnits, snap.Opportunities)
	if err != nil {
		return fmt.Errorf("failed to update scan %s: %w", snap.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound(apperror.CodeScanNotFound, snap.ID)
	}
	return nil
}

// SaveOpportunity inserts one opportunity. The full entry list travels
// in the JSONB payload column.
func (s *Store) SaveOpportunity(ctx context.Context, opp *domain.Opportunity) error {
	payload, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("failed to encode opportunity %s: %w", opp.ASIN, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO opportunities
			(scan_id, asin, display_name, home_price, home_currency,
			 total_fees, service_fee, category, payload, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		opp.ScanID, opp.ASIN, opp.DisplayName,
		opp.HomePrice, opp.HomeCurrency, opp.TotalFees, opp.ServiceFee,
		string(opp.Category), payload, opp.EvaluatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert opportunity %s: %w", opp.ASIN, err)
	}
	return nil
}

// GetSession reads one scan record.
func (s *Store) GetSession(ctx context.Context, scanID string) (*domain.SessionSnapshot, error) {
	var snap domain.SessionSnapshot
	var status string
	var endedAt *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, scope, status, started_at, ended_at, fail_cause,
		       total_units, processed_units, opportunities
		FROM scans WHERE id = $1`, scanID).
		Scan(&snap.ID, &snap.Owner, &snap.Scope, &status, &snap.StartedAt, &endedAt,
			&snap.FailCause, &snap.TotalUnits, &snap.ProcessedUnits, &snap.Opportunities)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound(apperror.CodeScanNotFound, scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read scan %s: %w", scanID, err)
	}
	snap.Status = domain.SessionStatus(status)
	if endedAt != nil {
		snap.EndedAt = *endedAt
	}
	return &snap, nil
}

// ListOpportunities returns a scan's opportunities in discovery order.
func (s *Store) ListOpportunities(ctx context.Context, scanID string) ([]*domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT payload FROM opportunities WHERE scan_id = $1 ORDER BY id`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities for %s: %w", scanID, err)
	}
	defer rows.Close()

	var out []*domain.Opportunity
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan opportunity row: %w", err)
		}
		var opp domain.Opportunity
		if err := json.Unmarshal(payload, &opp); err != nil {
			return nil, fmt.Errorf("failed to decode opportunity payload: %w", err)
		}
		out = append(out, &opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read opportunity rows: %w", err)
	}
	return out, nil
}
