package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Upsert inserts or updates the platform-supplied fields of a market. The
// resolved, outcome and ai_confidence columns stay out of the DO UPDATE SET
// list so prior values survive every upsert.
func (s *MarketStore) Upsert(ctx context.Context, snap domain.MarketSnapshot) error {
	const query = `
		INSERT INTO markets (
			market_id, platform, question, end_time,
			yes_price, no_price, total_volume, resolved, last_updated
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, FALSE, $8
		)
		ON CONFLICT (market_id) DO UPDATE SET
			platform     = EXCLUDED.platform,
			question     = EXCLUDED.question,
			end_time     = EXCLUDED.end_time,
			yes_price    = EXCLUDED.yes_price,
			no_price     = EXCLUDED.no_price,
			total_volume = EXCLUDED.total_volume,
			last_updated = GREATEST(markets.last_updated, EXCLUDED.last_updated)`

	_, err := s.pool.Exec(ctx, query,
		snap.MarketID, snap.Platform, snap.Question, snap.EndTime,
		snap.YesPrice, snap.NoPrice, snap.Volume, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", snap.MarketID, err)
	}
	return nil
}

const marketColumns = `
	market_id, platform, question, end_time,
	yes_price, no_price, total_volume,
	resolved, outcome, ai_confidence, last_updated`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	err := row.Scan(
		&m.MarketID, &m.Platform, &m.Question, &m.EndTime,
		&m.YesPrice, &m.NoPrice, &m.TotalVolume,
		&m.Resolved, &m.Outcome, &m.AIConfidence, &m.LastUpdated,
	)
	if err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

func (s *MarketStore) queryMarkets(ctx context.Context, query string, args ...any) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	markets := make([]domain.Market, 0)
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// Get returns a market by ID, or domain.ErrNotFound.
func (s *MarketStore) Get(ctx context.Context, marketID string) (domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE market_id = $1`

	m, err := scanMarket(s.pool.QueryRow(ctx, query, marketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", marketID, err)
	}
	return m, nil
}

// List returns all markets.
func (s *MarketStore) List(ctx context.Context) ([]domain.Market, error) {
	markets, err := s.queryMarkets(ctx, `SELECT `+marketColumns+` FROM markets`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	return markets, nil
}

// ListByPlatform returns markets for one platform, matched case-insensitively.
func (s *MarketStore) ListByPlatform(ctx context.Context, platform string) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE LOWER(platform) = LOWER($1)`

	markets, err := s.queryMarkets(ctx, query, platform)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets by platform %s: %w", platform, err)
	}
	return markets, nil
}

// ListActive returns unresolved markets ending strictly in the future.
func (s *MarketStore) ListActive(ctx context.Context) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE resolved = FALSE AND end_time > $1`

	markets, err := s.queryMarkets(ctx, query, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	return markets, nil
}

// Resolve marks a market resolved. The WHERE resolved = FALSE guard makes the
// transition one-way at the database level; a no-op update is disambiguated
// into ErrNotFound or ErrAlreadyResolved with a follow-up existence check.
func (s *MarketStore) Resolve(ctx context.Context, marketID string, outcome bool) error {
	const query = `
		UPDATE markets
		SET resolved = TRUE, outcome = $2, last_updated = $3
		WHERE market_id = $1 AND resolved = FALSE`

	tag, err := s.pool.Exec(ctx, query, marketID, outcome, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("postgres: resolve market %s: %w", marketID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM markets WHERE market_id = $1)", marketID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: resolve market %s: %w", marketID, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrAlreadyResolved
}

// SetConfidence overwrites the cached AI confidence for a market.
func (s *MarketStore) SetConfidence(ctx context.Context, marketID string, confidence int64) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE markets SET ai_confidence = $2 WHERE market_id = $1",
		marketID, confidence,
	)
	if err != nil {
		return fmt.Errorf("postgres: set confidence for %s: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
