package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// VaultStore implements domain.VaultStore using PostgreSQL. Smallest-unit
// quantities are stored as NUMERIC(78,0) and moved through the driver as
// decimal strings to preserve full precision.
type VaultStore struct {
	pool *pgxpool.Pool
}

// NewVaultStore creates a new VaultStore backed by the given connection pool.
func NewVaultStore(pool *pgxpool.Pool) *VaultStore {
	return &VaultStore{pool: pool}
}

// Put inserts or fully replaces a vault record.
func (s *VaultStore) Put(ctx context.Context, v domain.VaultInfo) error {
	const query = `
		INSERT INTO vaults (
			address, deposit_token, total_assets, total_shares,
			performance_fee_bps, management_fee_bps, min_deposit, vault_cap
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (address) DO UPDATE SET
			deposit_token       = EXCLUDED.deposit_token,
			total_assets        = EXCLUDED.total_assets,
			total_shares        = EXCLUDED.total_shares,
			performance_fee_bps = EXCLUDED.performance_fee_bps,
			management_fee_bps  = EXCLUDED.management_fee_bps,
			min_deposit         = EXCLUDED.min_deposit,
			vault_cap           = EXCLUDED.vault_cap`

	// Addresses are stored lowercased so balance rows can reference them
	// regardless of the caller's hex casing.
	v = v.Clone()
	v.Address = strings.ToLower(v.Address)
	_, err := s.pool.Exec(ctx, query,
		v.Address, v.DepositToken, v.TotalAssets.String(), v.TotalShares.String(),
		v.PerformanceFeeBps, v.ManagementFeeBps, v.MinDeposit.String(), v.VaultCap.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: put vault %s: %w", v.Address, err)
	}
	return nil
}

func scanVault(row pgx.Row) (domain.VaultInfo, error) {
	var v domain.VaultInfo
	var totalAssets, totalShares, minDeposit, vaultCap string
	err := row.Scan(
		&v.Address, &v.DepositToken, &totalAssets, &totalShares,
		&v.PerformanceFeeBps, &v.ManagementFeeBps, &minDeposit, &vaultCap,
	)
	if err != nil {
		return domain.VaultInfo{}, err
	}

	for _, f := range []struct {
		dst **big.Int
		src string
	}{
		{&v.TotalAssets, totalAssets},
		{&v.TotalShares, totalShares},
		{&v.MinDeposit, minDeposit},
		{&v.VaultCap, vaultCap},
	} {
		n, ok := new(big.Int).SetString(f.src, 10)
		if !ok {
			return domain.VaultInfo{}, fmt.Errorf("postgres: vault %s: bad numeric %q", v.Address, f.src)
		}
		*f.dst = n
	}

	return v, nil
}

const vaultColumns = `
	address, deposit_token, total_assets::text, total_shares::text,
	performance_fee_bps, management_fee_bps, min_deposit::text, vault_cap::text`

// Get returns a vault by address, or domain.ErrNotFound.
func (s *VaultStore) Get(ctx context.Context, address string) (domain.VaultInfo, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE LOWER(address) = LOWER($1)`

	v, err := scanVault(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VaultInfo{}, domain.ErrNotFound
		}
		return domain.VaultInfo{}, fmt.Errorf("postgres: get vault %s: %w", address, err)
	}
	return v, nil
}

// List returns all vaults.
func (s *VaultStore) List(ctx context.Context) ([]domain.VaultInfo, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+vaultColumns+` FROM vaults`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list vaults: %w", err)
	}
	defer rows.Close()

	vaults := make([]domain.VaultInfo, 0)
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list vaults: %w", err)
		}
		vaults = append(vaults, v)
	}
	return vaults, rows.Err()
}

// ShareBalance returns the principal's share balance, zero when the principal
// has never deposited.
func (s *VaultStore) ShareBalance(ctx context.Context, address, principal string) (*big.Int, error) {
	if _, err := s.Get(ctx, address); err != nil {
		return nil, err
	}

	const query = `
		SELECT shares::text FROM vault_balances
		WHERE LOWER(vault_address) = LOWER($1) AND LOWER(principal) = LOWER($2)`

	var shares string
	err := s.pool.QueryRow(ctx, query, address, principal).Scan(&shares)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("postgres: share balance %s/%s: %w", address, principal, err)
	}

	n, ok := new(big.Int).SetString(shares, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: share balance %s/%s: bad numeric %q", address, principal, shares)
	}
	return n, nil
}

// SetShareBalance overwrites the principal's share balance in the vault.
func (s *VaultStore) SetShareBalance(ctx context.Context, address, principal string, shares *big.Int) error {
	if _, err := s.Get(ctx, address); err != nil {
		return err
	}

	const query = `
		INSERT INTO vault_balances (vault_address, principal, shares)
		VALUES (LOWER($1), LOWER($2), $3)
		ON CONFLICT (vault_address, principal) DO UPDATE SET shares = EXCLUDED.shares`

	_, err := s.pool.Exec(ctx, query, address, principal, shares.String())
	if err != nil {
		return fmt.Errorf("postgres: set share balance %s/%s: %w", address, principal, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.VaultStore = (*VaultStore)(nil)
