package domain

import (
	"context"
	"math/big"
)

// MarketStore is the authoritative registry of markets. Implementations own
// identity, mutation and the query surface; semantics are identical across
// backends so they can be substituted without touching the services.
type MarketStore interface {
	// Upsert creates the market on first sight of a marketId and replaces the
	// platform-supplied fields on subsequent calls. Resolved, Outcome and
	// AIConfidence are preserved from the prior record; LastUpdated is always
	// refreshed. Upsert never fails for valid snapshots.
	Upsert(ctx context.Context, snap MarketSnapshot) error
	// Get returns the market or ErrNotFound.
	Get(ctx context.Context, marketID string) (Market, error)
	// List returns all markets in no particular order.
	List(ctx context.Context) ([]Market, error)
	// ListByPlatform matches the platform name case-insensitively.
	ListByPlatform(ctx context.Context, platform string) ([]Market, error)
	// ListActive returns markets with Resolved=false and EndTime strictly in
	// the future, snapshot-consistent at call time.
	ListActive(ctx context.Context) ([]Market, error)
	// Resolve marks the market resolved with the given outcome. Returns
	// ErrNotFound for unknown markets and ErrAlreadyResolved on a second
	// attempt; resolution is irreversible.
	Resolve(ctx context.Context, marketID string, outcome bool) error
	// SetConfidence overwrites the cached AIConfidence unconditionally.
	// Returns ErrNotFound for unknown markets.
	SetConfidence(ctx context.Context, marketID string, confidence int64) error
}

// VaultStore persists vault state and per-principal share balances. The
// ledger serializes read-modify-write sequences itself, so implementations
// only need per-call consistency.
type VaultStore interface {
	Put(ctx context.Context, v VaultInfo) error
	Get(ctx context.Context, address string) (VaultInfo, error)
	List(ctx context.Context) ([]VaultInfo, error)
	// ShareBalance returns the principal's share balance, zero (not
	// ErrNotFound) when the principal has never deposited.
	ShareBalance(ctx context.Context, address, principal string) (*big.Int, error)
	SetShareBalance(ctx context.Context, address, principal string, shares *big.Int) error
}
