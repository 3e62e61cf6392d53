package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// VaultService is the share-accounting ledger for pooled-capital vaults.
// Deposits and withdrawals against any vault are serialized by the service
// lock: each mutation reads totalAssets/totalShares, computes the share math
// and writes the update as one atomic step, which is what preserves the
// share-price invariant under concurrency.
//
// The ledger's numbers are the system of record here.
// TODO: reconcile ledger balances against the on-chain vault position once
// the contract execution layer is wired in.
type VaultService struct {
	mu     sync.Mutex
	vaults domain.VaultStore
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewVaultService creates a VaultService. bus may be nil.
func NewVaultService(vaults domain.VaultStore, bus domain.SignalBus, logger *slog.Logger) *VaultService {
	return &VaultService{
		vaults: vaults,
		bus:    bus,
		logger: logger,
	}
}

// Bootstrap provisions the configured vaults into the store. A vault seen
// for the first time is created with its configured totals; a vault that
// already exists keeps the totals the ledger has accrued and only its policy
// fields (deposit token, fees, minDeposit, vaultCap) are refreshed. Runs at
// every startup.
func (s *VaultService) Bootstrap(ctx context.Context, vaults []domain.VaultInfo) error {
	for _, v := range vaults {
		existing, err := s.vaults.Get(ctx, v.Address)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// first run for this vault
		case err != nil:
			return fmt.Errorf("vault_service: bootstrap %s: %w", v.Address, err)
		default:
			v.TotalAssets = existing.TotalAssets
			v.TotalShares = existing.TotalShares
		}
		if err := s.vaults.Put(ctx, v); err != nil {
			return fmt.Errorf("vault_service: bootstrap %s: %w", v.Address, err)
		}
	}
	if len(vaults) > 0 {
		s.logger.InfoContext(ctx, "vault_service: provisioned vaults",
			slog.Int("count", len(vaults)),
		)
	}
	return nil
}

// List returns all vaults.
func (s *VaultService) List(ctx context.Context) ([]domain.VaultInfo, error) {
	vaults, err := s.vaults.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault_service: list: %w", err)
	}
	return vaults, nil
}

// Get returns one vault by address.
func (s *VaultService) Get(ctx context.Context, address string) (domain.VaultInfo, error) {
	v, err := s.vaults.Get(ctx, address)
	if err != nil {
		return domain.VaultInfo{}, fmt.Errorf("vault_service: get %s: %w", address, err)
	}
	return v, nil
}

// ShareBalance returns the principal's share balance in a vault.
func (s *VaultService) ShareBalance(ctx context.Context, address, principal string) (*big.Int, error) {
	bal, err := s.vaults.ShareBalance(ctx, address, principal)
	if err != nil {
		return nil, fmt.Errorf("vault_service: balance %s/%s: %w", address, principal, err)
	}
	return bal, nil
}

// Deposit credits amount to the vault and issues shares to the principal.
// An empty vault bootstraps at 1:1 pricing; otherwise shares are issued
// proportionally to the current share price, floor-rounded so the depositor
// is never overcredited. The vault's minDeposit and vaultCap are enforced
// here as validation errors. Returns the shares issued.
func (s *VaultService) Deposit(ctx context.Context, vaultAddress, principal string, amount *big.Int) (*big.Int, error) {
	if err := validateMutation(vaultAddress, principal, amount, "amount"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.vaults.Get(ctx, vaultAddress)
	if err != nil {
		return nil, fmt.Errorf("vault_service: deposit: %w", err)
	}

	if v.MinDeposit.Sign() > 0 && amount.Cmp(v.MinDeposit) < 0 {
		return nil, fmt.Errorf("vault_service: %w: amount %s below minimum deposit %s",
			domain.ErrValidation, amount, v.MinDeposit)
	}
	if v.VaultCap.Sign() > 0 {
		after := new(big.Int).Add(v.TotalAssets, amount)
		if after.Cmp(v.VaultCap) > 0 {
			return nil, fmt.Errorf("vault_service: %w: deposit would exceed vault cap %s",
				domain.ErrValidation, v.VaultCap)
		}
	}

	var shares *big.Int
	if v.TotalAssets.Sign() == 0 || v.TotalShares.Sign() == 0 {
		// Empty or freshly provisioned vault: 1:1 bootstrap pricing.
		shares = new(big.Int).Set(amount)
	} else {
		// shares = floor(amount * totalShares / totalAssets)
		shares = new(big.Int).Mul(amount, v.TotalShares)
		shares.Quo(shares, v.TotalAssets)
	}

	balance, err := s.vaults.ShareBalance(ctx, vaultAddress, principal)
	if err != nil {
		return nil, fmt.Errorf("vault_service: deposit: %w", err)
	}

	v.TotalAssets.Add(v.TotalAssets, amount)
	v.TotalShares.Add(v.TotalShares, shares)
	balance.Add(balance, shares)

	if err := s.vaults.Put(ctx, v); err != nil {
		return nil, fmt.Errorf("vault_service: deposit: %w", err)
	}
	if err := s.vaults.SetShareBalance(ctx, vaultAddress, principal, balance); err != nil {
		return nil, fmt.Errorf("vault_service: deposit: %w", err)
	}

	s.publishEvent(ctx, "deposit", vaultAddress, principal, amount, shares)
	s.logger.InfoContext(ctx, "vault_service: deposit",
		slog.String("vault", vaultAddress),
		slog.String("principal", principal),
		slog.String("amount", amount.String()),
		slog.String("shares", shares.String()),
	)
	return new(big.Int).Set(shares), nil
}

// Withdraw burns shares from the principal and returns the proportional
// assets, floor-rounded symmetrically with Deposit. Fails with
// domain.ErrInsufficientShares when the principal's balance is too small.
// Returns the assets paid out.
func (s *VaultService) Withdraw(ctx context.Context, vaultAddress, principal string, shares *big.Int) (*big.Int, error) {
	if err := validateMutation(vaultAddress, principal, shares, "shares"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.vaults.Get(ctx, vaultAddress)
	if err != nil {
		return nil, fmt.Errorf("vault_service: withdraw: %w", err)
	}

	balance, err := s.vaults.ShareBalance(ctx, vaultAddress, principal)
	if err != nil {
		return nil, fmt.Errorf("vault_service: withdraw: %w", err)
	}
	if balance.Cmp(shares) < 0 {
		return nil, fmt.Errorf("vault_service: %w: balance %s, requested %s",
			domain.ErrInsufficientShares, balance, shares)
	}

	// A stored balance does not guarantee a nonzero share supply; the
	// division below needs its own guard.
	if v.TotalShares.Sign() == 0 {
		return nil, fmt.Errorf("vault_service: %w: vault has no outstanding shares",
			domain.ErrInsufficientShares)
	}

	// assets = floor(shares * totalAssets / totalShares)
	assets := new(big.Int).Mul(shares, v.TotalAssets)
	assets.Quo(assets, v.TotalShares)

	v.TotalAssets.Sub(v.TotalAssets, assets)
	v.TotalShares.Sub(v.TotalShares, shares)
	balance.Sub(balance, shares)

	if err := s.vaults.Put(ctx, v); err != nil {
		return nil, fmt.Errorf("vault_service: withdraw: %w", err)
	}
	if err := s.vaults.SetShareBalance(ctx, vaultAddress, principal, balance); err != nil {
		return nil, fmt.Errorf("vault_service: withdraw: %w", err)
	}

	s.publishEvent(ctx, "withdraw", vaultAddress, principal, assets, shares)
	s.logger.InfoContext(ctx, "vault_service: withdraw",
		slog.String("vault", vaultAddress),
		slog.String("principal", principal),
		slog.String("shares", shares.String()),
		slog.String("assets", assets.String()),
	)
	return assets, nil
}

// validateMutation checks the addresses and quantity shared by Deposit and
// Withdraw.
func validateMutation(vaultAddress, principal string, quantity *big.Int, field string) error {
	if !common.IsHexAddress(vaultAddress) {
		return fmt.Errorf("vault_service: %w: invalid vault address %q", domain.ErrValidation, vaultAddress)
	}
	if !common.IsHexAddress(principal) {
		return fmt.Errorf("vault_service: %w: invalid principal address %q", domain.ErrValidation, principal)
	}
	if quantity == nil || quantity.Sign() <= 0 {
		return fmt.Errorf("vault_service: %w: %s must be positive", domain.ErrValidation, field)
	}
	return nil
}

func (s *VaultService) publishEvent(ctx context.Context, kind, vault, principal string, assets, shares *big.Int) {
	if s.bus == nil {
		return
	}
	payload := fmt.Sprintf(
		`{"type":%q,"vault":%q,"principal":%q,"assets":%q,"shares":%q}`,
		kind, vault, principal, assets.String(), shares.String(),
	)
	if err := s.bus.Publish(ctx, ChannelVaults, []byte(payload)); err != nil {
		s.logger.WarnContext(ctx, "vault_service: publish failed",
			slog.String("error", err.Error()),
		)
	}
}
