package service

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
	"github.com/crypmancer/defi-prediction-aggregator/internal/store/memory"
)

const (
	testVaultAddr = "0x1111111111111111111111111111111111111111"
	alice         = "0xaaaa000000000000000000000000000000000001"
	bob           = "0xbbbb000000000000000000000000000000000002"
)

func newVaultService(t *testing.T, vaults ...domain.VaultInfo) *VaultService {
	t.Helper()
	svc := NewVaultService(memory.NewVaultStore(), nil, slog.New(slog.DiscardHandler))
	require.NoError(t, svc.Bootstrap(context.Background(), vaults))
	return svc
}

func emptyVault() domain.VaultInfo {
	return domain.VaultInfo{
		Address:      testVaultAddr,
		DepositToken: "USDC",
		TotalAssets:  big.NewInt(0),
		TotalShares:  big.NewInt(0),
		MinDeposit:   big.NewInt(0),
		VaultCap:     big.NewInt(0),
	}
}

func TestFirstDepositBootstrapsOneToOne(t *testing.T) {
	ctx := context.Background()
	svc := newVaultService(t, emptyVault())

	shares, err := svc.Deposit(ctx, testVaultAddr, alice, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), shares.Int64())

	v, err := svc.Get(ctx, testVaultAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v.TotalAssets.Int64())
	assert.Equal(t, int64(1000), v.TotalShares.Int64())
}

func TestProportionalDepositFloorsShares(t *testing.T) {
	ctx := context.Background()
	// Vault seeded as if yield accrued: 1500 assets backing 1000 shares.
	v := emptyVault()
	v.TotalAssets = big.NewInt(1500)
	v.TotalShares = big.NewInt(1000)
	svc := newVaultService(t, v)

	// floor(1000 * 1000 / 1500) = 666, not 667.
	shares, err := svc.Deposit(ctx, testVaultAddr, bob, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(666), shares.Int64())

	got, err := svc.Get(ctx, testVaultAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), got.TotalAssets.Int64())
	assert.Equal(t, int64(1666), got.TotalShares.Int64())
}

func TestWithdrawRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newVaultService(t, emptyVault())

	shares, err := svc.Deposit(ctx, testVaultAddr, alice, big.NewInt(5000))
	require.NoError(t, err)

	assets, err := svc.Withdraw(ctx, testVaultAddr, alice, shares)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), assets.Int64())

	v, err := svc.Get(ctx, testVaultAddr)
	require.NoError(t, err)
	assert.Zero(t, v.TotalAssets.Sign())
	assert.Zero(t, v.TotalShares.Sign())

	bal, err := svc.ShareBalance(ctx, testVaultAddr, alice)
	require.NoError(t, err)
	assert.Zero(t, bal.Sign())
}

func TestWithdrawPaysProportionalAssets(t *testing.T) {
	ctx := context.Background()
	store := memory.NewVaultStore()
	svc := NewVaultService(store, nil, slog.New(slog.DiscardHandler))
	require.NoError(t, svc.Bootstrap(ctx, []domain.VaultInfo{emptyVault()}))

	// Two depositors at 1:1, then simulated yield doubles the assets behind
	// the same share supply.
	_, err := svc.Deposit(ctx, testVaultAddr, alice, big.NewInt(1000))
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, testVaultAddr, bob, big.NewInt(1000))
	require.NoError(t, err)

	grown, err := svc.Get(ctx, testVaultAddr)
	require.NoError(t, err)
	grown.TotalAssets = big.NewInt(4000)
	require.NoError(t, store.Put(ctx, grown))

	assets, err := svc.Withdraw(ctx, testVaultAddr, alice, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(2000), assets.Int64())
}

func TestBootstrapKeepsAccruedTotals(t *testing.T) {
	ctx := context.Background()
	svc := newVaultService(t, emptyVault())

	_, err := svc.Deposit(ctx, testVaultAddr, alice, big.NewInt(1000))
	require.NoError(t, err)

	// A restart re-runs Bootstrap with the config's zero totals and a new
	// deposit policy.
	reprovisioned := emptyVault()
	reprovisioned.MinDeposit = big.NewInt(500)
	require.NoError(t, svc.Bootstrap(ctx, []domain.VaultInfo{reprovisioned}))

	v, err := svc.Get(ctx, testVaultAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v.TotalAssets.Int64())
	assert.Equal(t, int64(1000), v.TotalShares.Int64())
	assert.Equal(t, int64(500), v.MinDeposit.Int64())

	assets, err := svc.Withdraw(ctx, testVaultAddr, alice, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), assets.Int64())
}

func TestWithdrawZeroShareSupplyErrors(t *testing.T) {
	ctx := context.Background()
	store := memory.NewVaultStore()
	svc := NewVaultService(store, nil, slog.New(slog.DiscardHandler))

	// Balance rows outliving the vault's share supply must surface as an
	// error, not a division panic.
	require.NoError(t, store.Put(ctx, emptyVault()))
	require.NoError(t, store.SetShareBalance(ctx, testVaultAddr, alice, big.NewInt(500)))

	_, err := svc.Withdraw(ctx, testVaultAddr, alice, big.NewInt(500))
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestWithdrawInsufficientShares(t *testing.T) {
	ctx := context.Background()
	svc := newVaultService(t, emptyVault())

	_, err := svc.Deposit(ctx, testVaultAddr, alice, big.NewInt(100))
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, testVaultAddr, alice, big.NewInt(101))
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	// Another principal holds nothing at all.
	_, err = svc.Withdraw(ctx, testVaultAddr, bob, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestDepositValidation(t *testing.T) {
	ctx := context.Background()
	svc := newVaultService(t, emptyVault())

	_, err := svc.Deposit(ctx, "not-an-address", alice, big.NewInt(100))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Deposit(ctx, testVaultAddr, "bogus", big.NewInt(100))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Deposit(ctx, testVaultAddr, alice, big.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Deposit(ctx, testVaultAddr, alice, big.NewInt(-5))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Deposit(ctx, testVaultAddr, alice, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDepositEnforcesMinDeposit(t *testing.T) {
	ctx := context.Background()
	v := emptyVault()
	v.MinDeposit = big.NewInt(500)
	svc := newVaultService(t, v)

	_, err := svc.Deposit(ctx, testVaultAddr, alice, big.NewInt(499))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Deposit(ctx, testVaultAddr, alice, big.NewInt(500))
	assert.NoError(t, err)
}

func TestDepositEnforcesVaultCap(t *testing.T) {
	ctx := context.Background()
	v := emptyVault()
	v.VaultCap = big.NewInt(1000)
	svc := newVaultService(t, v)

	_, err := svc.Deposit(ctx, testVaultAddr, alice, big.NewInt(600))
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, testVaultAddr, bob, big.NewInt(401))
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Exactly at the cap is allowed.
	_, err = svc.Deposit(ctx, testVaultAddr, bob, big.NewInt(400))
	assert.NoError(t, err)
}

func TestDepositUnknownVault(t *testing.T) {
	svc := newVaultService(t)

	_, err := svc.Deposit(context.Background(), testVaultAddr, alice, big.NewInt(100))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentDepositsKeepLedgerConsistent(t *testing.T) {
	ctx := context.Background()
	svc := newVaultService(t, emptyVault())

	const goroutines = 16
	const perDeposit = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Deposit(ctx, testVaultAddr, alice, big.NewInt(perDeposit))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err := svc.Get(ctx, testVaultAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines*perDeposit), v.TotalAssets.Int64())
	// While the vault only ever prices at 1:1, shares track assets exactly.
	assert.Equal(t, int64(goroutines*perDeposit), v.TotalShares.Int64())

	bal, err := svc.ShareBalance(ctx, testVaultAddr, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines*perDeposit), bal.Int64())
}
