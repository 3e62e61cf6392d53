package memory

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// VaultStore implements domain.VaultStore with mutex-guarded maps. Vault
// addresses are treated case-insensitively (hex addresses). All big.Int
// values are deep-copied on both reads and writes so callers can never alias
// stored state.
type VaultStore struct {
	mu       sync.RWMutex
	vaults   map[string]domain.VaultInfo
	balances map[string]map[string]*big.Int // vault -> principal -> shares
}

// NewVaultStore creates an empty VaultStore.
func NewVaultStore() *VaultStore {
	return &VaultStore{
		vaults:   make(map[string]domain.VaultInfo),
		balances: make(map[string]map[string]*big.Int),
	}
}

func vaultKey(address string) string { return strings.ToLower(address) }

func principalKey(principal string) string { return strings.ToLower(principal) }

// Put stores a vault, replacing any prior record at the same address.
func (s *VaultStore) Put(_ context.Context, v domain.VaultInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vaults[vaultKey(v.Address)] = v.Clone()
	return nil
}

// Get returns the vault or domain.ErrNotFound.
func (s *VaultStore) Get(_ context.Context, address string) (domain.VaultInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vaults[vaultKey(address)]
	if !ok {
		return domain.VaultInfo{}, domain.ErrNotFound
	}
	return v.Clone(), nil
}

// List returns all vaults in unspecified order.
func (s *VaultStore) List(_ context.Context) ([]domain.VaultInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.VaultInfo, 0, len(s.vaults))
	for _, v := range s.vaults {
		out = append(out, v.Clone())
	}
	return out, nil
}

// ShareBalance returns the principal's share balance in the vault. Unknown
// principals hold zero shares; this is not an error.
func (s *VaultStore) ShareBalance(_ context.Context, address, principal string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.vaults[vaultKey(address)]; !ok {
		return nil, domain.ErrNotFound
	}

	bal, ok := s.balances[vaultKey(address)][principalKey(principal)]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

// SetShareBalance overwrites the principal's share balance in the vault.
func (s *VaultStore) SetShareBalance(_ context.Context, address, principal string, shares *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := vaultKey(address)
	if _, ok := s.vaults[key]; !ok {
		return domain.ErrNotFound
	}

	if s.balances[key] == nil {
		s.balances[key] = make(map[string]*big.Int)
	}
	s.balances[key][principalKey(principal)] = new(big.Int).Set(shares)
	return nil
}

// Compile-time interface check.
var _ domain.VaultStore = (*VaultStore)(nil)
