// Package memory implements the domain store interfaces with in-process
// maps. It is the reference backend: the postgres package provides the same
// contract for deployments that need a durable store.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// MarketStore implements domain.MarketStore with a mutex-guarded map.
// All mutations for a given marketId are serialized by the store lock, so
// last-write-wins ordering within an aggregation pass is deterministic.
type MarketStore struct {
	mu      sync.RWMutex
	markets map[string]domain.Market
}

// NewMarketStore creates an empty MarketStore.
func NewMarketStore() *MarketStore {
	return &MarketStore{
		markets: make(map[string]domain.Market),
	}
}

// Upsert creates or replaces the platform-supplied fields of a market.
// Resolved, Outcome and AIConfidence survive from the prior record, and
// LastUpdated never moves backwards.
func (s *MarketStore) Upsert(_ context.Context, snap domain.MarketSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := domain.Market{
		MarketID:    snap.MarketID,
		Platform:    snap.Platform,
		Question:    snap.Question,
		EndTime:     snap.EndTime,
		YesPrice:    snap.YesPrice,
		NoPrice:     snap.NoPrice,
		TotalVolume: snap.Volume,
		LastUpdated: time.Now().Unix(),
	}

	if prev, ok := s.markets[snap.MarketID]; ok {
		m.Resolved = prev.Resolved
		m.Outcome = prev.Outcome
		m.AIConfidence = prev.AIConfidence
		if prev.LastUpdated > m.LastUpdated {
			m.LastUpdated = prev.LastUpdated
		}
	}

	s.markets[snap.MarketID] = m
	return nil
}

// Get returns the market or domain.ErrNotFound.
func (s *MarketStore) Get(_ context.Context, marketID string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[marketID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

// List returns all markets in unspecified order.
func (s *MarketStore) List(_ context.Context) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	return out, nil
}

// ListByPlatform returns markets whose platform matches case-insensitively.
func (s *MarketStore) ListByPlatform(_ context.Context, platform string) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Market, 0)
	for _, m := range s.markets {
		if strings.EqualFold(m.Platform, platform) {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListActive returns unresolved markets whose EndTime is strictly in the
// future. The result is a snapshot at call time, not a live view.
func (s *MarketStore) ListActive(_ context.Context) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().Unix()
	out := make([]domain.Market, 0)
	for _, m := range s.markets {
		if !m.Resolved && m.EndTime > now {
			out = append(out, m)
		}
	}
	return out, nil
}

// Resolve marks a market resolved with the given outcome. The transition is
// one-way: a second call fails with domain.ErrAlreadyResolved and leaves the
// stored outcome untouched.
func (s *MarketStore) Resolve(_ context.Context, marketID string, outcome bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Resolved {
		return domain.ErrAlreadyResolved
	}

	m.Resolved = true
	m.Outcome = &outcome
	m.LastUpdated = time.Now().Unix()
	s.markets[marketID] = m
	return nil
}

// SetConfidence overwrites the cached AIConfidence unconditionally.
func (s *MarketStore) SetConfidence(_ context.Context, marketID string, confidence int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}

	m.AIConfidence = &confidence
	s.markets[marketID] = m
	return nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
