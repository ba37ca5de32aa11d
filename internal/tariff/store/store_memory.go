package store

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"regcore/internal/tariff"
)

type premiumKey struct {
	label  string
	zoneID int64
}

type regularKey struct {
	zoneID  int64
	command string
	months  int
}

// InMemoryStore is a pricing table twin for tests and single-node demos.
type InMemoryStore struct {
	mu         sync.RWMutex
	premium    map[premiumKey]decimal.Decimal
	promotions []tariff.Promotion
	regular    map[regularKey]decimal.Decimal
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		premium: make(map[premiumKey]decimal.Decimal),
		regular: make(map[regularKey]decimal.Decimal),
	}
}

func (s *InMemoryStore) SetPremium(label string, zoneID int64, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.premium[premiumKey{label, zoneID}] = price
}

func (s *InMemoryStore) AddPromotion(p tariff.Promotion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promotions = append(s.promotions, p)
}

func (s *InMemoryStore) SetRegular(zoneID int64, command string, months int, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regular[regularKey{zoneID, command, months}] = price
}

func (s *InMemoryStore) PremiumPrice(_ context.Context, label string, zoneID int64) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.premium[premiumKey{label, zoneID}]
	return price, ok, nil
}

func (s *InMemoryStore) ActivePromotion(_ context.Context, zoneID int64, today string) (*tariff.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.promotions {
		if p.ZoneID != zoneID {
			continue
		}
		if p.Start.Format("2006-01-02") <= today && today <= p.End.Format("2006-01-02") {
			promo := p
			return &promo, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) RegularPrice(_ context.Context, zoneID int64, command string, months int) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.regular[regularKey{zoneID, command, months}]
	return price, ok, nil
}
