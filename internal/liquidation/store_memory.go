package liquidation

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type auctionEntry struct {
	mu      sync.Mutex
	auction Auction
}

// MemoryStore is an in-process Store. Each auction carries its own lock so
// mutations on distinct auctions never contend; the outer mutex only guards
// the maps.
type MemoryStore struct {
	mu       sync.RWMutex
	auctions map[uuid.UUID]*auctionEntry
	// openByLoan indexes the single non-terminal auction per loan.
	openByLoan map[uuid.UUID]uuid.UUID
}

// NewMemoryStore returns an empty in-memory auction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions:   make(map[uuid.UUID]*auctionEntry),
		openByLoan: make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *MemoryStore) Create(_ context.Context, auction *Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, open := s.openByLoan[auction.LoanID]; open {
		return ErrAuctionOpen
	}
	cp := *auction
	s.auctions[auction.ID] = &auctionEntry{auction: cp}
	s.openByLoan[auction.LoanID] = auction.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Auction, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	cp := entry.auction
	return &cp, nil
}

func (s *MemoryStore) Mutate(_ context.Context, id uuid.UUID, fn func(a *Auction) error) (*Auction, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	scratch := entry.auction
	if err := fn(&scratch); err != nil {
		return nil, err
	}
	entry.auction = scratch
	if scratch.Status.Terminal() {
		s.mu.Lock()
		if s.openByLoan[scratch.LoanID] == id {
			delete(s.openByLoan, scratch.LoanID)
		}
		s.mu.Unlock()
	}
	cp := scratch
	return &cp, nil
}

func (s *MemoryStore) entry(id uuid.UUID) (*auctionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.auctions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}
