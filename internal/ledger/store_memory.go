package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps loans and aggregates in process memory with one lock per
// entry, so operations on different loans and subjects never contend. The
// outer maps are guarded separately and only for entry lookup/insert.
type MemoryStore struct {
	mu       sync.RWMutex
	loans    map[uuid.UUID]*loanEntry
	subjects map[Subject]*subjectEntry
}

type loanEntry struct {
	mu   sync.Mutex
	loan LoanRecord
}

type subjectEntry struct {
	mu   sync.Mutex
	data AggregateCreditData
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loans:    make(map[uuid.UUID]*loanEntry),
		subjects: make(map[Subject]*subjectEntry),
	}
}

func (s *MemoryStore) subject(subj Subject) *subjectEntry {
	s.mu.RLock()
	entry, ok := s.subjects[subj]
	s.mu.RUnlock()
	if ok {
		return entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok = s.subjects[subj]; ok {
		return entry
	}
	entry = &subjectEntry{data: AggregateCreditData{Subject: subj}}
	entry.data.ensureMaps()
	s.subjects[subj] = entry
	return entry
}

func (s *MemoryStore) CreateLoan(_ context.Context, loan *LoanRecord, onAggregate func(*AggregateCreditData)) error {
	entry := &loanEntry{loan: *loan}

	s.mu.Lock()
	s.loans[loan.ID] = entry
	s.mu.Unlock()

	if onAggregate != nil {
		subj := s.subject(loan.Subject)
		subj.mu.Lock()
		onAggregate(&subj.data)
		subj.mu.Unlock()
	}
	return nil
}

func (s *MemoryStore) GetLoan(_ context.Context, id uuid.UUID) (*LoanRecord, error) {
	s.mu.RLock()
	entry, ok := s.loans[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	entry.mu.Lock()
	loan := entry.loan
	entry.mu.Unlock()
	if loan.ClosedAt != nil {
		closed := *loan.ClosedAt
		loan.ClosedAt = &closed
	}
	return &loan, nil
}

func (s *MemoryStore) MutateLoan(_ context.Context, id uuid.UUID, mutate func(*LoanRecord) error, onAggregate func(*AggregateCreditData)) error {
	s.mu.RLock()
	entry, ok := s.loans[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	scratch := entry.loan
	if err := mutate(&scratch); err != nil {
		return err
	}

	if onAggregate != nil {
		subj := s.subject(entry.loan.Subject)
		subj.mu.Lock()
		onAggregate(&subj.data)
		subj.mu.Unlock()
	}
	entry.loan = scratch
	return nil
}

func (s *MemoryStore) GetAggregate(_ context.Context, subject Subject) (*AggregateCreditData, error) {
	s.mu.RLock()
	entry, ok := s.subjects[subject]
	s.mu.RUnlock()
	if !ok {
		agg := AggregateCreditData{Subject: subject}
		agg.ensureMaps()
		return &agg, nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.data.Clone(), nil
}

func (s *MemoryStore) MutateAggregate(_ context.Context, subject Subject, mutate func(*AggregateCreditData) error) error {
	entry := s.subject(subject)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	scratch := *entry.data.Clone()
	if err := mutate(&scratch); err != nil {
		return err
	}
	entry.data = scratch
	return nil
}
