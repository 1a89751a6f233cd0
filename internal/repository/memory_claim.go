package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/campus-food-rescue/internal/model"
)

// MemoryClaimLedger is the in-memory counterpart to ClaimRepo.  It enforces
// the same storage-level invariants: at most one claim per listing and no
// pickup code ever reused, including codes belonging to claims that were
// later deleted by compensation.
type MemoryClaimLedger struct {
	mu        sync.Mutex
	claims    map[string]*model.Claim // by claim ID
	byListing map[string]string       // listing ID -> claim ID
	usedCodes map[string]bool         // every code ever issued
	listings  *MemoryListingStore     // for Totals; may be nil
	now       func() time.Time
}

// NewMemoryClaimLedger returns an empty in-memory ledger.  The listing
// store is only consulted by Totals to resolve serving counts; passing nil
// is fine when stats are not needed.
func NewMemoryClaimLedger(listings *MemoryListingStore) *MemoryClaimLedger {
	return &MemoryClaimLedger{
		claims:    make(map[string]*model.Claim),
		byListing: make(map[string]string),
		usedCodes: make(map[string]bool),
		listings:  listings,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordClaim mints a pickup code and stores a PENDING claim.  Error
// semantics match ClaimRepo: ErrAlreadyClaimed on a listing collision and
// ErrDuplicatePickupCode on a code collision.
func (s *MemoryClaimLedger) RecordClaim(ctx context.Context, listingID, claimantID string) (*model.Claim, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	code, err := NewPickupCode()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byListing[listingID]; exists {
		return nil, ErrAlreadyClaimed
	}
	if s.usedCodes[code] {
		return nil, ErrDuplicatePickupCode
	}
	c := &model.Claim{
		ID:         id,
		ListingID:  listingID,
		ClaimantID: claimantID,
		PickupCode: code,
		Status:     model.ClaimPending,
		CreatedAt:  s.now(),
	}
	s.claims[id] = c
	s.byListing[listingID] = id
	s.usedCodes[code] = true
	cp := *c
	return &cp, nil
}

// GetByID returns a copy of the claim or ErrClaimNotFound.
func (s *MemoryClaimLedger) GetByID(ctx context.Context, id string) (*model.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return nil, ErrClaimNotFound
	}
	cp := *c
	return &cp, nil
}

// FindByListing returns the claim for a listing or ErrClaimNotFound.
func (s *MemoryClaimLedger) FindByListing(ctx context.Context, listingID string) (*model.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byListing[listingID]
	if !ok {
		return nil, ErrClaimNotFound
	}
	cp := *s.claims[id]
	return &cp, nil
}

// ListByClaimant returns the student's claims, newest first.
func (s *MemoryClaimLedger) ListByClaimant(ctx context.Context, claimantID string) ([]model.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Claim, 0)
	for _, c := range s.claims {
		if c.ClaimantID == claimantID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// TransitionStatus conditionally moves a claim between statuses.
func (s *MemoryClaimLedger) TransitionStatus(ctx context.Context, id, expectedStatus, newStatus string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok || c.Status != expectedStatus {
		return false, nil
	}
	c.Status = newStatus
	return true, nil
}

// Totals mirrors ClaimRepo.Totals for the in-memory backend.
func (s *MemoryClaimLedger) Totals(ctx context.Context) (ClaimTotals, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.claims))
	var t ClaimTotals
	for _, c := range s.claims {
		if c.Status != model.ClaimCancelled {
			t.TotalClaims++
			ids = append(ids, c.ListingID)
		}
	}
	s.mu.Unlock()
	if s.listings == nil {
		return t, nil
	}
	for _, id := range ids {
		if l, err := s.listings.GetByID(ctx, id); err == nil {
			t.ServingsSaved += l.Quantity
		}
	}
	return t, nil
}

// DeleteByListing removes the claim for a listing.  Missing rows are a
// no-op so the coordinator's compensation stays idempotent.  The pickup
// code stays burned: codes are never reused within the ledger's lifetime.
func (s *MemoryClaimLedger) DeleteByListing(ctx context.Context, listingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byListing[listingID]; ok {
		delete(s.claims, id)
		delete(s.byListing, listingID)
	}
	return nil
}
