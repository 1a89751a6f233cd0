package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/campus-food-rescue/internal/model"
)

// MemoryListingStore is an in-memory listing store satisfying the same
// contract as ListingRepo.  It backs local development and tests, selected
// with STORE_BACKEND=memory.  A single mutex guards the map; every method
// copies listings on the way in and out so callers can never alias the
// stored state, and CompareAndTransition is atomic under the lock.
type MemoryListingStore struct {
	mu       sync.Mutex
	listings map[string]*model.Listing
}

// NewMemoryListingStore returns an empty in-memory store.
func NewMemoryListingStore() *MemoryListingStore {
	return &MemoryListingStore{listings: make(map[string]*model.Listing)}
}

// Create stores a copy of the listing.
func (s *MemoryListingStore) Create(ctx context.Context, l *model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneListing(l)
	s.listings[l.ID] = cp
	return nil
}

// GetByID returns a copy of the listing or ErrListingNotFound.
func (s *MemoryListingStore) GetByID(ctx context.Context, id string) (*model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	return cloneListing(l), nil
}

// ListAvailable returns AVAILABLE listings newest first.
func (s *MemoryListingStore) ListAvailable(ctx context.Context) ([]model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Listing, 0)
	for _, l := range s.listings {
		if l.State == model.ListingAvailable {
			out = append(out, *cloneListing(l))
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

// CompareAndTransition atomically moves a listing between states.  False
// with nil error means the listing existed but was not in expectedState;
// a missing listing also reports false, matching the SQL implementation
// where the conditional UPDATE simply affects zero rows.
func (s *MemoryListingStore) CompareAndTransition(ctx context.Context, id, expectedState, newState string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok || l.State != expectedState {
		return false, nil
	}
	l.State = newState
	return true, nil
}

// ExpiredCandidates returns AVAILABLE listings with expires_at <= now.
func (s *MemoryListingStore) ExpiredCandidates(ctx context.Context, now time.Time) ([]model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Listing
	for _, l := range s.listings {
		if l.State == model.ListingAvailable && !l.ExpiresAt.After(now) {
			out = append(out, *cloneListing(l))
		}
	}
	return out, nil
}

// UpdateDetails rewrites the mutable fields while the listing is still
// AVAILABLE and owned by the caller.  Error semantics match ListingRepo.
func (s *MemoryListingStore) UpdateDetails(ctx context.Context, id, publisherID, title, description, location string, tags []string) (*model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	if l.PublisherID != publisherID {
		return nil, ErrForbidden
	}
	if l.State != model.ListingAvailable {
		return nil, ErrAlreadyClaimed
	}
	l.Title = title
	l.Description = description
	l.Location = location
	l.DietaryTags = append([]string(nil), tags...)
	return cloneListing(l), nil
}

// CountAvailable returns the number of AVAILABLE listings.
func (s *MemoryListingStore) CountAvailable(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.listings {
		if l.State == model.ListingAvailable {
			n++
		}
	}
	return n, nil
}

func cloneListing(l *model.Listing) *model.Listing {
	cp := *l
	cp.DietaryTags = append([]string(nil), l.DietaryTags...)
	return &cp
}
