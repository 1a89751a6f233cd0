// Package reservation contains the transactional core of the engine: it
// accepts publish and claim requests, enforces at-most-one-claimant
// exclusivity, runs the expiry sweep and emits change events.  The single
// serialization point is the store's compare-and-transition primitive;
// everything before it is advisory, everything after it is compensable.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/iliyamo/campus-food-rescue/internal/clock"
	"github.com/iliyamo/campus-food-rescue/internal/model"
	"github.com/iliyamo/campus-food-rescue/internal/notifier"
	"github.com/iliyamo/campus-food-rescue/internal/repository"
)

// ListingStore is the durable record of listings.  Both the MySQL and the
// in-memory backends in internal/repository satisfy it; the coordinator
// never depends on which one is configured.
type ListingStore interface {
	Create(ctx context.Context, l *model.Listing) error
	GetByID(ctx context.Context, id string) (*model.Listing, error)
	ListAvailable(ctx context.Context) ([]model.Listing, error)
	CompareAndTransition(ctx context.Context, id, expectedState, newState string) (bool, error)
	ExpiredCandidates(ctx context.Context, now time.Time) ([]model.Listing, error)
	UpdateDetails(ctx context.Context, id, publisherID, title, description, location string, tags []string) (*model.Listing, error)
}

// ClaimLedger is the durable record of claims and pickup credentials.
// RecordClaim assumes the caller has already won the listing transition.
type ClaimLedger interface {
	RecordClaim(ctx context.Context, listingID, claimantID string) (*model.Claim, error)
	GetByID(ctx context.Context, id string) (*model.Claim, error)
	FindByListing(ctx context.Context, listingID string) (*model.Claim, error)
	ListByClaimant(ctx context.Context, claimantID string) ([]model.Claim, error)
	TransitionStatus(ctx context.Context, id, expectedStatus, newStatus string) (bool, error)
	DeleteByListing(ctx context.Context, listingID string) error
}

// ValidationError reports bad publish input.  It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Coordinator composes the listing store, the claim ledger and the change
// notifier into the reservation algorithm.  It is safe for concurrent use
// by any number of callers.
type Coordinator struct {
	store    ListingStore
	ledger   ClaimLedger
	notifier *notifier.Notifier
	clock    clock.Clock
}

// NewCoordinator wires the coordinator's collaborators together.
func NewCoordinator(store ListingStore, ledger ClaimLedger, n *notifier.Notifier, clk clock.Clock) *Coordinator {
	if store == nil || ledger == nil || n == nil || clk == nil {
		panic("nil dependency passed to NewCoordinator")
	}
	return &Coordinator{store: store, ledger: ledger, notifier: n, clock: clk}
}

// PublishInput carries the fields of a new listing.  ExpiresAt has already
// been resolved by the transport layer from either an absolute timestamp or
// a duration hint.
type PublishInput struct {
	Title       string
	Description string
	Quantity    int
	Location    string
	DietaryTags []string
	PublisherID string
	ExpiresAt   time.Time
}

// Publish validates the input, creates the listing in the AVAILABLE state
// and emits a listing_added event.
func (co *Coordinator) Publish(ctx context.Context, in PublishInput) (*model.Listing, error) {
	now := co.clock.Now()
	if in.Title == "" {
		return nil, &ValidationError{Field: "title", Reason: "required"}
	}
	if in.Quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if in.Location == "" {
		return nil, &ValidationError{Field: "location", Reason: "required"}
	}
	if !in.ExpiresAt.After(now) {
		return nil, &ValidationError{Field: "expires_at", Reason: "must be in the future"}
	}
	id, err := repository.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate listing id: %w", err)
	}
	l := &model.Listing{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Quantity:    in.Quantity,
		Location:    in.Location,
		DietaryTags: dedupeTags(in.DietaryTags),
		PublisherID: in.PublisherID,
		State:       model.ListingAvailable,
		CreatedAt:   now,
		ExpiresAt:   in.ExpiresAt.UTC(),
	}
	if err := co.store.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	co.emit(notifier.KindListingAdded, l)
	return l, nil
}

// Claim attempts to reserve a listing for the claimant.  The sequence is
// the exclusivity algorithm from top to bottom:
//
//  1. advisory read, failing fast with ErrListingNotFound or ErrAlreadyClaimed,
//  2. compare-and-transition AVAILABLE to CLAIMED, the one atomic step,
//  3. ledger write minting the pickup code, with a single regeneration
//     retry if the code collides,
//  4. on ledger failure, compensate by rolling the listing back to
//     AVAILABLE so no listing is ever left CLAIMED without a claim record,
//  5. emit listing_claimed and return the claim to the caller.
func (co *Coordinator) Claim(ctx context.Context, listingID, claimantID string) (*model.Claim, error) {
	l, err := co.store.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.State != model.ListingAvailable {
		return nil, repository.ErrAlreadyClaimed
	}

	won, err := co.store.CompareAndTransition(ctx, listingID, model.ListingAvailable, model.ListingClaimed)
	if err != nil {
		return nil, fmt.Errorf("claim transition: %w", err)
	}
	if !won {
		// Lost the race to a concurrent claimant or to the expiry sweep.
		return nil, repository.ErrAlreadyClaimed
	}

	c, err := co.ledger.RecordClaim(ctx, listingID, claimantID)
	if errors.Is(err, repository.ErrDuplicatePickupCode) {
		c, err = co.ledger.RecordClaim(ctx, listingID, claimantID)
	}
	if err != nil {
		co.compensate(ctx, listingID)
		return nil, fmt.Errorf("record claim: %w", err)
	}

	l.State = model.ListingClaimed
	co.emit(notifier.KindListingClaimed, l)
	return c, nil
}

// compensate rolls a listing back to AVAILABLE after a failed ledger write
// and removes any half-written claim row.  Both steps are idempotent, so
// repeating compensation is harmless.  Failures are logged, not returned:
// the caller already sees the original error.
func (co *Coordinator) compensate(ctx context.Context, listingID string) {
	if err := co.ledger.DeleteByListing(ctx, listingID); err != nil {
		log.Printf("reservation: compensation claim cleanup failed for listing %s: %v", listingID, err)
	}
	if _, err := co.store.CompareAndTransition(ctx, listingID, model.ListingClaimed, model.ListingAvailable); err != nil {
		log.Printf("reservation: compensation rollback failed for listing %s: %v", listingID, err)
	}
}

// ListAvailable returns the claimable listings, newest first.
func (co *Coordinator) ListAvailable(ctx context.Context) ([]model.Listing, error) {
	return co.store.ListAvailable(ctx)
}

// GetListing returns a single listing by ID.
func (co *Coordinator) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	return co.store.GetByID(ctx, id)
}

// UpdateListing rewrites the mutable fields of an AVAILABLE listing on
// behalf of its publisher.  No event kind exists for edits, so none is
// emitted; viewers pick the change up on their next read.
func (co *Coordinator) UpdateListing(ctx context.Context, id, publisherID, title, description, location string, tags []string) (*model.Listing, error) {
	if title == "" {
		return nil, &ValidationError{Field: "title", Reason: "required"}
	}
	if location == "" {
		return nil, &ValidationError{Field: "location", Reason: "required"}
	}
	return co.store.UpdateDetails(ctx, id, publisherID, title, description, location, dedupeTags(tags))
}

// SweepExpired transitions every AVAILABLE listing past its expiry into
// EXPIRED and emits a listing_expired event for each one actually
// transitioned.  Races against concurrent claims are tolerated by relying
// on the same compare-and-transition primitive: a listing claimed just
// before the sweep loses nothing, the sweep simply observes the state
// mismatch and moves on.  Returns the number of listings expired.
func (co *Coordinator) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	candidates, err := co.store.ExpiredCandidates(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expired candidates: %w", err)
	}
	count := 0
	for i := range candidates {
		l := &candidates[i]
		won, err := co.store.CompareAndTransition(ctx, l.ID, model.ListingAvailable, model.ListingExpired)
		if err != nil {
			return count, fmt.Errorf("expire transition: %w", err)
		}
		if !won {
			continue
		}
		l.State = model.ListingExpired
		co.emit(notifier.KindListingExpired, l)
		count++
	}
	return count, nil
}

// RunSweeper drives SweepExpired on a fixed interval until the context is
// cancelled.  It is started once from main alongside the HTTP server.
func (co *Coordinator) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := co.SweepExpired(ctx, co.clock.Now())
			if err != nil {
				log.Printf("reservation: expiry sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("reservation: expired %d listing(s)", n)
			}
		}
	}
}

func (co *Coordinator) emit(kind string, l *model.Listing) {
	co.notifier.Publish(notifier.ChangeEvent{
		Kind:      kind,
		ListingID: l.ID,
		Timestamp: co.clock.Now(),
		Listing:   *l,
	})
}

// dedupeTags removes duplicates and empty entries while keeping first-seen
// order.  Commas are stripped because tags are stored comma-joined.
func dedupeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
