package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-food-rescue/internal/clock"
	"github.com/iliyamo/campus-food-rescue/internal/model"
	"github.com/iliyamo/campus-food-rescue/internal/notifier"
	"github.com/iliyamo/campus-food-rescue/internal/repository"
)

var testBase = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// newTestEngine wires a coordinator over the in-memory backends with a
// frozen clock.  The notifier is returned so tests can subscribe.
func newTestEngine(t *testing.T) (*Coordinator, *repository.MemoryListingStore, *repository.MemoryClaimLedger, *notifier.Notifier) {
	t.Helper()
	store := repository.NewMemoryListingStore()
	ledger := repository.NewMemoryClaimLedger(store)
	n := notifier.New()
	return NewCoordinator(store, ledger, n, clock.NewFixed(testBase)), store, ledger, n
}

func publishOne(t *testing.T, co *Coordinator, title string) *model.Listing {
	t.Helper()
	l, err := co.Publish(context.Background(), PublishInput{
		Title:       title,
		Quantity:    4,
		Location:    "North Hall",
		PublisherID: "staff-1",
		ExpiresAt:   testBase.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	return l
}

func TestPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an available listing and emits listing_added", func(t *testing.T) {
		co, _, _, n := newTestEngine(t)
		sub := n.Subscribe()
		defer sub.Cancel()

		l, err := co.Publish(ctx, PublishInput{
			Title:       "Veggie Wraps",
			Description: "leftover from catering",
			Quantity:    12,
			Location:    "Main Cafeteria",
			DietaryTags: []string{"vegetarian", " vegan ", "vegetarian", ""},
			PublisherID: "staff-1",
			ExpiresAt:   testBase.Add(3 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, model.ListingAvailable, l.State)
		assert.NotEmpty(t, l.ID)
		assert.Equal(t, testBase, l.CreatedAt)
		assert.Equal(t, []string{"vegetarian", "vegan"}, l.DietaryTags)

		ev := <-sub.C
		assert.Equal(t, notifier.KindListingAdded, ev.Kind)
		assert.Equal(t, l.ID, ev.ListingID)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		co, _, _, _ := newTestEngine(t)
		cases := []struct {
			name  string
			in    PublishInput
			field string
		}{
			{"empty title", PublishInput{Quantity: 1, Location: "x", ExpiresAt: testBase.Add(time.Hour)}, "title"},
			{"zero quantity", PublishInput{Title: "t", Location: "x", ExpiresAt: testBase.Add(time.Hour)}, "quantity"},
			{"negative quantity", PublishInput{Title: "t", Quantity: -2, Location: "x", ExpiresAt: testBase.Add(time.Hour)}, "quantity"},
			{"empty location", PublishInput{Title: "t", Quantity: 1, ExpiresAt: testBase.Add(time.Hour)}, "location"},
			{"expiry in the past", PublishInput{Title: "t", Quantity: 1, Location: "x", ExpiresAt: testBase.Add(-time.Minute)}, "expires_at"},
			{"expiry exactly now", PublishInput{Title: "t", Quantity: 1, Location: "x", ExpiresAt: testBase}, "expires_at"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := co.Publish(ctx, tc.in)
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tc.field, ve.Field)
			})
		}
	})
}

func TestClaim(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds on an available listing", func(t *testing.T) {
		co, store, _, n := newTestEngine(t)
		l := publishOne(t, co, "Soup")
		sub := n.Subscribe()
		defer sub.Cancel()

		c, err := co.Claim(ctx, l.ID, "student-1")
		require.NoError(t, err)
		assert.Equal(t, l.ID, c.ListingID)
		assert.Equal(t, "student-1", c.ClaimantID)
		assert.Equal(t, model.ClaimPending, c.Status)
		assert.Len(t, c.PickupCode, repository.PickupCodeLength)

		got, err := store.GetByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ListingClaimed, got.State)

		ev := <-sub.C
		assert.Equal(t, notifier.KindListingClaimed, ev.Kind)
		assert.Equal(t, model.ListingClaimed, ev.Listing.State)
	})

	t.Run("unknown listing", func(t *testing.T) {
		co, _, _, _ := newTestEngine(t)
		_, err := co.Claim(ctx, "nope", "student-1")
		assert.ErrorIs(t, err, repository.ErrListingNotFound)
	})

	t.Run("second claim loses", func(t *testing.T) {
		co, _, _, _ := newTestEngine(t)
		l := publishOne(t, co, "Bagels")
		_, err := co.Claim(ctx, l.ID, "student-1")
		require.NoError(t, err)
		_, err = co.Claim(ctx, l.ID, "student-2")
		assert.ErrorIs(t, err, repository.ErrAlreadyClaimed)
	})

	t.Run("claiming an expired listing loses", func(t *testing.T) {
		co, _, _, _ := newTestEngine(t)
		l := publishOne(t, co, "Fruit")
		_, err := co.SweepExpired(ctx, testBase.Add(3*time.Hour))
		require.NoError(t, err)
		_, err = co.Claim(ctx, l.ID, "student-1")
		assert.ErrorIs(t, err, repository.ErrAlreadyClaimed)
	})

	t.Run("exactly one of many concurrent claimants wins", func(t *testing.T) {
		co, _, ledger, _ := newTestEngine(t)
		l := publishOne(t, co, "Pizza")

		const claimants = 32
		var wg sync.WaitGroup
		results := make(chan error, claimants)
		for i := 0; i < claimants; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := co.Claim(ctx, l.ID, "student-"+string(rune('a'+i%26)))
				results <- err
			}(i)
		}
		wg.Wait()
		close(results)

		wins, losses := 0, 0
		for err := range results {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, repository.ErrAlreadyClaimed):
				losses++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, claimants-1, losses)

		c, err := ledger.FindByListing(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ClaimPending, c.Status)
	})
}

// failingLedger wraps a real ledger and fails RecordClaim a configured
// number of times, standing in for a transient storage outage.
type failingLedger struct {
	ClaimLedger
	mu        sync.Mutex
	failures  int
	failWith  error
	attempted int
}

func (f *failingLedger) RecordClaim(ctx context.Context, listingID, claimantID string) (*model.Claim, error) {
	f.mu.Lock()
	f.attempted++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return nil, f.failWith
	}
	return f.ClaimLedger.RecordClaim(ctx, listingID, claimantID)
}

func TestClaimCompensation(t *testing.T) {
	ctx := context.Background()

	t.Run("ledger failure rolls the listing back to available", func(t *testing.T) {
		store := repository.NewMemoryListingStore()
		real := repository.NewMemoryClaimLedger(store)
		ledger := &failingLedger{ClaimLedger: real, failures: 1, failWith: errors.New("ledger down")}
		co := NewCoordinator(store, ledger, notifier.New(), clock.NewFixed(testBase))

		l := publishOne(t, co, "Curry")
		_, err := co.Claim(ctx, l.ID, "student-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, repository.ErrAlreadyClaimed)

		got, err := store.GetByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ListingAvailable, got.State)

		_, err = real.FindByListing(ctx, l.ID)
		assert.ErrorIs(t, err, repository.ErrClaimNotFound)

		// The listing is claimable again after compensation.
		_, err = co.Claim(ctx, l.ID, "student-2")
		assert.NoError(t, err)
	})

	t.Run("duplicate pickup code is retried once", func(t *testing.T) {
		store := repository.NewMemoryListingStore()
		real := repository.NewMemoryClaimLedger(store)
		ledger := &failingLedger{ClaimLedger: real, failures: 1, failWith: repository.ErrDuplicatePickupCode}
		co := NewCoordinator(store, ledger, notifier.New(), clock.NewFixed(testBase))

		l := publishOne(t, co, "Salad")
		c, err := co.Claim(ctx, l.ID, "student-1")
		require.NoError(t, err)
		assert.NotEmpty(t, c.PickupCode)
		assert.Equal(t, 2, ledger.attempted)
	})

	t.Run("a second duplicate code fails the claim and compensates", func(t *testing.T) {
		store := repository.NewMemoryListingStore()
		real := repository.NewMemoryClaimLedger(store)
		ledger := &failingLedger{ClaimLedger: real, failures: 2, failWith: repository.ErrDuplicatePickupCode}
		co := NewCoordinator(store, ledger, notifier.New(), clock.NewFixed(testBase))

		l := publishOne(t, co, "Rice Bowls")
		_, err := co.Claim(ctx, l.ID, "student-1")
		require.Error(t, err)
		assert.Equal(t, 2, ledger.attempted)

		got, err := store.GetByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ListingAvailable, got.State)
	})
}

func TestListAvailable(t *testing.T) {
	ctx := context.Background()

	t.Run("newest first, terminal states excluded", func(t *testing.T) {
		store := repository.NewMemoryListingStore()
		ledger := repository.NewMemoryClaimLedger(store)
		n := notifier.New()

		// Three publishes at successive instants, via per-instant clocks.
		ids := make([]string, 0, 3)
		for i := 0; i < 3; i++ {
			co := NewCoordinator(store, ledger, n, clock.NewFixed(testBase.Add(time.Duration(i)*time.Minute)))
			l, err := co.Publish(ctx, PublishInput{
				Title: "Batch", Quantity: 1, Location: "Hall",
				PublisherID: "staff-1", ExpiresAt: testBase.Add(2 * time.Hour),
			})
			require.NoError(t, err)
			ids = append(ids, l.ID)
		}

		co := NewCoordinator(store, ledger, n, clock.NewFixed(testBase))
		_, err := co.Claim(ctx, ids[1], "student-1")
		require.NoError(t, err)

		got, err := co.ListAvailable(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, ids[2], got[0].ID)
		assert.Equal(t, ids[0], got[1].ID)
	})
}

func TestUpdateListing(t *testing.T) {
	ctx := context.Background()

	t.Run("publisher edits an available listing", func(t *testing.T) {
		co, _, _, _ := newTestEngine(t)
		l := publishOne(t, co, "Old Title")
		got, err := co.UpdateListing(ctx, l.ID, "staff-1", "New Title", "more details", "South Hall", []string{"halal"})
		require.NoError(t, err)
		assert.Equal(t, "New Title", got.Title)
		assert.Equal(t, "South Hall", got.Location)
		assert.Equal(t, []string{"halal"}, got.DietaryTags)
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		co, _, _, _ := newTestEngine(t)
		l := publishOne(t, co, "Soup")
		_, err := co.UpdateListing(ctx, l.ID, "staff-2", "t", "", "x", nil)
		assert.ErrorIs(t, err, repository.ErrForbidden)
	})

	t.Run("claimed listing is no longer editable", func(t *testing.T) {
		co, _, _, _ := newTestEngine(t)
		l := publishOne(t, co, "Soup")
		_, err := co.Claim(ctx, l.ID, "student-1")
		require.NoError(t, err)
		_, err = co.UpdateListing(ctx, l.ID, "staff-1", "t", "", "x", nil)
		assert.ErrorIs(t, err, repository.ErrAlreadyClaimed)
	})

	t.Run("validation still applies", func(t *testing.T) {
		co, _, _, _ := newTestEngine(t)
		l := publishOne(t, co, "Soup")
		_, err := co.UpdateListing(ctx, l.ID, "staff-1", "", "", "x", nil)
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve)
	})
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("expires only overdue available listings", func(t *testing.T) {
		co, store, _, n := newTestEngine(t)
		short := publishOne(t, co, "Short-lived")
		long, err := co.Publish(ctx, PublishInput{
			Title: "Long-lived", Quantity: 1, Location: "Hall",
			PublisherID: "staff-1", ExpiresAt: testBase.Add(8 * time.Hour),
		})
		require.NoError(t, err)

		sub := n.Subscribe()
		defer sub.Cancel()

		count, err := co.SweepExpired(ctx, testBase.Add(3*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		gotShort, _ := store.GetByID(ctx, short.ID)
		gotLong, _ := store.GetByID(ctx, long.ID)
		assert.Equal(t, model.ListingExpired, gotShort.State)
		assert.Equal(t, model.ListingAvailable, gotLong.State)

		ev := <-sub.C
		assert.Equal(t, notifier.KindListingExpired, ev.Kind)
		assert.Equal(t, short.ID, ev.ListingID)
	})

	t.Run("expiry boundary is inclusive", func(t *testing.T) {
		co, store, _, _ := newTestEngine(t)
		l := publishOne(t, co, "Boundary")
		count, err := co.SweepExpired(ctx, l.ExpiresAt)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		got, _ := store.GetByID(ctx, l.ID)
		assert.Equal(t, model.ListingExpired, got.State)
	})

	t.Run("claimed listings are never expired", func(t *testing.T) {
		co, store, _, _ := newTestEngine(t)
		l := publishOne(t, co, "Claimed")
		_, err := co.Claim(ctx, l.ID, "student-1")
		require.NoError(t, err)

		count, err := co.SweepExpired(ctx, testBase.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		got, _ := store.GetByID(ctx, l.ID)
		assert.Equal(t, model.ListingClaimed, got.State)
	})

	t.Run("sweep is idempotent", func(t *testing.T) {
		co, _, _, _ := newTestEngine(t)
		publishOne(t, co, "Once")
		later := testBase.Add(5 * time.Hour)
		count, err := co.SweepExpired(ctx, later)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		count, err = co.SweepExpired(ctx, later)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("claim racing the sweep yields one winner", func(t *testing.T) {
		co, store, ledger, _ := newTestEngine(t)
		l := publishOne(t, co, "Contested")
		later := testBase.Add(5 * time.Hour)

		var wg sync.WaitGroup
		var claimErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, claimErr = co.Claim(ctx, l.ID, "student-1")
		}()
		go func() {
			defer wg.Done()
			_, _ = co.SweepExpired(ctx, later)
		}()
		wg.Wait()

		got, err := store.GetByID(ctx, l.ID)
		require.NoError(t, err)
		if claimErr == nil {
			assert.Equal(t, model.ListingClaimed, got.State)
			_, err := ledger.FindByListing(ctx, l.ID)
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, claimErr, repository.ErrAlreadyClaimed)
			assert.Equal(t, model.ListingExpired, got.State)
			_, err := ledger.FindByListing(ctx, l.ID)
			assert.ErrorIs(t, err, repository.ErrClaimNotFound)
		}
	})
}

// TestListingLifecycle walks the happy path end to end: publish, browse,
// claim, fulfill, with the event feed observing each transition.
func TestListingLifecycle(t *testing.T) {
	ctx := context.Background()
	co, store, ledger, n := newTestEngine(t)
	sub := n.Subscribe()
	defer sub.Cancel()

	l := publishOne(t, co, "Lasagna Trays")
	assert.Equal(t, notifier.KindListingAdded, (<-sub.C).Kind)

	feed, err := co.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 1)

	c, err := co.Claim(ctx, l.ID, "student-9")
	require.NoError(t, err)
	assert.Equal(t, notifier.KindListingClaimed, (<-sub.C).Kind)

	feed, err = co.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Empty(t, feed)

	ok, err := ledger.TransitionStatus(ctx, c.ID, model.ClaimPending, model.ClaimFulfilled)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ListingClaimed, got.State)

	// Fulfillment is terminal for the claim as well.
	ok, err = ledger.TransitionStatus(ctx, c.ID, model.ClaimPending, model.ClaimCancelled)
	require.NoError(t, err)
	assert.False(t, ok)
}
