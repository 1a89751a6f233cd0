package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/campus-food-rescue/internal/model"
)

// ListingRepo persists food listings in MySQL.  It owns the listings table
// exclusively; the coordinator mutates listing state only through
// CompareAndTransition so that every lifecycle change is a single atomic
// conditional write.  All timestamps are stored and compared in UTC.
type ListingRepo struct {
	db *sql.DB
}

// NewListingRepo returns a ListingRepo bound to the given database.
func NewListingRepo(db *sql.DB) *ListingRepo { return &ListingRepo{db: db} }

const listingColumns = `id, title, description, quantity, location, dietary_tags, publisher_id, state, created_at, expires_at`

// Create inserts a new listing row.  The caller (the coordinator) has
// already validated the input and assigned ID, state and timestamps.
func (r *ListingRepo) Create(ctx context.Context, l *model.Listing) error {
	const q = `INSERT INTO listings (` + listingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		l.ID, l.Title, l.Description, l.Quantity, l.Location,
		joinTags(l.DietaryTags), l.PublisherID, l.State,
		l.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		l.ExpiresAt.UTC().Format("2006-01-02 15:04:05"),
	)
	return err
}

// GetByID returns a single listing or ErrListingNotFound.
func (r *ListingRepo) GetByID(ctx context.Context, id string) (*model.Listing, error) {
	const q = `SELECT ` + listingColumns + ` FROM listings WHERE id = ?`
	l, err := scanListing(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrListingNotFound
	}
	return l, err
}

// ListAvailable returns all AVAILABLE listings ordered newest first.  The
// ordering matches the viewer contract: createdAt strictly non-increasing.
func (r *ListingRepo) ListAvailable(ctx context.Context) ([]model.Listing, error) {
	const q = `SELECT ` + listingColumns + ` FROM listings WHERE state = ? ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, model.ListingAvailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// CompareAndTransition atomically moves a listing from expectedState to
// newState.  It returns false without error when the row was not in
// expectedState at the time of the attempt; this is the primitive the
// coordinator composes into its exclusivity guarantee, so a false return
// must be indistinguishable from losing a race.
func (r *ListingRepo) CompareAndTransition(ctx context.Context, id, expectedState, newState string) (bool, error) {
	const q = `UPDATE listings SET state = ? WHERE id = ? AND state = ?`
	res, err := r.db.ExecContext(ctx, q, newState, id, expectedState)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ExpiredCandidates returns AVAILABLE listings whose expiry has passed at
// the given instant.  The result is advisory: the sweep still has to win
// CompareAndTransition per listing, since a claim may land in between.
func (r *ListingRepo) ExpiredCandidates(ctx context.Context, now time.Time) ([]model.Listing, error) {
	const q = `SELECT ` + listingColumns + ` FROM listings WHERE state = ? AND expires_at <= ?`
	rows, err := r.db.QueryContext(ctx, q, model.ListingAvailable, now.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// UpdateDetails rewrites the mutable fields of a listing.  The update only
// applies while the listing is still AVAILABLE and only for its publisher:
// once any claim exists the textual fields are frozen.  Returns
// ErrListingNotFound when the listing does not exist, ErrForbidden when the
// caller is not the publisher, and ErrAlreadyClaimed when the listing has
// left the AVAILABLE state.
func (r *ListingRepo) UpdateDetails(ctx context.Context, id, publisherID, title, description, location string, tags []string) (*model.Listing, error) {
	const q = `UPDATE listings SET title = ?, description = ?, location = ?, dietary_tags = ?
	           WHERE id = ? AND publisher_id = ? AND state = ?`
	res, err := r.db.ExecContext(ctx, q, title, description, location, joinTags(tags), id, publisherID, model.ListingAvailable)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 1 {
		return r.GetByID(ctx, id)
	}
	// The conditional update matched nothing; read the row back to report
	// the precise reason.
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.PublisherID != publisherID {
		return nil, ErrForbidden
	}
	if current.State != model.ListingAvailable {
		return nil, ErrAlreadyClaimed
	}
	// Publisher and state both match, so the update was a no-op resubmission
	// of identical values; the row already holds the requested fields.
	return current, nil
}

// CountAvailable returns the number of AVAILABLE listings.  Used by the
// stats endpoint; not part of any engine invariant.
func (r *ListingRepo) CountAvailable(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings WHERE state = ?`, model.ListingAvailable).Scan(&n)
	return n, err
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(s rowScanner) (*model.Listing, error) {
	var l model.Listing
	var tags string
	if err := s.Scan(&l.ID, &l.Title, &l.Description, &l.Quantity, &l.Location,
		&tags, &l.PublisherID, &l.State, &l.CreatedAt, &l.ExpiresAt); err != nil {
		return nil, err
	}
	l.DietaryTags = splitTags(tags)
	l.CreatedAt = l.CreatedAt.UTC()
	l.ExpiresAt = l.ExpiresAt.UTC()
	return &l, nil
}

// joinTags flattens a tag set into a single column.  Tags never contain
// commas; the handler normalizes input before it reaches the store.
func joinTags(tags []string) string { return strings.Join(tags, ",") }

func splitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
