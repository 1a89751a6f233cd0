package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/campus-food-rescue/internal/model"
)

// ClaimRepo persists claims in MySQL.  Two UNIQUE keys back the engine's
// invariants at the storage level: one on listing_id (at most one claim per
// listing, ever) and one on pickup_code (credentials are never reused).
// The repo assumes the caller has already won the listing transition.
type ClaimRepo struct {
	db *sql.DB
}

// NewClaimRepo returns a ClaimRepo bound to the given database.
func NewClaimRepo(db *sql.DB) *ClaimRepo { return &ClaimRepo{db: db} }

const claimColumns = `id, listing_id, claimant_id, pickup_code, status, created_at`

// mysqlDuplicateEntry is the MySQL error number for a UNIQUE key violation.
const mysqlDuplicateEntry = 1062

// RecordClaim generates a pickup code, assigns an ID and inserts the claim
// with status PENDING.  A pickup code collision is reported as
// ErrDuplicatePickupCode so the coordinator can regenerate and retry once.
// A listing_id collision means another claim already exists for the
// listing and is reported as ErrAlreadyClaimed.
func (r *ClaimRepo) RecordClaim(ctx context.Context, listingID, claimantID string) (*model.Claim, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	code, err := NewPickupCode()
	if err != nil {
		return nil, err
	}
	const q = `INSERT INTO claims (id, listing_id, claimant_id, pickup_code, status) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, id, listingID, claimantID, code, model.ClaimPending); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			if strings.Contains(me.Message, "pickup_code") {
				return nil, ErrDuplicatePickupCode
			}
			return nil, ErrAlreadyClaimed
		}
		return nil, err
	}
	// Read the row back so CreatedAt reflects the DB default.
	return r.GetByID(ctx, id)
}

// GetByID returns a single claim or ErrClaimNotFound.
func (r *ClaimRepo) GetByID(ctx context.Context, id string) (*model.Claim, error) {
	const q = `SELECT ` + claimColumns + ` FROM claims WHERE id = ?`
	c, err := scanClaim(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClaimNotFound
	}
	return c, err
}

// FindByListing returns the claim for a listing or ErrClaimNotFound.
func (r *ClaimRepo) FindByListing(ctx context.Context, listingID string) (*model.Claim, error) {
	const q = `SELECT ` + claimColumns + ` FROM claims WHERE listing_id = ?`
	c, err := scanClaim(r.db.QueryRowContext(ctx, q, listingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClaimNotFound
	}
	return c, err
}

// ListByClaimant returns all claims made by a student, newest first.
func (r *ClaimRepo) ListByClaimant(ctx context.Context, claimantID string) ([]model.Claim, error) {
	const q = `SELECT ` + claimColumns + ` FROM claims WHERE claimant_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, claimantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Claim, 0)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// TransitionStatus conditionally moves a claim from one status to another.
// It mirrors CompareAndTransition on listings: false with nil error means
// the claim was not in the expected status.  Used by the pickup and cancel
// hooks, both of which only leave PENDING.
func (r *ClaimRepo) TransitionStatus(ctx context.Context, id, expectedStatus, newStatus string) (bool, error) {
	const q = `UPDATE claims SET status = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, newStatus, id, expectedStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteByListing removes the claim row for a listing.  It exists solely
// for the coordinator's compensation path: when the listing rollback has
// already succeeded, a half-written claim must not survive.  Deleting a
// missing row is a no-op, which keeps compensation idempotent.
func (r *ClaimRepo) DeleteByListing(ctx context.Context, listingID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM claims WHERE listing_id = ?`, listingID)
	return err
}

// ClaimTotals aggregates claim counts for the stats endpoint.
type ClaimTotals struct {
	TotalClaims   int `json:"total_claims"`
	ServingsSaved int `json:"servings_saved"`
}

// Totals counts all non-cancelled claims and sums the servings of their
// listings.  Derived values only; no invariant depends on them.
func (r *ClaimRepo) Totals(ctx context.Context) (ClaimTotals, error) {
	const q = `SELECT COUNT(*), COALESCE(SUM(l.quantity), 0)
	           FROM claims c
	           JOIN listings l ON l.id = c.listing_id
	           WHERE c.status <> ?`
	var t ClaimTotals
	err := r.db.QueryRowContext(ctx, q, model.ClaimCancelled).Scan(&t.TotalClaims, &t.ServingsSaved)
	return t, err
}

func scanClaim(s rowScanner) (*model.Claim, error) {
	var c model.Claim
	if err := s.Scan(&c.ID, &c.ListingID, &c.ClaimantID, &c.PickupCode, &c.Status, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}
