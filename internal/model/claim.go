package model

import "time"

// ClaimStatus values.  A claim is created PENDING when a student wins the
// reservation.  FULFILLED and CANCELLED are terminal and are driven by the
// pickup and cancel hooks; neither transition touches the listing.
const (
	ClaimPending   = "PENDING"
	ClaimFulfilled = "FULFILLED"
	ClaimCancelled = "CANCELLED"
)

// Claim records the successful, exclusive reservation of a listing by one
// claimant.  At most one claim ever exists per listing.
//
// Fields:
//  ID         – opaque unique identifier.
//  ListingID  – the claimed listing (1:1).
//  ClaimantID – opaque identifier of the student who claimed it.
//  PickupCode – short credential shown at physical pickup; disclosed only
//               to the claimant.
//  Status     – one of the ClaimStatus constants above.
//  CreatedAt  – when the reservation succeeded (UTC).
type Claim struct {
	ID         string    `json:"id"`
	ListingID  string    `json:"listing_id"`
	ClaimantID string    `json:"claimant_id"`
	PickupCode string    `json:"pickup_code,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}
