package model

import "time"

// ListingState enumerates the lifecycle of a food listing.  A listing is
// created AVAILABLE, moves to CLAIMED only through a successful
// reservation, and moves to EXPIRED only through the expiry sweep.
// CLAIMED and EXPIRED are terminal: no transition ever leaves them, and
// a CLAIMED listing never expires out from under its claimant.
const (
	ListingAvailable = "AVAILABLE"
	ListingClaimed   = "CLAIMED"
	ListingExpired   = "EXPIRED"
)

// Listing is a published, time-bounded offer of surplus food.  It is the
// unit students browse and claim.
//
// Fields:
//  ID          – opaque unique identifier, immutable.
//  Title       – short name of the food item.
//  Description – free text shown to students.
//  Quantity    – number of servings available; always positive.
//  Location    – pickup location inside the cafeteria.
//  DietaryTags – deduplicated dietary labels (e.g. Vegetarian, Vegan).
//  PublisherID – opaque identifier of the staff member who posted it.
//  State       – one of the ListingState constants above.
//  CreatedAt   – creation timestamp (UTC).
//  ExpiresAt   – when the offer lapses; always after CreatedAt.
type Listing struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	Location    string    `json:"location"`
	DietaryTags []string  `json:"dietary_tags"`
	PublisherID string    `json:"publisher_id"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}
