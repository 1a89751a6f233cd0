// Package queue defines message payloads exchanged over the message broker.
package queue

// ClaimConfirmedEvent is published after a claim succeeds.  It carries
// enough information for downstream consumers (pickup logs, analytics,
// notification senders) without querying the primary store.  The pickup
// code is deliberately absent: it is disclosed only to the claimant.
type ClaimConfirmedEvent struct {
	ClaimID     string   `json:"claim_id"`
	ListingID   string   `json:"listing_id"`
	ClaimantID  string   `json:"claimant_id"`
	Title       string   `json:"title"`
	Quantity    int      `json:"quantity"`
	Location    string   `json:"location"`
	DietaryTags []string `json:"dietary_tags"`
	ExpiresAt   string   `json:"expires_at"`
	ConfirmedAt string   `json:"confirmed_at"`
}
