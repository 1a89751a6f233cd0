package repository

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// pickupAlphabet excludes easily confused characters (0/O, 1/I/L) so the
// code can be read out loud at the counter.
const pickupAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// PickupCodeLength is the fixed length of pickup credentials.
const PickupCodeLength = 6

// NewID returns an opaque identifier for listings and claims.  Both storage
// backends generate IDs application-side so that records keep the same shape
// regardless of the configured backend.
func NewID() (string, error) {
	return gonanoid.New()
}

// NewPickupCode mints a short random credential from the fixed alphabet.
// Collision probability is negligible at this alphabet and length; the
// ledgers still enforce uniqueness and surface ErrDuplicatePickupCode so the
// coordinator can regenerate once.
func NewPickupCode() (string, error) {
	return gonanoid.Generate(pickupAlphabet, PickupCodeLength)
}
