// Package repository defines sentinel error values shared by the storage
// backends and the layers above them. These values let the coordinator and
// the handlers distinguish failure scenarios without inspecting driver
// errors: a lost exclusivity race is a normal outcome and must never be
// reported like a storage failure.
package repository

import "errors"

// ErrListingNotFound is returned when no listing exists for the given ID.
// Handlers translate this into an HTTP 404 response.
var ErrListingNotFound = errors.New("listing not found")

// ErrClaimNotFound is returned when no claim exists for the given ID or
// listing. Handlers translate this into an HTTP 404 response.
var ErrClaimNotFound = errors.New("claim not found")

// ErrAlreadyClaimed is returned when a listing is no longer AVAILABLE at
// claim time, either on the advisory read or because the caller lost the
// compare-and-transition race. It is an expected outcome and handlers
// translate it into an HTTP 409 response distinct from internal errors.
var ErrAlreadyClaimed = errors.New("listing already claimed")

// ErrDuplicatePickupCode is returned when the ledger detects a pickup code
// collision. The coordinator regenerates the code and retries exactly once.
var ErrDuplicatePickupCode = errors.New("duplicate pickup code")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own, such as cancelling another student's claim.
// Handlers translate this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")
