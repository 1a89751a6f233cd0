package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-food-rescue/internal/model"
	"github.com/iliyamo/campus-food-rescue/internal/queue"
	"github.com/iliyamo/campus-food-rescue/internal/repository"
	"github.com/iliyamo/campus-food-rescue/internal/reservation"
	queue_publisher "github.com/iliyamo/campus-food-rescue/internal/service"
)

// ClaimHandler serves the claim operation and the pickup/cancel hooks.
type ClaimHandler struct {
	Engine *reservation.Coordinator
	Ledger reservation.ClaimLedger
}

// NewClaimHandler constructs a ClaimHandler.
func NewClaimHandler(engine *reservation.Coordinator, ledger reservation.ClaimLedger) *ClaimHandler {
	if engine == nil || ledger == nil {
		panic("nil dependency passed to NewClaimHandler")
	}
	return &ClaimHandler{Engine: engine, Ledger: ledger}
}

// Claim handles POST /v1/listings/:id/claim.  Students only.  Exactly one
// of N concurrent callers receives 201 with the pickup code; the rest
// receive 409 with an "already_claimed" body the UI can render as a normal
// outcome rather than an error.
func (h *ClaimHandler) Claim(c echo.Context) error {
	claimantID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	listingID := c.Param("id")

	claim, err := h.Engine.Claim(c.Request().Context(), listingID, claimantID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrListingNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
		case errors.Is(err, repository.ErrAlreadyClaimed):
			return c.JSON(http.StatusConflict, echo.Map{
				"error":   "already_claimed",
				"message": "someone else got there first",
			})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to claim listing"})
	}

	// Best-effort broker notification; the claim already succeeded and a
	// broker outage must not fail the request.
	if listing, lerr := h.Engine.GetListing(c.Request().Context(), listingID); lerr == nil {
		ev := queue.ClaimConfirmedEvent{
			ClaimID:     claim.ID,
			ListingID:   listing.ID,
			ClaimantID:  claim.ClaimantID,
			Title:       listing.Title,
			Quantity:    listing.Quantity,
			Location:    listing.Location,
			DietaryTags: listing.DietaryTags,
			ExpiresAt:   listing.ExpiresAt.Format(time.RFC3339),
			ConfirmedAt: claim.CreatedAt.Format(time.RFC3339),
		}
		go func() { _ = queue_publisher.PublishClaimConfirmed(context.Background(), ev) }()
	}

	return c.JSON(http.StatusCreated, claim)
}

// MyClaims handles GET /v1/claims.  Students only; returns the caller's
// claims newest first, pickup codes included.
func (h *ClaimHandler) MyClaims(c echo.Context) error {
	claimantID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	claims, err := h.Ledger.ListByClaimant(c.Request().Context(), claimantID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load claims"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": claims})
}

// Fulfill handles POST /v1/claims/:id/fulfill.  Staff only.  The body
// must carry the pickup code the student presents at the counter; a match
// moves the claim PENDING→FULFILLED.  The listing is untouched.
func (h *ClaimHandler) Fulfill(c echo.Context) error {
	var body struct {
		PickupCode string `json:"pickup_code"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx := c.Request().Context()
	claim, err := h.Ledger.GetByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrClaimNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "claim not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load claim"})
	}
	if !strings.EqualFold(strings.TrimSpace(body.PickupCode), claim.PickupCode) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid pickup code"})
	}
	ok, err := h.Ledger.TransitionStatus(ctx, claim.ID, model.ClaimPending, model.ClaimFulfilled)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update claim"})
	}
	if !ok {
		return c.JSON(http.StatusConflict, echo.Map{"error": "claim is not pending"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": model.ClaimFulfilled})
}

// Cancel handles POST /v1/claims/:id/cancel.  Students only; a claimant
// may cancel their own PENDING claim.  This is a claim-status transition,
// never a rollback: the listing stays CLAIMED.
func (h *ClaimHandler) Cancel(c echo.Context) error {
	claimantID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := c.Request().Context()
	claim, err := h.Ledger.GetByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrClaimNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "claim not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load claim"})
	}
	if claim.ClaimantID != claimantID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	ok, err := h.Ledger.TransitionStatus(ctx, claim.ID, model.ClaimPending, model.ClaimCancelled)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update claim"})
	}
	if !ok {
		return c.JSON(http.StatusConflict, echo.Map{"error": "claim is not pending"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": model.ClaimCancelled})
}
