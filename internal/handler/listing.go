package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-food-rescue/internal/clock"
	"github.com/iliyamo/campus-food-rescue/internal/repository"
	"github.com/iliyamo/campus-food-rescue/internal/reservation"
)

// ListingHandler serves publishing, browsing and editing of listings.
// All mutating methods assume JWT and role middleware already ran.  The
// clock must be the same one driving the coordinator so that duration
// hints resolve against the instant expiry is validated with.
type ListingHandler struct {
	Engine *reservation.Coordinator
	Clock  clock.Clock
}

// NewListingHandler constructs a ListingHandler.
func NewListingHandler(engine *reservation.Coordinator, clk clock.Clock) *ListingHandler {
	if engine == nil || clk == nil {
		panic("nil dependency passed to NewListingHandler")
	}
	return &ListingHandler{Engine: engine, Clock: clk}
}

// listingBody is the request shape shared by publish and update.  Expiry
// can be given as an absolute RFC3339 timestamp or as a duration hint
// ("2h") counted from now, matching the original "Available Until" field.
type listingBody struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Quantity     int      `json:"quantity"`
	Location     string   `json:"location"`
	DietaryTags  []string `json:"dietary_tags"`
	ExpiresAt    string   `json:"expires_at"`
	AvailableFor string   `json:"available_for"`
}

// resolveExpiry turns the two expiry inputs into one timestamp.  A zero
// return means neither was usable; the coordinator rejects it downstream.
func (b *listingBody) resolveExpiry(now time.Time) (time.Time, error) {
	if b.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, b.ExpiresAt)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}
	if b.AvailableFor != "" {
		d, err := time.ParseDuration(b.AvailableFor)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}
	return time.Time{}, nil
}

// Publish handles POST /v1/listings.  Staff only.  Returns 201 with the
// created listing, or 400 on validation failure.
func (h *ListingHandler) Publish(c echo.Context) error {
	publisherID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body listingBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	expiresAt, err := body.resolveExpiry(h.Clock.Now())
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid expiry", "field": "expires_at"})
	}
	listing, err := h.Engine.Publish(c.Request().Context(), reservation.PublishInput{
		Title:       body.Title,
		Description: body.Description,
		Quantity:    body.Quantity,
		Location:    body.Location,
		DietaryTags: body.DietaryTags,
		PublisherID: publisherID,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		var ve *reservation.ValidationError
		if errors.As(err, &ve) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Reason, "field": ve.Field})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to publish listing"})
	}
	return c.JSON(http.StatusCreated, listing)
}

// List handles GET /v1/listings.  Public.  Returns available listings
// newest first; the response may be served from the short-TTL cache.
func (h *ListingHandler) List(c echo.Context) error {
	items, err := h.Engine.ListAvailable(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load listings"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get handles GET /v1/listings/:id.  Public.
func (h *ListingHandler) Get(c echo.Context) error {
	listing, err := h.Engine.GetListing(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load listing"})
	}
	return c.JSON(http.StatusOK, listing)
}

// Update handles PUT /v1/listings/:id.  Staff only; the listing must
// still be AVAILABLE and owned by the caller.
func (h *ListingHandler) Update(c echo.Context) error {
	publisherID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body listingBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	listing, err := h.Engine.UpdateListing(c.Request().Context(), c.Param("id"),
		publisherID, body.Title, body.Description, body.Location, body.DietaryTags)
	if err != nil {
		var ve *reservation.ValidationError
		switch {
		case errors.As(err, &ve):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Reason, "field": ve.Field})
		case errors.Is(err, repository.ErrListingNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
		case errors.Is(err, repository.ErrForbidden):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		case errors.Is(err, repository.ErrAlreadyClaimed):
			return c.JSON(http.StatusConflict, echo.Map{"error": "listing is no longer editable"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update listing"})
	}
	return c.JSON(http.StatusOK, listing)
}
