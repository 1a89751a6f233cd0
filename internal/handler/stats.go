package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-food-rescue/internal/repository"
)

// AvailableCounter counts currently claimable listings.
type AvailableCounter interface {
	CountAvailable(ctx context.Context) (int, error)
}

// ClaimTotaler aggregates historical claim counts.
type ClaimTotaler interface {
	Totals(ctx context.Context) (repository.ClaimTotals, error)
}

// StatsHandler serves the dashboard aggregates (available today, students
// helped, servings saved).  These are derived values computed from store
// queries; no engine invariant depends on them, and the response may be
// served from the short-TTL cache.
type StatsHandler struct {
	Listings AvailableCounter
	Claims   ClaimTotaler
}

// NewStatsHandler constructs a StatsHandler.
func NewStatsHandler(listings AvailableCounter, claims ClaimTotaler) *StatsHandler {
	if listings == nil || claims == nil {
		panic("nil dependency passed to NewStatsHandler")
	}
	return &StatsHandler{Listings: listings, Claims: claims}
}

// Get handles GET /v1/stats.
func (h *StatsHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	available, err := h.Listings.CountAvailable(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load stats"})
	}
	totals, err := h.Claims.Totals(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load stats"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"available_today": available,
		"total_claims":    totals.TotalClaims,
		"servings_saved":  totals.ServingsSaved,
	})
}
