// Package handler exposes the engine over HTTP.  Handlers translate the
// coordinator's outcomes into status codes; in particular a lost claim
// race (409) must always be distinguishable from an internal failure
// (500), because "someone else got there first" is a normal result.
package handler

import (
	"errors"

	"github.com/labstack/echo/v4"
)

// getUserID extracts the opaque user identifier that JWTAuth stored in the
// context.  The engine never interprets it.
func getUserID(c echo.Context) (string, error) {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("missing user_id in context")
}
