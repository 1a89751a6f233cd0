package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-food-rescue/internal/middleware"
	"github.com/iliyamo/campus-food-rescue/internal/utils"
)

// AuthHandler mints development access tokens.  Real deployments receive
// tokens from the campus identity provider; this endpoint exists so the
// engine can be exercised end to end without one.  The router only
// registers it outside prod, and the handler refuses to run there as a
// second guard.
type AuthHandler struct {
	Secret string
	Env    string
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(secret, env string) *AuthHandler {
	return &AuthHandler{Secret: secret, Env: env}
}

// devTokenTTL is deliberately short; dev tokens are throwaway.
const devTokenTTL = time.Hour

// DevToken handles POST /v1/auth/token.  The body names an opaque user ID
// and a role (STAFF or STUDENT); the response carries a signed token
// accepted by the JWT middleware.
func (h *AuthHandler) DevToken(c echo.Context) error {
	if h.Env == "prod" {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	var body struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.UserID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}
	if body.Role != middleware.RoleStaff && body.Role != middleware.RoleStudent {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be STAFF or STUDENT"})
	}
	tok, err := utils.NewAccessToken(h.Secret, body.UserID, body.Role, devTokenTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to sign token"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": tok.Token,
		"expires_at":   tok.Exp.Format(time.RFC3339),
	})
}
