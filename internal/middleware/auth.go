package middleware

import (
	"net/http"
	"strings"

	"github.com/Eursukkul/ticketing-service/internal/dto"
	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const userContextKey = "user"

// Claims are issued by the authentication service.
type Claims struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

func unauthorized(msg string) error {
	return echo.NewHTTPError(http.StatusUnauthorized, dto.ErrorResponse{Message: msg, Code: "Unauthenticated"})
}

// JWTAuth validates the HS256 bearer token and stores the caller in the context.
func JWTAuth(secret string) echo.MiddlewareFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	key := []byte(secret)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return unauthorized("missing bearer token")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			var claims Claims
			tok, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
				return key, nil
			})
			if err != nil || !tok.Valid || claims.Subject == "" {
				return unauthorized("invalid token")
			}

			c.Set(userContextKey, &models.User{
				ID:      claims.Subject,
				Name:    claims.Name,
				Surname: claims.Surname,
				Email:   claims.Email,
				Role:    claims.Role,
			})
			return next(c)
		}
	}
}

// RequireAdmin must run after JWTAuth.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		u := CurrentUser(c)
		if u == nil {
			return unauthorized("authentication required")
		}
		if !u.IsAdmin() {
			return echo.NewHTTPError(http.StatusForbidden, dto.ErrorResponse{Message: "admin role required", Code: "Forbidden"})
		}
		return next(c)
	}
}

// CurrentUser returns the authenticated caller, or nil.
func CurrentUser(c echo.Context) *models.User {
	u, _ := c.Get(userContextKey).(*models.User)
	return u
}

// SetUser is used by tests and by callers that authenticate by other means.
func SetUser(c echo.Context, u *models.User) {
	c.Set(userContextKey, u)
}
