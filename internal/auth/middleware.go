package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const SubjectKey contextKey = "subject"

// Middleware rejects requests without a valid bearer token and stores the
// token subject in the echo context.
func (s *Service) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization header format")
		}

		sub, err := s.ParseToken(parts[1])
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		c.Set(string(SubjectKey), sub)
		return next(c)
	}
}

// SubjectFromContext returns the subject stored by Middleware.
func SubjectFromContext(c echo.Context) (string, error) {
	sub, ok := c.Get(string(SubjectKey)).(string)
	if !ok || sub == "" {
		return "", errors.New("subject not found in context")
	}
	return sub, nil
}
