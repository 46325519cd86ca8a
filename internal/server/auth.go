package server

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"civiq/internal/core"
)

// AuthMiddleware creates an Echo middleware that extracts the acting user
// from a bearer JWT (HS256) and attaches it to the request context. Requests
// without a token proceed anonymously; routes that need an identity reject
// later via requireIdentity. A present-but-invalid token is always rejected.
func AuthMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return next(c)
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				return handleError(c, core.NewAuthenticationError("invalid authorization header format, expected 'Bearer <token>'"))
			}

			identity, err := parseToken(strings.TrimPrefix(authHeader, prefix), secret)
			if err != nil {
				return handleError(c, core.NewAuthenticationError("invalid token"))
			}

			ctx := core.WithIdentity(c.Request().Context(), identity)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func parseToken(raw string, secret []byte) (core.Identity, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return core.Identity{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return core.Identity{}, fmt.Errorf("invalid claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return core.Identity{}, fmt.Errorf("missing subject claim")
	}

	role := core.RoleCitizen
	if r, ok := claims["role"].(string); ok && r != "" {
		role = core.Role(r)
	}

	return core.Identity{UserID: sub, Role: role}, nil
}

// requireIdentity rejects anonymous requests.
func requireIdentity(c echo.Context) (core.Identity, error) {
	identity := core.IdentityFrom(c.Request().Context())
	if identity.IsAnonymous() {
		return identity, core.NewAuthenticationError("authentication required")
	}
	return identity, nil
}

// requireStaff rejects requests lacking a staff or admin role.
func requireStaff(c echo.Context) (core.Identity, error) {
	identity, err := requireIdentity(c)
	if err != nil {
		return identity, err
	}
	if !identity.IsStaff() {
		return identity, core.NewForbiddenError("staff role required")
	}
	return identity, nil
}

// SignToken mints a token for the given identity. Used by tests and the
// local development login helper.
func SignToken(secret []byte, identity core.Identity) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  identity.UserID,
		"role": string(identity.Role),
	})
	return token.SignedString(secret)
}
