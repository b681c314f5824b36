package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-record-locks/app/dto"
	"github.com/vibast-solutions/ms-go-record-locks/app/service"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	RoleAdmin      = "admin"
)

var ErrUnknownToken = errors.New("unknown token")

// IdentityResolver maps a bearer token to a lock holder.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (service.Identity, error)
}

// StaticTokens resolves tokens from a fixed table.
type StaticTokens map[string]service.Identity

// Resolve looks the token up in the table.
func (s StaticTokens) Resolve(_ context.Context, token string) (service.Identity, error) {
	identity, ok := s[token]
	if !ok {
		return service.Identity{}, ErrUnknownToken
	}
	return identity, nil
}

// ParseStaticTokens parses "token=holder[:admin],..." into a token table.
func ParseStaticTokens(value string) (StaticTokens, error) {
	tokens := StaticTokens{}
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, holder, ok := strings.Cut(entry, "=")
		if !ok || token == "" || holder == "" {
			return nil, fmt.Errorf("invalid token entry %q", entry)
		}
		holder, role, _ := strings.Cut(holder, ":")
		tokens[token] = service.Identity{HolderID: holder, Privileged: role == RoleAdmin}
	}
	return tokens, nil
}

// Identity authenticates the bearer token and stores the caller in the request context.
func Identity(resolver IdentityResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "missing bearer token"})
			}
			identity, err := resolver.Resolve(c.Request().Context(), token)
			if err != nil || identity.HolderID == "" {
				return c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid bearer token"})
			}
			return next(withIdentity(c, identity))
		}
	}
}

// GatewayIdentity trusts identity headers set by an authenticating gateway.
func GatewayIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			holder := strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
			if holder == "" {
				return c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "missing " + HeaderUserID})
			}
			role := strings.TrimSpace(c.Request().Header.Get(HeaderUserRole))
			return next(withIdentity(c, service.Identity{
				HolderID:   holder,
				Privileged: strings.EqualFold(role, RoleAdmin),
			}))
		}
	}
}

func withIdentity(c echo.Context, identity service.Identity) echo.Context {
	ctx := service.WithIdentity(c.Request().Context(), identity)
	c.SetRequest(c.Request().WithContext(ctx))
	return c
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
