package grpc

import (
	"context"
	"strings"

	"github.com/vibast-solutions/ms-go-record-locks/app/middleware"
	"github.com/vibast-solutions/ms-go-record-locks/app/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// IdentityInterceptor resolves the caller from the authorization metadata.
// A nil resolver trusts the x-user-id and x-user-role gateway headers instead.
func IdentityInterceptor(resolver middleware.IdentityResolver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)

		if resolver == nil {
			holder := strings.TrimSpace(first(md, strings.ToLower(middleware.HeaderUserID)))
			if holder == "" {
				return nil, status.Error(codes.Unauthenticated, "missing "+middleware.HeaderUserID)
			}
			role := first(md, strings.ToLower(middleware.HeaderUserRole))
			return handler(service.WithIdentity(ctx, service.Identity{
				HolderID:   holder,
				Privileged: strings.EqualFold(strings.TrimSpace(role), middleware.RoleAdmin),
			}), req)
		}

		scheme, token, ok := strings.Cut(strings.TrimSpace(first(md, "authorization")), " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		identity, err := resolver.Resolve(ctx, token)
		if err != nil || identity.HolderID == "" {
			return nil, status.Error(codes.Unauthenticated, "invalid bearer token")
		}
		return handler(service.WithIdentity(ctx, identity), req)
	}
}

func first(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// RateLimitInterceptor applies the per-holder request budget. It must run after IdentityInterceptor.
func RateLimitInterceptor(limiter *middleware.HolderLimiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if identity, ok := service.IdentityFromContext(ctx); ok && !limiter.Allow(identity.HolderID) {
			return nil, status.Error(codes.ResourceExhausted, "too many lock requests")
		}
		return handler(ctx, req)
	}
}
