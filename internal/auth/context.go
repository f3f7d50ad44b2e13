package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ctxKey struct{}

const ginUserKey = "user_id"

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// UnaryInterceptor rejects calls without an identity and stores the user id
// in the handler context. Health checks pass through.
func (i *Identifier) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isHealth(info.FullMethod) {
			return handler(ctx, req)
		}
		userID, err := i.FromIncomingContext(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(WithUser(ctx, userID), req)
	}
}

// Middleware is the gin counterpart of UnaryInterceptor.
func (i *Identifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := i.FromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(ginUserKey, userID)
		c.Request = c.Request.WithContext(WithUser(c.Request.Context(), userID))
		c.Next()
	}
}

// GinUser returns the user id stored by Middleware.
func GinUser(c *gin.Context) (string, bool) {
	v, ok := c.Get(ginUserKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func isHealth(method string) bool {
	return strings.HasPrefix(method, "/grpc.health.v1.Health/")
}
