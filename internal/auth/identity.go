// Package auth resolves the caller's user id from credentials minted by the
// external identity service. It verifies tokens; it never issues sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

const (
	// HeaderUserID is trusted only when no JWT secret is configured
	// (local development behind the identity gateway).
	HeaderUserID = "X-User-ID"
	mdUserID     = "x-user-id"
	mdAuth       = "authorization"
)

// Claims carries the user id in "sub"; "user_id" is accepted as well.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) userID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.UserID
}

// Identifier turns request credentials into a user id.
type Identifier struct {
	secret []byte
}

// NewIdentifier builds an Identifier. An empty secret switches to
// header-trust mode.
func NewIdentifier(secret string) *Identifier {
	return &Identifier{secret: []byte(secret)}
}

// TrustsHeaders reports whether the plain user id header is accepted.
func (i *Identifier) TrustsHeaders() bool { return len(i.secret) == 0 }

// ParseToken validates an HS256 token and returns its user id.
func (i *Identifier) ParseToken(tokenString string) (string, error) {
	if len(i.secret) == 0 {
		return "", fmt.Errorf("%w: no secret configured", ErrInvalidToken)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.userID() == "" {
		return "", ErrInvalidToken
	}
	return claims.userID(), nil
}

// FromRequest reads "Authorization: Bearer", then the "token" query
// parameter (browsers cannot set headers on a websocket upgrade), then the
// user id header in header-trust mode.
func (i *Identifier) FromRequest(r *http.Request) (string, error) {
	token := bearer(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return i.resolve(token, r.Header.Get(HeaderUserID))
}

// FromIncomingContext does the same for gRPC metadata.
func (i *Identifier) FromIncomingContext(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	return i.resolve(bearer(first(md.Get(mdAuth))), first(md.Get(mdUserID)))
}

func (i *Identifier) resolve(token, headerUser string) (string, error) {
	if token != "" && len(i.secret) > 0 {
		return i.ParseToken(token)
	}
	if i.TrustsHeaders() && strings.TrimSpace(headerUser) != "" {
		return strings.TrimSpace(headerUser), nil
	}
	return "", ErrMissingCredentials
}

// IssueToken mints a token the way the identity service does. Used by the
// seed and livewatch commands and by tests.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// OutgoingContext attaches credentials to a gRPC client context.
func OutgoingContext(ctx context.Context, token, userID string) context.Context {
	pairs := []string{}
	if token != "" {
		pairs = append(pairs, mdAuth, "Bearer "+token)
	}
	if userID != "" {
		pairs = append(pairs, mdUserID, userID)
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

func bearer(h string) string {
	parts := strings.SplitN(strings.TrimSpace(h), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}
