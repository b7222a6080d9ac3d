package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const contextKeyClaims contextKey = "arbitration_claims"

// Role is the persona asserted by a token. Participants act on agreements;
// admins may also fund accounts.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
)

// Claims is the verified caller identity. Address is parsed from the token
// subject and is the identity every registry operation is authorised against.
type Claims struct {
	Subject string
	Address [20]byte
	Role    Role
}

// Key returns the canonical form of the caller address, used to scope
// per-caller state such as rate-limit buckets and idempotency records.
func (c *Claims) Key() string {
	return common.Address(c.Address).Hex()
}

// AuthConfig configures HS256 bearer token verification.
type AuthConfig struct {
	Issuer   string
	Audience string
	Secret   []byte
	Leeway   time.Duration
}

// Verifier validates bearer tokens.
type Verifier struct {
	issuer   string
	audience string
	secret   []byte
	leeway   time.Duration
	now      func() time.Time
}

// NewVerifier builds a verifier. The secret must be non-empty.
func NewVerifier(cfg AuthConfig) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("HS256 secret must not be empty")
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	return &Verifier{
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		secret:   append([]byte(nil), cfg.Secret...),
		leeway:   leeway,
		now:      time.Now,
	}, nil
}

// Verify parses and validates token, returning the caller claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if v == nil {
		return nil, errors.New("JWT verifier not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("token validation failed")
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return nil, err
	}
	subject = strings.TrimSpace(subject)
	if !common.IsHexAddress(subject) {
		return nil, fmt.Errorf("token subject %q is not an address", subject)
	}

	role := RoleParticipant
	if raw, ok := claims["role"].(string); ok && strings.TrimSpace(raw) != "" {
		switch Role(strings.ToLower(strings.TrimSpace(raw))) {
		case RoleParticipant:
		case RoleAdmin:
			role = RoleAdmin
		default:
			return nil, fmt.Errorf("role %q is not permitted", raw)
		}
	}

	return &Claims{
		Subject: subject,
		Address: common.HexToAddress(subject),
		Role:    role,
	}, nil
}

// Authenticate rejects requests without a valid bearer token and attaches the
// claims to the request context.
func (v *Verifier) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing bearer token", "unauthenticated")
			return
		}
		claims, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid token", "unauthenticated")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext extracts the claims attached by Authenticate.
func FromContext(ctx context.Context) (*Claims, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	claims, ok := ctx.Value(contextKeyClaims).(*Claims)
	if !ok || claims == nil {
		return nil, errors.New("missing identity in context")
	}
	return claims, nil
}

// RequireRole ensures the authenticated caller has one of the allowed roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := FromContext(r.Context())
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "missing identity", "unauthenticated")
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				writeJSONError(w, http.StatusForbidden, "insufficient role", "authorization")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
