// Package auth resolves bearer tokens issued by the external identity
// provider into identity.Principal values.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/identity"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// Claims is the token body: the standard claims plus the marketplace role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RevocationChecker reports revoked token IDs (jti).
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// JWTConfig configures token verification.
type JWTConfig struct {
	// Secret is the HMAC key shared with the identity provider.
	Secret string

	// Issuer, when set, must match the iss claim.
	Issuer string

	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration
}

// JWTResolver implements identity.Resolver for HS256 tokens.
type JWTResolver struct {
	secret  []byte
	issuer  string
	leeway  time.Duration
	revoked RevocationChecker
	parser  *jwt.Parser
	now     func() time.Time
}

// NewJWTResolver creates a resolver. revoked may be nil.
func NewJWTResolver(cfg JWTConfig, revoked RevocationChecker) (*JWTResolver, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &JWTResolver{
		secret:  []byte(cfg.Secret),
		issuer:  cfg.Issuer,
		leeway:  cfg.Leeway,
		revoked: revoked,
		parser:  jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation()),
		now:     time.Now,
	}, nil
}

// Resolve verifies the token and returns the principal it names.
func (r *JWTResolver) Resolve(ctx context.Context, token string) (identity.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return identity.Principal{}, shared.ErrMissingToken
	}

	claims := &Claims{}
	if _, err := r.parser.ParseWithClaims(token, claims, r.key); err != nil {
		return identity.Principal{}, shared.WrapError("identity", "Resolve", shared.ErrUnauthorized, "token parse error", err)
	}
	if err := r.validate(claims); err != nil {
		return identity.Principal{}, err
	}

	role, err := identity.ParseRole(claims.Role)
	if err != nil {
		return identity.Principal{}, shared.NewDomainError("identity", "Resolve", shared.ErrUnauthorized, "token carries no valid role")
	}

	if r.revoked != nil && claims.ID != "" {
		revoked, err := r.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return identity.Principal{}, shared.WrapError("identity", "Resolve", shared.ErrServiceUnavailable, "revocation list unavailable", err)
		}
		if revoked {
			return identity.Principal{}, shared.ErrRevokedToken
		}
	}

	p := identity.Principal{UserID: claims.Subject, Role: role}
	if err := p.Validate(); err != nil {
		return identity.Principal{}, err
	}
	return p, nil
}

func (r *JWTResolver) key(*jwt.Token) (interface{}, error) {
	return r.secret, nil
}

func (r *JWTResolver) validate(c *Claims) error {
	now := r.now()

	if c.ExpiresAt == nil || !c.VerifyExpiresAt(now.Add(-r.leeway), true) {
		return shared.NewDomainError("identity", "Resolve", shared.ErrUnauthorized, "token expired")
	}
	if !c.VerifyNotBefore(now.Add(r.leeway), false) || !c.VerifyIssuedAt(now.Add(r.leeway), false) {
		return shared.NewDomainError("identity", "Resolve", shared.ErrUnauthorized, "token not valid yet")
	}
	if r.issuer != "" && !c.VerifyIssuer(r.issuer, true) {
		return shared.ErrInvalidToken
	}
	return nil
}

// BearerToken extracts the token from an Authorization header value.
// It tolerates repeated spaces and a case-insensitive scheme.
func BearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}
	tok := strings.Trim(fields[1], "\"'")
	return tok, tok != ""
}
