package access

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/relabs-tech/profilegate/core/errs"
)

// DefaultAudience is the audience of tokens issued to signed in users
const DefaultAudience = "authenticated"

// Claims are the claims of a Supabase access token
type Claims struct {
	jwt.RegisteredClaims
	Email        string                 `json:"email,omitempty"`
	Role         string                 `json:"role,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	AppMetadata  map[string]interface{} `json:"app_metadata,omitempty"`
}

// Verifier verifies access tokens signed with a shared HS256 secret.
// Every call verifies the signature again, nothing is cached.
type Verifier struct {
	secret   []byte
	audience string
	parser   *jwt.Parser
	now      func() time.Time
}

// NewVerifier returns a verifier for tokens signed with secret and issued for
// audience. An empty audience means DefaultAudience. An empty secret is accepted
// here and reported as configuration error on first use.
func NewVerifier(secret, audience string) *Verifier {
	if audience == "" {
		audience = DefaultAudience
	}
	return &Verifier{
		secret:   []byte(secret),
		audience: audience,
		// time claims are checked against v.now below
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation()),
		now:    time.Now,
	}
}

var errNoSecret = errs.Configuration("SUPABASE_JWT_SECRET must be set in environment variables", nil)

// Configured returns a configuration error if no signing secret is set
func (v *Verifier) Configured() error {
	if len(v.secret) == 0 {
		return errNoSecret
	}
	return nil
}

// parse verifies signature, algorithm and audience, but no time claims
func (v *Verifier) parse(tokenString string) (*Claims, error) {
	if err := v.Configured(); err != nil {
		return nil, err
	}
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token not valid")
	}
	if !claims.VerifyAudience(v.audience, true) {
		return nil, errors.New("audience mismatch")
	}
	return claims, nil
}

// Decode verifies the token and returns its claims. Signature, audience and the time
// claims exp and nbf are validated. Any failure is an auth error "invalid token",
// except for a missing secret, which is a configuration error.
func (v *Verifier) Decode(tokenString string) (*Claims, error) {
	claims, err := v.parse(tokenString)
	if err != nil {
		if errors.Is(err, errs.ErrConfiguration) {
			return nil, err
		}
		return nil, errs.Auth("invalid token", err)
	}
	now := v.now()
	if !claims.VerifyExpiresAt(now, false) {
		return nil, errs.Auth("invalid token", errors.New("token is expired"))
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, errs.Auth("invalid token", errors.New("token is not valid yet"))
	}
	return claims, nil
}

// IsExpired returns true if the token's exp claim lies in the past.
//
// A token without exp claim is not expired. A token which cannot be verified is
// always expired.
func (v *Verifier) IsExpired(tokenString string) bool {
	claims, err := v.parse(tokenString)
	if err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.Time.After(v.now())
}
