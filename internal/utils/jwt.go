package utils // package utils provides helpers for password hashing and token issuing

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTTL is the fixed lifetime of an access token.
const DefaultAccessTTL = time.Hour

// AccessToken is a signed JWT along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// TokenStatus is the outcome of verifying a token.
type TokenStatus int

const (
	TokenValid TokenStatus = iota
	TokenInvalid
	TokenExpired
)

// Claims is the identity carried by an access token.
type Claims struct {
	UserID uint64
	Role   string
}

// VerifyResult is returned by TokenIssuer.Verify. Claims is only meaningful
// when Status is TokenValid.
type VerifyResult struct {
	Status TokenStatus
	Claims Claims
}

type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds an issuer. A non-positive ttl falls back to
// DefaultAccessTTL.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock returns a copy of the issuer reading time from now.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	cp := *t
	cp.now = now
	return &cp
}

// Issue builds and signs a token whose subject is the user id.
func (t *TokenIssuer) Issue(userID uint64, role string) (AccessToken, error) {
	now := t.now().UTC()
	exp := now.Add(t.ttl)
	claims := accessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// Verify parses raw and reports whether it is valid, expired or otherwise
// unusable. Only HMAC-signed tokens with a numeric subject are accepted.
func (t *TokenIssuer) Verify(raw string) VerifyResult {
	var claims accessClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return VerifyResult{Status: TokenExpired}
		}
		return VerifyResult{Status: TokenInvalid}
	}
	if !tok.Valid {
		return VerifyResult{Status: TokenInvalid}
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return VerifyResult{Status: TokenInvalid}
	}
	return VerifyResult{Status: TokenValid, Claims: Claims{UserID: id, Role: claims.Role}}
}
