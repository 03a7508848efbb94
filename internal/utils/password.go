package utils

import (
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used when configuration does not
// override it.
const DefaultBcryptCost = 10

// bcryptHash matches the modular crypt format produced by bcrypt:
// $2a$/$2b$/$2y$, a two digit cost and 53 characters of salt+digest.
var bcryptHash = regexp.MustCompile(`^\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53}$`)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password. An empty
// hash never verifies.
func VerifyPassword(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// IsPasswordHash reports whether v is already a bcrypt hash.
func IsPasswordHash(v string) bool {
	return bcryptHash.MatchString(v)
}

// EnsureHashed is the idempotence guard every password write goes through:
// values that are already bcrypt hashes are stored as-is, anything else is
// hashed. Repeated writes of the same value never produce a hash of a hash.
func EnsureHashed(v string, cost int) (string, error) {
	if IsPasswordHash(v) {
		return v, nil
	}
	return HashPassword(v, cost)
}
