package hash

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// Hasher wraps bcrypt with a configurable cost. The zero value uses
// bcrypt.DefaultCost.
type Hasher struct {
	Cost int
}

func (h Hasher) cost() int {
	if h.Cost < bcrypt.MinCost || h.Cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

func (h Hasher) Hash(password string) (string, error) {
	hashbytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost())
	if err != nil {
		return "", err
	}
	return string(hashbytes), nil
}

func (h Hasher) Check(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether hash is missing, unparsable or weaker than the
// configured cost.
func (h Hasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < h.cost()
}

func HashPassword(password string) (string, error) {
	return Hasher{}.Hash(password)
}

func CheckPassword(hash, password string) bool {
	return Hasher{}.Check(hash, password)
}

// Sha256Hex is the digest format of legacy password hashes and of stored
// refresh tokens.
func Sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CheckLegacy compares password against a legacy sha256 hex digest in
// constant time.
func CheckLegacy(legacyHash, password string) bool {
	if legacyHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(legacyHash), []byte(Sha256Hex(password))) == 1
}
