package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Hasher wraps bcrypt. The salt is random per call and embedded in the output.
type Hasher struct {
	cost int
	// dummy lets a lookup miss spend the same bcrypt work as a real comparison.
	dummy []byte
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("orderhub-timing-equaliser"), cost)
	if err != nil {
		// only reachable with an out-of-range cost, excluded above
		panic(err)
	}

	return &Hasher{cost: cost, dummy: dummy}
}

// Hash hashes a plain text password with bcrypt.
func (h *Hasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Matches compares in constant time. A malformed hash is a mismatch, not an error.
func (h *Hasher) Matches(plain, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	return err == nil
}

// Burn performs a throwaway comparison at the hasher's cost.
func (h *Hasher) Burn(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}

var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// Validate rejects inputs bcrypt would silently truncate.
func Validate(plain string) error {
	if len(plain) > 72 {
		return ErrPasswordTooLong
	}
	return nil
}
