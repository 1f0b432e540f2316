package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	placeholderOnce sync.Once
	placeholderHash []byte
)

// HashPassword returns the bcrypt hash stored in auth.admin_password_hash
// or a users entry. Costs outside bcrypt's range fall back to the default.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// HashCost returns the cost of a bcrypt hash, or an error when hash is not
// a bcrypt hash
func HashCost(hash string) (int, error) {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, fmt.Errorf("invalid password hash: %w", err)
	}
	return cost, nil
}

// checkPassword reports whether password matches hash. A nil hash is
// compared against a placeholder so unknown users cost the same as known
// ones.
func checkPassword(password string, hash []byte) bool {
	if hash == nil {
		placeholderOnce.Do(func() {
			placeholderHash, _ = bcrypt.GenerateFromPassword([]byte("placeholder"), bcrypt.DefaultCost)
		})
		bcrypt.CompareHashAndPassword(placeholderHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
