package user

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// hashCost is the bcrypt work factor for credentials at rest. Changing it
// affects only newly hashed passwords; existing hashes carry their own
// factor and keep verifying.
const hashCost = 12

// HashPassword derives the storable hash for a wire-supplied password.
// Registration and the admin console's password reset both go through
// here, so every stored credential carries the same work factor.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether password matches a stored credential hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
