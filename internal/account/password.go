package account

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// passwordSymbols is the accepted punctuation set for the policy.
const passwordSymbols = `!@#$%^&*(),.?":{}|<>`

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	namePattern  = regexp.MustCompile(`^[a-zA-ZÀ-ÿ\s-]+$`)
)

// ValidatePassword enforces the account password policy: at least 8
// characters with one lowercase, one uppercase and one symbol, and no
// whitespace anywhere. Any unmet rule yields the same generic error so the
// caller learns nothing about which rule failed.
func ValidatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < 8 {
		return ErrWeakPassword
	}
	var lower, upper, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsSpace(r):
			return ErrWeakPassword
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	if !lower || !upper || !symbol {
		return ErrWeakPassword
	}
	return nil
}

// validateName accepts letters (including accented Latin), spaces and hyphens.
func validateName(name string) error {
	if name == "" || !namePattern.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

func validateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}
