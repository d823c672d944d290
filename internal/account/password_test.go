package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		name     string
		password string
		ok       bool
	}{
		{"valid", "Abcdef!g", true},
		{"valid with multiple symbols", `Chess{Rocks}!`, true},
		{"digits not required", "NoDigits!", true},
		{"too short", "Ab!defg", false},
		{"no uppercase", "abcdefg!", false},
		{"no lowercase", "ABCDEFG!", false},
		{"no symbol", "Abcdefgh", false},
		{"digit is not a symbol", "Abcdefg1", false},
		{"whitespace inside", "Abcd efg!", false},
		{"tab rejected", "Abcdefg!\t", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePassword(tc.password)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrWeakPassword)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, validateName("Marie"))
	assert.NoError(t, validateName("Jean-Pierre"))
	assert.NoError(t, validateName("Éloïse"))
	assert.NoError(t, validateName("De La Cruz"))
	assert.ErrorIs(t, validateName(""), ErrInvalidName)
	assert.ErrorIs(t, validateName("R2D2"), ErrInvalidName)
	assert.ErrorIs(t, validateName("name!"), ErrInvalidName)
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, validateEmail("player@example.com"))
	assert.NoError(t, validateEmail("a.b+c@sub.domain.org"))
	assert.ErrorIs(t, validateEmail("no-at-sign"), ErrInvalidEmail)
	assert.ErrorIs(t, validateEmail("missing@tld"), ErrInvalidEmail)
	assert.ErrorIs(t, validateEmail("spaces in@mail.com"), ErrInvalidEmail)
	assert.ErrorIs(t, validateEmail(""), ErrInvalidEmail)
}

func TestBcryptHasherRoundtrip(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash("Secret!Pass")
	require.NoError(t, err)
	assert.True(t, h.Verify(hash, "Secret!Pass"))
	assert.False(t, h.Verify(hash, "Wrong!Pass"))
	assert.False(t, h.Verify("not-a-hash", "Secret!Pass"))
}
