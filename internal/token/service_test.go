package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumichess/account-service/internal/account/entity"
)

func testAccount() *entity.Account {
	return &entity.Account{
		ID:       42,
		Email:    "player@example.com",
		Username: "knightrider",
	}
}

func TestMintValidateRoundtrip(t *testing.T) {
	svc := NewService(Config{Secret: "test-secret", TTL: time.Hour})

	raw, err := svc.Mint(testAccount())
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := svc.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "player@example.com", claims.Email)
	assert.Equal(t, "knightrider", claims.Username)
}

func TestValidateExpired(t *testing.T) {
	svc := NewService(Config{Secret: "test-secret", TTL: -time.Minute})
	raw, err := svc.Mint(testAccount())
	require.NoError(t, err)

	_, err = svc.Validate(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateWrongSecret(t *testing.T) {
	minter := NewService(Config{Secret: "secret-a", TTL: time.Hour})
	checker := NewService(Config{Secret: "secret-b", TTL: time.Hour})

	raw, err := minter.Mint(testAccount())
	require.NoError(t, err)

	_, err = checker.Validate(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateGarbage(t *testing.T) {
	svc := NewService(Config{Secret: "test-secret", TTL: time.Hour})
	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, err := svc.Validate(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestClaimsContext(t *testing.T) {
	svc := NewService(Config{Secret: "test-secret", TTL: time.Hour})
	raw, err := svc.Mint(testAccount())
	require.NoError(t, err)
	claims, err := svc.Validate(raw)
	require.NoError(t, err)

	ctx := ContextWithClaims(t.Context(), claims)
	got := ClaimsFromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, claims.UserID, got.UserID)

	assert.Nil(t, ClaimsFromContext(t.Context()))
}
