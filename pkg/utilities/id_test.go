package utilities

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDigitCodeRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code := NewDigitCode()
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestNewExternalIDRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := NewExternalID()
		require.Len(t, id, 8)
		n, err := strconv.Atoi(id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 10000000)
		assert.LessOrEqual(t, n, 99999999)
	}
}

func TestNewKSUIDUnique(t *testing.T) {
	a := NewKSUID()
	b := NewKSUID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestNewSnowflakeID(t *testing.T) {
	a := NewSnowflakeID()
	b := NewSnowflakeID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
