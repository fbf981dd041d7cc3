package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	t.Run("scales display units", func(t *testing.T) {
		v, err := ToBaseUnits(1000)
		require.NoError(t, err)
		assert.Equal(t, MinimumStake, v)
	})
	t.Run("largest amount that fits", func(t *testing.T) {
		largest := math.MaxUint64 / BaseUnitsPerToken
		v, err := ToBaseUnits(largest)
		require.NoError(t, err)
		assert.Equal(t, largest*BaseUnitsPerToken, v)
	})
	t.Run("overflow", func(t *testing.T) {
		_, err := ToBaseUnits(math.MaxUint64/BaseUnitsPerToken + 1)
		require.Error(t, err)
		assert.True(t, HasErrorCode(err, NumberOverflow))
	})
}

func TestCheckedArithmetic(t *testing.T) {
	sum, err := CheckedAdd(1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sum)

	_, err = CheckedAdd(math.MaxUint64, 1)
	assert.True(t, HasErrorCode(err, NumberOverflow))

	diff, err := CheckedSub(5, 5)
	require.NoError(t, err)
	assert.Zero(t, diff)

	_, err = CheckedSub(4, 5)
	assert.True(t, HasErrorCode(err, NumberOverflow))
}

func TestFormatAmount(t *testing.T) {
	cases := map[uint64]string{
		0:                            "0",
		MinimumStake:                 "1,000",
		1_500*BaseUnitsPerToken + 250: "1,500.00000025",
		BaseUnitsPerToken / 2:        "0.5",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatAmount(in))
	}
}

func TestNewLedgerError(t *testing.T) {
	err := NewLedgerError(InsufficientFunds)
	assert.Equal(t, InsufficientFunds, err.ErrorCode)
	assert.Equal(t, 422, err.StatusCode)

	unknown := NewLedgerError("Nope")
	assert.Equal(t, InternalServiceError, unknown.ErrorCode)

	assert.Nil(t, AsError(nil))
	wrapped := AsError(assert.AnError)
	assert.Equal(t, InternalServiceError, wrapped.ErrorCode)
}
