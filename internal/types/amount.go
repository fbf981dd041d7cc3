package types

import (
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/holiman/uint256"
)

const (
	// BaseUnitsPerToken is the scale between display units and persisted base units
	BaseUnitsPerToken uint64 = 1_000_000_000
	TokenDecimals            = 9

	DelegateMinimumStake = 500 * BaseUnitsPerToken
	MinimumStake         = 1_000 * BaseUnitsPerToken
	MaximumStake         = 10_000 * BaseUnitsPerToken

	MaxNameLength      = 32
	MaxServerKeyLength = 65
)

// ToBaseUnits scales a display amount to base units, failing on overflow
func ToBaseUnits(amount uint64) (uint64, error) {
	scaled := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(BaseUnitsPerToken))
	if !scaled.IsUint64() {
		return 0, NewLedgerError(NumberOverflow)
	}
	return scaled.Uint64(), nil
}

// CheckedAdd returns a+b or NumberOverflow
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, NewLedgerError(NumberOverflow)
	}
	return sum.Uint64(), nil
}

// CheckedSub returns a-b or NumberOverflow when b > a
func CheckedSub(a, b uint64) (uint64, error) {
	diff, underflow := new(uint256.Int).SubOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if underflow {
		return 0, NewLedgerError(NumberOverflow)
	}
	return diff.Uint64(), nil
}

// FormatAmount renders base units as a display amount, e.g. 1,500.25
func FormatAmount(baseUnits uint64) string {
	whole := baseUnits / BaseUnitsPerToken
	frac := baseUnits % BaseUnitsPerToken
	out := humanize.Comma(int64(whole))
	if frac == 0 {
		return out
	}
	fracStr := strconv.FormatUint(frac+BaseUnitsPerToken, 10)[1:]
	for fracStr[len(fracStr)-1] == '0' {
		fracStr = fracStr[:len(fracStr)-1]
	}
	return out + "." + fracStr
}
