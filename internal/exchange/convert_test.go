package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestConvertLBPToUSDT(t *testing.T) {
	got, err := Convert(dec("1000"), dec("0.00059"), dec("0.5"), currency.USDT.Precision())
	require.NoError(t, err)
	assert.Equal(t, "0.59", got.GrossAmount.String())
	assert.Equal(t, "0.00295", got.Fee.String())
	assert.Equal(t, "0.58705", got.NetAmount.String())
}

func TestConvertRoundsHalfUpToTargetPrecision(t *testing.T) {
	got, err := Convert(dec("1"), dec("1694.925"), dec("0"), currency.LBP.Precision())
	require.NoError(t, err)
	assert.Equal(t, "1694.93", got.GrossAmount.String())

	got, err = Convert(dec("3"), dec("0.0000005"), dec("0"), currency.USDT.Precision())
	require.NoError(t, err)
	assert.Equal(t, "0.000002", got.GrossAmount.String())
}

func TestConvertNetPlusFeeEqualsGross(t *testing.T) {
	for _, amount := range []string{"1", "17.3", "999999.99", "0.01"} {
		got, err := Convert(dec(amount), dec("1694.92"), dec("0.5"), currency.LBP.Precision())
		require.NoError(t, err)
		assert.True(t, got.NetAmount.Add(got.Fee).Equal(got.GrossAmount), amount)
		assert.False(t, got.NetAmount.IsNegative())
	}
}

func TestConvertRejectsInvalidInput(t *testing.T) {
	cases := []struct{ amount, rate, fee string }{
		{"0", "1", "0"},
		{"-1", "1", "0"},
		{"1", "0", "0"},
		{"1", "-2", "0"},
		{"1", "1", "-0.1"},
		{"1", "1", "100.01"},
	}
	for _, c := range cases {
		_, err := Convert(dec(c.amount), dec(c.rate), dec(c.fee), currency.USDT.Precision())
		assert.ErrorIs(t, err, ErrInvalidConversion, "%+v", c)
	}
}
