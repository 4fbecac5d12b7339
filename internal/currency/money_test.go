package currency_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/currency"
)

func TestFormatEuroRoundsToNearestCent(t *testing.T) {
	got, err := currency.Format(4999, currency.FX{Multiplier: 1.08, Currency: "EUR", CurrencySymbol: "€"})
	require.NoError(t, err)
	require.Equal(t, "€53.99", got)
}

func TestZeroDecimalCurrenciesAreWholeUnits(t *testing.T) {
	for _, code := range []string{"JPY", "KRW", "VND", "CLP", "MGA", "MRU"} {
		require.True(t, currency.IsZeroDecimal(code), code)
	}
	require.False(t, currency.IsZeroDecimal("EUR"))

	require.Equal(t, "¥12,345", currency.FormatAmount(12345, "JPY", ""))
	require.Equal(t, "₩12,345", currency.FormatAmount(12345, "KRW", ""))
	require.Equal(t, "€123.45", currency.FormatAmount(12345, "EUR", ""))
}

func TestConvertZeroDecimal(t *testing.T) {
	// $49.99 at 151.3 JPY/USD is 7563.49 yen.
	amount, err := currency.Convert(4999, currency.FX{Multiplier: 151.3, Currency: "JPY"})
	require.NoError(t, err)
	require.Equal(t, int64(7563), amount)

	text, err := currency.Format(4999, currency.FX{Multiplier: 151.3, Currency: "JPY"})
	require.NoError(t, err)
	require.Equal(t, "¥7,563", text)
}

func TestFormatIdentityAndGrouping(t *testing.T) {
	text, err := currency.Format(123456789, currency.Identity())
	require.NoError(t, err)
	require.Equal(t, "$1,234,567.89", text)

	text, err = currency.Format(5, currency.Identity())
	require.NoError(t, err)
	require.Equal(t, "$0.05", text)

	require.Equal(t, "-$1.50", currency.FormatAmount(-150, "USD", ""))
	require.Equal(t, "CHF 10.00", currency.FormatAmount(1000, "CHF", ""))
	require.Equal(t, "AED 10.00", currency.FormatAmount(1000, "AED", ""))
}

func TestConvertRejectsInvalidFX(t *testing.T) {
	_, err := currency.Convert(100, currency.FX{Multiplier: 0, Currency: "EUR"})
	require.ErrorIs(t, err, currency.ErrInvalidMultiplier)

	_, err = currency.Convert(100, currency.FX{Multiplier: 1.1, Currency: "ZZZ1"})
	require.ErrorIs(t, err, currency.ErrInvalidCurrency)
}

func TestNormalizeCode(t *testing.T) {
	code, err := currency.NormalizeCode(" eur ")
	require.NoError(t, err)
	require.Equal(t, "EUR", code)

	_, err = currency.NormalizeCode("QQQ")
	require.ErrorIs(t, err, currency.ErrInvalidCurrency)
}
