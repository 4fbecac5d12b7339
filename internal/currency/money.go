package currency

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	xcurrency "golang.org/x/text/currency"
)

// BaseCurrency is the currency every catalog amount is denominated in.
const BaseCurrency = "USD"

// ErrInvalidCurrency is returned for codes that are not ISO 4217.
var ErrInvalidCurrency = errors.New("currency: invalid currency code")

// ErrInvalidMultiplier is returned for non-positive or non-finite multipliers.
var ErrInvalidMultiplier = errors.New("currency: invalid multiplier")

// zeroDecimal lists currencies rendered in whole units: zero-decimal codes and
// codes whose subdivision is not decimal (MGA, MRU).
var zeroDecimal = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {},
	"KRW": {}, "MGA": {}, "MRU": {}, "PYG": {}, "RWF": {}, "UGX": {},
	"VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// IsZeroDecimal reports whether code skips minor-unit rounding.
func IsZeroDecimal(code string) bool {
	_, ok := zeroDecimal[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

var symbols = map[string]string{
	"USD": "$", "EUR": "€", "GBP": "£", "JPY": "¥", "KRW": "₩", "CNY": "CN¥",
	"CAD": "CA$", "AUD": "A$", "NZD": "NZ$", "HKD": "HK$", "SGD": "S$", "MXN": "MX$",
	"BRL": "R$", "INR": "₹", "VND": "₫", "PHP": "₱", "THB": "฿", "ILS": "₪",
	"TRY": "₺", "UAH": "₴", "NGN": "₦", "RUB": "₽", "PLN": "zł", "CZK": "Kč",
	"HUF": "Ft", "SEK": "kr", "NOK": "kr", "DKK": "kr", "CHF": "CHF", "ZAR": "R",
}

// Symbol returns the display symbol for code, falling back to the code itself.
func Symbol(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if s, ok := symbols[code]; ok {
		return s
	}
	return code
}

// NormalizeCode upper-cases code and checks it against ISO 4217.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	if _, err := xcurrency.ParseISO(code); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return code, nil
}

// FX converts one USD into Currency.
type FX struct {
	Multiplier     float64 `json:"multiplier"`
	Currency       string  `json:"currency"`
	CurrencySymbol string  `json:"currency_symbol,omitempty"`
}

// Identity is the multiplier for the base currency.
func Identity() FX {
	return FX{Multiplier: 1, Currency: BaseCurrency, CurrencySymbol: Symbol(BaseCurrency)}
}

// Validate checks the multiplier and currency code.
func (fx FX) Validate() error {
	if fx.Multiplier <= 0 || math.IsNaN(fx.Multiplier) || math.IsInf(fx.Multiplier, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidMultiplier, fx.Multiplier)
	}
	if _, err := NormalizeCode(fx.Currency); err != nil {
		return err
	}
	return nil
}

// Convert turns a USD cents amount into the target currency's display units:
// minor units for decimal currencies, whole units for zero-decimal ones.
func Convert(usdCents int64, fx FX) (int64, error) {
	if err := fx.Validate(); err != nil {
		return 0, err
	}
	scaled := float64(usdCents) * fx.Multiplier
	if IsZeroDecimal(fx.Currency) {
		return int64(math.Round(scaled / 100)), nil
	}
	return int64(math.Round(scaled)), nil
}

// FormatAmount renders amount, expressed in code's display units, with symbol.
// Zero-decimal currencies are printed as whole units.
func FormatAmount(amount int64, code, symbol string) string {
	if symbol == "" {
		symbol = Symbol(code)
	}
	neg := amount < 0
	if neg {
		amount = -amount
	}
	var body string
	if IsZeroDecimal(code) {
		body = groupThousands(amount)
	} else {
		body = groupThousands(amount/100) + "." + fmt.Sprintf("%02d", amount%100)
	}
	if r, _ := utf8.DecodeLastRuneInString(symbol); unicode.IsLetter(r) {
		symbol += " "
	}
	if neg {
		return "-" + symbol + body
	}
	return symbol + body
}

// Format converts usdCents with fx and renders the result. It is the only
// price formatter; server render and client recomputation both call it.
func Format(usdCents int64, fx FX) (string, error) {
	amount, err := Convert(usdCents, fx)
	if err != nil {
		return "", err
	}
	code := strings.ToUpper(strings.TrimSpace(fx.Currency))
	return FormatAmount(amount, code, fx.CurrencySymbol), nil
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
