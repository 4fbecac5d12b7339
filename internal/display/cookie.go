package display

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/noah-isme/storefront-api/internal/currency"
)

// SnapshotVersion is the schema version written by this build.
const SnapshotVersion = 1

var (
	// ErrMalformedSnapshot is returned for cookies that cannot be decoded.
	ErrMalformedSnapshot = errors.New("display: malformed fx snapshot")
	// ErrUnsupportedVersion is returned for snapshots newer than this build.
	ErrUnsupportedVersion = errors.New("display: unsupported fx snapshot version")
)

// Snapshot is the cookie-backed FX state. FX is absent for the base currency.
type Snapshot struct {
	V         int          `json:"v"`
	ISO3      string       `json:"iso3"`
	FX        *currency.FX `json:"fx,omitempty"`
	UpdatedAt int64        `json:"updatedAt"`
}

// Trusted reports whether the snapshot can price without a new fetch. Only
// the default country may omit FX.
func (s Snapshot) Trusted() bool {
	if s.ISO3 == "" {
		return false
	}
	if s.FX == nil {
		return s.ISO3 == currency.DefaultCountry
	}
	return s.FX.Validate() == nil
}

// Rate returns the snapshot's multiplier, identity when FX is absent.
func (s Snapshot) Rate() currency.FX {
	if s.FX == nil {
		return currency.Identity()
	}
	return *s.FX
}

// Age returns the time since the snapshot was written.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(s.UpdatedAt))
}

// legacySnapshot is the unversioned flat layout of the first cookie format.
type legacySnapshot struct {
	Country    string  `json:"country"`
	Multiplier float64 `json:"multiplier"`
	Currency   string  `json:"currency"`
	Symbol     string  `json:"symbol"`
	Timestamp  int64   `json:"ts"`
}

func migrateV0(raw []byte) (Snapshot, error) {
	var legacy legacySnapshot
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	snap := Snapshot{
		V:         SnapshotVersion,
		ISO3:      strings.ToUpper(strings.TrimSpace(legacy.Country)),
		UpdatedAt: legacy.Timestamp,
	}
	if legacy.Currency != "" && legacy.Multiplier > 0 {
		snap.FX = &currency.FX{
			Multiplier:     legacy.Multiplier,
			Currency:       strings.ToUpper(legacy.Currency),
			CurrencySymbol: legacy.Symbol,
		}
	}
	return snap, nil
}

// EncodeSnapshot serialises s as base64url JSON.
func EncodeSnapshot(s Snapshot) (string, error) {
	s.V = SnapshotVersion
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeSnapshot parses a cookie value, migrating older layouts to the
// current version.
func DecodeSnapshot(value string) (Snapshot, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Snapshot{}, ErrMalformedSnapshot
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if !gjson.ValidBytes(raw) {
		return Snapshot{}, ErrMalformedSnapshot
	}
	version := gjson.GetBytes(raw, "v")
	switch {
	case !version.Exists():
		return migrateV0(raw)
	case version.Int() == SnapshotVersion:
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		snap.ISO3 = strings.ToUpper(strings.TrimSpace(snap.ISO3))
		return snap, nil
	default:
		return Snapshot{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version.Int())
	}
}

// CookieCodec reads and writes the FX cookie.
type CookieCodec struct {
	Name     string
	MaxAge   time.Duration
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func (c CookieCodec) name() string {
	if c.Name == "" {
		return "fx"
	}
	return c.Name
}

// Read returns the decoded snapshot and whether a usable cookie was present.
func (c CookieCodec) Read(r *http.Request) (Snapshot, bool) {
	cookie, err := r.Cookie(c.name())
	if err != nil {
		return Snapshot{}, false
	}
	snap, err := DecodeSnapshot(cookie.Value)
	if err != nil {
		return Snapshot{}, false
	}
	return snap, true
}

// Write sets the cookie for s.
func (c CookieCodec) Write(w http.ResponseWriter, s Snapshot) error {
	value, err := EncodeSnapshot(s)
	if err != nil {
		return err
	}
	sameSite := c.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(c.MaxAge / time.Second),
		Secure:   c.Secure,
		HttpOnly: false,
		SameSite: sameSite,
	})
	return nil
}
