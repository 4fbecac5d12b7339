package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

type memoKey struct{}

// errMemoAborted is what waiters observe when the computation they joined
// panicked instead of returning.
var errMemoAborted = errors.New("pricing: memoized totals computation aborted")

type memoEntry struct {
	done   chan struct{}
	totals Totals
	err    error
}

// memo holds the totals computed during one request. It is never shared
// across requests because carts mutate between them.
type memo struct {
	mu      sync.Mutex
	entries map[string]*memoEntry
}

// WithMemo returns a context carrying an empty request-scoped memo.
func WithMemo(ctx context.Context) context.Context {
	return context.WithValue(ctx, memoKey{}, &memo{entries: make(map[string]*memoEntry)})
}

// MemoMiddleware scopes a totals memo to each request. The shipping estimate
// computes one total per request; the memo pays off for renders that compose
// several totals for the same cart, such as a page showing the estimate next
// to the cart summary.
func MemoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithMemo(r.Context())))
	})
}

// Memoized wraps a Calculator so identical calls within one request are
// computed once. Without a memo in the context every call computes.
type Memoized struct {
	Calc *Calculator
}

// ComputeTotals returns the memoized result for identical inputs in ctx's
// request, computing it on first use. Concurrent identical calls wait for the
// first one.
func (m Memoized) ComputeTotals(ctx context.Context, cart []CartVariant, iso3 string, supplier shipping.Supplier, opts Options) (Totals, error) {
	store, _ := ctx.Value(memoKey{}).(*memo)
	if store == nil {
		return m.Calc.ComputeTotals(ctx, cart, iso3, supplier, opts)
	}
	key, err := memoKeyFor(cart, iso3, supplier, opts)
	if err != nil {
		return m.Calc.ComputeTotals(ctx, cart, iso3, supplier, opts)
	}

	store.mu.Lock()
	if e, ok := store.entries[key]; ok {
		store.mu.Unlock()
		select {
		case <-e.done:
			return e.totals, e.err
		case <-ctx.Done():
			return Totals{}, ctx.Err()
		}
	}
	e := &memoEntry{done: make(chan struct{}), err: errMemoAborted}
	store.entries[key] = e
	store.mu.Unlock()

	defer close(e.done)
	e.totals, e.err = m.Calc.ComputeTotals(ctx, cart, iso3, supplier, opts)
	return e.totals, e.err
}

func memoKeyFor(cart []CartVariant, iso3 string, supplier shipping.Supplier, opts Options) (string, error) {
	raw, err := json.Marshal(struct {
		Cart     []CartVariant `json:"c"`
		ISO3     string        `json:"i"`
		Supplier string        `json:"s"`
		State    string        `json:"st"`
		Tiers    *TierPolicy   `json:"t,omitempty"`
	}{cart, iso3, string(supplier), opts.StateISO2, opts.Tiers})
	if err != nil {
		return "", err
	}
	return common.Sha256Hex(string(raw)), nil
}
