package display

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/storefront-api/internal/catalog"
	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/currency"
	"github.com/noah-isme/storefront-api/internal/pricing"
)

const maxGridSKUs = 100

// VariantReader resolves one catalog record.
type VariantReader interface {
	VariantData(ctx context.Context, sku string) (catalog.Item, error)
}

// Handler serves the price grid and the client formatting endpoint.
type Handler struct {
	Catalog     VariantReader
	Validate    *validator.Validate
	Concurrency int
}

// Prices serves GET /shop/prices?sku=A&sku=B. Each SKU resolves its base
// price concurrently; results keep their SKU key.
func (h *Handler) Prices(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	skus := uniqueSKUs(r.URL.Query()["sku"])
	if len(skus) == 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "at least one sku is required", nil)
		return
	}
	if len(skus) > maxGridSKUs {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "too many skus", nil)
		return
	}
	session, ok := FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "fx session missing", nil)
		return
	}

	cents, missing, err := h.resolve(r.Context(), skus)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("resolve price grid")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to resolve prices", nil)
		return
	}

	prices := make(map[string]Price, len(cents))
	for sku, amount := range cents {
		p, err := session.Price(amount)
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to format price", nil)
			return
		}
		prices[sku] = p
	}

	state, iso3 := session.State()
	body := map[string]any{
		"country": iso3,
		"state":   state,
		"prices":  prices,
		"missing": missing,
	}
	if fx, ok := session.FX(); ok {
		body["currency"] = fx.Currency
		body["currency_symbol"] = currency.Symbol(fx.Currency)
		if fx.CurrencySymbol != "" {
			body["currency_symbol"] = fx.CurrencySymbol
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": body})
}

func (h *Handler) resolve(ctx context.Context, skus []string) (map[string]int64, []string, error) {
	var (
		mu      sync.Mutex
		cents   = make(map[string]int64, len(skus))
		missing = make([]string, 0)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency())
	for _, sku := range skus {
		g.Go(func() error {
			it, err := h.Catalog.VariantData(gctx, sku)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, catalog.ErrNotFound):
				missing = append(missing, sku)
				return nil
			case err != nil:
				return err
			}
			cents[sku] = pricing.Cents(it.Tier1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return cents, missing, nil
}

func (h *Handler) concurrency() int {
	if h.Concurrency <= 0 {
		return 8
	}
	return h.Concurrency
}

type formatRequest struct {
	Cents *int64 `json:"cents" validate:"required"`
	FX    struct {
		Multiplier     float64 `json:"multiplier" validate:"gt=0"`
		Currency       string  `json:"currency" validate:"required,len=3"`
		CurrencySymbol string  `json:"currency_symbol"`
	} `json:"fx"`
}

// Format serves POST /shop/prices/format so client re-renders use the same
// formatter as server render.
func (h *Handler) Format(w http.ResponseWriter, r *http.Request) {
	var req formatRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validator().Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", map[string]any{"error": err.Error()})
		return
	}
	fx := currency.FX{
		Multiplier:     req.FX.Multiplier,
		Currency:       strings.ToUpper(req.FX.Currency),
		CurrencySymbol: req.FX.CurrencySymbol,
	}
	text, err := currency.Format(*req.Cents, fx)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"text": text})
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return validator.New()
}

func uniqueSKUs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, sku := range strings.Split(entry, ",") {
			sku = strings.TrimSpace(sku)
			if sku == "" {
				continue
			}
			if _, dup := seen[sku]; dup {
				continue
			}
			seen[sku] = struct{}{}
			out = append(out, sku)
		}
	}
	return out
}
