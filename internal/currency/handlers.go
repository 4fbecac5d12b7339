package currency

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/common"
)

// MultiplierResolver is implemented by Service.
type MultiplierResolver interface {
	DollarMultiplier(ctx context.Context, iso3 string) (FX, error)
}

// Handler exposes the multiplier endpoint.
type Handler struct {
	Svc MultiplierResolver
}

// Multiplier serves GET /currency/multiplier?code=<ISO3>.
func (h *Handler) Multiplier(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSON(w, http.StatusInternalServerError, map[string]any{"error": "currency service not configured"})
		return
	}
	code := r.URL.Query().Get("code")
	fx, err := h.Svc.DollarMultiplier(r.Context(), code)
	if err != nil {
		if errors.Is(err, ErrInvalidCountry) {
			common.JSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("code", code).Msg("resolve dollar multiplier")
		common.JSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"multiplier":      fx.Multiplier,
		"currency":        fx.Currency,
		"currency_symbol": fx.CurrencySymbol,
	})
}
