package cart

import (
	"context"
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/pricing"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

// TotalsCalculator prices a cart.
type TotalsCalculator interface {
	ComputeTotals(ctx context.Context, cart []pricing.CartVariant, iso3 string, supplier shipping.Supplier, opts pricing.Options) (pricing.Totals, error)
}

// Handler serves the shipping estimate endpoint.
type Handler struct {
	Calc            TotalsCalculator
	Validate        *validator.Validate
	DefaultSupplier shipping.Supplier
}

type estimateRequest struct {
	Cart        []pricing.CartVariant `json:"cart" validate:"required,min=1,max=200,dive"`
	CountryISO3 string                `json:"countryIso3" validate:"required,len=3,alpha"`
	StateISO2   string                `json:"stateIso2,omitempty" validate:"omitempty,len=2,alpha"`
	Supplier    string                `json:"supplier,omitempty" validate:"omitempty,oneof=merchize printful"`
}

// ShippingEstimate serves POST /shop/cart/shipping-estimate.
func (h *Handler) ShippingEstimate(w http.ResponseWriter, r *http.Request) {
	if h.Calc == nil {
		writeFailure(w, http.StatusInternalServerError, "", "pricing not configured")
		return
	}
	var req estimateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "", "invalid payload")
		return
	}
	if err := h.validator().Struct(req); err != nil {
		writeFailure(w, http.StatusBadRequest, "", describeValidation(err))
		return
	}

	supplier := h.DefaultSupplier
	if req.Supplier != "" {
		supplier = shipping.Supplier(strings.ToLower(req.Supplier))
	}
	if supplier == "" {
		supplier = shipping.SupplierMerchize
	}

	totals, err := h.Calc.ComputeTotals(r.Context(), req.Cart, req.CountryISO3, supplier, pricing.Options{StateISO2: req.StateISO2})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true, "totals": totals})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pricing.ErrValidation):
		writeFailure(w, http.StatusBadRequest, "", err.Error())
	case errors.Is(err, pricing.ErrDestinationUnsupported):
		writeFailure(w, http.StatusUnprocessableEntity, "DESTINATION_UNSUPPORTED", "shipping is not available to this destination")
	case errors.Is(err, pricing.ErrPartialCatalog), errors.Is(err, pricing.ErrShippingFeeMissing):
		writeFailure(w, http.StatusInternalServerError, "", err.Error())
	case errors.Is(err, context.Canceled):
		zerolog.Ctx(r.Context()).Debug().Msg("shipping estimate cancelled")
		writeFailure(w, http.StatusInternalServerError, "", "request cancelled")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("shipping estimate failed")
		writeFailure(w, http.StatusInternalServerError, "", "unable to compute totals")
	}
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return validator.New()
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	body := map[string]any{"success": false, "error": message}
	if code != "" {
		body["code"] = code
	}
	common.JSON(w, status, body)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid payload"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace()+" failed "+fe.Tag())
	}
	return "invalid payload: " + strings.Join(fields, "; ")
}
