package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rohanmalik/merakistore-backend/api/middleware"
	"github.com/rohanmalik/merakistore-backend/api/responses"
	"github.com/rohanmalik/merakistore-backend/api/validators"
	cartsvc "github.com/rohanmalik/merakistore-backend/internal/cart"
	"github.com/rohanmalik/merakistore-backend/internal/identity"
	pkgerrors "github.com/rohanmalik/merakistore-backend/pkg/errors"
	"github.com/rohanmalik/merakistore-backend/pkg/logger"
)

// ownerKey resolves the cart identity seeded by the identity and auth
// middleware. Every cart route requires one.
func ownerKey(r *http.Request) (identity.OwnerKey, error) {
	owner, ok := middleware.OwnerKeyFromContext(r.Context())
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "cart identity missing")
	}
	return owner, nil
}

func cartLineID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "itemId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart item id")
	}
	return id, nil
}

type cartAddRequest struct {
	ProductID uuid.UUID  `json:"productId" validate:"required"`
	VariantID *uuid.UUID `json:"variantId,omitempty"`
	Color     *string    `json:"colorKey,omitempty"`
	Quantity  int        `json:"qty" validate:"required,min=1"`
}

type cartQuantityRequest struct {
	ItemID   uuid.UUID `json:"itemId" validate:"required"`
	Quantity int       `json:"qty" validate:"required,min=1"`
}

type cartOptionsRequest struct {
	ItemID    uuid.UUID  `json:"itemId" validate:"required"`
	VariantID *uuid.UUID `json:"variantId,omitempty"`
	Color     *string    `json:"colorKey,omitempty"`
}

type cartSelectionRequest struct {
	ItemID     uuid.UUID `json:"itemId" validate:"required"`
	IsSelected *bool     `json:"isSelected" validate:"required"`
}

type cartSelectAllRequest struct {
	IsSelected *bool `json:"isSelected" validate:"required"`
}

// CartGet returns the owner's cart with live stock and pricing.
func CartGet(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		owner, err := ownerKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Get(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CartAdd merges a product option combination into the cart.
func CartAdd(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		owner, err := ownerKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cartAddRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Add(r.Context(), owner, cartsvc.AddInput{
			ProductID: body.ProductID,
			VariantID: body.VariantID,
			Color:     body.Color,
			Quantity:  body.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CartSetQuantity replaces one line's quantity.
func CartSetQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		owner, err := ownerKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cartQuantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.SetQuantity(r.Context(), owner, body.ItemID, body.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CartChangeOptions switches a line's variant or color, merging with
// an existing line when the switch lands on its combination.
func CartChangeOptions(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		owner, err := ownerKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cartOptionsRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.ChangeOptions(r.Context(), owner, body.ItemID, cartsvc.ChangeOptionsInput{
			VariantID: body.VariantID,
			Color:     body.Color,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CartSetSelection toggles one line's checkout selection.
func CartSetSelection(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		owner, err := ownerKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cartSelectionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.SetSelection(r.Context(), owner, body.ItemID, *body.IsSelected)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CartSelectAll toggles every line's checkout selection at once.
func CartSelectAll(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		owner, err := ownerKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cartSelectAllRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.SetSelectAll(r.Context(), owner, *body.IsSelected)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CartRemoveLine deletes one line from the cart.
func CartRemoveLine(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		owner, err := ownerKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lineID, err := cartLineID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Remove(r.Context(), owner, lineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CartClear empties the cart.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		owner, err := ownerKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Clear(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}
