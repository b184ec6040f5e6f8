package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/rohanmalik/merakistore-backend/api/middleware"
	"github.com/rohanmalik/merakistore-backend/api/responses"
	"github.com/rohanmalik/merakistore-backend/api/validators"
	checkoutsvc "github.com/rohanmalik/merakistore-backend/internal/checkout"
	"github.com/rohanmalik/merakistore-backend/internal/identity"
	pkgerrors "github.com/rohanmalik/merakistore-backend/pkg/errors"
	"github.com/rohanmalik/merakistore-backend/pkg/logger"
)

type contactRequest struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

type placeCodRequest struct {
	AddressID *uuid.UUID      `json:"addressId,omitempty"`
	Contact   *contactRequest `json:"contact,omitempty"`
}

func checkoutActor(r *http.Request) (uuid.UUID, identity.OwnerKey, error) {
	userID := middleware.UserUUIDFromContext(r.Context())
	if userID == uuid.Nil {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	owner, ok := middleware.OwnerKeyFromContext(r.Context())
	if !ok {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "cart identity missing")
	}
	return userID, owner, nil
}

// CheckoutSummary previews the selected lines, the default shipping
// address and freshly revalidated pricing.
func CheckoutSummary(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, owner, err := checkoutActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.GetSummary(r.Context(), userID, owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, summary)
	}
}

// CheckoutPlaceCod places a cash-on-delivery order for the selected
// cart lines. All-or-nothing: any short line aborts the whole order.
func CheckoutPlaceCod(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, owner, err := checkoutActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// The body is optional; an empty request falls back to the
		// default shipping address.
		var body placeCodRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		input := checkoutsvc.PlaceInput{AddressID: body.AddressID}
		if body.Contact != nil {
			input.Contact = checkoutsvc.ContactInput{
				Name:  body.Contact.Name,
				Phone: body.Contact.Phone,
				Email: body.Contact.Email,
			}
		}

		order, err := svc.PlaceCodOrder(r.Context(), userID, owner, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}
