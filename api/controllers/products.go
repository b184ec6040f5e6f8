package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/rohanmalik/merakistore-backend/api/responses"
	"github.com/rohanmalik/merakistore-backend/api/validators"
	"github.com/rohanmalik/merakistore-backend/internal/catalog"
	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
	pkgerrors "github.com/rohanmalik/merakistore-backend/pkg/errors"
	"github.com/rohanmalik/merakistore-backend/pkg/logger"
	"github.com/rohanmalik/merakistore-backend/pkg/pagination"
)

type productListResponse struct {
	Products   []models.Product `json:"products"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ProductList returns a cursor page of the active catalog, optionally
// filtered by category.
func ProductList(repo *catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		category := strings.TrimSpace(r.URL.Query().Get("category"))

		rows, err := repo.ListActive(r.Context(), category, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing products"))
			return
		}

		normalized := pagination.NormalizeLimit(params.Limit)
		resp := productListResponse{Products: rows}
		if len(rows) > normalized {
			resp.Products = rows[:normalized]
			last := resp.Products[normalized-1]
			resp.NextCursor = pagination.EncodeCursor(pagination.Cursor{
				CreatedAt: last.CreatedAt,
				ID:        last.ID,
			})
		}

		responses.WriteSuccess(w, resp)
	}
}

// ProductDetail returns one active product by slug, with its variants
// and color options.
func ProductDetail(repo *catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}

		slug := strings.TrimSpace(chi.URLParam(r, "slug"))
		if slug == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product slug is required"))
			return
		}

		product, err := repo.FindActiveBySlug(r.Context(), slug)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "product not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product"))
			return
		}

		responses.WriteSuccess(w, product)
	}
}
