package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mapleandrye/backend-bakeshop/internal/common"
)

// Handler exposes the read-only catalog surface.
type Handler struct {
	Service *Service
}

func (h *Handler) writeContentErr(w http.ResponseWriter, err error) {
	var shape *ContentShapeError
	switch {
	case errors.As(err, &shape):
		err = &common.AppError{
			Code:       "CONTENT_SHAPE",
			Message:    "catalog content is misconfigured",
			HTTPStatus: http.StatusBadGateway,
			Details:    map[string]any{"entryId": shape.EntryID},
			Err:        err,
		}
	case errors.Is(err, ErrNotFound):
		err = common.NewAppError("NOT_FOUND", "content not found", http.StatusNotFound, err)
	default:
		err = common.NewAppError("CONTENT_ERROR", "catalog unavailable", http.StatusBadGateway, err)
	}
	common.JSONAppError(w, err)
}

// defaultPageSize bounds a products page when the client sends no limit.
const defaultPageSize = 50

// ListProducts returns one page of the menu.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Service.Products(r.Context())
	if err != nil {
		h.writeContentErr(w, err)
		return
	}
	page, perPage := common.ParsePagination(r, defaultPageSize)
	total := len(products)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"products":   products[start:end],
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	}})
}

// GetProduct returns one product by numeric id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	product, err := h.Service.ProductByID(r.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		common.JSONAppError(w, common.NewAppError("NOT_FOUND", "product not found", http.StatusNotFound, err))
		return
	default:
		h.writeContentErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"product": product}})
}

// GetPage returns CMS-managed storefront copy by slug.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.Service.PageBySlug(r.Context(), chi.URLParam(r, "slug"))
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		common.JSONAppError(w, common.NewAppError("NOT_FOUND", "page not found", http.StatusNotFound, err))
		return
	default:
		h.writeContentErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"page": page}})
}
