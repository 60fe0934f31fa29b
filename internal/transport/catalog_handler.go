package transport

import (
	"errors"
	"net/http"
	"strconv"

	"plant-store/internal/middleware"
	"plant-store/internal/repository"
	"plant-store/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// TotalCountHeader carries the number of matching products on list responses
const TotalCountHeader = "X-Total-Count"

// CatalogHandler serves products and categories
type CatalogHandler struct {
	catalogService service.CatalogService
	logger         *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalogService service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalogService: catalogService,
		logger:         logger,
	}
}

// RegisterRoutes registers the public catalog routes and the admin product routes
func (h *CatalogHandler) RegisterRoutes(r chi.Router, mw RouteMiddleware) {
	r.Get("/categories", h.ListCategories)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
		r.Get("/category/{category}", h.ListByCategory)

		r.Group(func(r chi.Router) {
			r.Use(mw.Auth, mw.Admin)
			r.Post("/", h.CreateProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
		})
	})
}

// ListProducts returns the catalog as a JSON array, filtered by the
// category, q, page, page_size, sort and order query parameters.
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := service.ProductQuery{
		Category:  q.Get("category"),
		Search:    q.Get("q"),
		SortBy:    q.Get("sort"),
		SortOrder: q.Get("order"),
	}

	var err error
	if query.Page, err = intParam(q.Get("page"), 1); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid page")
		return
	}
	if query.PageSize, err = intParam(q.Get("page_size"), 0); err != nil || query.PageSize > 100 {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid page_size")
		return
	}

	products, total, err := h.catalogService.ListProducts(r.Context(), query)
	if err != nil {
		h.logger.Error("Failed to list products", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	w.Header().Set(TotalCountHeader, strconv.Itoa(total))
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// GetProduct returns a single product
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	product, err := h.catalogService.GetProduct(r.Context(), id)
	if err != nil {
		h.respondProductError(w, err, "failed to get product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// ListByCategory returns every product in a category
func (h *CatalogHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalogService.ListByCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		h.logger.Error("Failed to list products by category", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// ListCategories returns the category names present in the catalog
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	names, err := h.catalogService.ListCategories(r.Context())
	if err != nil {
		h.logger.Error("Failed to list categories", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, names)
}

// CreateProduct adds a product
func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	product, err := h.catalogService.CreateProduct(r.Context(), req.toInput())
	if err != nil {
		h.respondProductError(w, err, "failed to create product")
		return
	}

	h.logger.Info("Product created", zap.Int64("product_id", product.ID))
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

// UpdateProduct replaces a product's fields
func (h *CatalogHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	var req ProductRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	product, err := h.catalogService.UpdateProduct(r.Context(), id, req.toInput())
	if err != nil {
		h.respondProductError(w, err, "failed to update product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// DeleteProduct removes a product
func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	if err := h.catalogService.DeleteProduct(r.Context(), id); err != nil {
		h.respondProductError(w, err, "failed to delete product")
		return
	}

	h.logger.Info("Product deleted", zap.Int64("product_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) respondProductError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "Product not found")
	case errors.Is(err, repository.ErrCategoryNotFound):
		middleware.RespondWithError(w, http.StatusBadRequest, "unknown category")
	case errors.Is(err, service.ErrInvalidProduct):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(fallback, zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, fallback)
	}
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.RespondWithError(w, http.StatusNotFound, "Product not found")
		return 0, false
	}
	return id, true
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
