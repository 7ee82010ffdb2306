package api

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/safar/go-grocery-store/internal/database"
	"github.com/safar/go-grocery-store/internal/models"
	"github.com/safar/go-grocery-store/internal/store"
	"github.com/shopspring/decimal"
)

const (
	defaultProductPageSize = 12
	recommendationLimit    = 10
	defaultLowStock        = 10
)

type productRequest struct {
	Name              string   `json:"name" validate:"required"`
	Description       string   `json:"description" validate:"required"`
	Price             *float64 `json:"price" validate:"required,gte=0"`
	Category          string   `json:"category" validate:"required,oneof=groceries household personalCare beverages snacks dairy fruits vegetables"`
	SubCategory       string   `json:"subCategory"`
	Brand             string   `json:"brand" validate:"required"`
	Stock             *int     `json:"stock" validate:"required,gte=0"`
	Unit              string   `json:"unit" validate:"required"`
	Discount          *float64 `json:"discount" validate:"omitempty,gte=0,lte=100"`
	Featured          bool     `json:"featured"`
	Tags              []string `json:"tags"`
	LowStockThreshold *int     `json:"lowStockThreshold" validate:"omitempty,gte=0"`
}

func (req productRequest) toInput() store.ProductInput {
	in := store.ProductInput{
		Name:              strings.TrimSpace(req.Name),
		Description:       req.Description,
		Price:             decimal.NewFromFloat(*req.Price),
		Category:          models.Category(req.Category),
		SubCategory:       req.SubCategory,
		Brand:             req.Brand,
		Stock:             *req.Stock,
		Unit:              req.Unit,
		Discount:          decimal.Zero,
		Featured:          req.Featured,
		Tags:              req.Tags,
		LowStockThreshold: defaultLowStock,
	}
	if req.Discount != nil {
		in.Discount = decimal.NewFromFloat(*req.Discount)
	}
	if req.LowStockThreshold != nil {
		in.LowStockThreshold = *req.LowStockThreshold
	}
	return in
}

// productPatchRequest is a partial update; absent fields are left alone.
type productPatchRequest struct {
	Name              *string   `json:"name" validate:"omitempty,min=1"`
	Description       *string   `json:"description"`
	Price             *float64  `json:"price" validate:"omitempty,gte=0"`
	Category          *string   `json:"category" validate:"omitempty,oneof=groceries household personalCare beverages snacks dairy fruits vegetables"`
	SubCategory       *string   `json:"subCategory"`
	Brand             *string   `json:"brand"`
	Stock             *int      `json:"stock" validate:"omitempty,gte=0"`
	Unit              *string   `json:"unit"`
	Discount          *float64  `json:"discount" validate:"omitempty,gte=0,lte=100"`
	Featured          *bool     `json:"featured"`
	Tags              *[]string `json:"tags"`
	LowStockThreshold *int      `json:"lowStockThreshold" validate:"omitempty,gte=0"`
	Version           *int      `json:"version" validate:"omitempty,gte=1"`
}

func (req productPatchRequest) toPatch() store.ProductPatch {
	patch := store.ProductPatch{
		Name:              req.Name,
		Description:       req.Description,
		SubCategory:       req.SubCategory,
		Brand:             req.Brand,
		Stock:             req.Stock,
		Unit:              req.Unit,
		Featured:          req.Featured,
		Tags:              req.Tags,
		LowStockThreshold: req.LowStockThreshold,
		ExpectedVersion:   req.Version,
	}
	if req.Price != nil {
		p := decimal.NewFromFloat(*req.Price)
		patch.Price = &p
	}
	if req.Discount != nil {
		d := decimal.NewFromFloat(*req.Discount)
		patch.Discount = &d
	}
	if req.Category != nil {
		c := models.Category(*req.Category)
		patch.Category = &c
	}
	return patch
}

type reviewRequest struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Review string `json:"review" validate:"required"`
}

type productListResponse struct {
	Products    interface{} `json:"products"`
	TotalPages  int         `json:"totalPages"`
	CurrentPage int         `json:"currentPage"`
	Total       int64       `json:"total"`
}

// parseSort reads "field:asc" or "field:desc". A bare field sorts ascending.
func parseSort(raw string) (field string, desc bool, ok bool) {
	if raw == "" {
		return "", false, true
	}
	field, dir, _ := strings.Cut(raw, ":")
	if _, known := store.ProductSortColumn(field); !known {
		return "", false, false
	}
	switch strings.ToLower(dir) {
	case "", "asc":
		return field, false, true
	case "desc":
		return field, true, true
	}
	return "", false, false
}

// GET /api/products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var errs []FieldError
	category := models.Category(q.Get("category"))
	if category != "" && !category.Valid() {
		errs = append(errs, FieldError{Field: "category", Message: "Invalid category"})
	}
	sortField, desc, ok := parseSort(q.Get("sort"))
	if !ok {
		errs = append(errs, FieldError{Field: "sort", Message: "sort must be price, name, createdAt, averageRating or stock with an optional :asc or :desc"})
	}
	if len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	page, limit := store.NormalizePage(queryInt(r, "page"), queryInt(r, "limit"), defaultProductPageSize)

	result, err := store.ListProducts(r.Context(), h.db, store.ProductFilter{
		Category: category,
		Search:   q.Get("search"),
		Sort:     sortField,
		SortDesc: desc,
		Page:     page,
		PageSize: limit,
	})
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, productListResponse{
		Products:    result.Items,
		TotalPages:  result.TotalPages,
		CurrentPage: result.Page,
		Total:       result.Total,
	})
}

// GET /api/products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	product, err := store.GetProduct(r.Context(), h.db, id)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

// POST /api/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	product, err := store.CreateProduct(r.Context(), h.db, req.toInput())
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	h.cache.Purge(r.Context())

	h.log.WithField("product_id", product.ID).Info("product created")
	respondJSON(w, http.StatusCreated, product)
}

// PUT /api/products/{id}
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req productPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	product, err := store.UpdateProduct(r.Context(), h.db, id, req.toPatch())
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	h.cache.Purge(r.Context())

	respondJSON(w, http.StatusOK, product)
}

// DELETE /api/products/{id}
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := store.DeleteProduct(r.Context(), h.db, id); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	h.cache.Purge(r.Context())

	h.log.WithField("product_id", id).Info("product deleted")
	respondMessage(w, http.StatusOK, "Product removed")
}

// POST /api/products/{id}/reviews
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user := userFromContext(r.Context())
	err := database.WithTransaction(r.Context(), h.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return store.AddRating(r.Context(), tx, id, user.ID, req.Rating, req.Review)
	})
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	h.cache.Purge(r.Context())

	product, err := store.GetProduct(r.Context(), h.db, id)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

// GET /api/products/recommendations
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	products, err := store.ListRecommendations(r.Context(), h.db, user.ID, int64(queryInt(r, "exclude")), recommendationLimit)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, products)
}
