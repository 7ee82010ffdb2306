package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/safar/go-grocery-store/internal/database"
	"github.com/safar/go-grocery-store/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, description, price, category, sub_category, brand, stock, unit,
	discount, average_rating, featured, tags, low_stock_threshold, created_at, updated_at, version`

type ProductInput struct {
	Name              string
	Description       string
	Price             decimal.Decimal
	Category          models.Category
	SubCategory       string
	Brand             string
	Stock             int
	Unit              string
	Discount          decimal.Decimal
	Featured          bool
	Tags              []string
	LowStockThreshold int
}

// ProductPatch describes a partial update; nil fields are left untouched.
type ProductPatch struct {
	Name              *string
	Description       *string
	Price             *decimal.Decimal
	Category          *models.Category
	SubCategory       *string
	Brand             *string
	Stock             *int
	Unit              *string
	Discount          *decimal.Decimal
	Featured          *bool
	Tags              *[]string
	LowStockThreshold *int
	// ExpectedVersion, when set, makes the update fail with
	// ErrOptimisticLockFailed if the row changed since it was read.
	ExpectedVersion *int
}

type ProductFilter struct {
	Category models.Category
	Search   string
	Sort     string
	SortDesc bool
	Page     int
	PageSize int
}

// StockChange is the post-update state of a product after an atomic stock
// adjustment.
type StockChange struct {
	ProductID         int64           `json:"productId"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	Stock             int             `json:"stock"`
	LowStockThreshold int             `json:"lowStockThreshold"`
}

var productSortColumns = map[string]string{
	"price":         "price",
	"name":          "name",
	"createdAt":     "created_at",
	"created_at":    "created_at",
	"averageRating": "average_rating",
	"stock":         "stock",
}

// ProductSortColumn maps an API sort field to its column.
func ProductSortColumn(field string) (string, bool) {
	col, ok := productSortColumns[field]
	return col, ok
}

func scanProduct(row rowScanner, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Category,
		&product.SubCategory,
		&product.Brand,
		&product.Stock,
		&product.Unit,
		&product.Discount,
		&product.AverageRating,
		&product.Featured,
		pq.Array(&product.Tags),
		&product.LowStockThreshold,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
}

func CreateProduct(ctx context.Context, q Querier, in ProductInput) (*models.Product, error) {
	product := &models.Product{Ratings: []models.Rating{}}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	query := `
		INSERT INTO products (name, description, price, category, sub_category, brand, stock, unit,
		                      discount, featured, tags, low_stock_threshold, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := scanProduct(q.QueryRowContext(ctx, query,
		in.Name, in.Description, in.Price, in.Category, in.SubCategory, in.Brand, in.Stock, in.Unit,
		in.Discount, in.Featured, pq.Array(tags), in.LowStockThreshold,
	), product)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

// GetProduct loads a product together with its ratings, newest first.
func GetProduct(ctx context.Context, q Querier, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if err := scanProduct(q.QueryRowContext(ctx, query, id), product); err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	ratings, err := listRatings(ctx, q, id)
	if err != nil {
		return nil, err
	}
	product.Ratings = ratings

	return product, nil
}

func listRatings(ctx context.Context, q Querier, productID int64) ([]models.Rating, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, rating, review, created_at
		 FROM product_ratings
		 WHERE product_id = $1
		 ORDER BY created_at DESC, id DESC`,
		productID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	ratings := []models.Rating{}
	for rows.Next() {
		var r models.Rating
		if err := rows.Scan(&r.ID, &r.UserID, &r.Rating, &r.Review, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ratings = append(ratings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ratings, nil
}

// LockProduct reads a product row with FOR UPDATE inside tx.
func LockProduct(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
	if err := scanProduct(tx.QueryRowContext(ctx, query, id), product); err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}

	return product, nil
}

func ListProducts(ctx context.Context, q Querier, filter ProductFilter) (*OffsetPage, error) {
	var (
		conds []string
		args  []any
	)

	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	orderBy := "created_at DESC, id DESC"
	if col, ok := ProductSortColumn(filter.Sort); ok {
		dir := "ASC"
		if filter.SortDesc {
			dir = "DESC"
		}
		orderBy = fmt.Sprintf("%s %s, id %s", col, dir, dir)
	}

	offset := (filter.Page - 1) * filter.PageSize
	args = append(args, filter.PageSize, offset)
	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		productColumns, where, orderBy, len(args)-1, len(args))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		product.Ratings = []models.Rating{}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, filter.Page, filter.PageSize), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func UpdateProduct(ctx context.Context, q Querier, id int64, patch ProductPatch) (*models.Product, error) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Price != nil {
		set("price", *patch.Price)
	}
	if patch.Category != nil {
		set("category", *patch.Category)
	}
	if patch.SubCategory != nil {
		set("sub_category", *patch.SubCategory)
	}
	if patch.Brand != nil {
		set("brand", *patch.Brand)
	}
	if patch.Stock != nil {
		set("stock", *patch.Stock)
	}
	if patch.Unit != nil {
		set("unit", *patch.Unit)
	}
	if patch.Discount != nil {
		set("discount", *patch.Discount)
	}
	if patch.Featured != nil {
		set("featured", *patch.Featured)
	}
	if patch.Tags != nil {
		set("tags", pq.Array(*patch.Tags))
	}
	if patch.LowStockThreshold != nil {
		set("low_stock_threshold", *patch.LowStockThreshold)
	}

	if len(sets) == 0 {
		return GetProduct(ctx, q, id)
	}

	args = append(args, id)
	where := fmt.Sprintf("id = $%d", len(args))
	if patch.ExpectedVersion != nil {
		args = append(args, *patch.ExpectedVersion)
		where += fmt.Sprintf(" AND version = $%d", len(args))
	}

	query := fmt.Sprintf(`
		UPDATE products
		SET %s, version = version + 1, updated_at = NOW()
		WHERE %s
		RETURNING %s`, strings.Join(sets, ", "), where, productColumns)

	product := &models.Product{}
	if err := scanProduct(q.QueryRowContext(ctx, query, args...), product); err != nil {
		if database.IsNoRows(err) {
			if patch.ExpectedVersion != nil {
				if _, getErr := GetProduct(ctx, q, id); getErr == nil {
					return nil, database.ErrOptimisticLockFailed
				}
			}
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	ratings, err := listRatings(ctx, q, id)
	if err != nil {
		return nil, err
	}
	product.Ratings = ratings

	return product, nil
}

func DeleteProduct(ctx context.Context, q Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return database.ErrProductInUse
		}
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

// AddRating records a review and recomputes the product's average rating in
// the same transaction.
func AddRating(ctx context.Context, tx *sql.Tx, productID, userID int64, rating int, review string) error {
	if _, err := LockProduct(ctx, tx, productID); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO product_ratings (product_id, user_id, rating, review, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		productID, userID, rating, review)
	if err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE products
		 SET average_rating = (SELECT COALESCE(AVG(rating), 0) FROM product_ratings WHERE product_id = $1),
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $1`,
		productID)
	if err != nil {
		return fmt.Errorf("recompute average rating: %w", err)
	}

	return nil
}

// DecrementStock atomically subtracts quantity from the product's stock if
// and only if enough stock remains. On failure it distinguishes a missing
// product from an insufficient one.
func DecrementStock(ctx context.Context, q Querier, productID int64, quantity int) (*StockChange, error) {
	change := &StockChange{ProductID: productID}

	err := q.QueryRowContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock >= $1
		 RETURNING name, price, stock, low_stock_threshold`,
		quantity, productID).Scan(&change.Name, &change.Price, &change.Stock, &change.LowStockThreshold)
	if err == nil {
		return change, nil
	}
	if !database.IsNoRows(err) {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}

	var name string
	var stock int
	err = q.QueryRowContext(ctx, `SELECT name, stock FROM products WHERE id = $1`, productID).Scan(&name, &stock)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, &database.ProductNotFoundError{ProductID: productID}
		}
		return nil, fmt.Errorf("check product: %w", err)
	}

	return nil, &database.InsufficientStockError{
		ProductID:   productID,
		ProductName: name,
		Requested:   quantity,
		Available:   stock,
	}
}

func IncrementStock(ctx context.Context, q Querier, productID int64, quantity int) (*StockChange, error) {
	change := &StockChange{ProductID: productID}

	err := q.QueryRowContext(ctx,
		`UPDATE products
		 SET stock = stock + $1,
		     updated_at = NOW()
		 WHERE id = $2
		 RETURNING name, price, stock, low_stock_threshold`,
		quantity, productID).Scan(&change.Name, &change.Price, &change.Stock, &change.LowStockThreshold)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("increment stock: %w", err)
	}

	return change, nil
}

// ListRecommendations returns products sharing a category or tag with
// anything the user has ordered, excluding excludeID.
func ListRecommendations(ctx context.Context, q Querier, userID, excludeID int64, limit int) ([]models.Product, error) {
	query := `
		WITH interests AS (
			SELECT DISTINCT p.category, p.tags
			FROM orders o
			JOIN order_items oi ON oi.order_id = o.id
			JOIN products p ON p.id = oi.product_id
			WHERE o.user_id = $1
		)
		SELECT ` + productColumns + `
		FROM products
		WHERE id <> $2
		  AND (category IN (SELECT category FROM interests)
		       OR tags && COALESCE((SELECT array_agg(DISTINCT t) FROM interests, unnest(interests.tags) AS t), '{}'))
		ORDER BY featured DESC, average_rating DESC, id
		LIMIT $3`

	rows, err := q.QueryContext(ctx, query, userID, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		product.Ratings = []models.Rating{}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

type StockLevel struct {
	ID                int64
	Name              string
	Category          models.Category
	Stock             int
	LowStockThreshold int
}

func ListStockLevels(ctx context.Context, q Querier) ([]StockLevel, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, category, stock, low_stock_threshold FROM products ORDER BY stock, id`)
	if err != nil {
		return nil, fmt.Errorf("list stock levels: %w", err)
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		var l StockLevel
		if err := rows.Scan(&l.ID, &l.Name, &l.Category, &l.Stock, &l.LowStockThreshold); err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		levels = append(levels, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return levels, nil
}
