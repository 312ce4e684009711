package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/models"
)

const productColumns = `id, vendor_id, sku, name, description, is_active, verification_required,
	deposit_amount, created_at, updated_at, version`

const variantColumns = `id, product_id, sku, name, stock_quantity, is_default, is_active,
	created_at, updated_at, version`

func scanProduct(row rowScanner) (*models.Product, error) {
	p := &models.Product{}
	err := row.Scan(
		&p.ID,
		&p.VendorID,
		&p.SKU,
		&p.Name,
		&p.Description,
		&p.IsActive,
		&p.VerificationRequired,
		&p.DepositAmount,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Version,
	)
	return p, err
}

func scanVariant(row rowScanner) (*models.Variant, error) {
	v := &models.Variant{}
	err := row.Scan(
		&v.ID,
		&v.ProductID,
		&v.SKU,
		&v.Name,
		&v.StockQuantity,
		&v.IsDefault,
		&v.IsActive,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.Version,
	)
	return v, err
}

// CreateProduct inserts a catalog product. Catalog management lives outside
// the rental core; this is used by seeding and tests.
func (s *Queries) CreateProduct(ctx context.Context, p *models.Product) error {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO products (vendor_id, sku, name, description, is_active, verification_required, deposit_amount)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at, version`,
		p.VendorID, p.SKU, p.Name, p.Description, p.IsActive, p.VerificationRequired, p.DepositAmount,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (s *Queries) CreateVariant(ctx context.Context, v *models.Variant) error {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO product_variants (product_id, sku, name, stock_quantity, is_default, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at, version`,
		v.ProductID, v.SKU, v.Name, v.StockQuantity, v.IsDefault, v.IsActive,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt, &v.Version)
	if err != nil {
		return fmt.Errorf("create variant: %w", err)
	}
	return nil
}

func (s *Queries) CreatePricing(ctx context.Context, p *models.Pricing) error {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO pricing (product_id, variant_id, duration_unit, rate)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		p.ProductID, p.VariantID, p.DurationUnit, p.Rate,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create pricing: %w", err)
	}
	return nil
}

func (s *Queries) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, err := scanProduct(s.q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (s *Queries) GetVariant(ctx context.Context, id int64) (*models.Variant, error) {
	v, err := scanVariant(s.q.QueryRowContext(ctx,
		`SELECT `+variantColumns+` FROM product_variants WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("get variant: %w", err)
	}
	return v, nil
}

// GetDefaultVariant prefers the flagged default and falls back to the oldest
// active variant.
func (s *Queries) GetDefaultVariant(ctx context.Context, productID int64) (*models.Variant, error) {
	v, err := scanVariant(s.q.QueryRowContext(ctx,
		`SELECT `+variantColumns+`
		 FROM product_variants
		 WHERE product_id = $1 AND is_active
		 ORDER BY is_default DESC, id
		 LIMIT 1`, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("get default variant: %w", err)
	}
	return v, nil
}

func (s *Queries) LockVariant(ctx context.Context, id int64) (*models.Variant, error) {
	v, err := scanVariant(s.q.QueryRowContext(ctx,
		`SELECT `+variantColumns+`
		 FROM product_variants
		 WHERE id = $1
		 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("lock variant: %w", err)
	}
	return v, nil
}

// UpdateStockOptimistic changes a variant's stock if nobody else changed the
// row since version was read.
func (s *Queries) UpdateStockOptimistic(ctx context.Context, variantID int64, newStock, version int) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE product_variants
		 SET stock_quantity = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND version = $3`,
		newStock, variantID, version)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrOptimisticLockFailed
	}
	return nil
}

func (s *Queries) ListPricing(ctx context.Context, productID int64) ([]models.Pricing, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, product_id, variant_id, duration_unit, rate, created_at
		 FROM pricing
		 WHERE product_id = $1
		 ORDER BY id`, productID)
	if err != nil {
		return nil, fmt.Errorf("list pricing: %w", err)
	}
	defer rows.Close()

	var out []models.Pricing
	for rows.Next() {
		var p models.Pricing
		var variantID sql.NullInt64
		if err := rows.Scan(&p.ID, &p.ProductID, &variantID, &p.DurationUnit, &p.Rate, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pricing: %w", err)
		}
		if variantID.Valid {
			id := variantID.Int64
			p.VariantID = &id
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
