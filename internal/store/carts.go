package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/models"
)

// GetOrCreateCart returns the customer's cart with its items, creating an
// empty one on first use.
func (s *Queries) GetOrCreateCart(ctx context.Context, customerID int64) (*models.Cart, error) {
	cart := &models.Cart{CustomerID: customerID}
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO carts (customer_id) VALUES ($1)
		 ON CONFLICT (customer_id) DO UPDATE SET customer_id = EXCLUDED.customer_id
		 RETURNING id, created_at, updated_at`,
		customerID).Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	if cart.Items, err = s.listCartItems(ctx, cart.ID); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *Queries) GetCart(ctx context.Context, customerID int64) (*models.Cart, error) {
	cart := &models.Cart{}
	err := s.q.QueryRowContext(ctx,
		`SELECT id, customer_id, created_at, updated_at FROM carts WHERE customer_id = $1`,
		customerID).Scan(&cart.ID, &cart.CustomerID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	if cart.Items, err = s.listCartItems(ctx, cart.ID); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *Queries) listCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, cart_id, product_id, variant_id, vendor_id, quantity, price_per_unit,
		        start_at, end_at, created_at, updated_at
		 FROM cart_items
		 WHERE cart_id = $1
		 ORDER BY id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var item models.CartItem
		err := rows.Scan(
			&item.ID,
			&item.CartID,
			&item.ProductID,
			&item.VariantID,
			&item.VendorID,
			&item.Quantity,
			&item.PricePerUnit,
			&item.StartDate,
			&item.EndDate,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

func (s *Queries) AddCartItem(ctx context.Context, item *models.CartItem) error {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO cart_items (cart_id, product_id, variant_id, vendor_id, quantity, price_per_unit, start_at, end_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		item.CartID, item.ProductID, item.VariantID, item.VendorID, item.Quantity,
		item.PricePerUnit, item.StartDate, item.EndDate,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return s.touchCart(ctx, item.CartID)
}

func (s *Queries) UpdateCartItem(ctx context.Context, item *models.CartItem) error {
	err := s.q.QueryRowContext(ctx,
		`UPDATE cart_items
		 SET variant_id = $1, quantity = $2, price_per_unit = $3, start_at = $4, end_at = $5, updated_at = NOW()
		 WHERE id = $6 AND cart_id = $7
		 RETURNING updated_at`,
		item.VariantID, item.Quantity, item.PricePerUnit, item.StartDate, item.EndDate, item.ID, item.CartID,
	).Scan(&item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrCartItemNotFound
		}
		return fmt.Errorf("update cart item: %w", err)
	}
	return s.touchCart(ctx, item.CartID)
}

func (s *Queries) DeleteCartItem(ctx context.Context, cartID, itemID int64) error {
	result, err := s.q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrCartItemNotFound
	}
	return s.touchCart(ctx, cartID)
}

func (s *Queries) ClearCart(ctx context.Context, cartID int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return s.touchCart(ctx, cartID)
}

func (s *Queries) touchCart(ctx context.Context, cartID int64) error {
	if _, err := s.q.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}
