package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/safar/go-rental-store/internal/apperr"
	"github.com/safar/go-rental-store/internal/cache"
	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/metrics"
	"github.com/safar/go-rental-store/internal/models"
	"github.com/safar/go-rental-store/internal/store"
)

type CartService struct {
	store   store.Store
	cache   cache.CartCache
	group   singleflight.Group
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     Clock
}

func NewCartService(st store.Store, c cache.CartCache, log zerolog.Logger, m *metrics.Metrics, now Clock) *CartService {
	if c == nil {
		c = cache.Noop{}
	}
	return &CartService{
		store:   st,
		cache:   c,
		log:     log.With().Str("component", "cart").Logger(),
		metrics: m,
		now:     clockOrNow(now),
	}
}

type AddItemRequest struct {
	CustomerID int64
	ProductID  int64
	// VariantID is optional; the product's default variant is used when nil.
	VariantID *int64
	Start     time.Time
	End       time.Time
	Quantity  int
}

// resolvedItem is a cart line after product, variant and price lookup.
type resolvedItem struct {
	product *models.Product
	variant *models.Variant
	price   decimal.Decimal
}

func (s *CartService) validateWindow(op string, start, end time.Time, quantity int) error {
	if quantity < 1 {
		return apperr.Validation(op, "quantity must be at least 1")
	}
	if !end.After(start) {
		return apperr.Validation(op, "end date must be after start date")
	}
	if start.Before(s.now()) {
		return apperr.Validation(op, "start date is in the past")
	}
	return nil
}

func (s *CartService) resolve(ctx context.Context, repo store.Repository, op string, productID int64, variantID *int64, start, end time.Time) (*resolvedItem, error) {
	product, err := repo.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, database.ErrProductNotFound) {
			return nil, apperr.NotFound(op, fmt.Sprintf("product %d not found", productID), err)
		}
		return nil, fmt.Errorf("get product %d: %w", productID, err)
	}
	if !product.IsActive {
		return nil, apperr.Validation(op, fmt.Sprintf("product %d is not available for rent", productID))
	}

	var variant *models.Variant
	if variantID != nil {
		variant, err = repo.GetVariant(ctx, *variantID)
		if err == nil && variant.ProductID != productID {
			err = database.ErrVariantNotFound
		}
	} else {
		variant, err = repo.GetDefaultVariant(ctx, productID)
	}
	if err != nil {
		if errors.Is(err, database.ErrVariantNotFound) {
			return nil, apperr.NotFound(op, fmt.Sprintf("no rentable variant for product %d", productID), err)
		}
		return nil, fmt.Errorf("resolve variant: %w", err)
	}
	if !variant.IsActive {
		return nil, apperr.Validation(op, fmt.Sprintf("variant %d is not available for rent", variant.ID))
	}

	period, err := models.NewRentalPeriod(start, end)
	if err != nil {
		return nil, apperr.Validation(op, err.Error())
	}
	rules, err := repo.ListPricing(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list pricing: %w", err)
	}
	price, ok := quoteUnitPrice(rules, variant.ID, period)
	if !ok {
		return nil, apperr.Wrap(apperr.KindNotFound, apperr.CodeNoPricing, op,
			fmt.Sprintf("no %s pricing for product %d", period.DurationUnit, productID), database.ErrPricingNotFound)
	}

	return &resolvedItem{product: product, variant: variant, price: price}, nil
}

// demand sums the quantity the cart already asks for on the variant within
// windows overlapping [start, end), ignoring skipItemID.
func demand(cart *models.Cart, variantID int64, start, end time.Time, skipItemID int64) int {
	total := 0
	for _, item := range cart.Items {
		if item.ID == skipItemID || item.VariantID != variantID {
			continue
		}
		if models.Overlaps(item.StartDate, item.EndDate, start, end) {
			total += item.Quantity
		}
	}
	return total
}

func (s *CartService) checkAvailable(ctx context.Context, repo store.Repository, op string, variant *models.Variant, start, end time.Time, quantity int) error {
	ok, err := fits(ctx, repo, variant, start, end, quantity)
	if err != nil {
		s.log.Error().Err(err).Int64("variant_id", variant.ID).Msg("availability check failed, treating as unavailable")
		ok = false
	}
	if !ok {
		s.metrics.RecordInventoryConflict()
		return apperr.Conflict(apperr.CodeInventoryConflict, op,
			fmt.Sprintf("variant %d is not available for the selected dates", variant.ID))
	}
	return nil
}

// AddItem puts a rental line in the customer's cart. Adding the same variant
// for the same window again increases the existing line's quantity.
func (s *CartService) AddItem(ctx context.Context, req AddItemRequest) (*models.Cart, error) {
	const op = "CartService.AddItem"
	if err := s.validateWindow(op, req.Start, req.End, req.Quantity); err != nil {
		return nil, err
	}

	var cart *models.Cart
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		r, err := s.resolve(ctx, tx, op, req.ProductID, req.VariantID, req.Start, req.End)
		if err != nil {
			return err
		}

		cart, err = tx.GetOrCreateCart(ctx, req.CustomerID)
		if err != nil {
			return err
		}

		var existing *models.CartItem
		for i := range cart.Items {
			it := &cart.Items[i]
			if it.VariantID == r.variant.ID && it.StartDate.Equal(req.Start) && it.EndDate.Equal(req.End) {
				existing = it
				break
			}
		}

		want := req.Quantity + demand(cart, r.variant.ID, req.Start, req.End, 0)
		if err := s.checkAvailable(ctx, tx, op, r.variant, req.Start, req.End, want); err != nil {
			return err
		}

		if existing != nil {
			existing.Quantity += req.Quantity
			existing.PricePerUnit = r.price
			if err := tx.UpdateCartItem(ctx, existing); err != nil {
				return err
			}
		} else {
			item := &models.CartItem{
				CartID:       cart.ID,
				ProductID:    r.product.ID,
				VariantID:    r.variant.ID,
				VendorID:     r.product.VendorID,
				Quantity:     req.Quantity,
				PricePerUnit: r.price,
				StartDate:    req.Start,
				EndDate:      req.End,
			}
			if err := tx.AddCartItem(ctx, item); err != nil {
				return err
			}
		}

		cart, err = tx.GetCart(ctx, req.CustomerID)
		return err
	})
	if err != nil {
		return nil, s.wrap(op, err)
	}

	s.invalidate(ctx, req.CustomerID)
	s.log.Info().
		Int64("customer_id", req.CustomerID).
		Int64("product_id", req.ProductID).
		Int("quantity", req.Quantity).
		Msg("item added to cart")
	return cart, nil
}

func (s *CartService) UpdateItemQuantity(ctx context.Context, customerID, itemID int64, quantity int) (*models.Cart, error) {
	const op = "CartService.UpdateItemQuantity"
	return s.updateItem(ctx, op, customerID, itemID, func(item *models.CartItem) {
		item.Quantity = quantity
	})
}

func (s *CartService) UpdateRentalPeriod(ctx context.Context, customerID, itemID int64, start, end time.Time) (*models.Cart, error) {
	const op = "CartService.UpdateRentalPeriod"
	return s.updateItem(ctx, op, customerID, itemID, func(item *models.CartItem) {
		item.StartDate, item.EndDate = start, end
	})
}

// updateItem applies mutate to a cart line and re-runs the add-time checks:
// window, price and availability.
func (s *CartService) updateItem(ctx context.Context, op string, customerID, itemID int64, mutate func(*models.CartItem)) (*models.Cart, error) {
	var cart *models.Cart
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		var err error
		cart, err = tx.GetCart(ctx, customerID)
		if err != nil {
			return err
		}
		current, ok := cart.FindItem(itemID)
		if !ok {
			return database.ErrCartItemNotFound
		}

		item := *current
		mutate(&item)
		if err := s.validateWindow(op, item.StartDate, item.EndDate, item.Quantity); err != nil {
			return err
		}

		r, err := s.resolve(ctx, tx, op, item.ProductID, &item.VariantID, item.StartDate, item.EndDate)
		if err != nil {
			return err
		}
		want := item.Quantity + demand(cart, item.VariantID, item.StartDate, item.EndDate, item.ID)
		if err := s.checkAvailable(ctx, tx, op, r.variant, item.StartDate, item.EndDate, want); err != nil {
			return err
		}

		item.PricePerUnit = r.price
		if err := tx.UpdateCartItem(ctx, &item); err != nil {
			return err
		}
		cart, err = tx.GetCart(ctx, customerID)
		return err
	})
	if err != nil {
		return nil, s.wrap(op, err)
	}

	s.invalidate(ctx, customerID)
	return cart, nil
}

func (s *CartService) RemoveItem(ctx context.Context, customerID, itemID int64) (*models.Cart, error) {
	const op = "CartService.RemoveItem"

	cart, err := s.store.GetCart(ctx, customerID)
	if err != nil {
		return nil, s.wrap(op, err)
	}
	if err := s.store.DeleteCartItem(ctx, cart.ID, itemID); err != nil {
		return nil, s.wrap(op, err)
	}
	s.invalidate(ctx, customerID)

	cart, err = s.store.GetCart(ctx, customerID)
	if err != nil {
		return nil, s.wrap(op, err)
	}
	return cart, nil
}

func (s *CartService) ClearCart(ctx context.Context, customerID int64) error {
	const op = "CartService.ClearCart"

	cart, err := s.store.GetCart(ctx, customerID)
	if err != nil {
		if errors.Is(err, database.ErrCartNotFound) {
			return nil
		}
		return s.wrap(op, err)
	}
	if err := s.store.ClearCart(ctx, cart.ID); err != nil {
		return s.wrap(op, err)
	}
	s.invalidate(ctx, customerID)
	return nil
}

// GetCart serves the cart from cache when possible. Concurrent misses for
// the same customer share one store read.
func (s *CartService) GetCart(ctx context.Context, customerID int64) (*models.Cart, error) {
	const op = "CartService.GetCart"

	cart, err := s.cache.Get(ctx, customerID)
	if err == nil {
		s.metrics.RecordCartCache("hit")
		return cart, nil
	}
	if errors.Is(err, cache.ErrCacheMiss) {
		s.metrics.RecordCartCache("miss")
	} else {
		s.metrics.RecordCartCache("error")
		s.log.Warn().Err(err).Int64("customer_id", customerID).Msg("cart cache read failed")
	}

	v, err, _ := s.group.Do(strconv.FormatInt(customerID, 10), func() (interface{}, error) {
		cart, err := s.store.GetOrCreateCart(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, customerID, cart); err != nil {
			s.log.Warn().Err(err).Int64("customer_id", customerID).Msg("cart cache write failed")
		}
		return cart, nil
	})
	if err != nil {
		return nil, s.wrap(op, err)
	}
	return v.(*models.Cart), nil
}

// Invalidate drops the cached copy of the customer's cart.
func (s *CartService) Invalidate(ctx context.Context, customerID int64) {
	s.invalidate(ctx, customerID)
}

func (s *CartService) invalidate(ctx context.Context, customerID int64) {
	if err := s.cache.Delete(ctx, customerID); err != nil {
		s.log.Warn().Err(err).Int64("customer_id", customerID).Msg("cart cache invalidation failed")
	}
}

type ItemProblem struct {
	CartItemID int64  `json:"cart_item_id"`
	ProductID  int64  `json:"product_id"`
	Message    string `json:"message"`
}

type CheckoutValidation struct {
	Valid  bool          `json:"valid"`
	Errors []ItemProblem `json:"errors"`
}

func (v *CheckoutValidation) Messages() []string {
	out := make([]string, len(v.Errors))
	for i, p := range v.Errors {
		out[i] = p.Message
	}
	return out
}

// ValidateForCheckout re-checks every cart line right before payment. Problems
// are collected, not returned as errors; an error means the check itself
// could not run.
func (s *CartService) ValidateForCheckout(ctx context.Context, customerID int64) (*CheckoutValidation, error) {
	cart, err := s.store.GetCart(ctx, customerID)
	if err != nil && !errors.Is(err, database.ErrCartNotFound) {
		return nil, s.wrap("CartService.ValidateForCheckout", err)
	}
	return s.validateCart(ctx, s.store, cart), nil
}

func (s *CartService) validateCart(ctx context.Context, repo store.Repository, cart *models.Cart) *CheckoutValidation {
	result := &CheckoutValidation{Errors: []ItemProblem{}}
	if cart == nil || len(cart.Items) == 0 {
		result.Errors = append(result.Errors, ItemProblem{Message: "cart is empty"})
		return result
	}

	now := s.now()
	for _, item := range cart.Items {
		problem := func(format string, args ...interface{}) {
			result.Errors = append(result.Errors, ItemProblem{
				CartItemID: item.ID,
				ProductID:  item.ProductID,
				Message:    fmt.Sprintf(format, args...),
			})
		}

		if item.StartDate.Before(now) {
			problem("rental for product %d starts in the past", item.ProductID)
			continue
		}
		product, err := repo.GetProduct(ctx, item.ProductID)
		if err != nil || !product.IsActive {
			problem("product %d is no longer available", item.ProductID)
			continue
		}
		variant, err := repo.GetVariant(ctx, item.VariantID)
		if err != nil {
			problem("variant %d is no longer available", item.VariantID)
			continue
		}
		want := item.Quantity + demand(cart, item.VariantID, item.StartDate, item.EndDate, item.ID)
		ok, err := fits(ctx, repo, variant, item.StartDate, item.EndDate, want)
		if err != nil {
			s.log.Error().Err(err).Int64("variant_id", item.VariantID).Msg("availability check failed, treating as unavailable")
		}
		if err != nil || !ok {
			problem("product %d is not available for the selected dates", item.ProductID)
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// wrap maps persistence sentinels to typed errors and leaves typed errors as is.
func (s *CartService) wrap(op string, err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, database.ErrCartNotFound):
		return apperr.NotFound(op, "cart not found", err)
	case errors.Is(err, database.ErrCartItemNotFound):
		return apperr.NotFound(op, "cart item not found", err)
	default:
		return apperr.Internal(op, "cart operation failed", err)
	}
}
