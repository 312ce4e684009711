package memstore

import (
	"context"
	"sort"

	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/models"
)

func (r *repo) GetOrCreateCart(_ context.Context, customerID int64) (*models.Cart, error) {
	defer r.enter()()
	st := r.state()

	if cart, ok := r.findCart(customerID); ok {
		return cart, nil
	}

	now := r.clock()
	cart := models.Cart{ID: st.nextID(), CustomerID: customerID, CreatedAt: now, UpdatedAt: now}
	st.carts[cart.ID] = cart
	cart.Items = []models.CartItem{}
	return &cart, nil
}

func (r *repo) GetCart(_ context.Context, customerID int64) (*models.Cart, error) {
	defer r.enter()()

	cart, ok := r.findCart(customerID)
	if !ok {
		return nil, database.ErrCartNotFound
	}
	return cart, nil
}

func (r *repo) findCart(customerID int64) (*models.Cart, bool) {
	st := r.state()
	for _, c := range st.carts {
		if c.CustomerID != customerID {
			continue
		}
		c.Items = []models.CartItem{}
		for _, item := range st.cartItems {
			if item.CartID == c.ID {
				c.Items = append(c.Items, item)
			}
		}
		sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].ID < c.Items[j].ID })
		return &c, true
	}
	return nil, false
}

func (r *repo) AddCartItem(_ context.Context, item *models.CartItem) error {
	defer r.enter()()
	st := r.state()

	if _, ok := st.carts[item.CartID]; !ok {
		return database.ErrCartNotFound
	}
	now := r.clock()
	item.ID = st.nextID()
	item.CreatedAt, item.UpdatedAt = now, now
	st.cartItems[item.ID] = *item
	r.touchCart(item.CartID)
	return nil
}

func (r *repo) UpdateCartItem(_ context.Context, item *models.CartItem) error {
	defer r.enter()()
	st := r.state()

	existing, ok := st.cartItems[item.ID]
	if !ok || existing.CartID != item.CartID {
		return database.ErrCartItemNotFound
	}
	existing.VariantID = item.VariantID
	existing.Quantity = item.Quantity
	existing.PricePerUnit = item.PricePerUnit
	existing.StartDate = item.StartDate
	existing.EndDate = item.EndDate
	existing.UpdatedAt = r.clock()
	st.cartItems[item.ID] = existing
	item.UpdatedAt = existing.UpdatedAt
	r.touchCart(item.CartID)
	return nil
}

func (r *repo) DeleteCartItem(_ context.Context, cartID, itemID int64) error {
	defer r.enter()()
	st := r.state()

	existing, ok := st.cartItems[itemID]
	if !ok || existing.CartID != cartID {
		return database.ErrCartItemNotFound
	}
	delete(st.cartItems, itemID)
	r.touchCart(cartID)
	return nil
}

func (r *repo) ClearCart(_ context.Context, cartID int64) error {
	defer r.enter()()
	st := r.state()

	for id, item := range st.cartItems {
		if item.CartID == cartID {
			delete(st.cartItems, id)
		}
	}
	r.touchCart(cartID)
	return nil
}

func (r *repo) touchCart(cartID int64) {
	st := r.state()
	if c, ok := st.carts[cartID]; ok {
		c.UpdatedAt = r.clock()
		st.carts[cartID] = c
	}
}
