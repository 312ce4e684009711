package memstore

import (
	"context"
	"sort"

	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/models"
)

func (r *repo) CreateProduct(_ context.Context, p *models.Product) error {
	defer r.enter()()
	st := r.state()

	now := r.clock()
	p.ID = st.nextID()
	p.CreatedAt, p.UpdatedAt, p.Version = now, now, 1
	st.products[p.ID] = *p
	return nil
}

func (r *repo) CreateVariant(_ context.Context, v *models.Variant) error {
	defer r.enter()()
	st := r.state()

	if _, ok := st.products[v.ProductID]; !ok {
		return database.ErrProductNotFound
	}
	now := r.clock()
	v.ID = st.nextID()
	v.CreatedAt, v.UpdatedAt, v.Version = now, now, 1
	st.variants[v.ID] = *v
	return nil
}

func (r *repo) CreatePricing(_ context.Context, p *models.Pricing) error {
	defer r.enter()()
	st := r.state()

	if _, ok := st.products[p.ProductID]; !ok {
		return database.ErrProductNotFound
	}
	p.ID = st.nextID()
	p.CreatedAt = r.clock()
	st.pricing = append(st.pricing, *p)
	return nil
}

func (r *repo) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	defer r.enter()()

	p, ok := r.state().products[id]
	if !ok {
		return nil, database.ErrProductNotFound
	}
	return &p, nil
}

func (r *repo) GetVariant(_ context.Context, id int64) (*models.Variant, error) {
	defer r.enter()()

	v, ok := r.state().variants[id]
	if !ok {
		return nil, database.ErrVariantNotFound
	}
	return &v, nil
}

func (r *repo) GetDefaultVariant(_ context.Context, productID int64) (*models.Variant, error) {
	defer r.enter()()

	var candidates []models.Variant
	for _, v := range r.state().variants {
		if v.ProductID == productID && v.IsActive {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return nil, database.ErrVariantNotFound
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].IsDefault != candidates[j].IsDefault {
			return candidates[i].IsDefault
		}
		return candidates[i].ID < candidates[j].ID
	})
	v := candidates[0]
	return &v, nil
}

// LockVariant is a plain read: the store mutex already serializes units of work.
func (r *repo) LockVariant(ctx context.Context, id int64) (*models.Variant, error) {
	return r.GetVariant(ctx, id)
}

func (r *repo) UpdateStockOptimistic(_ context.Context, variantID int64, newStock, version int) error {
	defer r.enter()()
	st := r.state()

	v, ok := st.variants[variantID]
	if !ok || v.Version != version {
		return database.ErrOptimisticLockFailed
	}
	v.StockQuantity = newStock
	v.Version++
	v.UpdatedAt = r.clock()
	st.variants[variantID] = v
	return nil
}

func (r *repo) ListPricing(_ context.Context, productID int64) ([]models.Pricing, error) {
	defer r.enter()()

	var out []models.Pricing
	for _, p := range r.state().pricing {
		if p.ProductID == productID {
			out = append(out, p)
		}
	}
	return out, nil
}
