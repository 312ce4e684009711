package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/safar/go-rental-store/internal/apperr"
	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/metrics"
	"github.com/safar/go-rental-store/internal/models"
	"github.com/safar/go-rental-store/internal/notify"
	"github.com/safar/go-rental-store/internal/payment"
	"github.com/safar/go-rental-store/internal/store"
)

// SystemActor is the actor id recorded for transitions made by sweeps.
const SystemActor int64 = 0

type OrderConfig struct {
	SweepBatchSize   int
	RefundBatchSize  int
	DocumentDeadline time.Duration
}

type OrderServiceDeps struct {
	Store    store.Store
	Locks    *InventoryLocks
	Payments payment.Gateway
	Notifier Notifier
	Auditor  Auditor
	Log      zerolog.Logger
	Metrics  *metrics.Metrics
	Now      Clock
	Config   OrderConfig
}

type OrderService struct {
	store    store.Store
	locks    *InventoryLocks
	payments payment.Gateway
	notifier Notifier
	auditor  Auditor
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      Clock
	cfg      OrderConfig
}

func NewOrderService(d OrderServiceDeps) *OrderService {
	cfg := d.Config
	if cfg.SweepBatchSize < 1 {
		cfg.SweepBatchSize = 100
	}
	if cfg.RefundBatchSize < 1 {
		cfg.RefundBatchSize = 50
	}
	if cfg.DocumentDeadline <= 0 {
		cfg.DocumentDeadline = 48 * time.Hour
	}
	return &OrderService{
		store:    d.Store,
		locks:    d.Locks,
		payments: d.Payments,
		notifier: d.Notifier,
		auditor:  d.Auditor,
		log:      d.Log.With().Str("component", "orders").Logger(),
		metrics:  d.Metrics,
		now:      clockOrNow(d.Now),
		cfg:      cfg,
	}
}

type vendorGroup struct {
	vendorID int64
	items    []models.CartItem
	products map[int64]*models.Product
}

func (g *vendorGroup) totals() (total, deposit decimal.Decimal) {
	for _, item := range g.items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		total = total.Add(item.Subtotal())
		deposit = deposit.Add(g.products[item.ProductID].DepositAmount.Mul(qty))
	}
	return total, deposit
}

// CreateOrdersFromCart converts the customer's cart, paid by paymentID, into
// one order per vendor. Either every vendor order is created and the cart is
// cleared, or nothing is written. Calling it again with the same paymentID
// returns the orders already created.
func (s *OrderService) CreateOrdersFromCart(ctx context.Context, customerID int64, paymentID string) ([]models.Order, error) {
	return s.createOrders(ctx, customerID, paymentID, nil)
}

func (s *OrderService) createOrders(ctx context.Context, customerID int64, paymentID string, expected *decimal.Decimal) ([]models.Order, error) {
	const op = "OrderService.CreateOrdersFromCart"
	if paymentID == "" {
		return nil, apperr.Validation(op, "payment id is required")
	}

	existing, err := s.store.ListOrdersByPayment(ctx, paymentID)
	if err != nil {
		return nil, apperr.Internal(op, "look up orders for payment", err)
	}
	if len(existing) > 0 {
		if existing[0].CustomerID != customerID {
			return nil, apperr.Authorization(op, "payment belongs to another customer")
		}
		return existing, nil
	}

	var orders []models.Order
	err = s.store.WithTx(ctx, func(tx store.Repository) error {
		orders = nil

		cart, err := tx.GetCart(ctx, customerID)
		if err != nil && !errors.Is(err, database.ErrCartNotFound) {
			return err
		}
		if cart == nil || len(cart.Items) == 0 {
			return apperr.New(apperr.KindValidation, apperr.CodeEmptyCart, op, "cart is empty")
		}

		groups, err := groupByVendor(ctx, tx, cart)
		if err != nil {
			return err
		}

		if expected != nil {
			due := decimal.Zero
			for _, g := range groups {
				total, deposit := g.totals()
				due = due.Add(total).Add(deposit)
			}
			if !due.Equal(*expected) {
				return apperr.Conflict(apperr.CodeCartChanged, op,
					fmt.Sprintf("cart total %s does not match payment %s", due.StringFixed(2), expected.StringFixed(2)))
			}
		}

		// Variant rows are locked in ascending id order so concurrent
		// checkouts sharing variants cannot deadlock.
		for _, id := range variantIDs(cart) {
			if _, err := tx.LockVariant(ctx, id); err != nil {
				if errors.Is(err, database.ErrVariantNotFound) {
					return apperr.NotFound(op, fmt.Sprintf("variant %d not found", id), err)
				}
				return err
			}
		}

		for _, g := range groups {
			order, err := s.createVendorOrder(ctx, tx, customerID, paymentID, g)
			if err != nil {
				return err
			}
			orders = append(orders, *order)
		}

		return tx.ClearCart(ctx, cart.ID)
	})
	if err != nil {
		s.log.Error().Err(err).
			Int64("customer_id", customerID).
			Str("payment_id", paymentID).
			Msg("order creation failed")
		return nil, s.wrap(op, err)
	}

	for i := range orders {
		s.emitCreated(ctx, &orders[i])
	}
	s.log.Info().
		Int64("customer_id", customerID).
		Str("payment_id", paymentID).
		Int("orders", len(orders)).
		Msg("orders created from cart")
	return orders, nil
}

func groupByVendor(ctx context.Context, tx store.Repository, cart *models.Cart) ([]*vendorGroup, error) {
	byVendor := make(map[int64]*vendorGroup)
	products := make(map[int64]*models.Product)

	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			p, err := tx.GetProduct(ctx, item.ProductID)
			if err != nil {
				if errors.Is(err, database.ErrProductNotFound) {
					return nil, apperr.NotFound("OrderService.CreateOrdersFromCart",
						fmt.Sprintf("product %d not found", item.ProductID), err)
				}
				return nil, err
			}
			product = p
			products[item.ProductID] = p
		}

		g, ok := byVendor[product.VendorID]
		if !ok {
			g = &vendorGroup{vendorID: product.VendorID, products: products}
			byVendor[product.VendorID] = g
		}
		g.items = append(g.items, item)
	}

	groups := make([]*vendorGroup, 0, len(byVendor))
	for _, g := range byVendor {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].vendorID < groups[j].vendorID })
	return groups, nil
}

func variantIDs(cart *models.Cart) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, item := range cart.Items {
		if !seen[item.VariantID] {
			seen[item.VariantID] = true
			ids = append(ids, item.VariantID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *OrderService) createVendorOrder(ctx context.Context, tx store.Repository, customerID int64, paymentID string, g *vendorGroup) (*models.Order, error) {
	const op = "OrderService.CreateOrdersFromCart"

	needsVerification := false
	for _, item := range g.items {
		variant, err := tx.GetVariant(ctx, item.VariantID)
		if err != nil {
			return nil, err
		}
		want := item.Quantity + demand(&models.Cart{Items: g.items}, item.VariantID, item.StartDate, item.EndDate, item.ID)
		ok, err := fits(ctx, tx, variant, item.StartDate, item.EndDate, want)
		if err != nil {
			return nil, fmt.Errorf("check availability of variant %d: %w", item.VariantID, err)
		}
		if !ok {
			s.metrics.RecordInventoryConflict()
			return nil, apperr.Conflict(apperr.CodeInventoryConflict, op, "Inventory conflicts detected").
				WithDetails(fmt.Sprintf("variant %d is no longer available for the selected dates", item.VariantID))
		}
		if g.products[item.ProductID].VerificationRequired {
			needsVerification = true
		}
	}

	total, deposit := g.totals()
	order := &models.Order{
		OrderNumber: models.NewOrderNumber(s.now()),
		CustomerID:  customerID,
		VendorID:    g.vendorID,
		PaymentID:   paymentID,
		Status:      models.OrderStatusPaymentSuccessful,
		TotalAmount: total,
	}
	if deposit.IsPositive() {
		order.DepositAmount = &deposit
	}
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := tx.InsertStatusChange(ctx, &models.StatusChange{
		OrderID:  order.ID,
		ToStatus: models.OrderStatusPaymentSuccessful,
		ActorID:  customerID,
		Reason:   "payment " + paymentID + " captured",
	}); err != nil {
		return nil, err
	}

	initial := models.OrderStatusAutoApproved
	reason := "no verification required"
	if needsVerification {
		initial = models.OrderStatusPendingVendorApproval
		reason = "product requires verification"
	}
	if err := s.transition(ctx, tx, order, initial, SystemActor, reason); err != nil {
		return nil, err
	}

	for _, ci := range g.items {
		period, err := models.NewRentalPeriod(ci.StartDate, ci.EndDate)
		if err != nil {
			return nil, apperr.Validation(op, err.Error())
		}
		if err := tx.CreateRentalPeriod(ctx, &period); err != nil {
			return nil, err
		}

		variantID := ci.VariantID
		item := models.OrderItem{
			OrderID:        order.ID,
			ProductID:      ci.ProductID,
			VariantID:      &variantID,
			RentalPeriodID: period.ID,
			Quantity:       ci.Quantity,
			UnitPrice:      ci.PricePerUnit,
		}
		if err := tx.CreateOrderItem(ctx, &item); err != nil {
			return nil, err
		}

		lock := &models.InventoryLock{
			VariantID:   ci.VariantID,
			OrderID:     order.ID,
			OrderItemID: &item.ID,
			Quantity:    ci.Quantity,
			StartDate:   ci.StartDate,
			EndDate:     ci.EndDate,
		}
		if err := s.locks.Reserve(ctx, tx, lock); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	return order, nil
}

// transition applies one status change inside tx. The target must be legal
// from the order's current status and the row must still hold that status.
func (s *OrderService) transition(ctx context.Context, tx store.Repository, order *models.Order, to models.OrderStatus, actorID int64, reason string) error {
	const op = "OrderService.transition"
	from := order.Status

	if !order.CanTransitionTo(to) {
		return apperr.Conflict(apperr.CodeIllegalTransition, op,
			fmt.Sprintf("order %d cannot move from %s to %s", order.ID, from, to))
	}
	if err := tx.CompareAndSetStatus(ctx, order.ID, from, to, s.now()); err != nil {
		if errors.Is(err, database.ErrStatusConflict) {
			return apperr.Wrap(apperr.KindConflict, apperr.CodeStatusChanged, op,
				fmt.Sprintf("order %d is no longer %s", order.ID, from), err)
		}
		return err
	}
	if err := tx.InsertStatusChange(ctx, &models.StatusChange{
		OrderID:    order.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
		Reason:     reason,
	}); err != nil {
		return err
	}

	order.Status = to
	order.Version++
	return nil
}

// mutate loads the order under a row lock, runs fn and commits. It returns
// the order as left by fn and its status before fn ran.
func (s *OrderService) mutate(ctx context.Context, op string, orderID int64, fn func(tx store.Repository, order *models.Order) error) (*models.Order, models.OrderStatus, error) {
	var order *models.Order
	var from models.OrderStatus

	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from = order.Status
		return fn(tx, order)
	})
	if err != nil {
		return nil, "", s.wrap(op, err)
	}
	return order, from, nil
}

func ownedBy(op string, order *models.Order, vendorID int64) error {
	if order.VendorID != vendorID {
		return apperr.Authorization(op, fmt.Sprintf("order %d does not belong to vendor %d", order.ID, vendorID))
	}
	return nil
}

func (s *OrderService) ApproveOrder(ctx context.Context, orderID, vendorID int64, reason string) (*models.Order, error) {
	const op = "OrderService.ApproveOrder"

	order, from, err := s.mutate(ctx, op, orderID, func(tx store.Repository, order *models.Order) error {
		if err := ownedBy(op, order, vendorID); err != nil {
			return err
		}
		if order.Status != models.OrderStatusPendingVendorApproval {
			return apperr.Conflict(apperr.CodeIllegalTransition, op,
				fmt.Sprintf("order %d is %s, not awaiting approval", order.ID, order.Status))
		}
		return s.transition(ctx, tx, order, models.OrderStatusActiveRental, vendorID, reason)
	})
	if err != nil {
		return nil, err
	}

	s.emitTransition(ctx, order, from, vendorID, "order.approve", reason)
	return order, nil
}

// RejectOrder moves a pending order to Rejected, frees its inventory and
// refunds what was paid for it. A failed refund leaves the order Rejected with
// the refund marked failed for RetryFailedRefunds.
func (s *OrderService) RejectOrder(ctx context.Context, orderID, vendorID int64, reason string) (*models.Order, error) {
	const op = "OrderService.RejectOrder"
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Validation(op, "a rejection reason is required")
	}

	var refund *models.Refund
	order, from, err := s.mutate(ctx, op, orderID, func(tx store.Repository, order *models.Order) error {
		refund = nil
		if err := ownedBy(op, order, vendorID); err != nil {
			return err
		}
		if order.Status != models.OrderStatusPendingVendorApproval {
			return apperr.Conflict(apperr.CodeIllegalTransition, op,
				fmt.Sprintf("order %d is %s, not awaiting approval", order.ID, order.Status))
		}
		if err := s.transition(ctx, tx, order, models.OrderStatusRejected, vendorID, reason); err != nil {
			return err
		}
		if err := s.locks.releaseForOrder(ctx, tx, order.ID); err != nil {
			return err
		}

		var err error
		refund, err = queueRefund(ctx, tx, order, order.PaidAmount(), "order rejected: "+reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emitTransition(ctx, order, from, vendorID, "order.reject", reason)
	return s.settleRefund(ctx, order, refund), nil
}

type CompleteRentalRequest struct {
	OrderID        int64
	VendorID       int64
	Reason         string
	ReleaseDeposit bool
	PenaltyAmount  decimal.Decimal
	PenaltyReason  string
}

// CompleteRental closes an active rental. The deposit is released minus any
// penalty; when ReleaseDeposit is false the whole deposit is retained.
func (s *OrderService) CompleteRental(ctx context.Context, req CompleteRentalRequest) (*models.Order, error) {
	const op = "OrderService.CompleteRental"
	if req.PenaltyAmount.IsNegative() {
		return nil, apperr.Validation(op, "penalty amount cannot be negative")
	}
	if req.PenaltyAmount.IsPositive() && strings.TrimSpace(req.PenaltyReason) == "" {
		return nil, apperr.Validation(op, "a penalty requires a reason")
	}

	var refund *models.Refund
	order, from, err := s.mutate(ctx, op, req.OrderID, func(tx store.Repository, order *models.Order) error {
		refund = nil
		if err := ownedBy(op, order, req.VendorID); err != nil {
			return err
		}

		deposit := decimal.Zero
		if order.DepositAmount != nil {
			deposit = *order.DepositAmount
		}
		if req.PenaltyAmount.GreaterThan(deposit) {
			return apperr.Validation(op, fmt.Sprintf("penalty %s exceeds deposit %s",
				req.PenaltyAmount.StringFixed(2), deposit.StringFixed(2)))
		}

		if err := s.transition(ctx, tx, order, models.OrderStatusCompleted, req.VendorID, req.Reason); err != nil {
			return err
		}

		settlement := store.DepositSettlement{CompletedAt: s.now()}
		if order.DepositAmount != nil {
			released := decimal.Zero
			if req.ReleaseDeposit {
				released = deposit.Sub(req.PenaltyAmount)
			}
			settlement.ReleasedAmount = &released
		}
		if req.PenaltyAmount.IsPositive() {
			penalty := req.PenaltyAmount
			settlement.PenaltyAmount = &penalty
			settlement.PenaltyReason = req.PenaltyReason
		}
		if err := tx.SettleDeposit(ctx, order.ID, settlement); err != nil {
			return err
		}
		order.DepositReleasedAmount = settlement.ReleasedAmount
		order.PenaltyAmount = settlement.PenaltyAmount
		order.PenaltyReason = settlement.PenaltyReason
		order.CompletedAt = &settlement.CompletedAt

		if err := s.locks.releaseForOrder(ctx, tx, order.ID); err != nil {
			return err
		}

		if settlement.ReleasedAmount != nil {
			var err error
			refund, err = queueRefund(ctx, tx, order, *settlement.ReleasedAmount, "deposit release")
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitTransition(ctx, order, from, req.VendorID, "order.complete", req.Reason)
	if order.PenaltyAmount != nil {
		s.audit(ctx, notify.AuditEntry{
			ActorID:    req.VendorID,
			Action:     "order.penalty",
			EntityType: "order",
			EntityID:   order.ID,
			Reason:     req.PenaltyReason,
			Details:    map[string]string{"amount": order.PenaltyAmount.StringFixed(2)},
		})
	}
	return s.settleRefund(ctx, order, refund), nil
}

// ApplyLateFee attaches a charge to an active rental without changing its status.
func (s *OrderService) ApplyLateFee(ctx context.Context, orderID, vendorID int64, amount decimal.Decimal, reason string) (*models.OrderCharge, error) {
	const op = "OrderService.ApplyLateFee"
	if !amount.IsPositive() {
		return nil, apperr.Validation(op, "late fee must be greater than zero")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Validation(op, "a late fee requires a reason")
	}

	charge := &models.OrderCharge{OrderID: orderID, Kind: models.ChargeKindLateFee, Amount: amount, Reason: reason}
	_, _, err := s.mutate(ctx, op, orderID, func(tx store.Repository, order *models.Order) error {
		if err := ownedBy(op, order, vendorID); err != nil {
			return err
		}
		if order.Status != models.OrderStatusActiveRental {
			return apperr.Conflict(apperr.CodeOrderNotActive, op,
				fmt.Sprintf("order %d is %s, late fees apply to active rentals only", order.ID, order.Status))
		}
		return tx.InsertCharge(ctx, charge)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, notify.AuditEntry{
		ActorID:    vendorID,
		Action:     "order.late_fee",
		EntityType: "order",
		EntityID:   orderID,
		Reason:     reason,
		Details:    map[string]string{"amount": amount.StringFixed(2)},
	})
	return charge, nil
}

// CancelOrderForDocumentTimeout rejects an order still waiting on
// verification documents after its deadline, optionally refunding it.
func (s *OrderService) CancelOrderForDocumentTimeout(ctx context.Context, orderID int64, reason string, processRefund bool) (*models.Order, error) {
	const op = "OrderService.CancelOrderForDocumentTimeout"
	if strings.TrimSpace(reason) == "" {
		reason = "verification documents not received before deadline"
	}

	var refund *models.Refund
	order, from, err := s.mutate(ctx, op, orderID, func(tx store.Repository, order *models.Order) error {
		var err error
		refund, err = s.rejectForTimeout(ctx, tx, order, reason, processRefund)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emitTransition(ctx, order, from, SystemActor, "order.document_timeout", reason)
	return s.settleRefund(ctx, order, refund), nil
}

// rejectForTimeout moves a locked order awaiting documents to Rejected, frees
// its inventory and, when asked, queues a refund of everything paid.
func (s *OrderService) rejectForTimeout(ctx context.Context, tx store.Repository, order *models.Order, reason string, refund bool) (*models.Refund, error) {
	const op = "OrderService.CancelOrderForDocumentTimeout"
	if order.Status != models.OrderStatusPendingVendorApproval {
		return nil, apperr.Conflict(apperr.CodeIllegalTransition, op,
			fmt.Sprintf("order %d is %s, not awaiting documents", order.ID, order.Status))
	}
	if err := s.transition(ctx, tx, order, models.OrderStatusRejected, SystemActor, reason); err != nil {
		return nil, err
	}
	if err := s.locks.releaseForOrder(ctx, tx, order.ID); err != nil {
		return nil, err
	}
	if !refund {
		return nil, nil
	}
	return queueRefund(ctx, tx, order, order.PaidAmount(), "document timeout: "+reason)
}

// TransitionOrderStatus is the manual override used for admin corrections.
// It obeys the same transition table as every other path.
func (s *OrderService) TransitionOrderStatus(ctx context.Context, orderID int64, to models.OrderStatus, actorID int64, reason string) (*models.Order, error) {
	const op = "OrderService.TransitionOrderStatus"
	if !to.IsValid() {
		return nil, apperr.Validation(op, fmt.Sprintf("unknown status %q", to))
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Validation(op, "a reason is required for manual transitions")
	}

	var refund *models.Refund
	order, from, err := s.mutate(ctx, op, orderID, func(tx store.Repository, order *models.Order) error {
		refund = nil
		if to == models.OrderStatusRefunded && order.Status == models.OrderStatusRejected {
			settled, err := hasSettledRefund(ctx, tx, order)
			if err != nil {
				return err
			}
			if !settled {
				return apperr.Conflict(apperr.CodeRefundNotSettled, op,
					fmt.Sprintf("order %d has no completed refund; it moves to %s when its refund succeeds", order.ID, to))
			}
		}
		if err := s.transition(ctx, tx, order, to, actorID, reason); err != nil {
			return err
		}
		switch to {
		case models.OrderStatusCompleted:
			completedAt := s.now()
			if err := tx.SettleDeposit(ctx, order.ID, store.DepositSettlement{CompletedAt: completedAt}); err != nil {
				return err
			}
			order.CompletedAt = &completedAt
		case models.OrderStatusRejected:
			var err error
			refund, err = queueRefund(ctx, tx, order, order.PaidAmount(), "rejected: "+reason)
			if err != nil {
				return err
			}
		}
		if !to.HoldsInventory() {
			return s.locks.releaseForOrder(ctx, tx, order.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitTransition(ctx, order, from, actorID, "order.transition", reason)
	return s.settleRefund(ctx, order, refund), nil
}

// hasSettledRefund reports whether a refund recorded against order has been
// paid out by the gateway.
func hasSettledRefund(ctx context.Context, tx store.Repository, order *models.Order) (bool, error) {
	refunds, err := tx.ListRefundsByPayment(ctx, order.PaymentID)
	if err != nil {
		return false, err
	}
	for _, r := range refunds {
		if r.OrderID != nil && *r.OrderID == order.ID && r.Status == models.RefundStatusSucceeded {
			return true, nil
		}
	}
	return false, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, s.wrap("OrderService.GetOrder", err)
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, filter store.OrderFilter) (*store.OrderPage, error) {
	const op = "OrderService.ListOrders"
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, apperr.Validation(op, fmt.Sprintf("unknown status %q", filter.Status))
	}
	if _, err := store.DecodeCursor(filter.Cursor); err != nil {
		return nil, apperr.Validation(op, "invalid cursor")
	}

	page, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, s.wrap(op, err)
	}
	return page, nil
}

func (s *OrderService) StatusHistory(ctx context.Context, orderID int64) ([]models.StatusChange, error) {
	const op = "OrderService.StatusHistory"
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return nil, s.wrap(op, err)
	}
	changes, err := s.store.ListStatusChanges(ctx, orderID)
	if err != nil {
		return nil, s.wrap(op, err)
	}
	return changes, nil
}

func (s *OrderService) Charges(ctx context.Context, orderID int64) ([]models.OrderCharge, error) {
	charges, err := s.store.ListCharges(ctx, orderID)
	if err != nil {
		return nil, s.wrap("OrderService.Charges", err)
	}
	return charges, nil
}

func (s *OrderService) emitCreated(ctx context.Context, order *models.Order) {
	s.metrics.RecordOrderCreated(string(order.Status))
	s.metrics.RecordTransition(string(models.OrderStatusPaymentSuccessful), string(order.Status))

	if s.notifier != nil {
		if err := s.notifier.OrderCreated(ctx, order); err != nil {
			s.log.Warn().Err(err).Int64("order_id", order.ID).Msg("order created notification failed")
		}
	}
	s.audit(ctx, notify.AuditEntry{
		ActorID:    order.CustomerID,
		Action:     "order.create",
		EntityType: "order",
		EntityID:   order.ID,
		Details: map[string]string{
			"order_number": order.OrderNumber,
			"vendor_id":    fmt.Sprint(order.VendorID),
			"payment_id":   order.PaymentID,
			"status":       string(order.Status),
		},
	})
}

func (s *OrderService) emitTransition(ctx context.Context, order *models.Order, from models.OrderStatus, actorID int64, action, reason string) {
	s.metrics.RecordTransition(string(from), string(order.Status))
	s.log.Info().
		Int64("order_id", order.ID).
		Int64("vendor_id", order.VendorID).
		Str("from", string(from)).
		Str("to", string(order.Status)).
		Int64("actor_id", actorID).
		Msg("order status changed")

	if s.notifier != nil {
		if err := s.notifier.OrderStatusChanged(ctx, order, from, reason); err != nil {
			s.log.Warn().Err(err).Int64("order_id", order.ID).Msg("status change notification failed")
		}
	}
	s.audit(ctx, notify.AuditEntry{
		ActorID:    actorID,
		Action:     action,
		EntityType: "order",
		EntityID:   order.ID,
		Reason:     reason,
		Details:    map[string]string{"from": string(from), "to": string(order.Status)},
	})
}

func (s *OrderService) audit(ctx context.Context, entry notify.AuditEntry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.LogAction(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("action", entry.Action).Int64("entity_id", entry.EntityID).Msg("audit write failed")
	}
}

func (s *OrderService) wrap(op string, err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, database.ErrOrderNotFound):
		return apperr.NotFound(op, "order not found", err)
	case errors.Is(err, database.ErrStatusConflict):
		return apperr.Wrap(apperr.KindConflict, apperr.CodeStatusChanged, op, "order status changed concurrently", err)
	case errors.Is(err, database.ErrVariantNotFound), errors.Is(err, database.ErrProductNotFound):
		return apperr.NotFound(op, "catalog entry not found", err)
	default:
		return apperr.Internal(op, "order operation failed", err)
	}
}
