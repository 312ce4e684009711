package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/models"
)

const invoiceColumns = `id, invoice_number, order_id, customer_id, amount, status, created_at, finalized_at`

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	inv := &models.Invoice{}
	var finalizedAt sql.NullTime
	err := row.Scan(
		&inv.ID,
		&inv.InvoiceNumber,
		&inv.OrderID,
		&inv.CustomerID,
		&inv.Amount,
		&inv.Status,
		&inv.CreatedAt,
		&finalizedAt,
	)
	if err != nil {
		return nil, err
	}
	if finalizedAt.Valid {
		t := finalizedAt.Time
		inv.FinalizedAt = &t
	}
	return inv, nil
}

func (s *Queries) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO invoices (invoice_number, order_id, customer_id, amount, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		inv.InvoiceNumber, inv.OrderID, inv.CustomerID, inv.Amount, inv.Status,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

func (s *Queries) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	inv, err := scanInvoice(s.q.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

func (s *Queries) GetInvoiceByOrder(ctx context.Context, orderID int64) (*models.Invoice, error) {
	inv, err := scanInvoice(s.q.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE order_id = $1`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("get invoice by order: %w", err)
	}
	return inv, nil
}

// FinalizeInvoice is a no-op for an invoice that is already finalized.
func (s *Queries) FinalizeInvoice(ctx context.Context, id int64, at time.Time) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE invoices SET status = 'finalized', finalized_at = $2
		 WHERE id = $1 AND status = 'draft'`, id, at)
	if err != nil {
		return fmt.Errorf("finalize invoice: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetInvoice(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
