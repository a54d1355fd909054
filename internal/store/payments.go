package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"littlekobe-store/internal/models"
)

// CreatePendingPayment inserts a new PENDING payment record and fills in the
// generated id and timestamps
func (s *Store) CreatePendingPayment(ctx context.Context, rec *models.PaymentRecord) error {
	rec.Status = models.PaymentStatusPending

	query := `
		INSERT INTO payments
			(merchant_reference, amount, currency, description, status,
			 customer_email, customer_phone, delivery_address, cart_items)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		rec.MerchantReference, rec.Amount, rec.Currency, rec.Description, rec.Status,
		rec.CustomerEmail, rec.CustomerPhone, rec.DeliveryAddress, rec.CartItems,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

// AttachTrackingID records the provider's tracking id on a payment. The id is
// set at most once; attaching to a record that already carries one is a no-op.
func (s *Store) AttachTrackingID(ctx context.Context, paymentID int64, trackingID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET provider_tracking_id = $2, updated_at = NOW()
		WHERE id = $1 AND provider_tracking_id IS NULL`,
		paymentID, trackingID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("payment %d already has a tracking id or does not exist", paymentID)
	}
	return nil
}

// CompleteTransition attempts the PENDING -> terminal status transition as a
// single conditional statement. It returns the current record and whether this
// call caused the transition; side-effects must be gated on that boolean.
// Calling again with the same terminal status only refreshes the provider's
// description fields.
func (s *Store) CompleteTransition(ctx context.Context, trackingID, status, confirmationCode, statusDescription string) (*models.PaymentRecord, bool, error) {
	if !models.IsTerminal(status) {
		return nil, false, fmt.Errorf("refusing transition to non-terminal status %q", status)
	}

	var rec models.PaymentRecord
	err := s.db.GetContext(ctx, &rec, `
		UPDATE payments
		SET status = $2,
		    confirmation_code = NULLIF($3, ''),
		    status_description = NULLIF($4, ''),
		    last_checked_at = NOW(),
		    updated_at = NOW()
		WHERE provider_tracking_id = $1 AND status = $5
		RETURNING *`,
		trackingID, status, confirmationCode, statusDescription, models.PaymentStatusPending)
	if err == nil {
		return &rec, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	// Already terminal (or unknown): refresh the descriptive fields only,
	// never the status.
	current, err := s.GetPaymentByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, false, err
	}
	if current == nil {
		return nil, false, nil
	}
	if err := s.TouchStatusCheck(ctx, trackingID, statusDescription); err != nil {
		return current, false, err
	}
	return current, false, nil
}

// MarkFailedByID marks a still-pending payment FAILED by internal id. The
// checkout path uses this when the gateway rejects a submission before any
// tracking id exists.
func (s *Store) MarkFailedByID(ctx context.Context, paymentID int64, statusDescription string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, status_description = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1 AND status = $4`,
		paymentID, models.PaymentStatusFailed, statusDescription, models.PaymentStatusPending)
	return err
}

// TouchStatusCheck records that the provider was consulted without changing status
func (s *Store) TouchStatusCheck(ctx context.Context, trackingID, statusDescription string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET last_checked_at = NOW(),
		    status_description = COALESCE(NULLIF($2, ''), status_description),
		    updated_at = NOW()
		WHERE provider_tracking_id = $1`,
		trackingID, statusDescription)
	return err
}

// GetPaymentByTrackingID retrieves a payment by the provider's tracking id.
// Returns nil without error when no record matches.
func (s *Store) GetPaymentByTrackingID(ctx context.Context, trackingID string) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT * FROM payments WHERE provider_tracking_id = $1", trackingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetPaymentByMerchantReference retrieves a payment by our own order reference
func (s *Store) GetPaymentByMerchantReference(ctx context.Context, reference string) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT * FROM payments WHERE merchant_reference = $1", reference)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecentPayments retrieves the most recent payment records for the admin area
func (s *Store) ListRecentPayments(ctx context.Context, limit int) ([]models.PaymentRecord, error) {
	var recs []models.PaymentRecord
	err := s.db.SelectContext(ctx, &recs,
		"SELECT * FROM payments ORDER BY created_at DESC LIMIT $1", limit)
	return recs, err
}

// SalesSummary aggregates COMPLETED payments since the given time
func (s *Store) SalesSummary(ctx context.Context, since time.Time) (*models.SalesSummary, error) {
	var summary models.SalesSummary
	err := s.db.GetContext(ctx, &summary, `
		SELECT COUNT(*) AS orders, COALESCE(SUM(amount), 0) AS gross_minor
		FROM payments
		WHERE status = $1 AND updated_at >= $2`,
		models.PaymentStatusCompleted, since)
	if err != nil {
		return nil, err
	}

	// Item counts live inside the JSONB snapshot
	err = s.db.GetContext(ctx, &summary.ItemsSold, `
		SELECT COALESCE(SUM((item->>'quantity')::bigint), 0)
		FROM payments, jsonb_array_elements(cart_items) AS item
		WHERE status = $1 AND updated_at >= $2`,
		models.PaymentStatusCompleted, since)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
