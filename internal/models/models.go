package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Product represents a catalog product served by the CMS
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// InventoryRecord represents stock on hand for a product
type InventoryRecord struct {
	ProductID     string    `db:"product_id" json:"product_id"`
	Price         int64     `db:"price" json:"price"`
	Quantity      int       `db:"quantity" json:"quantity"`
	MinStockLevel int       `db:"min_stock_level" json:"min_stock_level"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// InventoryUpdate carries the fields an admin edit may overwrite.
// Nil fields are left untouched.
type InventoryUpdate struct {
	Price         *int64 `json:"price,omitempty"`
	Quantity      *int   `json:"quantity,omitempty"`
	MinStockLevel *int   `json:"min_stock_level,omitempty"`
}

// CartItem is a snapshot of one order line captured at checkout time.
// Later catalog price changes never alter a placed order.
type CartItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// CartItems is stored as a JSONB column on the payment record
type CartItems []CartItem

func (c CartItems) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *CartItems) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = nil
		return nil
	}
	return fmt.Errorf("cannot scan %T into CartItems", src)
}

// Address is a structured delivery/billing address, stored as JSONB
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *Address) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = Address{}
		return nil
	}
	return fmt.Errorf("cannot scan %T into Address", src)
}

// PaymentRecord is the ledger entry for one payment attempt
type PaymentRecord struct {
	ID                int64      `db:"id" json:"id"`
	MerchantReference string     `db:"merchant_reference" json:"merchant_reference"`
	TrackingID        *string    `db:"provider_tracking_id" json:"provider_tracking_id,omitempty"`
	Amount            int64      `db:"amount" json:"amount"`
	Currency          string     `db:"currency" json:"currency"`
	Description       string     `db:"description" json:"description"`
	Status            string     `db:"status" json:"status"`
	CustomerEmail     string     `db:"customer_email" json:"customer_email"`
	CustomerPhone     string     `db:"customer_phone" json:"customer_phone"`
	DeliveryAddress   Address    `db:"delivery_address" json:"delivery_address"`
	CartItems         CartItems  `db:"cart_items" json:"cart_items"`
	ConfirmationCode  *string    `db:"confirmation_code" json:"confirmation_code,omitempty"`
	StatusDescription *string    `db:"status_description" json:"status_description,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	LastCheckedAt     *time.Time `db:"last_checked_at" json:"last_checked_at,omitempty"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Payment statuses. PENDING is the only non-terminal status.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusReversed  = "REVERSED"
	PaymentStatusInvalid   = "INVALID"
)

// IsTerminal reports whether a status permits no further automatic transition
func IsTerminal(status string) bool {
	switch status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusReversed, PaymentStatusInvalid:
		return true
	}
	return false
}

// Provider numeric status codes
const (
	ProviderCodeInvalid   = 0
	ProviderCodeCompleted = 1
	ProviderCodeFailed    = 2
	ProviderCodeReversed  = 3
)

// StatusFromProviderCode maps a provider status code to an internal status.
// Unknown codes map to PENDING so they never trigger side-effects.
func StatusFromProviderCode(code int) string {
	switch code {
	case ProviderCodeInvalid:
		return PaymentStatusInvalid
	case ProviderCodeCompleted:
		return PaymentStatusCompleted
	case ProviderCodeFailed:
		return PaymentStatusFailed
	case ProviderCodeReversed:
		return PaymentStatusReversed
	default:
		return PaymentStatusPending
	}
}

// SalesSummary aggregates completed payments for the admin dashboard
type SalesSummary struct {
	Orders     int64 `db:"orders" json:"orders"`
	GrossMinor int64 `db:"gross_minor" json:"gross_minor"`
	ItemsSold  int64 `json:"items_sold"`
}
