package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"littlekobe-store/internal/models"
)

// GetInventory retrieves the inventory record for a product
func (s *Store) GetInventory(ctx context.Context, productID string) (*models.InventoryRecord, error) {
	var rec models.InventoryRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT * FROM inventory WHERE product_id = $1", productID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DecrementStock atomically decrements stock for a product and returns the
// new quantity. The decrement is a single conditional statement so concurrent
// checkouts can never drive quantity below zero.
func (s *Store) DecrementStock(ctx context.Context, productID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("invalid decrement amount: %d", amount)
	}

	var newQuantity int
	err := s.db.GetContext(ctx, &newQuantity, `
		UPDATE inventory
		SET quantity = quantity - $2, updated_at = NOW()
		WHERE product_id = $1 AND quantity >= $2
		RETURNING quantity`,
		productID, amount)
	if err == sql.ErrNoRows {
		// Either the product is unknown or there is not enough stock;
		// distinguish so callers can report 404 vs 409.
		var exists bool
		if err := s.db.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM inventory WHERE product_id = $1)", productID); err != nil {
			return 0, err
		}
		if !exists {
			return 0, ErrNotFound
		}
		return 0, ErrInsufficientStock
	}
	if err != nil {
		return 0, err
	}
	return newQuantity, nil
}

// IncrementStock returns stock to inventory (compensating release)
func (s *Store) IncrementStock(ctx context.Context, productID string, amount int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE inventory SET quantity = quantity + $2, updated_at = NOW() WHERE product_id = $1",
		productID, amount)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertInventory applies an admin edit, overwriting only the supplied fields.
// A missing row is created with zero defaults for the omitted fields.
func (s *Store) UpsertInventory(ctx context.Context, productID string, update *models.InventoryUpdate) (*models.InventoryRecord, error) {
	if update.Price != nil && *update.Price < 0 {
		return nil, fmt.Errorf("price must not be negative")
	}
	if update.Quantity != nil && *update.Quantity < 0 {
		return nil, fmt.Errorf("quantity must not be negative")
	}
	if update.MinStockLevel != nil && *update.MinStockLevel < 0 {
		return nil, fmt.Errorf("min stock level must not be negative")
	}

	sets := []string{"updated_at = NOW()"}
	args := []interface{}{productID}

	if update.Price != nil {
		args = append(args, *update.Price)
		sets = append(sets, fmt.Sprintf("price = $%d", len(args)))
	}
	if update.Quantity != nil {
		args = append(args, *update.Quantity)
		sets = append(sets, fmt.Sprintf("quantity = $%d", len(args)))
	}
	if update.MinStockLevel != nil {
		args = append(args, *update.MinStockLevel)
		sets = append(sets, fmt.Sprintf("min_stock_level = $%d", len(args)))
	}

	query := fmt.Sprintf(
		"UPDATE inventory SET %s WHERE product_id = $1 RETURNING *",
		strings.Join(sets, ", "))

	var rec models.InventoryRecord
	err := s.db.GetContext(ctx, &rec, query, args...)
	if err == sql.ErrNoRows {
		return s.insertInventory(ctx, productID, update)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) insertInventory(ctx context.Context, productID string, update *models.InventoryUpdate) (*models.InventoryRecord, error) {
	var price int64
	var quantity, minStock int
	if update.Price != nil {
		price = *update.Price
	}
	if update.Quantity != nil {
		quantity = *update.Quantity
	}
	if update.MinStockLevel != nil {
		minStock = *update.MinStockLevel
	}

	var rec models.InventoryRecord
	err := s.db.GetContext(ctx, &rec, `
		INSERT INTO inventory (product_id, price, quantity, min_stock_level)
		VALUES ($1, $2, $3, $4)
		RETURNING *`,
		productID, price, quantity, minStock)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteInventory removes a record; the admin area uses it when a product is
// retired from the catalog
func (s *Store) DeleteInventory(ctx context.Context, productID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM inventory WHERE product_id = $1", productID)
	return err
}

// ListInventory retrieves all inventory records
func (s *Store) ListInventory(ctx context.Context) ([]models.InventoryRecord, error) {
	var recs []models.InventoryRecord
	err := s.db.SelectContext(ctx, &recs,
		"SELECT * FROM inventory ORDER BY product_id")
	return recs, err
}

// ListLowStock retrieves records at or below their reorder threshold
func (s *Store) ListLowStock(ctx context.Context) ([]models.InventoryRecord, error) {
	var recs []models.InventoryRecord
	err := s.db.SelectContext(ctx, &recs,
		"SELECT * FROM inventory WHERE quantity <= min_stock_level ORDER BY quantity ASC")
	return recs, err
}
