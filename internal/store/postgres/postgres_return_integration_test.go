package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"pdvlite/backend/internal/domain"
	"pdvlite/backend/internal/store"
)

func TestApplyReturnRestocksAndFlipsStatus(t *testing.T) {
	databaseURL := os.Getenv("PDVLITE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PDVLITE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-ret-it-%d", stamp)
	saleID := fmt.Sprintf("sale-ret-it-%d", stamp)
	returnID := fmt.Sprintf("ret-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM return_items WHERE return_id = $1`, returnID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM returns WHERE id = $1`, returnID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price_cents, cost_cents, stock, low_stock_threshold, active)
		VALUES ($1, 'Produto Devolução IT', 'mercearia', 2500, 1800, 8, 2, true)
	`, productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (id, customer_id, customer_name, payment_method, total_cents, store_credit_used_cents, status, nfce_access_key, nfce_qrcode_url, created_at)
		VALUES ($1, null, null, 'cash', 5000, 0, 'completed', '00000000000000000000000000000000000000000000', '', now())
	`, saleID); err != nil {
		t.Fatalf("insert sale: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sale_items (sale_id, product_id, product_name, qty, returnable_qty, unit_price_cents, total_cents)
		VALUES ($1, $2, 'Produto Devolução IT', 2, 2, 2500, 5000)
	`, saleID, productID); err != nil {
		t.Fatalf("insert sale item: %v", err)
	}

	ret, err := s.ApplyReturn(ctx, store.ReturnApplication{
		Return: domain.Return{
			ID:        returnID,
			SaleID:    saleID,
			Outcome:   domain.ReturnOutcomeRefund,
			Reason:    "integration test return",
			CreatedAt: time.Now().UTC(),
			Items:     []domain.ReturnItem{{ProductID: productID, Qty: 1}},
		},
	})
	if err != nil {
		t.Fatalf("apply return: %v", err)
	}
	if ret.TotalCents != 2500 {
		t.Fatalf("expected return total 2500, got %d", ret.TotalCents)
	}

	var stock int
	if err := s.db.QueryRowContext(ctx, `
		SELECT stock FROM products WHERE id = $1
	`, productID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != 9 {
		t.Fatalf("expected stock 9 after restock, got %d", stock)
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `
		SELECT status FROM sales WHERE id = $1
	`, saleID).Scan(&status); err != nil {
		t.Fatalf("query sale status: %v", err)
	}
	if status != domain.SaleStatusPartiallyReturned {
		t.Fatalf("expected partially_returned, got %s", status)
	}

	var returnable int
	if err := s.db.QueryRowContext(ctx, `
		SELECT returnable_qty FROM sale_items WHERE sale_id = $1 AND product_id = $2
	`, saleID, productID).Scan(&returnable); err != nil {
		t.Fatalf("query returnable qty: %v", err)
	}
	if returnable != 1 {
		t.Fatalf("expected returnable qty 1, got %d", returnable)
	}
}

func TestCreateSessionEnforcesSingleOpen(t *testing.T) {
	databaseURL := os.Getenv("PDVLITE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PDVLITE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	firstID := fmt.Sprintf("sess-it-a-%d", stamp)
	secondID := fmt.Sprintf("sess-it-b-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_sessions WHERE id IN ($1, $2)`, firstID, secondID)
	})

	now := time.Now().UTC()
	if err := s.CreateSession(ctx, domain.CashSession{
		ID: firstID, Operator: "it", Status: domain.SessionStatusOpen, OpeningCents: 10000, OpenedAt: now,
	}); err != nil {
		t.Fatalf("first open failed: %v", err)
	}

	err = s.CreateSession(ctx, domain.CashSession{
		ID: secondID, Operator: "it", Status: domain.SessionStatusOpen, OpeningCents: 5000, OpenedAt: now,
	})
	if !errors.Is(err, store.ErrSessionAlreadyOpen) {
		t.Fatalf("expected session-already-open from unique index, got %v", err)
	}

	if _, err := s.CloseSession(ctx, firstID, 10000, "", now.Add(time.Minute)); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}
