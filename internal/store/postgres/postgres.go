package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pdvlite/backend/internal/domain"
	"pdvlite/backend/internal/store"
)

// Store is the postgres Repository. Schema is managed outside the process;
// the single-open-session rule relies on a partial unique index:
//
//	CREATE UNIQUE INDEX cash_sessions_single_open
//	ON cash_sessions ((status)) WHERE status = 'open';
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, barcode, category, price_cents, cost_cents, stock, low_stock_threshold, active
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, barcode, category, price_cents, cost_cents, stock, low_stock_threshold, active
		FROM products
		WHERE id = $1
	`, id)
	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	return product, err
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, barcode, category, price_cents, cost_cents, stock, low_stock_threshold, active
		FROM products
		WHERE active = true AND stock <= low_stock_threshold
		ORDER BY stock, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, document, phone, email, created_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Customer, 0)
	for rows.Next() {
		var c domain.Customer
		var document, phone, email sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &document, &phone, &email, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Document = document.String
		c.Phone = phone.String
		c.Email = email.String
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, document, phone, email, created_at
		FROM customers
		WHERE id = $1
	`, id)
	var c domain.Customer
	var document, phone, email sql.NullString
	err := row.Scan(&c.ID, &c.Name, &document, &phone, &email, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return domain.Customer{}, err
	}
	c.Document = document.String
	c.Phone = phone.String
	c.Email = email.String
	return c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, document, phone, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Document), nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email), customer.CreatedAt)
	return err
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cnpj, phone, created_at
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Supplier, 0)
	for rows.Next() {
		var sup domain.Supplier
		var cnpj, phone sql.NullString
		if err := rows.Scan(&sup.ID, &sup.Name, &cnpj, &phone, &sup.CreatedAt); err != nil {
			return nil, err
		}
		sup.CNPJ = cnpj.String
		sup.Phone = phone.String
		result = append(result, sup)
	}
	return result, rows.Err()
}

func (s *Store) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, cnpj, phone, created_at
		FROM suppliers
		WHERE id = $1
	`, id)
	var sup domain.Supplier
	var cnpj, phone sql.NullString
	err := row.Scan(&sup.ID, &sup.Name, &cnpj, &phone, &sup.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Supplier{}, fmt.Errorf("supplier %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return domain.Supplier{}, err
	}
	sup.CNPJ = cnpj.String
	sup.Phone = phone.String
	return sup, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, cnpj, phone, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.CNPJ), nullIfEmpty(supplier.Phone), supplier.CreatedAt)
	return err
}

func (s *Store) CreateSale(ctx context.Context, commit store.SaleCommit) (domain.Sale, error) {
	if len(commit.Sale.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("sale has no items: %w", store.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.Sale{}, err
	}
	defer func() { _ = tx.Rollback() }()

	sale := commit.Sale

	deducted := int64(0)
	if len(commit.CreditIDs) > 0 && commit.CreditAmountCents > 0 {
		creditRows, err := tx.QueryContext(ctx, `
			SELECT id, balance_cents, status, expires_at
			FROM store_credits
			WHERE id = ANY($1)
			FOR UPDATE
		`, commit.CreditIDs)
		if err != nil {
			return domain.Sale{}, err
		}
		type creditRow struct {
			balance int64
			status  string
			expires time.Time
		}
		creditMap := make(map[string]creditRow, len(commit.CreditIDs))
		for creditRows.Next() {
			var id string
			var c creditRow
			if err := creditRows.Scan(&id, &c.balance, &c.status, &c.expires); err != nil {
				_ = creditRows.Close()
				return domain.Sale{}, err
			}
			creditMap[id] = c
		}
		if err := creditRows.Err(); err != nil {
			_ = creditRows.Close()
			return domain.Sale{}, err
		}
		_ = creditRows.Close()

		// Credits are consumed in the order the caller listed them; stale
		// entries are skipped rather than failing the sale.
		remaining := commit.CreditAmountCents
		for _, creditID := range commit.CreditIDs {
			if remaining <= 0 {
				break
			}
			credit, ok := creditMap[creditID]
			if !ok || credit.status != domain.CreditStatusActive || credit.balance <= 0 {
				continue
			}
			if !credit.expires.IsZero() && credit.expires.Before(sale.CreatedAt) {
				// Lapsed credits flip to expired the first time they are touched.
				if _, err := tx.ExecContext(ctx, `
					UPDATE store_credits SET status = $2 WHERE id = $1
				`, creditID, domain.CreditStatusExpired); err != nil {
					return domain.Sale{}, err
				}
				continue
			}
			take := credit.balance
			if take > remaining {
				take = remaining
			}
			newBalance := credit.balance - take
			newStatus := domain.CreditStatusActive
			if newBalance == 0 {
				newStatus = domain.CreditStatusUsed
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE store_credits SET balance_cents = $2, status = $3 WHERE id = $1
			`, creditID, newBalance, newStatus); err != nil {
				return domain.Sale{}, err
			}
			deducted += take
			remaining -= take
		}
	}
	sale.StoreCreditUsedCents = deducted

	// Stock has no availability floor; the decrement may drive it negative.
	for _, item := range sale.Items {
		res, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2 WHERE id = $1
		`, item.ProductID, item.Qty)
		if err != nil {
			return domain.Sale{}, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return domain.Sale{}, err
		}
		if affected == 0 {
			return domain.Sale{}, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sales (id, customer_id, customer_name, payment_method, total_cents, store_credit_used_cents, status, nfce_access_key, nfce_qrcode_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, sale.ID, nullIfEmpty(sale.CustomerID), nullIfEmpty(sale.CustomerName), sale.PaymentMethod, sale.TotalCents, sale.StoreCreditUsedCents, sale.Status, sale.NFCeAccessKey, sale.NFCeQRCodeURL, sale.CreatedAt); err != nil {
		return domain.Sale{}, err
	}
	for _, item := range sale.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, product_name, qty, returnable_qty, unit_price_cents, total_cents)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, sale.ID, item.ProductID, item.ProductName, item.Qty, item.ReturnableQty, item.UnitPriceCents, item.TotalCents); err != nil {
			return domain.Sale{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Sale{}, err
	}
	return sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, customer_name, payment_method, total_cents, store_credit_used_cents, status, nfce_access_key, nfce_qrcode_url, created_at
		FROM sales
		WHERE id = $1
	`, id)
	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Sale{}, fmt.Errorf("sale %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return domain.Sale{}, err
	}

	items, err := s.loadSaleItems(ctx, []string{sale.ID})
	if err != nil {
		return domain.Sale{}, err
	}
	sale.Items = items[sale.ID]
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, customer_name, payment_method, total_cents, store_credit_used_cents, status, nfce_access_key, nfce_qrcode_url, created_at
		FROM sales
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0)
	ids := make([]string, 0)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return sales, nil
	}
	items, err := s.loadSaleItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) ApplyReturn(ctx context.Context, app store.ReturnApplication) (domain.Return, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.Return{}, err
	}
	defer func() { _ = tx.Rollback() }()

	saleRow := tx.QueryRowContext(ctx, `
		SELECT id, customer_id, status
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, app.Return.SaleID)
	var saleID, saleStatus string
	var customerID sql.NullString
	if err := saleRow.Scan(&saleID, &customerID, &saleStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Return{}, fmt.Errorf("sale %s: %w", app.Return.SaleID, store.ErrNotFound)
		}
		return domain.Return{}, err
	}
	if app.StoreCredit != nil && customerID.String == "" {
		return domain.Return{}, store.ErrCreditRequiresCustomer
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT product_id, product_name, qty, returnable_qty, unit_price_cents, total_cents
		FROM sale_items
		WHERE sale_id = $1
		FOR UPDATE
	`, saleID)
	if err != nil {
		return domain.Return{}, err
	}
	saleItems := make([]domain.SaleItem, 0)
	for itemRows.Next() {
		var item domain.SaleItem
		if err := itemRows.Scan(&item.ProductID, &item.ProductName, &item.Qty, &item.ReturnableQty, &item.UnitPriceCents, &item.TotalCents); err != nil {
			_ = itemRows.Close()
			return domain.Return{}, err
		}
		saleItems = append(saleItems, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return domain.Return{}, err
	}
	_ = itemRows.Close()

	byProduct := make(map[string]*domain.SaleItem, len(saleItems))
	for i := range saleItems {
		byProduct[saleItems[i].ProductID] = &saleItems[i]
	}

	ret := app.Return
	ret.Items = make([]domain.ReturnItem, 0, len(app.Return.Items))
	total := int64(0)
	for _, line := range app.Return.Items {
		item, ok := byProduct[line.ProductID]
		if !ok {
			return domain.Return{}, fmt.Errorf("product %s is not part of sale %s: %w", line.ProductID, saleID, store.ErrValidation)
		}
		if line.Qty < 1 || line.Qty > item.ReturnableQty {
			return domain.Return{}, fmt.Errorf("product %s qty %d: %w", line.ProductID, line.Qty, store.ErrInvalidReturnQuantity)
		}
		item.ReturnableQty -= line.Qty
		total += int64(line.Qty) * item.UnitPriceCents
		ret.Items = append(ret.Items, domain.ReturnItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Qty:            line.Qty,
			UnitPriceCents: item.UnitPriceCents,
		})

		if _, err := tx.ExecContext(ctx, `
			UPDATE sale_items SET returnable_qty = $3 WHERE sale_id = $1 AND product_id = $2
		`, saleID, item.ProductID, item.ReturnableQty); err != nil {
			return domain.Return{}, err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $2 WHERE id = $1
		`, line.ProductID, line.Qty); err != nil {
			return domain.Return{}, err
		}
	}
	ret.TotalCents = total

	newStatus := domain.SaleStatusFromItems(saleStatus, saleItems)
	if newStatus != saleStatus {
		if _, err := tx.ExecContext(ctx, `
			UPDATE sales SET status = $2 WHERE id = $1
		`, saleID, newStatus); err != nil {
			return domain.Return{}, err
		}
	}

	if app.StoreCredit != nil {
		credit := *app.StoreCredit
		credit.InitialCents = total
		credit.BalanceCents = total
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO store_credits (id, customer_id, customer_name, source_sale_id, initial_cents, balance_cents, status, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, credit.ID, credit.CustomerID, nullIfEmpty(credit.CustomerName), nullIfEmpty(credit.SourceSaleID), credit.InitialCents, credit.BalanceCents, credit.Status, credit.CreatedAt, credit.ExpiresAt); err != nil {
			return domain.Return{}, err
		}
		ret.StoreCreditID = credit.ID
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO returns (id, sale_id, outcome, reason, total_cents, store_credit_id, processed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ret.ID, ret.SaleID, ret.Outcome, nullIfEmpty(ret.Reason), ret.TotalCents, nullIfEmpty(ret.StoreCreditID), nullIfEmpty(ret.ProcessedBy), ret.CreatedAt); err != nil {
		return domain.Return{}, err
	}
	for _, item := range ret.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO return_items (return_id, product_id, product_name, qty, unit_price_cents)
			VALUES ($1, $2, $3, $4, $5)
		`, ret.ID, item.ProductID, item.ProductName, item.Qty, item.UnitPriceCents); err != nil {
			return domain.Return{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Return{}, err
	}
	return ret, nil
}

func (s *Store) ListReturns(ctx context.Context) ([]domain.Return, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, outcome, reason, total_cents, store_credit_id, processed_by, created_at
		FROM returns
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.Return, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var ret domain.Return
		var reason, creditID, processedBy sql.NullString
		if err := rows.Scan(&ret.ID, &ret.SaleID, &ret.Outcome, &reason, &ret.TotalCents, &creditID, &processedBy, &ret.CreatedAt); err != nil {
			return nil, err
		}
		ret.Reason = reason.String
		ret.StoreCreditID = creditID.String
		ret.ProcessedBy = processedBy.String
		returns = append(returns, ret)
		ids = append(ids, ret.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return returns, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT return_id, product_id, product_name, qty, unit_price_cents
		FROM return_items
		WHERE return_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	itemsByReturn := make(map[string][]domain.ReturnItem)
	for itemRows.Next() {
		var returnID string
		var item domain.ReturnItem
		if err := itemRows.Scan(&returnID, &item.ProductID, &item.ProductName, &item.Qty, &item.UnitPriceCents); err != nil {
			return nil, err
		}
		itemsByReturn[returnID] = append(itemsByReturn[returnID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	for i := range returns {
		returns[i].Items = itemsByReturn[returns[i].ID]
	}
	return returns, nil
}

func (s *Store) ListStoreCredits(ctx context.Context) ([]domain.StoreCredit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, customer_name, source_sale_id, initial_cents, balance_cents, status, created_at, expires_at
		FROM store_credits
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StoreCredit, 0)
	for rows.Next() {
		credit, err := scanStoreCredit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, credit)
	}
	return result, rows.Err()
}

func (s *Store) GetStoreCredit(ctx context.Context, id string) (domain.StoreCredit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, customer_name, source_sale_id, initial_cents, balance_cents, status, created_at, expires_at
		FROM store_credits
		WHERE id = $1
	`, id)
	credit, err := scanStoreCredit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoreCredit{}, fmt.Errorf("store credit %s: %w", id, store.ErrNotFound)
	}
	return credit, err
}

func (s *Store) CreateSession(ctx context.Context, session domain.CashSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_sessions (id, operator, status, opening_cents, counted_cents, calculated_cents, sangria_total_cents, store_credit_used_cents, opened_at)
		VALUES ($1, $2, $3, $4, 0, 0, 0, 0, $5)
	`, session.ID, nullIfEmpty(session.Operator), session.Status, session.OpeningCents, session.OpenedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("open session exists: %w", store.ErrSessionAlreadyOpen)
	}
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.CashSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, operator, status, opening_cents, counted_cents, calculated_cents, sales_summary, sangria_total_cents, store_credit_used_cents, notes, opened_at, closed_at
		FROM cash_sessions
		WHERE id = $1
	`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CashSession{}, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return domain.CashSession{}, err
	}
	return s.attachSangrias(ctx, session)
}

func (s *Store) GetOpenSession(ctx context.Context) (domain.CashSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, operator, status, opening_cents, counted_cents, calculated_cents, sales_summary, sangria_total_cents, store_credit_used_cents, notes, opened_at, closed_at
		FROM cash_sessions
		WHERE status = $1
		LIMIT 1
	`, domain.SessionStatusOpen)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CashSession{}, store.ErrNoOpenSession
	}
	if err != nil {
		return domain.CashSession{}, err
	}
	return s.attachSangrias(ctx, session)
}

func (s *Store) ListSessions(ctx context.Context) ([]domain.CashSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operator, status, opening_cents, counted_cents, calculated_cents, sales_summary, sangria_total_cents, store_credit_used_cents, notes, opened_at, closed_at
		FROM cash_sessions
		ORDER BY opened_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.CashSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sangriaRows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, amount_cents, reason, operator, created_at
		FROM sangrias
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer sangriaRows.Close()

	bySession := make(map[string][]domain.Sangria)
	for sangriaRows.Next() {
		sangria, err := scanSangria(sangriaRows)
		if err != nil {
			return nil, err
		}
		bySession[sangria.SessionID] = append(bySession[sangria.SessionID], sangria)
	}
	if err := sangriaRows.Err(); err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Sangrias = bySession[sessions[i].ID]
	}
	return sessions, nil
}

func (s *Store) CreateSangria(ctx context.Context, sangria domain.Sangria) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM cash_sessions WHERE id = $1 FOR UPDATE
	`, sangria.SessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s: %w", sangria.SessionID, store.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if status != domain.SessionStatusOpen {
		return fmt.Errorf("session %s: %w", sangria.SessionID, store.ErrNoOpenSession)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sangrias (id, session_id, amount_cents, reason, operator, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sangria.ID, sangria.SessionID, sangria.AmountCents, nullIfEmpty(sangria.Reason), nullIfEmpty(sangria.Operator), sangria.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CloseSession(ctx context.Context, id string, countedCents int64, notes string, closedAt time.Time) (domain.CashSession, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.CashSession{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, operator, status, opening_cents, counted_cents, calculated_cents, sales_summary, sangria_total_cents, store_credit_used_cents, notes, opened_at, closed_at
		FROM cash_sessions
		WHERE id = $1
		FOR UPDATE
	`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CashSession{}, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return domain.CashSession{}, err
	}
	if session.Status != domain.SessionStatusOpen {
		return domain.CashSession{}, fmt.Errorf("session %s: %w", id, store.ErrNoOpenSession)
	}

	saleRows, err := tx.QueryContext(ctx, `
		SELECT payment_method, total_cents, store_credit_used_cents
		FROM sales
		WHERE created_at >= $1
	`, session.OpenedAt)
	if err != nil {
		return domain.CashSession{}, err
	}
	summary := make(map[string]int64)
	creditUsed := int64(0)
	for saleRows.Next() {
		var method string
		var totalCents, saleCreditUsed int64
		if err := saleRows.Scan(&method, &totalCents, &saleCreditUsed); err != nil {
			_ = saleRows.Close()
			return domain.CashSession{}, err
		}
		cashPortion := totalCents - saleCreditUsed
		if cashPortion > 0 {
			summary[method] += cashPortion
		} else if method == domain.PaymentTradeCredit {
			summary[domain.PaymentTradeCredit] += totalCents
		}
		creditUsed += saleCreditUsed
	}
	if err := saleRows.Err(); err != nil {
		_ = saleRows.Close()
		return domain.CashSession{}, err
	}
	_ = saleRows.Close()

	var sangriaTotal int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM sangrias WHERE session_id = $1
	`, id).Scan(&sangriaTotal); err != nil {
		return domain.CashSession{}, err
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return domain.CashSession{}, err
	}

	session.Status = domain.SessionStatusClosed
	session.CountedCents = countedCents
	session.CalculatedCents = session.OpeningCents + summary[domain.PaymentCash] - sangriaTotal
	session.SalesSummaryCents = summary
	session.SangriaTotalCents = sangriaTotal
	session.StoreCreditUsedCents = creditUsed
	session.Notes = notes
	session.ClosedAt = &closedAt

	if _, err := tx.ExecContext(ctx, `
		UPDATE cash_sessions
		SET status = $2, counted_cents = $3, calculated_cents = $4, sales_summary = $5,
		    sangria_total_cents = $6, store_credit_used_cents = $7, notes = $8, closed_at = $9
		WHERE id = $1
	`, id, session.Status, session.CountedCents, session.CalculatedCents, summaryJSON, session.SangriaTotalCents, session.StoreCreditUsedCents, nullIfEmpty(session.Notes), closedAt); err != nil {
		return domain.CashSession{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.CashSession{}, err
	}
	return s.attachSangrias(ctx, session)
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, supplier_id, supplier_name, status, total_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, po.ID, po.SupplierID, po.SupplierName, po.Status, po.TotalCents, po.CreatedAt); err != nil {
		return err
	}
	for _, item := range po.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (po_id, product_id, product_name, qty_ordered, qty_received, unit_cost_cents)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, po.ID, item.ProductID, item.ProductName, item.QtyOrdered, item.QtyReceived, item.UnitCostCents); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, supplier_id, supplier_name, status, total_cents, created_at, received_at
		FROM purchase_orders
		WHERE id = $1
	`, id)
	po, err := scanPurchaseOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PurchaseOrder{}, fmt.Errorf("purchase order %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	items, err := s.loadPurchaseOrderItems(ctx, []string{po.ID})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	po.Items = items[po.ID]
	return po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context) ([]domain.PurchaseOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_id, supplier_name, status, total_cents, created_at, received_at
		FROM purchase_orders
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.PurchaseOrder, 0)
	ids := make([]string, 0)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, po)
		ids = append(ids, po.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return orders, nil
	}

	items, err := s.loadPurchaseOrderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (s *Store) ReceivePurchaseOrder(ctx context.Context, id string, received map[string]int, payable domain.AccountPayable, receivedAt time.Time) (domain.PurchaseOrder, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, supplier_id, supplier_name, status, total_cents, created_at, received_at
		FROM purchase_orders
		WHERE id = $1
		FOR UPDATE
	`, id)
	po, err := scanPurchaseOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PurchaseOrder{}, fmt.Errorf("purchase order %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT product_id, product_name, qty_ordered, qty_received, unit_cost_cents
		FROM purchase_order_items
		WHERE po_id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	items := make([]domain.PurchaseOrderItem, 0)
	for itemRows.Next() {
		var item domain.PurchaseOrderItem
		if err := itemRows.Scan(&item.ProductID, &item.ProductName, &item.QtyOrdered, &item.QtyReceived, &item.UnitCostCents); err != nil {
			_ = itemRows.Close()
			return domain.PurchaseOrder{}, err
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return domain.PurchaseOrder{}, err
	}
	_ = itemRows.Close()

	receivedValue := int64(0)
	for i := range items {
		item := &items[i]
		requested, ok := received[item.ProductID]
		if !ok || requested <= 0 {
			continue
		}
		actual := item.QtyOrdered - item.QtyReceived
		if requested < actual {
			actual = requested
		}
		if actual <= 0 {
			continue
		}
		item.QtyReceived += actual
		receivedValue += int64(actual) * item.UnitCostCents

		if _, err := tx.ExecContext(ctx, `
			UPDATE purchase_order_items SET qty_received = $3 WHERE po_id = $1 AND product_id = $2
		`, id, item.ProductID, item.QtyReceived); err != nil {
			return domain.PurchaseOrder{}, err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $2 WHERE id = $1
		`, item.ProductID, actual); err != nil {
			return domain.PurchaseOrder{}, err
		}
	}

	po.Items = items
	po.Status = domain.PurchaseOrderStatusFromItems(items)
	if po.Status == domain.POStatusReceived && po.ReceivedAt == nil {
		po.ReceivedAt = &receivedAt
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $2, received_at = $3 WHERE id = $1
	`, id, po.Status, nullTime(po.ReceivedAt)); err != nil {
		return domain.PurchaseOrder{}, err
	}

	if receivedValue > 0 {
		payable.AmountCents = receivedValue
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO accounts_payable (id, supplier_id, supplier_name, description, amount_cents, due_date, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, payable.ID, nullIfEmpty(payable.SupplierID), nullIfEmpty(payable.SupplierName), payable.Description, payable.AmountCents, payable.DueDate, payable.Status, payable.CreatedAt); err != nil {
			return domain.PurchaseOrder{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.PurchaseOrder{}, err
	}
	return po, nil
}

func (s *Store) CreateAccountPayable(ctx context.Context, payable domain.AccountPayable) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts_payable (id, supplier_id, supplier_name, description, amount_cents, due_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, payable.ID, nullIfEmpty(payable.SupplierID), nullIfEmpty(payable.SupplierName), payable.Description, payable.AmountCents, payable.DueDate, payable.Status, payable.CreatedAt)
	return err
}

func (s *Store) ListAccountsPayable(ctx context.Context) ([]domain.AccountPayable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_id, supplier_name, description, amount_cents, due_date, status, created_at, paid_at
		FROM accounts_payable
		ORDER BY due_date, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.AccountPayable, 0)
	for rows.Next() {
		payable, err := scanPayable(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, payable)
	}
	return result, rows.Err()
}

func (s *Store) MarkAccountPayablePaid(ctx context.Context, id string, paidAt time.Time) (domain.AccountPayable, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE accounts_payable
		SET status = $2, paid_at = COALESCE(paid_at, $3)
		WHERE id = $1
		RETURNING id, supplier_id, supplier_name, description, amount_cents, due_date, status, created_at, paid_at
	`, id, domain.PayableStatusPaid, paidAt)
	payable, err := scanPayable(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AccountPayable{}, fmt.Errorf("account payable %s: %w", id, store.ErrNotFound)
	}
	return payable, err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s exists: %w", user.Username, store.ErrValidation)
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.UserAccount, 0)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", username, store.ErrNotFound)
	}
	return nil
}

func (s *Store) AppendAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, nullIfEmpty(entry.ActorUsername), nullIfEmpty(entry.ActorRole), entry.Action, entry.EntityType, entry.EntityID, nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.AuditLog, 0)
	for rows.Next() {
		var entry domain.AuditLog
		var actorUsername, actorRole, detail sql.NullString
		if err := rows.Scan(&entry.ID, &actorUsername, &actorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.ActorUsername = actorUsername.String
		entry.ActorRole = actorRole.String
		entry.Detail = detail.String
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (s *Store) loadSaleItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, qty, returnable_qty, unit_price_cents, total_cents
		FROM sale_items
		WHERE sale_id = ANY($1)
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]domain.SaleItem, len(saleIDs))
	for rows.Next() {
		var saleID string
		var item domain.SaleItem
		if err := rows.Scan(&saleID, &item.ProductID, &item.ProductName, &item.Qty, &item.ReturnableQty, &item.UnitPriceCents, &item.TotalCents); err != nil {
			return nil, err
		}
		result[saleID] = append(result[saleID], item)
	}
	return result, rows.Err()
}

func (s *Store) loadPurchaseOrderItems(ctx context.Context, poIDs []string) (map[string][]domain.PurchaseOrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT po_id, product_id, product_name, qty_ordered, qty_received, unit_cost_cents
		FROM purchase_order_items
		WHERE po_id = ANY($1)
	`, poIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]domain.PurchaseOrderItem, len(poIDs))
	for rows.Next() {
		var poID string
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&poID, &item.ProductID, &item.ProductName, &item.QtyOrdered, &item.QtyReceived, &item.UnitCostCents); err != nil {
			return nil, err
		}
		result[poID] = append(result[poID], item)
	}
	return result, rows.Err()
}

func (s *Store) attachSangrias(ctx context.Context, session domain.CashSession) (domain.CashSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, amount_cents, reason, operator, created_at
		FROM sangrias
		WHERE session_id = $1
		ORDER BY created_at
	`, session.ID)
	if err != nil {
		return domain.CashSession{}, err
	}
	defer rows.Close()

	session.Sangrias = make([]domain.Sangria, 0)
	for rows.Next() {
		sangria, err := scanSangria(rows)
		if err != nil {
			return domain.CashSession{}, err
		}
		session.Sangrias = append(session.Sangrias, sangria)
	}
	return session, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var barcode, category sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &barcode, &category, &p.PriceCents, &p.CostCents, &p.Stock, &p.LowStockThreshold, &p.Active); err != nil {
		return domain.Product{}, err
	}
	p.Barcode = barcode.String
	p.Category = category.String
	return p, nil
}

func scanProducts(rows *sql.Rows) ([]domain.Product, error) {
	result := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, product)
	}
	return result, rows.Err()
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var customerID, customerName sql.NullString
	if err := row.Scan(&sale.ID, &customerID, &customerName, &sale.PaymentMethod, &sale.TotalCents, &sale.StoreCreditUsedCents, &sale.Status, &sale.NFCeAccessKey, &sale.NFCeQRCodeURL, &sale.CreatedAt); err != nil {
		return domain.Sale{}, err
	}
	sale.CustomerID = customerID.String
	sale.CustomerName = customerName.String
	return sale, nil
}

func scanStoreCredit(row rowScanner) (domain.StoreCredit, error) {
	var credit domain.StoreCredit
	var customerName, sourceSaleID sql.NullString
	if err := row.Scan(&credit.ID, &credit.CustomerID, &customerName, &sourceSaleID, &credit.InitialCents, &credit.BalanceCents, &credit.Status, &credit.CreatedAt, &credit.ExpiresAt); err != nil {
		return domain.StoreCredit{}, err
	}
	credit.CustomerName = customerName.String
	credit.SourceSaleID = sourceSaleID.String
	return credit, nil
}

func scanSession(row rowScanner) (domain.CashSession, error) {
	var session domain.CashSession
	var operator, notes sql.NullString
	var summaryJSON []byte
	var closedAt sql.NullTime
	if err := row.Scan(&session.ID, &operator, &session.Status, &session.OpeningCents, &session.CountedCents, &session.CalculatedCents, &summaryJSON, &session.SangriaTotalCents, &session.StoreCreditUsedCents, &notes, &session.OpenedAt, &closedAt); err != nil {
		return domain.CashSession{}, err
	}
	session.Operator = operator.String
	session.Notes = notes.String
	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &session.SalesSummaryCents); err != nil {
			return domain.CashSession{}, err
		}
	}
	if closedAt.Valid {
		closed := closedAt.Time
		session.ClosedAt = &closed
	}
	return session, nil
}

func scanSangria(row rowScanner) (domain.Sangria, error) {
	var sangria domain.Sangria
	var reason, operator sql.NullString
	if err := row.Scan(&sangria.ID, &sangria.SessionID, &sangria.AmountCents, &reason, &operator, &sangria.CreatedAt); err != nil {
		return domain.Sangria{}, err
	}
	sangria.Reason = reason.String
	sangria.Operator = operator.String
	return sangria, nil
}

func scanPurchaseOrder(row rowScanner) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var receivedAt sql.NullTime
	if err := row.Scan(&po.ID, &po.SupplierID, &po.SupplierName, &po.Status, &po.TotalCents, &po.CreatedAt, &receivedAt); err != nil {
		return domain.PurchaseOrder{}, err
	}
	if receivedAt.Valid {
		received := receivedAt.Time
		po.ReceivedAt = &received
	}
	return po, nil
}

func scanPayable(row rowScanner) (domain.AccountPayable, error) {
	var payable domain.AccountPayable
	var supplierID, supplierName sql.NullString
	var paidAt sql.NullTime
	if err := row.Scan(&payable.ID, &supplierID, &supplierName, &payable.Description, &payable.AmountCents, &payable.DueDate, &payable.Status, &payable.CreatedAt, &paidAt); err != nil {
		return domain.AccountPayable{}, err
	}
	payable.SupplierID = supplierID.String
	payable.SupplierName = supplierName.String
	if paidAt.Valid {
		paid := paidAt.Time
		payable.PaidAt = &paid
	}
	return payable, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
