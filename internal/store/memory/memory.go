package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"pdvlite/backend/internal/domain"
	"pdvlite/backend/internal/store"
)

// Store is an in-memory Repository used for development and tests. Every
// multi-entity operation runs under the single write lock, which gives the
// same all-or-nothing behavior the postgres store gets from transactions.
type Store struct {
	mu sync.RWMutex

	products  map[string]domain.Product
	customers map[string]domain.Customer
	suppliers map[string]domain.Supplier
	sales     map[string]domain.Sale
	returns   map[string]domain.Return
	credits   map[string]domain.StoreCredit
	sessions  map[string]domain.CashSession
	sangrias  map[string][]domain.Sangria
	orders    map[string]domain.PurchaseOrder
	payables  map[string]domain.AccountPayable
	users     map[string]domain.UserAccount
	audit     []domain.AuditLog

	// openSessionID is the storage-level single-open-session slot. CreateSession
	// fails while it is occupied, the same way the postgres partial unique
	// index does.
	openSessionID string
}

func New() *Store {
	return &Store{
		products:  make(map[string]domain.Product),
		customers: make(map[string]domain.Customer),
		suppliers: make(map[string]domain.Supplier),
		sales:     make(map[string]domain.Sale),
		returns:   make(map[string]domain.Return),
		credits:   make(map[string]domain.StoreCredit),
		sessions:  make(map[string]domain.CashSession),
		sangrias:  make(map[string][]domain.Sangria),
		orders:    make(map[string]domain.PurchaseOrder),
		payables:  make(map[string]domain.AccountPayable),
		users:     make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with a small catalog, parties and a
// default admin account so the server is usable out of the box.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	seedProducts := []domain.Product{
		{ID: "prod-arroz-5kg", Name: "Arroz Branco 5kg", Barcode: "7891234500011", Category: "mercearia", PriceCents: 2550, CostCents: 1890, Stock: 40, LowStockThreshold: 10, Active: true},
		{ID: "prod-feijao-1kg", Name: "Feijão Carioca 1kg", Barcode: "7891234500028", Category: "mercearia", PriceCents: 899, CostCents: 610, Stock: 60, LowStockThreshold: 15, Active: true},
		{ID: "prod-cafe-500g", Name: "Café Torrado 500g", Barcode: "7891234500035", Category: "mercearia", PriceCents: 1790, CostCents: 1240, Stock: 25, LowStockThreshold: 8, Active: true},
		{ID: "prod-oleo-900ml", Name: "Óleo de Soja 900ml", Barcode: "7891234500042", Category: "mercearia", PriceCents: 749, CostCents: 520, Stock: 48, LowStockThreshold: 12, Active: true},
		{ID: "prod-acucar-1kg", Name: "Açúcar Cristal 1kg", Barcode: "7891234500059", Category: "mercearia", PriceCents: 479, CostCents: 310, Stock: 70, LowStockThreshold: 20, Active: true},
		{ID: "prod-sabao-po", Name: "Sabão em Pó 1kg", Barcode: "7891234500066", Category: "limpeza", PriceCents: 1290, CostCents: 860, Stock: 18, LowStockThreshold: 6, Active: true},
		{ID: "prod-refri-2l", Name: "Refrigerante Cola 2L", Barcode: "7891234500073", Category: "bebidas", PriceCents: 999, CostCents: 640, Stock: 36, LowStockThreshold: 12, Active: true},
	}
	for _, p := range seedProducts {
		s.products[p.ID] = p
	}

	s.customers["cust-maria"] = domain.Customer{ID: "cust-maria", Name: "Maria Souza", Document: "123.456.789-09", Phone: "(51) 99876-1234", CreatedAt: now}
	s.customers["cust-joao"] = domain.Customer{ID: "cust-joao", Name: "João Pereira", Document: "987.654.321-00", CreatedAt: now}

	s.suppliers["sup-atacadao"] = domain.Supplier{ID: "sup-atacadao", Name: "Atacadão Sul Distribuidora", CNPJ: "12.345.678/0001-90", Phone: "(51) 3222-4455", CreatedAt: now}
	s.suppliers["sup-hortifruti"] = domain.Supplier{ID: "sup-hortifruti", Name: "Hortifruti Vale Verde", CNPJ: "98.765.432/0001-10", CreatedAt: now}

	s.users["admin"] = domain.UserAccount{Username: "admin", Password: "admin123", Role: domain.RoleAdmin, Active: true, CreatedAt: now}
	s.users["caixa1"] = domain.UserAccount{Username: "caixa1", Password: "caixa123", Role: domain.RoleCashier, Active: true, CreatedAt: now}

	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		result = append(result, p)
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.Active && p.Stock <= p.LowStockThreshold {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		if a.Stock != b.Stock {
			return a.Stock - b.Stock
		}
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

// SetProduct is a test and seeding helper.
func (s *Store) SetProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
	}
	return c, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customer.ID] = customer
	return nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		result = append(result, sup)
	}
	slices.SortFunc(result, func(a, b domain.Supplier) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sup, ok := s.suppliers[id]
	if !ok {
		return domain.Supplier{}, fmt.Errorf("supplier %s: %w", id, store.ErrNotFound)
	}
	return sup, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers[supplier.ID] = supplier
	return nil
}

func (s *Store) CreateSale(_ context.Context, commit store.SaleCommit) (domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale := cloneSale(commit.Sale)
	now := sale.CreatedAt

	// Validate the whole cart before touching credits or stock, so a bad
	// product id fails the sale with nothing written.
	for _, item := range sale.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return domain.Sale{}, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
	}

	// Consume the selected store credits in order. Credits that disappeared,
	// expired or were already used are skipped rather than failing the sale.
	deducted := int64(0)
	remaining := commit.CreditAmountCents
	for _, creditID := range commit.CreditIDs {
		if remaining <= 0 {
			break
		}
		credit, ok := s.credits[creditID]
		if !ok || credit.Status != domain.CreditStatusActive || credit.BalanceCents <= 0 {
			continue
		}
		if !credit.ExpiresAt.IsZero() && credit.ExpiresAt.Before(now) {
			// Lapsed credits flip to expired the first time they are touched.
			credit.Status = domain.CreditStatusExpired
			s.credits[creditID] = credit
			continue
		}
		take := credit.BalanceCents
		if take > remaining {
			take = remaining
		}
		credit.BalanceCents -= take
		if credit.BalanceCents == 0 {
			credit.Status = domain.CreditStatusUsed
		}
		s.credits[creditID] = credit
		deducted += take
		remaining -= take
	}
	sale.StoreCreditUsedCents = deducted

	// Stock is decremented without an availability floor; the counter is the
	// source of truth and negative stock surfaces on the low-stock report.
	for _, item := range sale.Items {
		product := s.products[item.ProductID]
		product.Stock -= item.Qty
		s.products[item.ProductID] = product
	}

	s.sales[sale.ID] = sale
	return cloneSale(sale), nil
}

func (s *Store) GetSale(_ context.Context, id string) (domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[id]
	if !ok {
		return domain.Sale{}, fmt.Errorf("sale %s: %w", id, store.ErrNotFound)
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		result = append(result, cloneSale(sale))
	}
	sortRecentFirst(result, func(sale domain.Sale) (time.Time, string) {
		return sale.CreatedAt, sale.ID
	})
	return result, nil
}

func (s *Store) ApplyReturn(_ context.Context, app store.ReturnApplication) (domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[app.Return.SaleID]
	if !ok {
		return domain.Return{}, fmt.Errorf("sale %s: %w", app.Return.SaleID, store.ErrNotFound)
	}
	if app.StoreCredit != nil && sale.CustomerID == "" {
		return domain.Return{}, store.ErrCreditRequiresCustomer
	}

	updated := cloneSale(sale)
	ret := app.Return
	ret.Items = make([]domain.ReturnItem, 0, len(ret.Items))
	total := int64(0)

	for _, line := range app.Return.Items {
		idx := -1
		for i := range updated.Items {
			if updated.Items[i].ProductID == line.ProductID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return domain.Return{}, fmt.Errorf("product %s is not part of sale %s: %w", line.ProductID, sale.ID, store.ErrValidation)
		}
		item := &updated.Items[idx]
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

		if product, ok := s.products[line.ProductID]; ok {
			product.Stock += line.Qty
			s.products[line.ProductID] = product
		}
	}

	ret.TotalCents = total
	updated.Status = domain.SaleStatusFromItems(updated.Status, updated.Items)

	if app.StoreCredit != nil {
		credit := *app.StoreCredit
		credit.InitialCents = total
		credit.BalanceCents = total
		s.credits[credit.ID] = credit
		ret.StoreCreditID = credit.ID
	}

	s.sales[updated.ID] = updated
	s.returns[ret.ID] = cloneReturn(ret)
	return cloneReturn(ret), nil
}

func (s *Store) ListReturns(_ context.Context) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Return, 0, len(s.returns))
	for _, ret := range s.returns {
		result = append(result, cloneReturn(ret))
	}
	sortRecentFirst(result, func(ret domain.Return) (time.Time, string) {
		return ret.CreatedAt, ret.ID
	})
	return result, nil
}

func (s *Store) ListStoreCredits(_ context.Context) ([]domain.StoreCredit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.StoreCredit, 0, len(s.credits))
	for _, credit := range s.credits {
		result = append(result, credit)
	}
	sortRecentFirst(result, func(credit domain.StoreCredit) (time.Time, string) {
		return credit.CreatedAt, credit.ID
	})
	return result, nil
}

func (s *Store) GetStoreCredit(_ context.Context, id string) (domain.StoreCredit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credit, ok := s.credits[id]
	if !ok {
		return domain.StoreCredit{}, fmt.Errorf("store credit %s: %w", id, store.ErrNotFound)
	}
	return credit, nil
}

// SetStoreCredit is a test helper.
func (s *Store) SetStoreCredit(credit domain.StoreCredit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credits[credit.ID] = credit
}

func (s *Store) CreateSession(_ context.Context, session domain.CashSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openSessionID != "" {
		return fmt.Errorf("session %s is open: %w", s.openSessionID, store.ErrSessionAlreadyOpen)
	}
	s.sessions[session.ID] = cloneSession(session)
	s.openSessionID = session.ID
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.CashSession{}, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return s.sessionWithSangrias(session), nil
}

func (s *Store) GetOpenSession(_ context.Context) (domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.openSessionID == "" {
		return domain.CashSession{}, store.ErrNoOpenSession
	}
	return s.sessionWithSangrias(s.sessions[s.openSessionID]), nil
}

func (s *Store) ListSessions(_ context.Context) ([]domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.CashSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		result = append(result, s.sessionWithSangrias(session))
	}
	sortRecentFirst(result, func(session domain.CashSession) (time.Time, string) {
		return session.OpenedAt, session.ID
	})
	return result, nil
}

func (s *Store) CreateSangria(_ context.Context, sangria domain.Sangria) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sangria.SessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sangria.SessionID, store.ErrNotFound)
	}
	if session.Status != domain.SessionStatusOpen {
		return fmt.Errorf("session %s: %w", sangria.SessionID, store.ErrNoOpenSession)
	}
	s.sangrias[sangria.SessionID] = append(s.sangrias[sangria.SessionID], sangria)
	return nil
}

func (s *Store) CloseSession(_ context.Context, id string, countedCents int64, notes string, closedAt time.Time) (domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return domain.CashSession{}, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if session.Status != domain.SessionStatusOpen {
		return domain.CashSession{}, fmt.Errorf("session %s: %w", id, store.ErrNoOpenSession)
	}

	summary := make(map[string]int64)
	creditUsed := int64(0)
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(session.OpenedAt) {
			continue
		}
		cashPortion := sale.TotalCents - sale.StoreCreditUsedCents
		if cashPortion > 0 {
			summary[sale.PaymentMethod] += cashPortion
		} else if sale.PaymentMethod == domain.PaymentTradeCredit {
			// Fully credit-funded exchanges still show up on the closing
			// report under their own tender line.
			summary[domain.PaymentTradeCredit] += sale.TotalCents
		}
		creditUsed += sale.StoreCreditUsedCents
	}

	sangriaTotal := int64(0)
	for _, sangria := range s.sangrias[id] {
		sangriaTotal += sangria.AmountCents
	}

	session.Status = domain.SessionStatusClosed
	session.CountedCents = countedCents
	session.CalculatedCents = session.OpeningCents + summary[domain.PaymentCash] - sangriaTotal
	session.SalesSummaryCents = summary
	session.SangriaTotalCents = sangriaTotal
	session.StoreCreditUsedCents = creditUsed
	session.Notes = notes
	session.ClosedAt = &closedAt

	s.sessions[id] = cloneSession(session)
	if s.openSessionID == id {
		s.openSessionID = ""
	}
	return s.sessionWithSangrias(session), nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[po.ID] = clonePurchaseOrder(po)
	return nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id string) (domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	po, ok := s.orders[id]
	if !ok {
		return domain.PurchaseOrder{}, fmt.Errorf("purchase order %s: %w", id, store.ErrNotFound)
	}
	return clonePurchaseOrder(po), nil
}

func (s *Store) ListPurchaseOrders(_ context.Context) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.PurchaseOrder, 0, len(s.orders))
	for _, po := range s.orders {
		result = append(result, clonePurchaseOrder(po))
	}
	sortRecentFirst(result, func(po domain.PurchaseOrder) (time.Time, string) {
		return po.CreatedAt, po.ID
	})
	return result, nil
}

func (s *Store) ReceivePurchaseOrder(_ context.Context, id string, received map[string]int, payable domain.AccountPayable, receivedAt time.Time) (domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.orders[id]
	if !ok {
		return domain.PurchaseOrder{}, fmt.Errorf("purchase order %s: %w", id, store.ErrNotFound)
	}

	updated := clonePurchaseOrder(po)
	receivedValue := int64(0)
	for i := range updated.Items {
		item := &updated.Items[i]
		requested, ok := received[item.ProductID]
		if !ok || requested <= 0 {
			continue
		}
		// Over-receipts are clamped to what is still outstanding on the line.
		actual := item.QtyOrdered - item.QtyReceived
		if requested < actual {
			actual = requested
		}
		if actual <= 0 {
			continue
		}
		item.QtyReceived += actual
		receivedValue += int64(actual) * item.UnitCostCents

		if product, ok := s.products[item.ProductID]; ok {
			product.Stock += actual
			s.products[item.ProductID] = product
		}
	}

	updated.Status = domain.PurchaseOrderStatusFromItems(updated.Items)
	if updated.Status == domain.POStatusReceived && updated.ReceivedAt == nil {
		updated.ReceivedAt = &receivedAt
	}

	if receivedValue > 0 {
		entry := payable
		entry.AmountCents = receivedValue
		s.payables[entry.ID] = entry
	}

	s.orders[id] = clonePurchaseOrder(updated)
	return updated, nil
}

func (s *Store) CreateAccountPayable(_ context.Context, payable domain.AccountPayable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payables[payable.ID] = payable
	return nil
}

func (s *Store) ListAccountsPayable(_ context.Context) ([]domain.AccountPayable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.AccountPayable, 0, len(s.payables))
	for _, payable := range s.payables {
		result = append(result, payable)
	}
	slices.SortFunc(result, func(a, b domain.AccountPayable) int {
		if !a.DueDate.Equal(b.DueDate) {
			if a.DueDate.Before(b.DueDate) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) MarkAccountPayablePaid(_ context.Context, id string, paidAt time.Time) (domain.AccountPayable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payable, ok := s.payables[id]
	if !ok {
		return domain.AccountPayable{}, fmt.Errorf("account payable %s: %w", id, store.ErrNotFound)
	}
	if payable.Status != domain.PayableStatusPaid {
		payable.Status = domain.PayableStatusPaid
		payable.PaidAt = &paidAt
		s.payables[id] = payable
	}
	return payable, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		result = append(result, user)
	}
	slices.SortFunc(result, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return fmt.Errorf("user %s: %w", username, store.ErrNotFound)
	}
	user.Password = password
	s.users[username] = user
	return nil
}

func (s *Store) AppendAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.AuditLog, len(s.audit))
	copy(result, s.audit)
	sortRecentFirst(result, func(entry domain.AuditLog) (time.Time, string) {
		return entry.CreatedAt, entry.ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// sessionWithSangrias must be called with at least the read lock held.
func (s *Store) sessionWithSangrias(session domain.CashSession) domain.CashSession {
	out := cloneSession(session)
	rows := s.sangrias[session.ID]
	out.Sangrias = make([]domain.Sangria, len(rows))
	copy(out.Sangrias, rows)
	slices.SortFunc(out.Sangrias, func(a, b domain.Sangria) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

func cloneSale(sale domain.Sale) domain.Sale {
	out := sale
	out.Items = make([]domain.SaleItem, len(sale.Items))
	copy(out.Items, sale.Items)
	return out
}

func cloneReturn(ret domain.Return) domain.Return {
	out := ret
	out.Items = make([]domain.ReturnItem, len(ret.Items))
	copy(out.Items, ret.Items)
	return out
}

func cloneSession(session domain.CashSession) domain.CashSession {
	out := session
	if session.SalesSummaryCents != nil {
		out.SalesSummaryCents = make(map[string]int64, len(session.SalesSummaryCents))
		for method, cents := range session.SalesSummaryCents {
			out.SalesSummaryCents[method] = cents
		}
	}
	if session.ClosedAt != nil {
		closed := *session.ClosedAt
		out.ClosedAt = &closed
	}
	out.Sangrias = nil
	return out
}

func clonePurchaseOrder(po domain.PurchaseOrder) domain.PurchaseOrder {
	out := po
	out.Items = make([]domain.PurchaseOrderItem, len(po.Items))
	copy(out.Items, po.Items)
	if po.ReceivedAt != nil {
		received := *po.ReceivedAt
		out.ReceivedAt = &received
	}
	return out
}

func sortRecentFirst[T any](items []T, key func(T) (time.Time, string)) {
	slices.SortFunc(items, func(a, b T) int {
		at, aid := key(a)
		bt, bid := key(b)
		if c := bt.Compare(at); c != 0 {
			return c
		}
		return strings.Compare(bid, aid)
	})
}
