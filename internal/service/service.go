package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"pdvlite/backend/internal/cache"
	"pdvlite/backend/internal/domain"
	"pdvlite/backend/internal/fiscal"
	"pdvlite/backend/internal/store"
	"pdvlite/backend/internal/xid"
)

const (
	storeCreditValidityDays = 365
	payableTermDays         = 30

	openSessionCacheKey = "cash-session:current"
)

type Service struct {
	repo            store.Repository
	sessionCache    cache.SessionCache
	sessionCacheTTL time.Duration
	now             func() time.Time
}

func New(repo store.Repository, sessionCache cache.SessionCache, sessionCacheTTL time.Duration) *Service {
	if sessionCache == nil {
		sessionCache = cache.NoopSessionCache{}
	}
	if sessionCacheTTL <= 0 {
		sessionCacheTTL = 15 * time.Second
	}
	return &Service{
		repo:            repo,
		sessionCache:    sessionCache,
		sessionCacheTTL: sessionCacheTTL,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// CommitSale settles a cart: prices it from the catalog, consumes any selected
// store credits, decrements stock and stamps the NFC-e metadata, all through a
// single atomic store operation.
func (s *Service) CommitSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	items, err := normalizeCart(req.CartItems)
	if err != nil {
		return domain.Sale{}, err
	}
	if !domain.ValidPaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, fmt.Errorf("unsupported payment method %q: %w", req.PaymentMethod, store.ErrValidation)
	}

	customerName := ""
	if req.CustomerID != "" {
		customer, err := s.repo.GetCustomer(ctx, req.CustomerID)
		if err != nil {
			return domain.Sale{}, err
		}
		customerName = customer.Name
	}

	saleItems := make([]domain.SaleItem, 0, len(items))
	total := int64(0)
	for _, item := range items {
		product, err := s.repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			return domain.Sale{}, err
		}
		lineTotal := int64(item.Qty) * product.PriceCents
		saleItems = append(saleItems, domain.SaleItem{
			ProductID:      product.ID,
			ProductName:    product.Name,
			Qty:            item.Qty,
			ReturnableQty:  item.Qty,
			UnitPriceCents: product.PriceCents,
			TotalCents:     lineTotal,
		})
		total += lineTotal
	}

	commit := store.SaleCommit{}
	if req.StoreCreditPayment != nil {
		payment := req.StoreCreditPayment
		if len(payment.CreditIDs) == 0 {
			return domain.Sale{}, fmt.Errorf("store credit payment lists no credits: %w", store.ErrValidation)
		}
		if payment.AmountCents <= 0 {
			return domain.Sale{}, fmt.Errorf("store credit amount must be positive: %w", store.ErrValidation)
		}
		if payment.AmountCents > total {
			return domain.Sale{}, fmt.Errorf("store credit amount exceeds sale total: %w", store.ErrValidation)
		}
		commit.CreditIDs = payment.CreditIDs
		commit.CreditAmountCents = payment.AmountCents
	}
	if req.PaymentMethod == domain.PaymentTradeCredit && commit.CreditAmountCents <= 0 {
		return domain.Sale{}, fmt.Errorf("trade credit sales require a store credit payment: %w", store.ErrValidation)
	}

	status := domain.SaleStatusCompleted
	if req.PaymentMethod == domain.PaymentOnDelivery {
		status = domain.SaleStatusPendingPayment
	}

	now := s.now()
	accessKey := fiscal.NewAccessKey()
	commit.Sale = domain.Sale{
		ID:            xid.New("sale"),
		CustomerID:    req.CustomerID,
		CustomerName:  customerName,
		PaymentMethod: req.PaymentMethod,
		TotalCents:    total,
		Status:        status,
		NFCeAccessKey: accessKey,
		NFCeQRCodeURL: fiscal.QRCodeURL(accessKey, total),
		CreatedAt:     now,
		Items:         saleItems,
	}

	sale, err := s.repo.CreateSale(ctx, commit)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale.commit", "sale", sale.ID, fmt.Sprintf("total=%d credit_used=%d method=%s", sale.TotalCents, sale.StoreCreditUsedCents, sale.PaymentMethod))
	return sale, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	return s.repo.GetSale(ctx, id)
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

// ProcessReturn takes back items from a settled sale. Quantities are bounded
// by what is still returnable on each line; the store applies the whole return
// or none of it.
func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.Return, error) {
	if strings.TrimSpace(req.SaleID) == "" {
		return domain.Return{}, fmt.Errorf("sale id is required: %w", store.ErrValidation)
	}
	if len(req.Items) == 0 {
		return domain.Return{}, fmt.Errorf("return lists no items: %w", store.ErrValidation)
	}
	if req.Outcome != domain.ReturnOutcomeRefund && req.Outcome != domain.ReturnOutcomeStoreCredit {
		return domain.Return{}, fmt.Errorf("unsupported return outcome %q: %w", req.Outcome, store.ErrValidation)
	}
	for _, line := range req.Items {
		if line.Qty < 1 {
			return domain.Return{}, fmt.Errorf("product %s qty %d: %w", line.ProductID, line.Qty, store.ErrInvalidReturnQuantity)
		}
	}

	sale, err := s.repo.GetSale(ctx, req.SaleID)
	if err != nil {
		return domain.Return{}, err
	}

	now := s.now()
	actor, _ := ActorFromContext(ctx)
	app := store.ReturnApplication{
		Return: domain.Return{
			ID:          xid.New("ret"),
			SaleID:      sale.ID,
			Outcome:     req.Outcome,
			Reason:      strings.TrimSpace(req.Reason),
			ProcessedBy: actor.Username,
			CreatedAt:   now,
			Items:       returnItemsFromLines(req.Items),
		},
	}
	if req.Outcome == domain.ReturnOutcomeStoreCredit {
		if sale.CustomerID == "" {
			return domain.Return{}, fmt.Errorf("sale %s has no customer: %w", sale.ID, store.ErrCreditRequiresCustomer)
		}
		app.StoreCredit = &domain.StoreCredit{
			ID:           xid.New("credit"),
			CustomerID:   sale.CustomerID,
			CustomerName: sale.CustomerName,
			SourceSaleID: sale.ID,
			Status:       domain.CreditStatusActive,
			CreatedAt:    now,
			ExpiresAt:    now.AddDate(0, 0, storeCreditValidityDays),
		}
	}

	ret, err := s.repo.ApplyReturn(ctx, app)
	if err != nil {
		return domain.Return{}, err
	}

	s.logAudit(ctx, "return.process", "return", ret.ID, fmt.Sprintf("sale=%s outcome=%s total=%d", ret.SaleID, ret.Outcome, ret.TotalCents))
	return ret, nil
}

func (s *Service) ListReturns(ctx context.Context) ([]domain.Return, error) {
	return s.repo.ListReturns(ctx)
}

func (s *Service) ListStoreCredits(ctx context.Context) ([]domain.StoreCredit, error) {
	return s.repo.ListStoreCredits(ctx)
}

// OpenSession opens the register. The storage layer owns the one-open-session
// rule, so two concurrent opens race on the insert, not on a lookup.
func (s *Service) OpenSession(ctx context.Context, req domain.SessionOpenRequest) (domain.CashSession, error) {
	if req.OpeningCents < 0 {
		return domain.CashSession{}, fmt.Errorf("opening balance must not be negative: %w", store.ErrValidation)
	}

	actor, _ := ActorFromContext(ctx)
	session := domain.CashSession{
		ID:           xid.New("sess"),
		Operator:     actor.Username,
		Status:       domain.SessionStatusOpen,
		OpeningCents: req.OpeningCents,
		OpenedAt:     s.now(),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return domain.CashSession{}, err
	}

	s.invalidateSessionCache(ctx)
	s.logAudit(ctx, "session.open", "cash_session", session.ID, fmt.Sprintf("opening=%d", session.OpeningCents))
	return session, nil
}

func (s *Service) CurrentOpenSession(ctx context.Context) (domain.CashSession, error) {
	if cached, ok, err := s.sessionCache.Get(ctx, openSessionCacheKey); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: session cache read failed: %v", err)
	}

	session, err := s.repo.GetOpenSession(ctx)
	if err != nil {
		return domain.CashSession{}, err
	}
	if err := s.sessionCache.Set(ctx, openSessionCacheKey, &session, s.sessionCacheTTL); err != nil {
		log.Printf("[service] WARN: session cache write failed: %v", err)
	}
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (domain.CashSession, error) {
	return s.repo.GetSession(ctx, id)
}

func (s *Service) ListSessions(ctx context.Context) ([]domain.CashSession, error) {
	return s.repo.ListSessions(ctx)
}

// RecordSangria withdraws cash from the open session drawer.
func (s *Service) RecordSangria(ctx context.Context, sessionID string, req domain.SangriaRequest) (domain.Sangria, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.Sangria{}, fmt.Errorf("session id is required: %w", store.ErrValidation)
	}
	if req.AmountCents <= 0 {
		return domain.Sangria{}, fmt.Errorf("sangria amount must be positive: %w", store.ErrValidation)
	}

	actor, _ := ActorFromContext(ctx)
	sangria := domain.Sangria{
		ID:          xid.New("sang"),
		SessionID:   sessionID,
		AmountCents: req.AmountCents,
		Reason:      strings.TrimSpace(req.Reason),
		Operator:    actor.Username,
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateSangria(ctx, sangria); err != nil {
		return domain.Sangria{}, err
	}

	s.logAudit(ctx, "session.sangria", "cash_session", sessionID, fmt.Sprintf("amount=%d reason=%s", sangria.AmountCents, sangria.Reason))
	return sangria, nil
}

// CloseSession reconciles and closes the register: expected cash is the
// opening balance plus the cash portion of sales taken since open, minus
// sangrias. The counted drawer amount is recorded next to it.
func (s *Service) CloseSession(ctx context.Context, sessionID string, req domain.SessionCloseRequest) (domain.CashSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.CashSession{}, fmt.Errorf("session id is required: %w", store.ErrValidation)
	}
	if req.CountedCents < 0 {
		return domain.CashSession{}, fmt.Errorf("counted amount must not be negative: %w", store.ErrValidation)
	}

	session, err := s.repo.CloseSession(ctx, sessionID, req.CountedCents, strings.TrimSpace(req.Notes), s.now())
	if err != nil {
		return domain.CashSession{}, err
	}

	s.invalidateSessionCache(ctx)
	s.logAudit(ctx, "session.close", "cash_session", session.ID, fmt.Sprintf("counted=%d calculated=%d", session.CountedCents, session.CalculatedCents))
	return session, nil
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	if len(req.Items) == 0 {
		return domain.PurchaseOrder{}, fmt.Errorf("purchase order lists no items: %w", store.ErrValidation)
	}
	supplier, err := s.repo.GetSupplier(ctx, req.SupplierID)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	total := int64(0)
	for _, line := range req.Items {
		if line.Qty < 1 {
			return domain.PurchaseOrder{}, fmt.Errorf("product %s qty %d: %w", line.ProductID, line.Qty, store.ErrValidation)
		}
		if line.UnitCostCents < 0 {
			return domain.PurchaseOrder{}, fmt.Errorf("product %s has negative cost: %w", line.ProductID, store.ErrValidation)
		}
		product, err := s.repo.GetProduct(ctx, line.ProductID)
		if err != nil {
			return domain.PurchaseOrder{}, err
		}
		items = append(items, domain.PurchaseOrderItem{
			ProductID:     product.ID,
			ProductName:   product.Name,
			QtyOrdered:    line.Qty,
			UnitCostCents: line.UnitCostCents,
		})
		total += int64(line.Qty) * line.UnitCostCents
	}

	po := domain.PurchaseOrder{
		ID:           xid.New("po"),
		SupplierID:   supplier.ID,
		SupplierName: supplier.Name,
		Status:       domain.POStatusPending,
		TotalCents:   total,
		CreatedAt:    s.now(),
		Items:        items,
	}
	if err := s.repo.CreatePurchaseOrder(ctx, po); err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.logAudit(ctx, "purchase_order.create", "purchase_order", po.ID, fmt.Sprintf("supplier=%s total=%d", po.SupplierID, po.TotalCents))
	return po, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

func (s *Service) ListPurchaseOrders(ctx context.Context) ([]domain.PurchaseOrder, error) {
	return s.repo.ListPurchaseOrders(ctx)
}

// ReceiveStock books goods against a purchase order. Receipts are clamped to
// the outstanding quantity per line and a payable is raised for the value
// actually received, due in 30 days.
func (s *Service) ReceiveStock(ctx context.Context, poID string, req domain.ReceiveStockRequest) (domain.PurchaseOrder, error) {
	if len(req.ReceivedQuantities) == 0 {
		return domain.PurchaseOrder{}, fmt.Errorf("no received quantities: %w", store.ErrValidation)
	}
	for productID, qty := range req.ReceivedQuantities {
		if qty < 0 {
			return domain.PurchaseOrder{}, fmt.Errorf("product %s qty %d: %w", productID, qty, store.ErrValidation)
		}
	}

	po, err := s.repo.GetPurchaseOrder(ctx, poID)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	now := s.now()
	payable := domain.AccountPayable{
		ID:           xid.New("pay"),
		SupplierID:   po.SupplierID,
		SupplierName: po.SupplierName,
		Description:  fmt.Sprintf("Recebimento de mercadoria do Pedido #%s", shortID(po.ID)),
		DueDate:      now.AddDate(0, 0, payableTermDays),
		Status:       domain.PayableStatusPending,
		CreatedAt:    now,
	}

	updated, err := s.repo.ReceivePurchaseOrder(ctx, po.ID, req.ReceivedQuantities, payable, now)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.logAudit(ctx, "purchase_order.receive", "purchase_order", updated.ID, fmt.Sprintf("status=%s", updated.Status))
	return updated, nil
}

func (s *Service) CreateAccountPayable(ctx context.Context, req domain.AccountPayableCreateRequest) (domain.AccountPayable, error) {
	if strings.TrimSpace(req.Description) == "" {
		return domain.AccountPayable{}, fmt.Errorf("description is required: %w", store.ErrValidation)
	}
	if req.AmountCents <= 0 {
		return domain.AccountPayable{}, fmt.Errorf("amount must be positive: %w", store.ErrValidation)
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		return domain.AccountPayable{}, fmt.Errorf("due date must be YYYY-MM-DD: %w", store.ErrValidation)
	}

	supplierName := ""
	if req.SupplierID != "" {
		supplier, err := s.repo.GetSupplier(ctx, req.SupplierID)
		if err != nil {
			return domain.AccountPayable{}, err
		}
		supplierName = supplier.Name
	}

	payable := domain.AccountPayable{
		ID:           xid.New("pay"),
		SupplierID:   req.SupplierID,
		SupplierName: supplierName,
		Description:  strings.TrimSpace(req.Description),
		AmountCents:  req.AmountCents,
		DueDate:      dueDate,
		Status:       domain.PayableStatusPending,
		CreatedAt:    s.now(),
	}
	if err := s.repo.CreateAccountPayable(ctx, payable); err != nil {
		return domain.AccountPayable{}, err
	}
	return payable, nil
}

func (s *Service) ListAccountsPayable(ctx context.Context) ([]domain.AccountPayable, error) {
	return s.repo.ListAccountsPayable(ctx)
}

func (s *Service) MarkAccountPayablePaid(ctx context.Context, id string) (domain.AccountPayable, error) {
	payable, err := s.repo.MarkAccountPayablePaid(ctx, id, s.now())
	if err != nil {
		return domain.AccountPayable{}, err
	}
	s.logAudit(ctx, "account_payable.paid", "account_payable", payable.ID, fmt.Sprintf("amount=%d", payable.AmountCents))
	return payable, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx)
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if strings.TrimSpace(req.Name) == "" {
		return domain.Customer{}, fmt.Errorf("customer name is required: %w", store.ErrValidation)
	}
	customer := domain.Customer{
		ID:        xid.New("cust"),
		Name:      strings.TrimSpace(req.Name),
		Document:  strings.TrimSpace(req.Document),
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateCustomer(ctx, customer); err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if strings.TrimSpace(req.Name) == "" {
		return domain.Supplier{}, fmt.Errorf("supplier name is required: %w", store.ErrValidation)
	}
	supplier := domain.Supplier{
		ID:        xid.New("sup"),
		Name:      strings.TrimSpace(req.Name),
		CNPJ:      strings.TrimSpace(req.CNPJ),
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateSupplier(ctx, supplier); err != nil {
		return domain.Supplier{}, err
	}
	return supplier, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) invalidateSessionCache(ctx context.Context) {
	if err := s.sessionCache.Invalidate(ctx, openSessionCacheKey); err != nil {
		log.Printf("[service] WARN: session cache invalidation failed: %v", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action, entityType, entityID, detail string) {
	actor, _ := ActorFromContext(ctx)
	entry := domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}
	if err := s.repo.AppendAuditLog(ctx, entry); err != nil {
		log.Printf("[service] WARN: failed to write audit log for %s: %v", action, err)
	}
}

// normalizeCart merges duplicate product lines and rejects empty carts and
// non-positive quantities.
func normalizeCart(items []domain.CartItem) ([]domain.CartItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("cart is empty: %w", store.ErrValidation)
	}
	merged := make([]domain.CartItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, fmt.Errorf("cart item missing product id: %w", store.ErrValidation)
		}
		if item.Qty < 1 {
			return nil, fmt.Errorf("product %s qty %d: %w", item.ProductID, item.Qty, store.ErrValidation)
		}
		if at, ok := index[item.ProductID]; ok {
			merged[at].Qty += item.Qty
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func returnItemsFromLines(lines []domain.ReturnLine) []domain.ReturnItem {
	items := make([]domain.ReturnItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.ReturnItem{ProductID: line.ProductID, Qty: line.Qty})
	}
	return items
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
