package store

import (
	"context"
	"errors"
	"time"

	"pdvlite/backend/internal/domain"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("invalid request")
	ErrSessionAlreadyOpen     = errors.New("a cash session is already open")
	ErrNoOpenSession          = errors.New("no open cash session")
	ErrInvalidReturnQuantity  = errors.New("return quantity exceeds returnable quantity")
	ErrCreditRequiresCustomer = errors.New("store credit requires an identified customer")
)

// SaleCommit is everything a sale insert needs to apply atomically: the sale
// itself, the stock decrements for its cart, and the store credits to consume.
type SaleCommit struct {
	Sale              domain.Sale
	CreditIDs         []string
	CreditAmountCents int64
}

// ReturnApplication carries a validated return through the atomic apply step.
// StoreCredit is non-nil when the return outcome issues credit; the store
// fills in its amount from the return total.
type ReturnApplication struct {
	Return      domain.Return
	StoreCredit *domain.StoreCredit
}

type Repository interface {
	// Catalog and parties.
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) error
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) error

	// Sales. CreateSale consumes store credits, decrements stock and inserts
	// the sale in one transaction; it returns the sale with the credit amount
	// actually deducted.
	CreateSale(ctx context.Context, commit SaleCommit) (domain.Sale, error)
	GetSale(ctx context.Context, id string) (domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)

	// Returns. ApplyReturn checks the requested quantities against the sale's
	// remaining returnable quantities inside the transaction, restocks,
	// recomputes the sale status and optionally issues a store credit.
	ApplyReturn(ctx context.Context, app ReturnApplication) (domain.Return, error)
	ListReturns(ctx context.Context) ([]domain.Return, error)

	// Store credits.
	ListStoreCredits(ctx context.Context) ([]domain.StoreCredit, error)
	GetStoreCredit(ctx context.Context, id string) (domain.StoreCredit, error)

	// Cash sessions. CreateSession must reject a second open session with
	// ErrSessionAlreadyOpen, enforced by the storage layer itself rather than
	// by a lookup ahead of the insert.
	CreateSession(ctx context.Context, session domain.CashSession) error
	GetSession(ctx context.Context, id string) (domain.CashSession, error)
	GetOpenSession(ctx context.Context) (domain.CashSession, error)
	ListSessions(ctx context.Context) ([]domain.CashSession, error)
	CreateSangria(ctx context.Context, sangria domain.Sangria) error
	// CloseSession runs the reconciliation sweep (sales since open, sangria
	// total) and persists the close in one transaction.
	CloseSession(ctx context.Context, id string, countedCents int64, notes string, closedAt time.Time) (domain.CashSession, error)

	// Purchasing.
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context) ([]domain.PurchaseOrder, error)
	// ReceivePurchaseOrder clamps the received quantities, restocks, updates
	// the order and creates the payable in one transaction. The payable is
	// skipped when nothing was actually received; its amount is set from the
	// value actually received.
	ReceivePurchaseOrder(ctx context.Context, id string, received map[string]int, payable domain.AccountPayable, receivedAt time.Time) (domain.PurchaseOrder, error)

	// Accounts payable.
	CreateAccountPayable(ctx context.Context, payable domain.AccountPayable) error
	ListAccountsPayable(ctx context.Context) ([]domain.AccountPayable, error)
	MarkAccountPayablePaid(ctx context.Context, id string, paidAt time.Time) (domain.AccountPayable, error)

	// Auth accounts.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	// Audit trail.
	AppendAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}
