package domain

import "time"

type Product struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Barcode           string `json:"barcode,omitempty"`
	Category          string `json:"category,omitempty"`
	PriceCents        int64  `json:"price_cents"`
	CostCents         int64  `json:"cost_cents"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	Active            bool   `json:"active"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Document  string    `json:"document,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CNPJ      string    `json:"cnpj,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name"`
	CNPJ  string `json:"cnpj"`
	Phone string `json:"phone"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// StoreCreditPayment selects the credits a customer wants to spend on a sale
// and the amount to cover with them. Credits are consumed in the listed order.
type StoreCreditPayment struct {
	CreditIDs   []string `json:"credit_ids"`
	AmountCents int64    `json:"amount_cents"`
}

type SaleRequest struct {
	CartItems          []CartItem          `json:"cart_items"`
	PaymentMethod      string              `json:"payment_method"`
	CustomerID         string              `json:"customer_id,omitempty"`
	StoreCreditPayment *StoreCreditPayment `json:"store_credit_payment,omitempty"`
}

type SaleItem struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Qty            int    `json:"qty"`
	ReturnableQty  int    `json:"returnable_qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
}

type Sale struct {
	ID                   string     `json:"id"`
	CustomerID           string     `json:"customer_id,omitempty"`
	CustomerName         string     `json:"customer_name,omitempty"`
	PaymentMethod        string     `json:"payment_method"`
	TotalCents           int64      `json:"total_cents"`
	StoreCreditUsedCents int64      `json:"store_credit_used_cents"`
	Status               string     `json:"status"`
	NFCeAccessKey        string     `json:"nfce_access_key"`
	NFCeQRCodeURL        string     `json:"nfce_qrcode_url"`
	CreatedAt            time.Time  `json:"created_at"`
	Items                []SaleItem `json:"items"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

type ReturnLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type ReturnRequest struct {
	SaleID  string       `json:"sale_id"`
	Outcome string       `json:"outcome"`
	Reason  string       `json:"reason"`
	Items   []ReturnLine `json:"items"`
}

type ReturnItem struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type Return struct {
	ID            string       `json:"id"`
	SaleID        string       `json:"sale_id"`
	Outcome       string       `json:"outcome"`
	Reason        string       `json:"reason"`
	TotalCents    int64        `json:"total_cents"`
	StoreCreditID string       `json:"store_credit_id,omitempty"`
	ProcessedBy   string       `json:"processed_by"`
	CreatedAt     time.Time    `json:"created_at"`
	Items         []ReturnItem `json:"items"`
}

type ReturnResponse struct {
	Return Return `json:"return"`
}

type StoreCredit struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name,omitempty"`
	SourceSaleID string    `json:"source_sale_id,omitempty"`
	InitialCents int64     `json:"initial_cents"`
	BalanceCents int64     `json:"balance_cents"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type CashSession struct {
	ID                   string           `json:"id"`
	Operator             string           `json:"operator"`
	Status               string           `json:"status"`
	OpeningCents         int64            `json:"opening_cents"`
	CountedCents         int64            `json:"counted_cents"`
	CalculatedCents      int64            `json:"calculated_cents"`
	SalesSummaryCents    map[string]int64 `json:"sales_summary_cents,omitempty"`
	SangriaTotalCents    int64            `json:"sangria_total_cents"`
	StoreCreditUsedCents int64            `json:"store_credit_used_cents"`
	Notes                string           `json:"notes,omitempty"`
	OpenedAt             time.Time        `json:"opened_at"`
	ClosedAt             *time.Time       `json:"closed_at,omitempty"`
	Sangrias             []Sangria        `json:"sangrias,omitempty"`
}

type Sangria struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	AmountCents int64     `json:"amount_cents"`
	Reason      string    `json:"reason"`
	Operator    string    `json:"operator"`
	CreatedAt   time.Time `json:"created_at"`
}

type SessionOpenRequest struct {
	OpeningCents int64 `json:"opening_cents"`
}

type SangriaRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
	ManagerPIN  string `json:"manager_pin,omitempty"`
}

type SessionCloseRequest struct {
	CountedCents int64  `json:"counted_cents"`
	Notes        string `json:"notes"`
}

type SessionResponse struct {
	Session         CashSession `json:"session"`
	DifferenceCents int64       `json:"difference_cents"`
}

type PurchaseOrderItem struct {
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	QtyOrdered    int    `json:"qty_ordered"`
	QtyReceived   int    `json:"qty_received"`
	UnitCostCents int64  `json:"unit_cost_cents"`
}

type PurchaseOrder struct {
	ID           string              `json:"id"`
	SupplierID   string              `json:"supplier_id"`
	SupplierName string              `json:"supplier_name"`
	Status       string              `json:"status"`
	TotalCents   int64               `json:"total_cents"`
	CreatedAt    time.Time           `json:"created_at"`
	ReceivedAt   *time.Time          `json:"received_at,omitempty"`
	Items        []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderCreateItem struct {
	ProductID     string `json:"product_id"`
	Qty           int    `json:"qty"`
	UnitCostCents int64  `json:"unit_cost_cents"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID string                    `json:"supplier_id"`
	Items      []PurchaseOrderCreateItem `json:"items"`
}

type ReceiveStockRequest struct {
	ReceivedQuantities map[string]int `json:"received_quantities"`
}

type PurchaseOrderResponse struct {
	PurchaseOrder PurchaseOrder `json:"purchase_order"`
}

type AccountPayable struct {
	ID           string     `json:"id"`
	SupplierID   string     `json:"supplier_id,omitempty"`
	SupplierName string     `json:"supplier_name,omitempty"`
	Description  string     `json:"description"`
	AmountCents  int64      `json:"amount_cents"`
	DueDate      time.Time  `json:"due_date"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
}

type AccountPayableCreateRequest struct {
	SupplierID  string `json:"supplier_id"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	DueDate     string `json:"due_date"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	PaymentCash        = "cash"
	PaymentCreditCard  = "credit_card"
	PaymentDebitCard   = "debit_card"
	PaymentPix         = "pix"
	PaymentOnDelivery  = "pay_on_delivery"
	PaymentTradeCredit = "trade_credit"
)

const (
	SaleStatusCompleted         = "completed"
	SaleStatusPendingPayment    = "pending_payment"
	SaleStatusPartiallyReturned = "partially_returned"
	SaleStatusFullyReturned     = "fully_returned"
)

const (
	ReturnOutcomeRefund      = "refund"
	ReturnOutcomeStoreCredit = "store_credit"
)

const (
	CreditStatusActive  = "active"
	CreditStatusUsed    = "used"
	CreditStatusExpired = "expired"
)

const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

const (
	POStatusPending           = "pending"
	POStatusPartiallyReceived = "partially_received"
	POStatusReceived          = "received"
)

const (
	PayableStatusPending = "pending"
	PayableStatusPaid    = "paid"
)

// ValidPaymentMethod reports whether method is one of the supported tender types.
func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentPix, PaymentOnDelivery, PaymentTradeCredit:
		return true
	}
	return false
}

// SaleStatusFromItems derives the return-facing status of a sale from its
// items. The pending/completed distinction is settled at commit time and is
// only overridden once something has actually been returned.
func SaleStatusFromItems(current string, items []SaleItem) string {
	totalQty := 0
	returnable := 0
	for _, item := range items {
		totalQty += item.Qty
		returnable += item.ReturnableQty
	}
	switch {
	case totalQty > 0 && returnable == 0:
		return SaleStatusFullyReturned
	case returnable < totalQty:
		return SaleStatusPartiallyReturned
	default:
		return current
	}
}

// PurchaseOrderStatusFromItems derives a purchase order's status from the
// aggregate ordered and received quantities of its items.
func PurchaseOrderStatusFromItems(items []PurchaseOrderItem) string {
	ordered := 0
	received := 0
	for _, item := range items {
		ordered += item.QtyOrdered
		received += item.QtyReceived
	}
	switch {
	case ordered > 0 && received >= ordered:
		return POStatusReceived
	case received > 0:
		return POStatusPartiallyReceived
	default:
		return POStatusPending
	}
}
