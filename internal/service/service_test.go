package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pdvlite/backend/internal/domain"
	"pdvlite/backend/internal/store"
	"pdvlite/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, nil, 0), repo
}

func testContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func TestCommitSaleCashPricesFromCatalog(t *testing.T) {
	svc, _ := newTestService()
	ctx := testContext()

	sale, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		CartItems: []domain.CartItem{
			{ProductID: "prod-arroz-5kg", Qty: 2},  // 2 x 2550
			{ProductID: "prod-feijao-1kg", Qty: 1}, // 1 x 899
		},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	if sale.TotalCents != 2*2550+899 {
		t.Fatalf("expected total %d, got %d", 2*2550+899, sale.TotalCents)
	}
	if sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected completed status, got %s", sale.Status)
	}
	if len(sale.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(sale.Items))
	}
	for _, item := range sale.Items {
		if item.ReturnableQty != item.Qty {
			t.Fatalf("item %s: expected returnable qty %d, got %d", item.ProductID, item.Qty, item.ReturnableQty)
		}
	}
}

func TestCommitSaleDecrementsStock(t *testing.T) {
	svc, repo := newTestService()
	ctx := testContext()

	before, err := repo.GetProduct(ctx, "prod-cafe-500g")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}

	if _, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentPix,
		CartItems:     []domain.CartItem{{ProductID: "prod-cafe-500g", Qty: 3}},
	}); err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	after, err := repo.GetProduct(ctx, "prod-cafe-500g")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != before.Stock-3 {
		t.Fatalf("expected stock %d, got %d", before.Stock-3, after.Stock)
	}
}

func TestCommitSaleMergesDuplicateCartLines(t *testing.T) {
	svc, _ := newTestService()

	sale, err := svc.CommitSale(testContext(), domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		CartItems: []domain.CartItem{
			{ProductID: "prod-acucar-1kg", Qty: 1},
			{ProductID: "prod-acucar-1kg", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	if len(sale.Items) != 1 {
		t.Fatalf("expected merged single line, got %d lines", len(sale.Items))
	}
	if sale.Items[0].Qty != 3 {
		t.Fatalf("expected merged qty 3, got %d", sale.Items[0].Qty)
	}
}

func TestCommitSaleRejectsBadInput(t *testing.T) {
	svc, _ := newTestService()
	ctx := testContext()

	cases := []struct {
		name string
		req  domain.SaleRequest
	}{
		{"empty cart", domain.SaleRequest{PaymentMethod: domain.PaymentCash}},
		{"zero qty", domain.SaleRequest{
			PaymentMethod: domain.PaymentCash,
			CartItems:     []domain.CartItem{{ProductID: "prod-arroz-5kg", Qty: 0}},
		}},
		{"unknown payment method", domain.SaleRequest{
			PaymentMethod: "cheque",
			CartItems:     []domain.CartItem{{ProductID: "prod-arroz-5kg", Qty: 1}},
		}},
		{"trade credit without credits", domain.SaleRequest{
			PaymentMethod: domain.PaymentTradeCredit,
			CartItems:     []domain.CartItem{{ProductID: "prod-arroz-5kg", Qty: 1}},
		}},
	}
	for _, tc := range cases {
		if _, err := svc.CommitSale(ctx, tc.req); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestCommitSalePayOnDeliveryIsPending(t *testing.T) {
	svc, _ := newTestService()

	sale, err := svc.CommitSale(testContext(), domain.SaleRequest{
		PaymentMethod: domain.PaymentOnDelivery,
		CustomerID:    "cust-maria",
		CartItems:     []domain.CartItem{{ProductID: "prod-refri-2l", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	if sale.Status != domain.SaleStatusPendingPayment {
		t.Fatalf("expected pending_payment, got %s", sale.Status)
	}
	if sale.CustomerName != "Maria Souza" {
		t.Fatalf("expected customer name resolved from catalog, got %q", sale.CustomerName)
	}
}

func TestCommitSaleStampsFiscalMetadata(t *testing.T) {
	svc, _ := newTestService()

	sale, err := svc.CommitSale(testContext(), domain.SaleRequest{
		PaymentMethod: domain.PaymentDebitCard,
		CartItems:     []domain.CartItem{{ProductID: "prod-oleo-900ml", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	if len(sale.NFCeAccessKey) != 44 {
		t.Fatalf("expected 44-digit access key, got %d chars", len(sale.NFCeAccessKey))
	}
	for _, r := range sale.NFCeAccessKey {
		if r < '0' || r > '9' {
			t.Fatalf("access key contains non-digit %q", r)
		}
	}
	if !strings.Contains(sale.NFCeQRCodeURL, sale.NFCeAccessKey) {
		t.Fatalf("qr code url does not embed the access key: %s", sale.NFCeQRCodeURL)
	}
}

func TestCommitSaleConsumesStoreCreditsInOrder(t *testing.T) {
	svc, repo := newTestService()
	ctx := testContext()
	now := time.Now().UTC()

	repo.SetStoreCredit(domain.StoreCredit{
		ID: "credit-a", CustomerID: "cust-maria", InitialCents: 1000, BalanceCents: 1000,
		Status: domain.CreditStatusActive, CreatedAt: now, ExpiresAt: now.AddDate(0, 0, 30),
	})
	repo.SetStoreCredit(domain.StoreCredit{
		ID: "credit-b", CustomerID: "cust-maria", InitialCents: 2000, BalanceCents: 2000,
		Status: domain.CreditStatusActive, CreatedAt: now, ExpiresAt: now.AddDate(0, 0, 30),
	})

	// Sale total 2550; pay 1500 with credits: all of credit-a, 500 of credit-b.
	sale, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		CustomerID:    "cust-maria",
		CartItems:     []domain.CartItem{{ProductID: "prod-arroz-5kg", Qty: 1}},
		StoreCreditPayment: &domain.StoreCreditPayment{
			CreditIDs:   []string{"credit-a", "credit-b"},
			AmountCents: 1500,
		},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	if sale.StoreCreditUsedCents != 1500 {
		t.Fatalf("expected 1500 credit used, got %d", sale.StoreCreditUsedCents)
	}

	creditA, err := repo.GetStoreCredit(ctx, "credit-a")
	if err != nil {
		t.Fatalf("get credit-a: %v", err)
	}
	if creditA.BalanceCents != 0 || creditA.Status != domain.CreditStatusUsed {
		t.Fatalf("expected credit-a drained and used, got balance=%d status=%s", creditA.BalanceCents, creditA.Status)
	}

	creditB, err := repo.GetStoreCredit(ctx, "credit-b")
	if err != nil {
		t.Fatalf("get credit-b: %v", err)
	}
	if creditB.BalanceCents != 1500 || creditB.Status != domain.CreditStatusActive {
		t.Fatalf("expected credit-b at 1500 and active, got balance=%d status=%s", creditB.BalanceCents, creditB.Status)
	}
}

func TestCommitSaleSkipsExpiredCredits(t *testing.T) {
	svc, repo := newTestService()
	ctx := testContext()
	now := time.Now().UTC()

	repo.SetStoreCredit(domain.StoreCredit{
		ID: "credit-old", CustomerID: "cust-joao", InitialCents: 5000, BalanceCents: 5000,
		Status: domain.CreditStatusActive, CreatedAt: now.AddDate(-2, 0, 0), ExpiresAt: now.AddDate(-1, 0, 0),
	})
	repo.SetStoreCredit(domain.StoreCredit{
		ID: "credit-live", CustomerID: "cust-joao", InitialCents: 5000, BalanceCents: 5000,
		Status: domain.CreditStatusActive, CreatedAt: now, ExpiresAt: now.AddDate(0, 0, 30),
	})

	sale, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		CustomerID:    "cust-joao",
		CartItems:     []domain.CartItem{{ProductID: "prod-arroz-5kg", Qty: 1}},
		StoreCreditPayment: &domain.StoreCreditPayment{
			CreditIDs:   []string{"credit-old", "credit-live"},
			AmountCents: 2000,
		},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	if sale.StoreCreditUsedCents != 2000 {
		t.Fatalf("expected 2000 credit used, got %d", sale.StoreCreditUsedCents)
	}

	old, err := repo.GetStoreCredit(ctx, "credit-old")
	if err != nil {
		t.Fatalf("get credit-old: %v", err)
	}
	if old.BalanceCents != 5000 {
		t.Fatalf("expected expired credit untouched, got balance %d", old.BalanceCents)
	}
	if old.Status != domain.CreditStatusExpired {
		t.Fatalf("expected lapsed credit marked expired, got %s", old.Status)
	}
	live, err := repo.GetStoreCredit(ctx, "credit-live")
	if err != nil {
		t.Fatalf("get credit-live: %v", err)
	}
	if live.BalanceCents != 3000 {
		t.Fatalf("expected live credit at 3000, got %d", live.BalanceCents)
	}
}

func TestProcessReturnPartialThenFull(t *testing.T) {
	svc, _ := newTestService()
	ctx := testContext()

	sale, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		CartItems: []domain.CartItem{
			{ProductID: "prod-arroz-5kg", Qty: 2},
			{ProductID: "prod-feijao-1kg", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	ret, err := svc.ProcessReturn(ctx, domain.ReturnRequest{
		SaleID:  sale.ID,
		Outcome: domain.ReturnOutcomeRefund,
		Reason:  "embalagem danificada",
		Items:   []domain.ReturnLine{{ProductID: "prod-arroz-5kg", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("first return failed: %v", err)
	}
	if ret.TotalCents != 2550 {
		t.Fatalf("expected return total 2550, got %d", ret.TotalCents)
	}

	after, err := svc.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if after.Status != domain.SaleStatusPartiallyReturned {
		t.Fatalf("expected partially_returned, got %s", after.Status)
	}

	// Return everything that is left.
	if _, err := svc.ProcessReturn(ctx, domain.ReturnRequest{
		SaleID:  sale.ID,
		Outcome: domain.ReturnOutcomeRefund,
		Items: []domain.ReturnLine{
			{ProductID: "prod-arroz-5kg", Qty: 1},
			{ProductID: "prod-feijao-1kg", Qty: 1},
		},
	}); err != nil {
		t.Fatalf("second return failed: %v", err)
	}

	final, err := svc.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if final.Status != domain.SaleStatusFullyReturned {
		t.Fatalf("expected fully_returned, got %s", final.Status)
	}
}

func TestProcessReturnRestocksItems(t *testing.T) {
	svc, repo := newTestService()
	ctx := testContext()

	sale, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		CartItems:     []domain.CartItem{{ProductID: "prod-sabao-po", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	sold, _ := repo.GetProduct(ctx, "prod-sabao-po")

	if _, err := svc.ProcessReturn(ctx, domain.ReturnRequest{
		SaleID:  sale.ID,
		Outcome: domain.ReturnOutcomeRefund,
		Items:   []domain.ReturnLine{{ProductID: "prod-sabao-po", Qty: 2}},
	}); err != nil {
		t.Fatalf("return failed: %v", err)
	}

	restocked, _ := repo.GetProduct(ctx, "prod-sabao-po")
	if restocked.Stock != sold.Stock+2 {
		t.Fatalf("expected stock %d after restock, got %d", sold.Stock+2, restocked.Stock)
	}
}

func TestProcessReturnRejectsOverReturn(t *testing.T) {
	svc, _ := newTestService()
	ctx := testContext()

	sale, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		CartItems:     []domain.CartItem{{ProductID: "prod-arroz-5kg", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	_, err = svc.ProcessReturn(ctx, domain.ReturnRequest{
		SaleID:  sale.ID,
		Outcome: domain.ReturnOutcomeRefund,
		Items:   []domain.ReturnLine{{ProductID: "prod-arroz-5kg", Qty: 3}},
	})
	if !errors.Is(err, store.ErrInvalidReturnQuantity) {
		t.Fatalf("expected invalid return quantity error, got %v", err)
	}

	// Partial return, then attempting the original quantity again must fail.
	if _, err := svc.ProcessReturn(ctx, domain.ReturnRequest{
		SaleID:  sale.ID,
		Outcome: domain.ReturnOutcomeRefund,
		Items:   []domain.ReturnLine{{ProductID: "prod-arroz-5kg", Qty: 1}},
	}); err != nil {
		t.Fatalf("partial return failed: %v", err)
	}
	_, err = svc.ProcessReturn(ctx, domain.ReturnRequest{
		SaleID:  sale.ID,
		Outcome: domain.ReturnOutcomeRefund,
		Items:   []domain.ReturnLine{{ProductID: "prod-arroz-5kg", Qty: 2}},
	})
	if !errors.Is(err, store.ErrInvalidReturnQuantity) {
		t.Fatalf("expected invalid return quantity on second over-return, got %v", err)
	}
}

func TestProcessReturnStoreCreditRequiresCustomer(t *testing.T) {
	svc, _ := newTestService()
	ctx := testContext()

	anonymous, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		CartItems:     []domain.CartItem{{ProductID: "prod-arroz-5kg", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	_, err = svc.ProcessReturn(ctx, domain.ReturnRequest{
		SaleID:  anonymous.ID,
		Outcome: domain.ReturnOutcomeStoreCredit,
		Items:   []domain.ReturnLine{{ProductID: "prod-arroz-5kg", Qty: 1}},
	})
	if !errors.Is(err, store.ErrCreditRequiresCustomer) {
		t.Fatalf("expected credit-requires-customer error, got %v", err)
	}
}

func TestProcessReturnStoreCreditIssuesCredit(t *testing.T) {
	svc, repo := newTestService()
	ctx := testContext()

	sale, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentCreditCard,
		CustomerID:    "cust-maria",
		CartItems:     []domain.CartItem{{ProductID: "prod-cafe-500g", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	ret, err := svc.ProcessReturn(ctx, domain.ReturnRequest{
		SaleID:  sale.ID,
		Outcome: domain.ReturnOutcomeStoreCredit,
		Items:   []domain.ReturnLine{{ProductID: "prod-cafe-500g", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if ret.StoreCreditID == "" {
		t.Fatalf("expected a store credit to be issued")
	}

	credit, err := repo.GetStoreCredit(ctx, ret.StoreCreditID)
	if err != nil {
		t.Fatalf("get store credit: %v", err)
	}
	if credit.BalanceCents != 1790 || credit.InitialCents != 1790 {
		t.Fatalf("expected credit valued at 1790, got initial=%d balance=%d", credit.InitialCents, credit.BalanceCents)
	}
	if credit.CustomerID != "cust-maria" {
		t.Fatalf("expected credit for cust-maria, got %s", credit.CustomerID)
	}
	if credit.Status != domain.CreditStatusActive {
		t.Fatalf("expected active credit, got %s", credit.Status)
	}
	wantExpiry := credit.CreatedAt.AddDate(0, 0, 365)
	if !credit.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %v, got %v", wantExpiry, credit.ExpiresAt)
	}
}

func TestOpenSessionRejectsSecondOpen(t *testing.T) {
	svc, _ := newTestService()
	ctx := testContext()

	if _, err := svc.OpenSession(ctx, domain.SessionOpenRequest{OpeningCents: 10000}); err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	_, err := svc.OpenSession(ctx, domain.SessionOpenRequest{OpeningCents: 5000})
	if !errors.Is(err, store.ErrSessionAlreadyOpen) {
		t.Fatalf("expected session-already-open error, got %v", err)
	}
}

func TestCurrentOpenSessionWhenNoneOpen(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CurrentOpenSession(testContext())
	if !errors.Is(err, store.ErrNoOpenSession) {
		t.Fatalf("expected no-open-session error, got %v", err)
	}
}

func TestCloseSessionReconciliation(t *testing.T) {
	svc, _ := newTestService()
	ctx := testContext()

	session, err := svc.OpenSession(ctx, domain.SessionOpenRequest{OpeningCents: 20000})
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}

	// Cash sale of R$51,00 and a pix sale that must not count toward drawer cash.
	if _, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		CartItems: []domain.CartItem{
			{ProductID: "prod-arroz-5kg", Qty: 2}, // 5100
		},
	}); err != nil {
		t.Fatalf("cash sale failed: %v", err)
	}
	if _, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentPix,
		CartItems:     []domain.CartItem{{ProductID: "prod-feijao-1kg", Qty: 1}},
	}); err != nil {
		t.Fatalf("pix sale failed: %v", err)
	}

	if _, err := svc.RecordSangria(ctx, session.ID, domain.SangriaRequest{AmountCents: 3000, Reason: "malote"}); err != nil {
		t.Fatalf("sangria failed: %v", err)
	}

	closed, err := svc.CloseSession(ctx, session.ID, domain.SessionCloseRequest{CountedCents: 22000, Notes: "falta de troco"})
	if err != nil {
		t.Fatalf("close session failed: %v", err)
	}

	// Expected cash: 20000 opening + 5100 cash sales - 3000 sangria.
	if closed.CalculatedCents != 22100 {
		t.Fatalf("expected calculated 22100, got %d", closed.CalculatedCents)
	}
	if closed.CountedCents != 22000 {
		t.Fatalf("expected counted 22000, got %d", closed.CountedCents)
	}
	if closed.SalesSummaryCents[domain.PaymentCash] != 5100 {
		t.Fatalf("expected cash summary 5100, got %d", closed.SalesSummaryCents[domain.PaymentCash])
	}
	if closed.SalesSummaryCents[domain.PaymentPix] != 899 {
		t.Fatalf("expected pix summary 899, got %d", closed.SalesSummaryCents[domain.PaymentPix])
	}
	if closed.SangriaTotalCents != 3000 {
		t.Fatalf("expected sangria total 3000, got %d", closed.SangriaTotalCents)
	}
	if closed.Status != domain.SessionStatusClosed {
		t.Fatalf("expected closed status, got %s", closed.Status)
	}
	if closed.ClosedAt == nil {
		t.Fatalf("expected closed_at to be set")
	}
}

func TestCloseSessionCreditOnlySaleKeepsTenderLine(t *testing.T) {
	svc, repo := newTestService()
	ctx := testContext()
	now := time.Now().UTC()

	session, err := svc.OpenSession(ctx, domain.SessionOpenRequest{OpeningCents: 10000})
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}

	repo.SetStoreCredit(domain.StoreCredit{
		ID: "credit-full", CustomerID: "cust-maria", InitialCents: 10000, BalanceCents: 10000,
		Status: domain.CreditStatusActive, CreatedAt: now, ExpiresAt: now.AddDate(0, 0, 30),
	})

	// Entire sale covered by store credit: no drawer cash moves, but the
	// closing report still carries the sale under trade_credit.
	if _, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentTradeCredit,
		CustomerID:    "cust-maria",
		CartItems:     []domain.CartItem{{ProductID: "prod-arroz-5kg", Qty: 1}},
		StoreCreditPayment: &domain.StoreCreditPayment{
			CreditIDs:   []string{"credit-full"},
			AmountCents: 2550,
		},
	}); err != nil {
		t.Fatalf("trade credit sale failed: %v", err)
	}

	closed, err := svc.CloseSession(ctx, session.ID, domain.SessionCloseRequest{CountedCents: 10000})
	if err != nil {
		t.Fatalf("close session failed: %v", err)
	}
	if closed.CalculatedCents != 10000 {
		t.Fatalf("expected calculated 10000, got %d", closed.CalculatedCents)
	}
	if closed.SalesSummaryCents[domain.PaymentTradeCredit] != 2550 {
		t.Fatalf("expected trade_credit summary 2550, got %d", closed.SalesSummaryCents[domain.PaymentTradeCredit])
	}
	if closed.StoreCreditUsedCents != 2550 {
		t.Fatalf("expected credit used 2550, got %d", closed.StoreCreditUsedCents)
	}
}

func TestRecordSangriaValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := testContext()

	if _, err := svc.RecordSangria(ctx, "sess-x", domain.SangriaRequest{AmountCents: 0}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
	if _, err := svc.RecordSangria(ctx, "sess-missing", domain.SangriaRequest{AmountCents: 500}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown session, got %v", err)
	}
}

func TestReceiveStockClampsAndRaisesPayable(t *testing.T) {
	svc, repo := newTestService()
	ctx := testContext()

	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		SupplierID: "sup-atacadao",
		Items: []domain.PurchaseOrderCreateItem{
			{ProductID: "prod-arroz-5kg", Qty: 10, UnitCostCents: 1890},
			{ProductID: "prod-feijao-1kg", Qty: 20, UnitCostCents: 610},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	if po.TotalCents != 10*1890+20*610 {
		t.Fatalf("unexpected po total %d", po.TotalCents)
	}

	stockBefore, _ := repo.GetProduct(ctx, "prod-arroz-5kg")

	// Over-receive the first line (15 > 10 ordered): clamped to 10.
	updated, err := svc.ReceiveStock(ctx, po.ID, domain.ReceiveStockRequest{
		ReceivedQuantities: map[string]int{
			"prod-arroz-5kg":  15,
			"prod-feijao-1kg": 5,
		},
	})
	if err != nil {
		t.Fatalf("receive stock failed: %v", err)
	}
	if updated.Status != domain.POStatusPartiallyReceived {
		t.Fatalf("expected partially_received, got %s", updated.Status)
	}
	for _, item := range updated.Items {
		switch item.ProductID {
		case "prod-arroz-5kg":
			if item.QtyReceived != 10 {
				t.Fatalf("expected clamped receipt 10, got %d", item.QtyReceived)
			}
		case "prod-feijao-1kg":
			if item.QtyReceived != 5 {
				t.Fatalf("expected receipt 5, got %d", item.QtyReceived)
			}
		}
	}

	stockAfter, _ := repo.GetProduct(ctx, "prod-arroz-5kg")
	if stockAfter.Stock != stockBefore.Stock+10 {
		t.Fatalf("expected stock +10, got %d -> %d", stockBefore.Stock, stockAfter.Stock)
	}

	payables, err := svc.ListAccountsPayable(ctx)
	if err != nil {
		t.Fatalf("list payables failed: %v", err)
	}
	if len(payables) != 1 {
		t.Fatalf("expected 1 payable, got %d", len(payables))
	}
	wantAmount := int64(10*1890 + 5*610)
	if payables[0].AmountCents != wantAmount {
		t.Fatalf("expected payable amount %d, got %d", wantAmount, payables[0].AmountCents)
	}
	if !strings.Contains(payables[0].Description, po.ID[:8]) {
		t.Fatalf("expected payable description to reference order %s, got %q", po.ID[:8], payables[0].Description)
	}
	if payables[0].Status != domain.PayableStatusPending {
		t.Fatalf("expected pending payable, got %s", payables[0].Status)
	}
}

func TestReceiveStockCompletesOrder(t *testing.T) {
	svc, _ := newTestService()
	ctx := testContext()

	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		SupplierID: "sup-hortifruti",
		Items: []domain.PurchaseOrderCreateItem{
			{ProductID: "prod-refri-2l", Qty: 6, UnitCostCents: 640},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}

	updated, err := svc.ReceiveStock(ctx, po.ID, domain.ReceiveStockRequest{
		ReceivedQuantities: map[string]int{"prod-refri-2l": 6},
	})
	if err != nil {
		t.Fatalf("receive stock failed: %v", err)
	}
	if updated.Status != domain.POStatusReceived {
		t.Fatalf("expected received, got %s", updated.Status)
	}
	if updated.ReceivedAt == nil {
		t.Fatalf("expected received_at to be set")
	}

	// Receiving against a completed order clamps to zero and raises no payable.
	again, err := svc.ReceiveStock(ctx, po.ID, domain.ReceiveStockRequest{
		ReceivedQuantities: map[string]int{"prod-refri-2l": 3},
	})
	if err != nil {
		t.Fatalf("second receive failed: %v", err)
	}
	if again.Items[0].QtyReceived != 6 {
		t.Fatalf("expected receipts unchanged at 6, got %d", again.Items[0].QtyReceived)
	}

	payables, err := svc.ListAccountsPayable(ctx)
	if err != nil {
		t.Fatalf("list payables failed: %v", err)
	}
	if len(payables) != 1 {
		t.Fatalf("expected a single payable from the first receipt, got %d", len(payables))
	}
}

func TestMarkAccountPayablePaid(t *testing.T) {
	svc, _ := newTestService()
	ctx := testContext()

	payable, err := svc.CreateAccountPayable(ctx, domain.AccountPayableCreateRequest{
		SupplierID:  "sup-atacadao",
		Description: "Aluguel do depósito",
		AmountCents: 150000,
		DueDate:     "2026-09-10",
	})
	if err != nil {
		t.Fatalf("create payable failed: %v", err)
	}

	paid, err := svc.MarkAccountPayablePaid(ctx, payable.ID)
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if paid.Status != domain.PayableStatusPaid {
		t.Fatalf("expected paid status, got %s", paid.Status)
	}
	if paid.PaidAt == nil {
		t.Fatalf("expected paid_at to be set")
	}
}

func TestAuditTrailRecordsSettlementActions(t *testing.T) {
	svc, _ := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "caixa1", Role: domain.RoleCashier})

	if _, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		CartItems:     []domain.CartItem{{ProductID: "prod-arroz-5kg", Qty: 1}},
	}); err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, 10)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(logs))
	}
	if logs[0].Action != "sale.commit" {
		t.Fatalf("expected sale.commit action, got %s", logs[0].Action)
	}
	if logs[0].ActorUsername != "caixa1" {
		t.Fatalf("expected actor caixa1, got %s", logs[0].ActorUsername)
	}
}
