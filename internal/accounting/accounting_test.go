package accounting

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
	"github.com/beesaferoot/buildops/internal/testutil"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

type books struct {
	entity   models.Entity
	cash     models.GLAccount
	ar       models.GLAccount
	ap       models.GLAccount
	revenue  models.GLAccount
	wip      models.GLAccount
	bank     models.BankAccount
	vendor   models.Vendor
	customer models.Customer
}

func setup(t *testing.T) (*Service, *gorm.DB, *books) {
	t.Helper()
	db := testutil.DB(t)
	b := &books{entity: models.Entity{Name: "Oak Ridge LLC"}}
	require.NoError(t, db.Create(&b.entity).Error)

	b.cash = models.GLAccount{EntityID: b.entity.ID, Code: "1000", Name: "Operating Cash", Type: models.AccountAsset}
	b.ar = models.GLAccount{EntityID: b.entity.ID, Code: "1200", Name: "Accounts Receivable", Type: models.AccountAsset, SystemRole: models.RoleAccountsReceivable}
	b.ap = models.GLAccount{EntityID: b.entity.ID, Code: "2000", Name: "Accounts Payable", Type: models.AccountLiability, SystemRole: models.RoleAccountsPayable}
	b.revenue = models.GLAccount{EntityID: b.entity.ID, Code: "4000", Name: "Home Sales", Type: models.AccountRevenue}
	b.wip = models.GLAccount{EntityID: b.entity.ID, Code: "1500", Name: "Construction WIP", Type: models.AccountAsset}
	for _, a := range []*models.GLAccount{&b.cash, &b.ar, &b.ap, &b.revenue, &b.wip} {
		require.NoError(t, db.Create(a).Error)
	}

	b.bank = models.BankAccount{EntityID: b.entity.ID, Name: "Operating", Last4: "1234", GLAccountID: b.cash.ID}
	require.NoError(t, db.Create(&b.bank).Error)
	b.vendor = models.Vendor{Name: "Acme Framing", TermsDays: 30}
	require.NoError(t, db.Create(&b.vendor).Error)
	b.customer = models.Customer{Name: "J. Buyer"}
	require.NoError(t, db.Create(&b.customer).Error)

	return NewService(db, nil, nil), db, b
}

func TestPost_Validation(t *testing.T) {
	s, db, b := setup(t)
	ctx := context.Background()

	other := models.Entity{Name: "Cedar LLC"}
	require.NoError(t, db.Create(&other).Error)
	foreign := models.GLAccount{EntityID: other.ID, Code: "1000", Name: "Cash", Type: models.AccountAsset}
	require.NoError(t, db.Create(&foreign).Error)

	tests := []struct {
		name  string
		lines []models.JournalLine
		want  error
	}{
		{"single line", []models.JournalLine{{AccountID: b.cash.ID, Debit: dec("10")}}, ErrInvalidLine},
		{"debit and credit on one line", []models.JournalLine{
			{AccountID: b.cash.ID, Debit: dec("10"), Credit: dec("10")},
			{AccountID: b.revenue.ID, Credit: dec("10")},
		}, ErrInvalidLine},
		{"empty line", []models.JournalLine{
			{AccountID: b.cash.ID},
			{AccountID: b.revenue.ID, Credit: dec("10")},
		}, ErrInvalidLine},
		{"fractional cents", []models.JournalLine{
			{AccountID: b.cash.ID, Debit: dec("10.005")},
			{AccountID: b.revenue.ID, Credit: dec("10.005")},
		}, ErrInvalidLine},
		{"unbalanced", []models.JournalLine{
			{AccountID: b.cash.ID, Debit: dec("10")},
			{AccountID: b.revenue.ID, Credit: dec("9.99")},
		}, ErrUnbalanced},
		{"other entity's account", []models.JournalLine{
			{AccountID: foreign.ID, Debit: dec("10")},
			{AccountID: b.revenue.ID, Credit: dec("10")},
		}, ErrForeignAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Post(ctx, &models.JournalEntry{EntityID: b.entity.ID, Date: day(2026, 1, 5), Lines: tt.lines})
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, records.ErrInvalid)
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.JournalEntry{}).Count(&count).Error)
	assert.Zero(t, count)

	entry := &models.JournalEntry{EntityID: b.entity.ID, Date: day(2026, 1, 5), Memo: "Owner contribution", Lines: []models.JournalLine{
		{AccountID: b.cash.ID, Debit: dec("250000")},
		{AccountID: b.revenue.ID, Credit: dec("250000")},
	}}
	require.NoError(t, s.Post(ctx, entry))
	assert.Equal(t, SourceManual, entry.Source)

	got, err := s.Entry(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.True(t, got.Lines[0].Date.Equal(day(2026, 1, 5)))
	assert.False(t, got.PostedAt.IsZero())
}

func TestReverse(t *testing.T) {
	s, _, b := setup(t)
	ctx := context.Background()

	entry := &models.JournalEntry{EntityID: b.entity.ID, Date: day(2026, 2, 1), Lines: []models.JournalLine{
		{AccountID: b.wip.ID, Debit: dec("1200.50")},
		{AccountID: b.cash.ID, Credit: dec("1200.50")},
	}}
	require.NoError(t, s.Post(ctx, entry))

	rev, err := s.Reverse(ctx, entry.ID, day(2026, 2, 3))
	require.NoError(t, err)
	require.NotNil(t, rev.ReversalOfID)
	assert.Equal(t, entry.ID, *rev.ReversalOfID)
	assert.Equal(t, SourceReversal, rev.Source)

	orig, err := s.Entry(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, orig.ReversedByID)
	assert.Equal(t, rev.ID, *orig.ReversedByID)

	_, err = s.Reverse(ctx, entry.ID, day(2026, 2, 4))
	assert.ErrorIs(t, err, ErrAlreadyReversed)
	_, err = s.Reverse(ctx, rev.ID, day(2026, 2, 4))
	assert.ErrorIs(t, err, ErrAlreadyReversed)

	before, err := s.TrialBalance(ctx, b.entity.ID, day(2026, 2, 2))
	require.NoError(t, err)
	require.Len(t, before.Rows, 2)
	assert.True(t, dec("-1200.50").Equal(before.Rows[0].Balance), "cash")
	assert.True(t, dec("1200.50").Equal(before.Rows[1].Balance), "wip")

	after, err := s.TrialBalance(ctx, b.entity.ID, day(2026, 2, 28))
	require.NoError(t, err)
	assert.True(t, after.Balanced)
	for _, r := range after.Rows {
		assert.True(t, r.Balance.IsZero(), r.Code)
	}
}

func TestBillLifecycle(t *testing.T) {
	s, _, b := setup(t)
	ctx := context.Background()
	jobID := uint(7)

	bill := &models.Bill{VendorID: b.vendor.ID, EntityID: b.entity.ID, Number: "INV-881", Date: day(2026, 1, 10), Lines: []models.BillLine{
		{AccountID: b.wip.ID, JobID: &jobID, CostCode: "06-100", Amount: dec("4000")},
		{AccountID: b.wip.ID, JobID: &jobID, CostCode: "06-200", Amount: dec("1000")},
	}}
	require.NoError(t, s.CreateBill(ctx, bill))
	assert.Equal(t, models.BillDraft, bill.Status)
	assert.True(t, dec("5000").Equal(bill.Total))
	assert.True(t, bill.DueDate.Equal(day(2026, 2, 9)))

	_, err := s.PayBill(ctx, bill.ID, b.bank.ID, dec("100"), day(2026, 1, 11))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	approved, err := s.ApproveBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillApproved, approved.Status)
	require.NotNil(t, approved.JournalEntryID)

	entry, err := s.Entry(ctx, *approved.JournalEntryID)
	require.NoError(t, err)
	require.Len(t, entry.Lines, 3)
	assert.Equal(t, "06-100", entry.Lines[0].CostCode)
	assert.Equal(t, b.ap.ID, entry.Lines[2].AccountID)
	assert.True(t, dec("5000").Equal(entry.Lines[2].Credit))

	_, err = s.ApproveBill(ctx, bill.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	p1, err := s.PayBill(ctx, bill.ID, b.bank.ID, dec("3000"), day(2026, 2, 1))
	require.NoError(t, err)
	assert.NotZero(t, p1.JournalEntryID)

	_, err = s.PayBill(ctx, bill.ID, b.bank.ID, dec("2000.01"), day(2026, 2, 2))
	assert.ErrorIs(t, err, ErrOverpayment)

	_, err = s.PayBill(ctx, bill.ID, b.bank.ID, dec("2000"), day(2026, 2, 5))
	require.NoError(t, err)

	_, err = s.PayBill(ctx, bill.ID, b.bank.ID, dec("1"), day(2026, 2, 6))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	tb, err := s.TrialBalance(ctx, b.entity.ID, day(2026, 12, 31))
	require.NoError(t, err)
	assert.True(t, tb.Balanced)
	balances := map[string]decimal.Decimal{}
	for _, r := range tb.Rows {
		balances[r.Code] = r.Balance
	}
	assert.True(t, dec("-5000").Equal(balances["1000"]))
	assert.True(t, dec("5000").Equal(balances["1500"]))
	assert.True(t, balances["2000"].IsZero())
}

func TestPayBill_BankOfAnotherEntity(t *testing.T) {
	s, db, b := setup(t)
	ctx := context.Background()

	other := models.Entity{Name: "Cedar LLC"}
	require.NoError(t, db.Create(&other).Error)
	otherBank := models.BankAccount{EntityID: other.ID, Name: "Cedar Operating", GLAccountID: 999}
	require.NoError(t, db.Create(&otherBank).Error)

	bill := &models.Bill{VendorID: b.vendor.ID, EntityID: b.entity.ID, Number: "7", Date: day(2026, 3, 1), Lines: []models.BillLine{
		{AccountID: b.wip.ID, Amount: dec("100")},
	}}
	require.NoError(t, s.CreateBill(ctx, bill))
	_, err := s.ApproveBill(ctx, bill.ID)
	require.NoError(t, err)

	_, err = s.PayBill(ctx, bill.ID, otherBank.ID, dec("100"), day(2026, 3, 2))
	assert.ErrorIs(t, err, ErrForeignAccount)
}

func TestVoidBill(t *testing.T) {
	s, _, b := setup(t)
	ctx := context.Background()

	newBill := func(number string) *models.Bill {
		bill := &models.Bill{VendorID: b.vendor.ID, EntityID: b.entity.ID, Number: number, Date: day(2026, 3, 1), Lines: []models.BillLine{
			{AccountID: b.wip.ID, Amount: dec("800")},
		}}
		require.NoError(t, s.CreateBill(ctx, bill))
		return bill
	}

	draft := newBill("D-1")
	voided, err := s.VoidBill(ctx, draft.ID, day(2026, 3, 2))
	require.NoError(t, err)
	assert.Equal(t, models.BillVoid, voided.Status)

	approved := newBill("A-1")
	_, err = s.ApproveBill(ctx, approved.ID)
	require.NoError(t, err)
	_, err = s.VoidBill(ctx, approved.ID, day(2026, 3, 5))
	require.NoError(t, err)

	tb, err := s.TrialBalance(ctx, b.entity.ID, day(2026, 3, 31))
	require.NoError(t, err)
	for _, r := range tb.Rows {
		assert.True(t, r.Balance.IsZero(), r.Code)
	}

	paid := newBill("P-1")
	_, err = s.ApproveBill(ctx, paid.ID)
	require.NoError(t, err)
	_, err = s.PayBill(ctx, paid.ID, b.bank.ID, dec("100"), day(2026, 3, 3))
	require.NoError(t, err)
	_, err = s.VoidBill(ctx, paid.ID, day(2026, 3, 5))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestApproveBill_NoControlAccount(t *testing.T) {
	s, db, b := setup(t)
	ctx := context.Background()
	require.NoError(t, db.Model(&b.ap).Update("system_role", "").Error)

	bill := &models.Bill{VendorID: b.vendor.ID, EntityID: b.entity.ID, Number: "9", Date: day(2026, 3, 1), Lines: []models.BillLine{
		{AccountID: b.wip.ID, Amount: dec("10")},
	}}
	require.NoError(t, s.CreateBill(ctx, bill))
	_, err := s.ApproveBill(ctx, bill.ID)
	assert.ErrorIs(t, err, ErrNoControl)
}

func TestInvoiceLifecycle(t *testing.T) {
	s, _, b := setup(t)
	ctx := context.Background()

	inv := &models.Invoice{CustomerID: b.customer.ID, EntityID: b.entity.ID, Number: "S-100", Date: day(2026, 5, 1), Lines: []models.InvoiceLine{
		{AccountID: b.revenue.ID, Description: "Lot 4 closing", Amount: dec("450000")},
	}}
	require.NoError(t, s.CreateInvoice(ctx, inv))
	assert.True(t, inv.DueDate.Equal(day(2026, 5, 31)))

	issued, err := s.IssueInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceIssued, issued.Status)

	_, err = s.ReceivePayment(ctx, inv.ID, b.bank.ID, dec("450000.01"), day(2026, 5, 20))
	assert.ErrorIs(t, err, ErrOverpayment)

	_, err = s.ReceivePayment(ctx, inv.ID, b.bank.ID, dec("400000"), day(2026, 5, 20))
	require.NoError(t, err)

	tb, err := s.TrialBalance(ctx, b.entity.ID, day(2026, 5, 31))
	require.NoError(t, err)
	balances := map[string]decimal.Decimal{}
	for _, r := range tb.Rows {
		balances[r.Code] = r.Balance
	}
	assert.True(t, dec("400000").Equal(balances["1000"]))
	assert.True(t, dec("50000").Equal(balances["1200"]))
	assert.True(t, dec("450000").Equal(balances["4000"]))

	_, err = s.VoidInvoice(ctx, inv.ID, day(2026, 6, 1))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateBill_DraftOnly(t *testing.T) {
	s, db, b := setup(t)
	ctx := context.Background()

	other := models.Entity{Name: "Cedar LLC"}
	require.NoError(t, db.Create(&other).Error)

	bill := &models.Bill{VendorID: b.vendor.ID, EntityID: b.entity.ID, Number: "INV-1", Date: day(2026, 4, 1), Lines: []models.BillLine{
		{AccountID: b.wip.ID, Amount: dec("100")},
	}}
	require.NoError(t, s.CreateBill(ctx, bill))

	updated, err := s.UpdateBill(ctx, bill.ID, map[string]any{"number": "INV-1A"})
	require.NoError(t, err)
	assert.Equal(t, "INV-1A", updated.Number)
	assert.Len(t, updated.Lines, 1)

	_, err = s.UpdateBill(ctx, bill.ID, map[string]any{"total": "1"})
	assert.ErrorIs(t, err, records.ErrInvalid)

	_, err = s.ApproveBill(ctx, bill.ID)
	require.NoError(t, err)

	for _, changes := range []map[string]any{
		{"entity_id": other.ID},
		{"vendor_id": b.vendor.ID},
		{"date": "2026-04-02T00:00:00Z"},
		{"number": "INV-2"},
	} {
		_, err = s.UpdateBill(ctx, bill.ID, changes)
		assert.ErrorIs(t, err, ErrInvalidStatus, "%v", changes)
		assert.ErrorIs(t, err, records.ErrConflict, "%v", changes)
	}

	var got models.Bill
	require.NoError(t, db.First(&got, bill.ID).Error)
	assert.Equal(t, b.entity.ID, got.EntityID)
	assert.Equal(t, "INV-1A", got.Number)

	_, err = s.UpdateBill(ctx, 999, map[string]any{"number": "x"})
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestUpdateInvoice_DraftOnly(t *testing.T) {
	s, db, b := setup(t)
	ctx := context.Background()

	inv := &models.Invoice{CustomerID: b.customer.ID, EntityID: b.entity.ID, Number: "S-1", Date: day(2026, 5, 1), Lines: []models.InvoiceLine{
		{AccountID: b.revenue.ID, Amount: dec("1000")},
	}}
	require.NoError(t, s.CreateInvoice(ctx, inv))

	_, err := s.UpdateInvoice(ctx, inv.ID, map[string]any{"number": "S-1A"})
	require.NoError(t, err)

	_, err = s.IssueInvoice(ctx, inv.ID)
	require.NoError(t, err)

	_, err = s.UpdateInvoice(ctx, inv.ID, map[string]any{"customer_id": b.customer.ID + 1})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	var got models.Invoice
	require.NoError(t, db.First(&got, inv.ID).Error)
	assert.Equal(t, b.customer.ID, got.CustomerID)
	assert.Equal(t, "S-1A", got.Number)
}

func TestPayments_StaleReadCannotOverpay(t *testing.T) {
	s, db, b := setup(t)
	ctx := context.Background()

	bill := &models.Bill{VendorID: b.vendor.ID, EntityID: b.entity.ID, Number: "B-1", Date: day(2026, 4, 1), Lines: []models.BillLine{
		{AccountID: b.wip.ID, Amount: dec("100")},
	}}
	require.NoError(t, s.CreateBill(ctx, bill))
	_, err := s.ApproveBill(ctx, bill.ID)
	require.NoError(t, err)

	inv := &models.Invoice{CustomerID: b.customer.ID, EntityID: b.entity.ID, Number: "S-1", Date: day(2026, 4, 1), Lines: []models.InvoiceLine{
		{AccountID: b.revenue.ID, Amount: dec("100")},
	}}
	require.NoError(t, s.CreateInvoice(ctx, inv))
	_, err = s.IssueInvoice(ctx, inv.ID)
	require.NoError(t, err)

	var staleBill models.Bill
	require.NoError(t, db.First(&staleBill, bill.ID).Error)
	var staleInv models.Invoice
	require.NoError(t, db.First(&staleInv, inv.ID).Error)
	require.True(t, dec("80").LessThanOrEqual(staleBill.Balance()))
	require.True(t, dec("80").LessThanOrEqual(staleInv.Balance()))

	_, err = s.PayBill(ctx, bill.ID, b.bank.ID, dec("80"), day(2026, 4, 2))
	require.NoError(t, err)
	_, err = s.PayBill(ctx, staleBill.ID, b.bank.ID, dec("80"), day(2026, 4, 2))
	assert.ErrorIs(t, err, ErrOverpayment)

	_, err = s.ReceivePayment(ctx, inv.ID, b.bank.ID, dec("80"), day(2026, 4, 2))
	require.NoError(t, err)
	_, err = s.ReceivePayment(ctx, staleInv.ID, b.bank.ID, dec("80"), day(2026, 4, 2))
	assert.ErrorIs(t, err, ErrOverpayment)

	var gotBill models.Bill
	require.NoError(t, db.First(&gotBill, bill.ID).Error)
	assert.True(t, dec("80").Equal(gotBill.AmountPaid))
	assert.True(t, gotBill.AmountPaid.LessThanOrEqual(gotBill.Total))

	var gotInv models.Invoice
	require.NoError(t, db.First(&gotInv, inv.ID).Error)
	assert.True(t, dec("80").Equal(gotInv.AmountPaid))
}

func TestDeleteAccount(t *testing.T) {
	s, db, b := setup(t)
	ctx := context.Background()

	require.NoError(t, s.Post(ctx, &models.JournalEntry{EntityID: b.entity.ID, Date: day(2026, 1, 5), Lines: []models.JournalLine{
		{AccountID: b.wip.ID, Debit: dec("50")},
		{AccountID: b.cash.ID, Credit: dec("50")},
	}}))

	err := s.DeleteAccount(ctx, b.wip.ID)
	assert.ErrorIs(t, err, ErrAccountInUse)
	assert.ErrorIs(t, err, records.ErrConflict)

	err = s.DeleteAccount(ctx, b.cash.ID)
	assert.ErrorIs(t, err, ErrAccountInUse, "bank account and lines reference cash")

	spare := models.GLAccount{EntityID: b.entity.ID, Code: "6900", Name: "Misc", Type: models.AccountExpense}
	require.NoError(t, db.Create(&spare).Error)
	require.NoError(t, s.DeleteAccount(ctx, spare.ID))
	assert.ErrorIs(t, s.DeleteAccount(ctx, spare.ID), records.ErrNotFound)
}

func TestTrialBalance_SoftDeletedAccount(t *testing.T) {
	s, db, b := setup(t)
	ctx := context.Background()

	require.NoError(t, s.Post(ctx, &models.JournalEntry{EntityID: b.entity.ID, Date: day(2026, 1, 5), Lines: []models.JournalLine{
		{AccountID: b.wip.ID, Debit: dec("75")},
		{AccountID: b.cash.ID, Credit: dec("75")},
	}}))
	require.NoError(t, db.Delete(&b.wip).Error)

	tb, err := s.TrialBalance(ctx, b.entity.ID, day(2026, 12, 31))
	require.NoError(t, err)
	assert.True(t, tb.Balanced)
	assert.True(t, dec("75").Equal(tb.TotalDebit))
	require.Len(t, tb.Rows, 2)
	assert.Equal(t, "1500", tb.Rows[1].Code)
}

func TestBucketFor(t *testing.T) {
	tests := map[int]string{
		-5: BucketCurrent, 0: BucketCurrent, 1: Bucket1To30, 30: Bucket1To30, 31: Bucket31To60,
		60: Bucket31To60, 61: Bucket61To90, 90: Bucket61To90, 91: BucketOver90, 400: BucketOver90,
	}
	for days, want := range tests {
		assert.Equal(t, want, BucketFor(days), "%d days", days)
	}
}

func TestAging(t *testing.T) {
	s, _, b := setup(t)
	ctx := context.Background()
	asOf := day(2026, 6, 30)

	bills := []struct {
		number string
		due    time.Time
		amount string
	}{
		{"current", day(2026, 7, 15), "100"},
		{"late-10", day(2026, 6, 20), "200"},
		{"late-45", day(2026, 5, 16), "300"},
		{"late-75", day(2026, 4, 16), "400"},
		{"late-120", day(2026, 3, 2), "500"},
	}
	for _, tc := range bills {
		bill := &models.Bill{VendorID: b.vendor.ID, EntityID: b.entity.ID, Number: tc.number, Date: day(2026, 1, 2), DueDate: tc.due,
			Lines: []models.BillLine{{AccountID: b.wip.ID, Amount: dec(tc.amount)}}}
		require.NoError(t, s.CreateBill(ctx, bill))
		_, err := s.ApproveBill(ctx, bill.ID)
		require.NoError(t, err)
		if tc.number == "late-120" {
			_, err = s.PayBill(ctx, bill.ID, b.bank.ID, dec("150"), day(2026, 6, 1))
			require.NoError(t, err)
			_, err = s.PayBill(ctx, bill.ID, b.bank.ID, dec("350"), day(2026, 7, 10))
			require.NoError(t, err)
		}
	}

	draft := &models.Bill{VendorID: b.vendor.ID, EntityID: b.entity.ID, Number: "draft", Date: day(2026, 1, 2),
		Lines: []models.BillLine{{AccountID: b.wip.ID, Amount: dec("999")}}}
	require.NoError(t, s.CreateBill(ctx, draft))

	report, err := s.Aging(ctx, AgingPayables, b.entity.ID, asOf)
	require.NoError(t, err)
	require.Len(t, report.Rows, 5)

	want := []string{"100", "200", "300", "400", "350"}
	for i, bucket := range Buckets {
		assert.Equal(t, bucket, report.Totals[i].Bucket)
		assert.True(t, dec(want[i]).Equal(report.Totals[i].Amount), bucket)
	}
	assert.True(t, dec("1350").Equal(report.Total))

	ar, err := s.Aging(ctx, AgingReceivables, b.entity.ID, asOf)
	require.NoError(t, err)
	assert.Empty(t, ar.Rows)
	assert.True(t, ar.Total.IsZero())

	_, err = s.Aging(ctx, "gl", b.entity.ID, asOf)
	assert.ErrorIs(t, err, records.ErrInvalid)
}
