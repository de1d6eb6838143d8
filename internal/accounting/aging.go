package accounting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

type AgingKind string

const (
	AgingPayables    AgingKind = "ap"
	AgingReceivables AgingKind = "ar"
)

// Aging buckets in report order.
const (
	BucketCurrent = "current"
	Bucket1To30   = "1-30"
	Bucket31To60  = "31-60"
	Bucket61To90  = "61-90"
	BucketOver90  = "90+"
)

var Buckets = []string{BucketCurrent, Bucket1To30, Bucket31To60, Bucket61To90, BucketOver90}

// BucketFor names the bucket of a balance the given days past due.
func BucketFor(daysPastDue int) string {
	switch {
	case daysPastDue <= 0:
		return BucketCurrent
	case daysPastDue <= 30:
		return Bucket1To30
	case daysPastDue <= 60:
		return Bucket31To60
	case daysPastDue <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

type AgingRow struct {
	DocumentID  uint            `json:"document_id"`
	Number      string          `json:"number"`
	Party       string          `json:"party"`
	Date        time.Time       `json:"date"`
	DueDate     time.Time       `json:"due_date"`
	Balance     decimal.Decimal `json:"balance"`
	DaysPastDue int             `json:"days_past_due"`
	Bucket      string          `json:"bucket"`
}

type BucketTotal struct {
	Bucket string          `json:"bucket"`
	Amount decimal.Decimal `json:"amount"`
}

type AgingReport struct {
	Kind     AgingKind       `json:"kind"`
	EntityID uint            `json:"entity_id"`
	AsOf     time.Time       `json:"as_of"`
	Rows     []AgingRow      `json:"rows"`
	Totals   []BucketTotal   `json:"totals"`
	Total    decimal.Decimal `json:"total"`
}

// daysBetween counts calendar days from a to b in UTC.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// Aging buckets the balances open at asOf by days past due. A balance is
// open when the document was posted by asOf and payments dated by asOf have
// not cleared it.
func (s *Service) Aging(ctx context.Context, kind AgingKind, entityID uint, asOf time.Time) (*AgingReport, error) {
	var rows []AgingRow
	var err error
	switch kind {
	case AgingPayables:
		rows, err = s.payablesAging(ctx, entityID, asOf)
	case AgingReceivables:
		rows, err = s.receivablesAging(ctx, entityID, asOf)
	default:
		return nil, fmt.Errorf("%w: unknown aging kind %q", records.ErrInvalid, kind)
	}
	if err != nil {
		return nil, err
	}

	report := &AgingReport{Kind: kind, EntityID: entityID, AsOf: asOf, Rows: rows}
	byBucket := map[string]decimal.Decimal{}
	for i := range report.Rows {
		r := &report.Rows[i]
		r.DaysPastDue = daysBetween(r.DueDate, asOf)
		r.Bucket = BucketFor(r.DaysPastDue)
		byBucket[r.Bucket] = byBucket[r.Bucket].Add(r.Balance)
		report.Total = report.Total.Add(r.Balance)
	}
	for _, b := range Buckets {
		report.Totals = append(report.Totals, BucketTotal{Bucket: b, Amount: byBucket[b]})
	}
	sort.SliceStable(report.Rows, func(i, j int) bool {
		if report.Rows[i].Party != report.Rows[j].Party {
			return report.Rows[i].Party < report.Rows[j].Party
		}
		return report.Rows[i].DueDate.Before(report.Rows[j].DueDate)
	})
	return report, nil
}

func paymentsBy(asOf time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return db.Where("date <= ?", asOf) }
}

func (s *Service) payablesAging(ctx context.Context, entityID uint, asOf time.Time) ([]AgingRow, error) {
	var bills []models.Bill
	err := s.db.WithContext(ctx).
		Preload("Vendor").
		Preload("Payments", paymentsBy(asOf)).
		Where("entity_id = ? AND date <= ? AND status IN ?", entityID, asOf,
			[]models.BillStatus{models.BillApproved, models.BillPartiallyPaid, models.BillPaid}).
		Find(&bills).Error
	if err != nil {
		return nil, err
	}

	var rows []AgingRow
	for _, b := range bills {
		balance := b.Total
		for _, p := range b.Payments {
			balance = balance.Sub(p.Amount)
		}
		if !balance.IsPositive() {
			continue
		}
		party := ""
		if b.Vendor != nil {
			party = b.Vendor.Name
		}
		rows = append(rows, AgingRow{DocumentID: b.ID, Number: b.Number, Party: party, Date: b.Date, DueDate: b.DueDate, Balance: balance})
	}
	return rows, nil
}

func (s *Service) receivablesAging(ctx context.Context, entityID uint, asOf time.Time) ([]AgingRow, error) {
	var invoices []models.Invoice
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Preload("Payments", paymentsBy(asOf)).
		Where("entity_id = ? AND date <= ? AND status IN ?", entityID, asOf,
			[]models.InvoiceStatus{models.InvoiceIssued, models.InvoicePartiallyPaid, models.InvoicePaid}).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}

	var rows []AgingRow
	for _, inv := range invoices {
		balance := inv.Total
		for _, p := range inv.Payments {
			balance = balance.Sub(p.Amount)
		}
		if !balance.IsPositive() {
			continue
		}
		party := ""
		if inv.Customer != nil {
			party = inv.Customer.Name
		}
		rows = append(rows, AgingRow{DocumentID: inv.ID, Number: inv.Number, Party: party, Date: inv.Date, DueDate: inv.DueDate, Balance: balance})
	}
	return rows, nil
}
