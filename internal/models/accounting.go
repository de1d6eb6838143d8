package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
	AccountEquity    AccountType = "equity"
	AccountRevenue   AccountType = "revenue"
	AccountExpense   AccountType = "expense"
)

// DebitNormal reports whether balances of this type sit on the debit side.
func (t AccountType) DebitNormal() bool {
	return t == AccountAsset || t == AccountExpense
}

// System roles mark the control accounts postings are routed to.
const (
	RoleAccountsPayable    = "accounts_payable"
	RoleAccountsReceivable = "accounts_receivable"
)

// GLAccount is a general ledger account of an entity.
type GLAccount struct {
	Base
	EntityID   uint        `gorm:"not null;uniqueIndex:idx_gl_entity_code" json:"entity_id" validate:"required"`
	Code       string      `gorm:"not null;uniqueIndex:idx_gl_entity_code" json:"code" validate:"required,max=20"`
	Name       string      `gorm:"not null" json:"name" validate:"required"`
	Type       AccountType `gorm:"not null" json:"type" validate:"required,oneof=asset liability equity revenue expense"`
	SystemRole string      `gorm:"index" json:"system_role" validate:"omitempty,oneof=accounts_payable accounts_receivable"`
}

func (GLAccount) TableName() string {
	return "gl_accounts"
}

// JournalEntry is a balanced set of ledger lines. Once posted it is never
// edited; corrections are made by reversal.
type JournalEntry struct {
	Base
	EntityID     uint          `gorm:"not null;index" json:"entity_id" validate:"required"`
	Date         time.Time     `gorm:"not null;index" json:"date" validate:"required"`
	Memo         string        `json:"memo"`
	Source       string        `gorm:"index" json:"source"`
	SourceID     *uint         `json:"source_id"`
	ReversalOfID *uint         `json:"reversal_of_id"`
	ReversedByID *uint         `json:"reversed_by_id"`
	PostedAt     time.Time     `json:"posted_at"`
	Lines        []JournalLine `gorm:"foreignKey:EntryID" json:"lines" validate:"required,min=2,dive"`
}

// JournalLine carries exactly one of Debit or Credit. Date mirrors the
// entry date so cash lines can be matched against bank statements.
type JournalLine struct {
	Base
	EntryID          uint            `gorm:"not null;index" json:"entry_id"`
	AccountID        uint            `gorm:"not null;index" json:"account_id" validate:"required"`
	Account          *GLAccount      `gorm:"foreignKey:AccountID" json:"account,omitempty" validate:"-"`
	Date             time.Time       `gorm:"index" json:"date"`
	Debit            decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"debit"`
	Credit           decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"credit"`
	JobID            *uint           `gorm:"index" json:"job_id"`
	CostCode         string          `json:"cost_code"`
	Memo             string          `json:"memo"`
	ReconciliationID *uint           `gorm:"index" json:"reconciliation_id"`
	ReconciledAt     *time.Time      `json:"reconciled_at"`
}

// Signed is the line's effect on a debit-normal account.
func (l JournalLine) Signed() decimal.Decimal {
	return l.Debit.Sub(l.Credit)
}

// Vendor is a supplier or subcontractor billed through AP.
type Vendor struct {
	Base
	Name      string `gorm:"not null;index" json:"name" validate:"required,max=200"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone"`
	TaxID     string `json:"tax_id"`
	TermsDays int    `json:"terms_days" validate:"gte=0"`
}

type BillStatus string

const (
	BillDraft         BillStatus = "draft"
	BillApproved      BillStatus = "approved"
	BillPartiallyPaid BillStatus = "partially_paid"
	BillPaid          BillStatus = "paid"
	BillVoid          BillStatus = "void"
)

type Bill struct {
	Base
	VendorID       uint            `gorm:"not null;index" json:"vendor_id" validate:"required"`
	Vendor         *Vendor         `gorm:"foreignKey:VendorID" json:"vendor,omitempty" validate:"-"`
	EntityID       uint            `gorm:"not null;index" json:"entity_id" validate:"required"`
	Number         string          `gorm:"not null" json:"number" validate:"required"`
	Date           time.Time       `gorm:"not null" json:"date" validate:"required"`
	DueDate        time.Time       `gorm:"not null;index" json:"due_date"`
	Status         BillStatus      `gorm:"not null;index;default:draft" json:"status"`
	Total          decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"total"`
	AmountPaid     decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"amount_paid"`
	JournalEntryID *uint           `json:"journal_entry_id"`
	Lines          []BillLine      `gorm:"foreignKey:BillID" json:"lines" validate:"required,min=1,dive"`
	Payments       []BillPayment   `gorm:"foreignKey:BillID" json:"payments,omitempty" validate:"-"`
}

// Balance is the amount still owed.
func (b Bill) Balance() decimal.Decimal {
	return b.Total.Sub(b.AmountPaid)
}

type BillLine struct {
	Base
	BillID      uint            `gorm:"not null;index" json:"bill_id"`
	AccountID   uint            `gorm:"not null" json:"account_id" validate:"required"`
	JobID       *uint           `gorm:"index" json:"job_id"`
	CostCode    string          `json:"cost_code"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
}

type BillPayment struct {
	Base
	BillID         uint            `gorm:"not null;index" json:"bill_id"`
	BankAccountID  uint            `gorm:"not null" json:"bank_account_id"`
	Amount         decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Date           time.Time       `gorm:"not null" json:"date"`
	JournalEntryID uint            `json:"journal_entry_id"`
}

// Customer is a home buyer or other party invoiced through AR.
type Customer struct {
	Base
	Name  string `gorm:"not null;index" json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceIssued        InvoiceStatus = "issued"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceVoid          InvoiceStatus = "void"
)

type Invoice struct {
	Base
	CustomerID     uint             `gorm:"not null;index" json:"customer_id" validate:"required"`
	Customer       *Customer        `gorm:"foreignKey:CustomerID" json:"customer,omitempty" validate:"-"`
	EntityID       uint             `gorm:"not null;index" json:"entity_id" validate:"required"`
	Number         string           `gorm:"not null" json:"number" validate:"required"`
	Date           time.Time        `gorm:"not null" json:"date" validate:"required"`
	DueDate        time.Time        `gorm:"not null;index" json:"due_date"`
	Status         InvoiceStatus    `gorm:"not null;index;default:draft" json:"status"`
	Total          decimal.Decimal  `gorm:"type:numeric(14,2);not null;default:0" json:"total"`
	AmountPaid     decimal.Decimal  `gorm:"type:numeric(14,2);not null;default:0" json:"amount_paid"`
	JournalEntryID *uint            `json:"journal_entry_id"`
	Lines          []InvoiceLine    `gorm:"foreignKey:InvoiceID" json:"lines" validate:"required,min=1,dive"`
	Payments       []InvoicePayment `gorm:"foreignKey:InvoiceID" json:"payments,omitempty" validate:"-"`
}

func (i Invoice) Balance() decimal.Decimal {
	return i.Total.Sub(i.AmountPaid)
}

type InvoiceLine struct {
	Base
	InvoiceID   uint            `gorm:"not null;index" json:"invoice_id"`
	AccountID   uint            `gorm:"not null" json:"account_id" validate:"required"`
	JobID       *uint           `gorm:"index" json:"job_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
}

type InvoicePayment struct {
	Base
	InvoiceID      uint            `gorm:"not null;index" json:"invoice_id"`
	BankAccountID  uint            `gorm:"not null" json:"bank_account_id"`
	Amount         decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Date           time.Time       `gorm:"not null" json:"date"`
	JournalEntryID uint            `json:"journal_entry_id"`
}
