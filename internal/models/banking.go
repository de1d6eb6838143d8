package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankAccount is an entity's bank account, tied to the cash GL account its
// activity posts to.
type BankAccount struct {
	Base
	EntityID    uint       `gorm:"not null;index" json:"entity_id" validate:"required"`
	Name        string     `gorm:"not null" json:"name" validate:"required"`
	Institution string     `json:"institution"`
	Last4       string     `json:"last4" validate:"omitempty,len=4,numeric"`
	GLAccountID uint       `gorm:"not null" json:"gl_account_id" validate:"required"`
	GLAccount   *GLAccount `gorm:"foreignKey:GLAccountID" json:"gl_account,omitempty" validate:"-"`
}

// BankStatementLine is one imported statement row. Amount is negative for
// withdrawals.
type BankStatementLine struct {
	Base
	BankAccountID    uint            `gorm:"not null;uniqueIndex:idx_stmt_line" json:"bank_account_id"`
	Date             time.Time       `gorm:"not null;index" json:"date"`
	Description      string          `json:"description"`
	Amount           decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Fingerprint      string          `gorm:"not null;size:64;uniqueIndex:idx_stmt_line" json:"-"`
	JournalLineID    *uint           `gorm:"index" json:"journal_line_id"`
	ReconciliationID *uint           `gorm:"index" json:"reconciliation_id"`
}

type ReconciliationStatus string

const (
	ReconciliationOpen      ReconciliationStatus = "open"
	ReconciliationFinalized ReconciliationStatus = "finalized"
)

// Reconciliation ties a bank account's book activity to a statement.
type Reconciliation struct {
	Base
	BankAccountID    uint                 `gorm:"not null;index" json:"bank_account_id" validate:"required"`
	StatementDate    time.Time            `gorm:"not null" json:"statement_date" validate:"required"`
	BeginningBalance decimal.Decimal      `gorm:"type:numeric(14,2);not null" json:"beginning_balance"`
	EndingBalance    decimal.Decimal      `gorm:"type:numeric(14,2);not null" json:"ending_balance"`
	Status           ReconciliationStatus `gorm:"not null;default:open" json:"status"`
	FinalizedAt      *time.Time           `json:"finalized_at"`
}
