// Package models holds the persisted records of the back office. Behaviour
// lives in the domain packages; these types only describe rows.
package models

import (
	"time"

	"gorm.io/gorm"
)

//go:generate go run ../../tools/genregistry .

// Base is embedded by every model. Deletes are soft.
type Base struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// RecordID returns the primary key.
func (b Base) RecordID() uint { return b.ID }

// ResetBase clears the key and timestamps, e.g. of a decoded request body
// before it is inserted.
func (b *Base) ResetBase() { *b = Base{} }

// Record types used by workflow templates, documents, links and change events.
const (
	RecordDeal        = "deal"
	RecordProject     = "project"
	RecordJob         = "job"
	RecordBill        = "bill"
	RecordInvoice     = "invoice"
	RecordDisposition = "disposition"
	RecordInvestor    = "investor"
	RecordVendor      = "vendor"
	RecordEntity      = "entity"
)

// Entity is a legal ownership vehicle. It owns projects, bank accounts and
// ledger entries.
type Entity struct {
	Base
	Name      string `gorm:"not null;uniqueIndex" json:"name" validate:"required,max=200"`
	LegalName string `json:"legal_name"`
	TaxID     string `json:"tax_id"`
	State     string `json:"state" validate:"omitempty,len=2"`
}
