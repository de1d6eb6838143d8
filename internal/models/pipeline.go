package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/beesaferoot/buildops/internal/dealsheet"
)

type DealStage string

const (
	StageLead          DealStage = "lead"
	StageUnderReview   DealStage = "under_review"
	StageUnderContract DealStage = "under_contract"
	StageClosed        DealStage = "closed"
	StageDead          DealStage = "dead"
)

// Deal is a land opportunity tracked through the acquisition pipeline.
type Deal struct {
	Base
	Name      string     `gorm:"not null;index" json:"name" validate:"required,max=200"`
	Address   string     `json:"address"`
	City      string     `json:"city"`
	State     string     `json:"state" validate:"omitempty,len=2"`
	Stage     DealStage  `gorm:"not null;index;default:lead" json:"stage"`
	EntityID  *uint      `gorm:"index" json:"entity_id"`
	Entity    *Entity    `gorm:"foreignKey:EntityID" json:"entity,omitempty" validate:"-"`
	Source    string     `json:"source"`
	Notes     string     `gorm:"type:text" json:"notes"`
	ProjectID *uint      `json:"project_id"`
	ClosedAt  *time.Time `json:"closed_at"`
	Sheet     *DealSheet `gorm:"foreignKey:DealID" json:"sheet,omitempty" validate:"-"`
}

// DealSheet stores the inputs of a deal's financial model together with the
// headline figures of its last calculation.
type DealSheet struct {
	Base
	DealID           uint             `gorm:"not null;uniqueIndex" json:"deal_id"`
	Inputs           dealsheet.Inputs `gorm:"serializer:json;type:text" json:"inputs"`
	TotalProjectCost decimal.Decimal  `gorm:"type:numeric(14,2)" json:"total_project_cost"`
	NetProfit        decimal.Decimal  `gorm:"type:numeric(14,2)" json:"net_profit"`
	Margin           decimal.Decimal  `gorm:"type:numeric(8,4)" json:"margin"`
	LoanAmount       decimal.Decimal  `gorm:"type:numeric(14,2)" json:"loan_amount"`
	MaxLotPrice      decimal.Decimal  `gorm:"type:numeric(14,2)" json:"max_lot_price"`
	Verdict          string           `gorm:"index" json:"verdict"`
	CalculatedAt     time.Time        `json:"calculated_at"`
}
