package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Investor struct {
	Base
	Name  string `gorm:"not null;index" json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

// Commitment is the capital an investor has agreed to contribute to an entity.
type Commitment struct {
	Base
	InvestorID uint            `gorm:"not null;uniqueIndex:idx_commitment" json:"investor_id" validate:"required"`
	Investor   *Investor       `gorm:"foreignKey:InvestorID" json:"investor,omitempty" validate:"-"`
	EntityID   uint            `gorm:"not null;uniqueIndex:idx_commitment" json:"entity_id" validate:"required"`
	Entity     *Entity         `gorm:"foreignKey:EntityID" json:"entity,omitempty" validate:"-"`
	Amount     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Date       time.Time       `json:"date"`
}

type CapitalCall struct {
	Base
	EntityID    uint                    `gorm:"not null;index" json:"entity_id"`
	Amount      decimal.Decimal         `gorm:"type:numeric(14,2);not null" json:"amount"`
	Date        time.Time               `gorm:"not null" json:"date"`
	DueDate     *time.Time              `json:"due_date"`
	Memo        string                  `json:"memo"`
	Allocations []CapitalCallAllocation `gorm:"foreignKey:CapitalCallID" json:"allocations"`
}

type CapitalCallAllocation struct {
	Base
	CapitalCallID uint            `gorm:"not null;index" json:"capital_call_id"`
	InvestorID    uint            `gorm:"not null;index" json:"investor_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
}

type Distribution struct {
	Base
	EntityID    uint                     `gorm:"not null;index" json:"entity_id"`
	Amount      decimal.Decimal          `gorm:"type:numeric(14,2);not null" json:"amount"`
	Date        time.Time                `gorm:"not null" json:"date"`
	Memo        string                   `json:"memo"`
	Allocations []DistributionAllocation `gorm:"foreignKey:DistributionID" json:"allocations"`
}

type DistributionAllocation struct {
	Base
	DistributionID uint            `gorm:"not null;index" json:"distribution_id"`
	InvestorID     uint            `gorm:"not null;index" json:"investor_id"`
	Amount         decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
}
