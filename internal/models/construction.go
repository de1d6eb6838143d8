package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Project is an entity-owned development such as a subdivision.
type Project struct {
	Base
	EntityID uint    `gorm:"not null;index" json:"entity_id" validate:"required"`
	Entity   *Entity `gorm:"foreignKey:EntityID" json:"entity,omitempty" validate:"-"`
	Name     string  `gorm:"not null" json:"name" validate:"required,max=200"`
	Location string  `json:"location"`
	Status   string  `gorm:"not null;default:active" json:"status" validate:"omitempty,oneof=planning active closed"`
}

type JobStatus string

const (
	JobPreConstruction JobStatus = "pre_construction"
	JobPermitting      JobStatus = "permitting"
	JobInProgress      JobStatus = "in_progress"
	JobComplete        JobStatus = "complete"
)

// Job is a single home build on a lot of a project.
type Job struct {
	Base
	ProjectID  uint       `gorm:"not null;index" json:"project_id" validate:"required"`
	Project    *Project   `gorm:"foreignKey:ProjectID" json:"project,omitempty" validate:"-"`
	Name       string     `gorm:"not null;index" json:"name" validate:"required,max=200"`
	Lot        string     `json:"lot"`
	Plan       string     `json:"plan"`
	Address    string     `json:"address"`
	SqFt       int        `json:"sqft" validate:"gte=0"`
	Status     JobStatus  `gorm:"not null;index;default:pre_construction" json:"status"`
	StartDate  *time.Time `json:"start_date"`
	TargetDate *time.Time `json:"target_date"`
	DealID     *uint      `gorm:"index" json:"deal_id"`
}

// BudgetLine is the original budget of a cost code on a job.
type BudgetLine struct {
	Base
	JobID       uint            `gorm:"not null;index" json:"job_id" validate:"required"`
	CostCode    string          `gorm:"not null" json:"cost_code" validate:"required,max=20"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
}

type ChangeOrderStatus string

const (
	ChangeOrderPending  ChangeOrderStatus = "pending"
	ChangeOrderApproved ChangeOrderStatus = "approved"
	ChangeOrderRejected ChangeOrderStatus = "rejected"
)

// ChangeOrder adjusts a job's budget once approved.
type ChangeOrder struct {
	Base
	JobID       uint              `gorm:"not null;index" json:"job_id" validate:"required"`
	Number      string            `json:"number"`
	CostCode    string            `gorm:"not null" json:"cost_code" validate:"required,max=20"`
	Description string            `json:"description"`
	Amount      decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"amount"`
	Status      ChangeOrderStatus `gorm:"not null;default:pending" json:"status"`
	DecidedAt   *time.Time        `json:"decided_at"`
}
