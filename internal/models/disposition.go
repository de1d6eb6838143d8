package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

const (
	ListingActive        ListingStatus = "active"
	ListingUnderContract ListingStatus = "under_contract"
	ListingSold          ListingStatus = "sold"
	ListingWithdrawn     ListingStatus = "withdrawn"
)

// Listing puts a completed home on the market.
type Listing struct {
	Base
	JobID      uint            `gorm:"not null;index" json:"job_id" validate:"required"`
	Job        *Job            `gorm:"foreignKey:JobID" json:"job,omitempty" validate:"-"`
	ListPrice  decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"list_price"`
	ListedDate time.Time       `json:"listed_date"`
	Agent      string          `json:"agent"`
	Status     ListingStatus   `gorm:"not null;index;default:active" json:"status"`
	Offers     []Offer         `gorm:"foreignKey:ListingID" json:"offers,omitempty" validate:"-"`
}

type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferRejected  OfferStatus = "rejected"
	OfferWithdrawn OfferStatus = "withdrawn"
)

type Offer struct {
	Base
	ListingID         uint            `gorm:"not null;index" json:"listing_id" validate:"required"`
	Buyer             string          `gorm:"not null" json:"buyer" validate:"required"`
	Amount            decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	SellerConcessions decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"seller_concessions"`
	EarnestMoney      decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"earnest_money"`
	OfferDate         time.Time       `json:"offer_date"`
	Status            OfferStatus     `gorm:"not null;default:pending" json:"status"`
}

// Sale records the closing of a listing.
type Sale struct {
	Base
	ListingID    uint            `gorm:"not null;uniqueIndex" json:"listing_id"`
	OfferID      uint            `gorm:"not null" json:"offer_id"`
	JobID        uint            `gorm:"not null;index" json:"job_id"`
	Buyer        string          `json:"buyer"`
	CloseDate    time.Time       `gorm:"not null" json:"close_date"`
	Price        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"price"`
	Concessions  decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"concessions"`
	Commission   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"commission"`
	ClosingCosts decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"closing_costs"`
	NetProceeds  decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"net_proceeds"`
}
