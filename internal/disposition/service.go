// Package disposition sells completed homes: listings, offers and closings.
package disposition

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
	"github.com/beesaferoot/buildops/internal/workflow"
)

const (
	recordListing = "listing"
	recordOffer   = "offer"
	recordSale    = "sale"
)

var (
	ErrJobNotReady   = fmt.Errorf("%w: job is not far enough along", records.ErrConflict)
	ErrListingStatus = fmt.Errorf("%w: invalid listing status for this action", records.ErrConflict)
	ErrOfferStatus   = fmt.Errorf("%w: offer is no longer pending", records.ErrConflict)
)

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	pub      changefeed.Publisher
	workflow *workflow.Engine
}

func NewService(db *gorm.DB, log *zap.Logger, pub changefeed.Publisher, wf *workflow.Engine) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = changefeed.Discard
	}
	return &Service{db: db, log: log.Named("disposition"), pub: pub, workflow: wf}
}

// setStatus saves a listing status and instantiates the disposition
// workflow for it.
func (s *Service) setStatus(ctx context.Context, tx *gorm.DB, l *models.Listing, status models.ListingStatus, at time.Time) error {
	l.Status = status
	if err := tx.Model(l).Select("status").Updates(l).Error; err != nil {
		return err
	}
	_, err := s.workflow.WithTx(tx).Instantiate(ctx, models.RecordDisposition, l.ID, string(status), at)
	return err
}

// CreateListing lists a job that is under construction or complete.
func (s *Service) CreateListing(ctx context.Context, l *models.Listing) error {
	if !l.ListPrice.IsPositive() {
		return fmt.Errorf("%w: list price must be positive", records.ErrInvalid)
	}
	if l.ListedDate.IsZero() {
		l.ListedDate = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.First(&job, l.JobID).Error; err != nil {
			return err
		}
		if job.Status != models.JobInProgress && job.Status != models.JobComplete {
			return fmt.Errorf("%w: job is %s", ErrJobNotReady, job.Status)
		}

		var open int64
		err := tx.Model(&models.Listing{}).
			Where("job_id = ? AND status IN ?", job.ID, []models.ListingStatus{models.ListingActive, models.ListingUnderContract}).
			Count(&open).Error
		if err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("%w: job %d is already listed", ErrListingStatus, job.ID)
		}

		l.Status = models.ListingActive
		if err := tx.Create(l).Error; err != nil {
			return err
		}
		_, err = s.workflow.WithTx(tx).Instantiate(ctx, models.RecordDisposition, l.ID, string(l.Status), l.ListedDate)
		return err
	})
	if err != nil {
		return records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent(recordListing, changefeed.ActionCreated, l.ID))
	return nil
}

// AddOffer records a pending offer on an active listing.
func (s *Service) AddOffer(ctx context.Context, o *models.Offer) error {
	if !o.Amount.IsPositive() {
		return fmt.Errorf("%w: offer amount must be positive", records.ErrInvalid)
	}
	if o.SellerConcessions.IsNegative() || o.EarnestMoney.IsNegative() {
		return fmt.Errorf("%w: concessions and earnest money must not be negative", records.ErrInvalid)
	}
	if o.OfferDate.IsZero() {
		o.OfferDate = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l models.Listing
		if err := tx.First(&l, o.ListingID).Error; err != nil {
			return err
		}
		if l.Status != models.ListingActive {
			return fmt.Errorf("%w: listing is %s", ErrListingStatus, l.Status)
		}
		o.Status = models.OfferPending
		return tx.Create(o).Error
	})
	if err != nil {
		return records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent(recordOffer, changefeed.ActionCreated, o.ID))
	return nil
}

// AcceptOffer accepts a pending offer, rejects the listing's other pending
// offers and puts the listing under contract.
func (s *Service) AcceptOffer(ctx context.Context, offerID uint, at time.Time) (*models.Offer, error) {
	var offer models.Offer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&offer, offerID).Error; err != nil {
			return err
		}
		if offer.Status != models.OfferPending {
			return ErrOfferStatus
		}
		var l models.Listing
		if err := tx.First(&l, offer.ListingID).Error; err != nil {
			return err
		}
		if l.Status != models.ListingActive {
			return fmt.Errorf("%w: listing is %s", ErrListingStatus, l.Status)
		}

		offer.Status = models.OfferAccepted
		if err := tx.Model(&offer).Select("status").Updates(&offer).Error; err != nil {
			return err
		}
		err := tx.Model(&models.Offer{}).
			Where("listing_id = ? AND id <> ? AND status = ?", l.ID, offer.ID, models.OfferPending).
			Update("status", models.OfferRejected).Error
		if err != nil {
			return err
		}
		return s.setStatus(ctx, tx, &l, models.ListingUnderContract, at)
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.log.Info("offer accepted", zap.Uint("offer_id", offer.ID), zap.Uint("listing_id", offer.ListingID))
	s.pub.Publish(changefeed.NewEvent(recordOffer, "accepted", offer.ID))
	s.pub.Publish(changefeed.NewEvent(recordListing, changefeed.ActionUpdated, offer.ListingID))
	return &offer, nil
}

// RejectOffer rejects a pending offer.
func (s *Service) RejectOffer(ctx context.Context, offerID uint) (*models.Offer, error) {
	var offer models.Offer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&offer, offerID).Error; err != nil {
			return err
		}
		if offer.Status != models.OfferPending {
			return ErrOfferStatus
		}
		offer.Status = models.OfferRejected
		return tx.Model(&offer).Select("status").Updates(&offer).Error
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent(recordOffer, changefeed.ActionUpdated, offer.ID))
	return &offer, nil
}

// Withdraw takes an unsold listing off the market. An accepted offer is
// withdrawn with it.
func (s *Service) Withdraw(ctx context.Context, listingID uint, at time.Time) (*models.Listing, error) {
	var l models.Listing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&l, listingID).Error; err != nil {
			return err
		}
		if l.Status != models.ListingActive && l.Status != models.ListingUnderContract {
			return fmt.Errorf("%w: listing is %s", ErrListingStatus, l.Status)
		}
		err := tx.Model(&models.Offer{}).
			Where("listing_id = ? AND status IN ?", l.ID, []models.OfferStatus{models.OfferPending, models.OfferAccepted}).
			Update("status", models.OfferWithdrawn).Error
		if err != nil {
			return err
		}
		return s.setStatus(ctx, tx, &l, models.ListingWithdrawn, at)
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent(recordListing, changefeed.ActionUpdated, l.ID))
	return &l, nil
}

// CloseInput are the closing figures of a sale.
type CloseInput struct {
	CloseDate     time.Time       `json:"close_date" validate:"required"`
	CommissionPct decimal.Decimal `json:"commission_pct"`
	ClosingCosts  decimal.Decimal `json:"closing_costs"`
}

// NetProceeds is price - concessions - commission - closing costs, with the
// commission rounded to cents.
func NetProceeds(price, concessions, commissionPct, closingCosts decimal.Decimal) (commission, net decimal.Decimal) {
	commission = price.Mul(commissionPct).Round(2)
	net = price.Sub(concessions).Sub(commission).Sub(closingCosts)
	return commission, net
}

// Close closes an under-contract listing at its accepted offer. The job
// must be complete.
func (s *Service) Close(ctx context.Context, listingID uint, in CloseInput) (*models.Sale, error) {
	if in.CloseDate.IsZero() {
		return nil, fmt.Errorf("%w: close date is required", records.ErrInvalid)
	}
	if in.CommissionPct.IsNegative() || in.CommissionPct.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: commission_pct must be between 0 and 1", records.ErrInvalid)
	}
	if in.ClosingCosts.IsNegative() {
		return nil, fmt.Errorf("%w: closing costs must not be negative", records.ErrInvalid)
	}

	var sale models.Sale
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l models.Listing
		if err := tx.First(&l, listingID).Error; err != nil {
			return err
		}
		if l.Status != models.ListingUnderContract {
			return fmt.Errorf("%w: listing is %s", ErrListingStatus, l.Status)
		}
		var job models.Job
		if err := tx.First(&job, l.JobID).Error; err != nil {
			return err
		}
		if job.Status != models.JobComplete {
			return fmt.Errorf("%w: job is %s", ErrJobNotReady, job.Status)
		}
		var offer models.Offer
		err := tx.Where("listing_id = ? AND status = ?", l.ID, models.OfferAccepted).First(&offer).Error
		if err != nil {
			return err
		}

		commission, net := NetProceeds(offer.Amount, offer.SellerConcessions, in.CommissionPct, in.ClosingCosts.Round(2))
		sale = models.Sale{
			ListingID:    l.ID,
			OfferID:      offer.ID,
			JobID:        job.ID,
			Buyer:        offer.Buyer,
			CloseDate:    in.CloseDate,
			Price:        offer.Amount,
			Concessions:  offer.SellerConcessions,
			Commission:   commission,
			ClosingCosts: in.ClosingCosts.Round(2),
			NetProceeds:  net,
		}
		if err := tx.Create(&sale).Error; err != nil {
			return err
		}
		return s.setStatus(ctx, tx, &l, models.ListingSold, in.CloseDate)
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.log.Info("sale closed",
		zap.Uint("listing_id", listingID),
		zap.Uint("job_id", sale.JobID),
		zap.String("net_proceeds", sale.NetProceeds.StringFixed(2)))
	s.pub.Publish(changefeed.NewEvent(recordSale, changefeed.ActionCreated, sale.ID))
	s.pub.Publish(changefeed.NewEvent(recordListing, changefeed.ActionUpdated, listingID))
	return &sale, nil
}
