// Package investors tracks investor commitments to entities and allocates
// capital calls and distributions among them.
package investors

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

const (
	recordCommitment   = "commitment"
	recordCapitalCall  = "capital_call"
	recordDistribution = "distribution"
)

var ErrNoCommitments = fmt.Errorf("%w: entity has no commitments", records.ErrInvalid)

type Service struct {
	db  *gorm.DB
	log *zap.Logger
	pub changefeed.Publisher
}

func NewService(db *gorm.DB, log *zap.Logger, pub changefeed.Publisher) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = changefeed.Discard
	}
	return &Service{db: db, log: log.Named("investors"), pub: pub}
}

// Commit sets an investor's commitment to an entity, replacing any earlier
// amount.
func (s *Service) Commit(ctx context.Context, investorID, entityID uint, amount decimal.Decimal, date time.Time) (*models.Commitment, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: commitment must not be negative", records.ErrInvalid)
	}
	c := models.Commitment{InvestorID: investorID, EntityID: entityID, Amount: amount.Round(2), Date: date}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "investor_id"}, {Name: "entity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "date", "updated_at"}),
	}).Create(&c).Error
	if err != nil {
		return nil, records.Translate(err)
	}
	var saved models.Commitment
	if err := s.db.WithContext(ctx).Where("investor_id = ? AND entity_id = ?", investorID, entityID).First(&saved).Error; err != nil {
		return nil, records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent(recordCommitment, changefeed.ActionUpdated, saved.ID))
	return &saved, nil
}

// Ownership is an investor's share of an entity by commitment.
type Ownership struct {
	InvestorID uint            `json:"investor_id"`
	Investor   string          `json:"investor"`
	Committed  decimal.Decimal `json:"committed"`
	Percent    decimal.Decimal `json:"ownership_pct"`
}

// Ownership lists the investors of an entity in investor order.
func (s *Service) Ownership(ctx context.Context, entityID uint) ([]Ownership, error) {
	commitments, err := s.commitments(s.db.WithContext(ctx), entityID)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, c := range commitments {
		total = total.Add(c.Amount)
	}
	out := make([]Ownership, 0, len(commitments))
	for _, c := range commitments {
		o := Ownership{InvestorID: c.InvestorID, Committed: c.Amount}
		if c.Investor != nil {
			o.Investor = c.Investor.Name
		}
		if total.IsPositive() {
			o.Percent = c.Amount.DivRound(total, 6)
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Service) commitments(db *gorm.DB, entityID uint) ([]models.Commitment, error) {
	var commitments []models.Commitment
	err := db.Preload("Investor").
		Where("entity_id = ?", entityID).
		Order("investor_id").
		Find(&commitments).Error
	return commitments, err
}

// split allocates amount over an entity's commitments.
func (s *Service) split(tx *gorm.DB, entityID uint, amount decimal.Decimal) ([]models.Commitment, []decimal.Decimal, error) {
	commitments, err := s.commitments(tx, entityID)
	if err != nil {
		return nil, nil, err
	}
	if len(commitments) == 0 {
		return nil, nil, ErrNoCommitments
	}
	weights := make([]decimal.Decimal, len(commitments))
	total := decimal.Zero
	for i, c := range commitments {
		weights[i] = c.Amount
		total = total.Add(c.Amount)
	}
	if total.IsZero() {
		return nil, nil, ErrNoCommitments
	}
	shares, err := Allocate(amount, weights)
	if err != nil {
		return nil, nil, err
	}
	return commitments, shares, nil
}

// CapitalCall calls capital from an entity's investors pro rata.
func (s *Service) CapitalCall(ctx context.Context, entityID uint, amount decimal.Decimal, date time.Time, memo string) (*models.CapitalCall, error) {
	call := models.CapitalCall{EntityID: entityID, Amount: amount, Date: date, Memo: memo}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		commitments, shares, err := s.split(tx, entityID, amount)
		if err != nil {
			return err
		}
		for i, c := range commitments {
			if shares[i].IsZero() {
				continue
			}
			call.Allocations = append(call.Allocations, models.CapitalCallAllocation{InvestorID: c.InvestorID, Amount: shares[i]})
		}
		return tx.Create(&call).Error
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.log.Info("capital called",
		zap.Uint("entity_id", entityID),
		zap.String("amount", amount.StringFixed(2)),
		zap.Int("investors", len(call.Allocations)))
	s.pub.Publish(changefeed.NewEvent(recordCapitalCall, changefeed.ActionCreated, call.ID))
	return &call, nil
}

// Distribution distributes cash to an entity's investors pro rata by
// commitment.
func (s *Service) Distribution(ctx context.Context, entityID uint, amount decimal.Decimal, date time.Time, memo string) (*models.Distribution, error) {
	dist := models.Distribution{EntityID: entityID, Amount: amount, Date: date, Memo: memo}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		commitments, shares, err := s.split(tx, entityID, amount)
		if err != nil {
			return err
		}
		for i, c := range commitments {
			if shares[i].IsZero() {
				continue
			}
			dist.Allocations = append(dist.Allocations, models.DistributionAllocation{InvestorID: c.InvestorID, Amount: shares[i]})
		}
		return tx.Create(&dist).Error
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.log.Info("distribution made",
		zap.Uint("entity_id", entityID),
		zap.String("amount", amount.StringFixed(2)),
		zap.Int("investors", len(dist.Allocations)))
	s.pub.Publish(changefeed.NewEvent(recordDistribution, changefeed.ActionCreated, dist.ID))
	return &dist, nil
}

// StatementLine is an investor's position in one entity.
type StatementLine struct {
	EntityID    uint            `json:"entity_id"`
	Entity      string          `json:"entity"`
	Committed   decimal.Decimal `json:"committed"`
	Called      decimal.Decimal `json:"called"`
	Unfunded    decimal.Decimal `json:"unfunded"`
	Distributed decimal.Decimal `json:"distributed"`
}

type Statement struct {
	InvestorID uint            `json:"investor_id"`
	Investor   string          `json:"investor"`
	Lines      []StatementLine `json:"lines"`
	Total      StatementLine   `json:"total"`
}

// Statement summarises an investor's commitments, calls and distributions
// per entity.
func (s *Service) Statement(ctx context.Context, investorID uint) (*Statement, error) {
	db := s.db.WithContext(ctx)

	var inv models.Investor
	if err := db.First(&inv, investorID).Error; err != nil {
		return nil, records.Translate(err)
	}

	lines := map[uint]*StatementLine{}
	line := func(entityID uint) *StatementLine {
		l, ok := lines[entityID]
		if !ok {
			l = &StatementLine{EntityID: entityID}
			lines[entityID] = l
		}
		return l
	}

	var commitments []models.Commitment
	if err := db.Preload("Entity").Where("investor_id = ?", investorID).Find(&commitments).Error; err != nil {
		return nil, err
	}
	for _, c := range commitments {
		l := line(c.EntityID)
		l.Committed = l.Committed.Add(c.Amount)
		if c.Entity != nil {
			l.Entity = c.Entity.Name
		}
	}

	type allocated struct {
		EntityID uint
		Amount   decimal.Decimal
	}
	var calls []allocated
	err := db.Model(&models.CapitalCallAllocation{}).
		Select("capital_calls.entity_id AS entity_id, capital_call_allocations.amount AS amount").
		Joins("JOIN capital_calls ON capital_calls.id = capital_call_allocations.capital_call_id AND capital_calls.deleted_at IS NULL").
		Where("capital_call_allocations.investor_id = ?", investorID).
		Scan(&calls).Error
	if err != nil {
		return nil, err
	}
	for _, a := range calls {
		l := line(a.EntityID)
		l.Called = l.Called.Add(a.Amount)
	}

	var dists []allocated
	err = db.Model(&models.DistributionAllocation{}).
		Select("distributions.entity_id AS entity_id, distribution_allocations.amount AS amount").
		Joins("JOIN distributions ON distributions.id = distribution_allocations.distribution_id AND distributions.deleted_at IS NULL").
		Where("distribution_allocations.investor_id = ?", investorID).
		Scan(&dists).Error
	if err != nil {
		return nil, err
	}
	for _, a := range dists {
		l := line(a.EntityID)
		l.Distributed = l.Distributed.Add(a.Amount)
	}

	st := &Statement{InvestorID: inv.ID, Investor: inv.Name}
	for _, l := range lines {
		if l.Entity == "" {
			var e models.Entity
			if err := db.First(&e, l.EntityID).Error; err == nil {
				l.Entity = e.Name
			}
		}
		l.Unfunded = l.Committed.Sub(l.Called)
		st.Lines = append(st.Lines, *l)
		st.Total.Committed = st.Total.Committed.Add(l.Committed)
		st.Total.Called = st.Total.Called.Add(l.Called)
		st.Total.Distributed = st.Total.Distributed.Add(l.Distributed)
	}
	st.Total.Entity = "TOTAL"
	st.Total.Unfunded = st.Total.Committed.Sub(st.Total.Called)
	sort.Slice(st.Lines, func(i, j int) bool { return st.Lines[i].Entity < st.Lines[j].Entity })
	return st, nil
}
