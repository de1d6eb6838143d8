// Package pipeline tracks land deals from lead to close, keeps their deal
// sheets and converts closed deals into projects.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/dealsheet"
	"github.com/beesaferoot/buildops/internal/metrics"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
	"github.com/beesaferoot/buildops/internal/workflow"
)

const recordDealSheet = "deal_sheet"

var (
	ErrInvalidTransition = fmt.Errorf("%w: invalid deal stage transition", records.ErrConflict)
	ErrNotClosed         = fmt.Errorf("%w: deal is not closed", records.ErrConflict)
	ErrAlreadyConverted  = fmt.Errorf("%w: deal already converted", records.ErrConflict)
)

var transitions = map[models.DealStage][]models.DealStage{
	models.StageLead:          {models.StageUnderReview, models.StageDead},
	models.StageUnderReview:   {models.StageUnderContract, models.StageDead},
	models.StageUnderContract: {models.StageClosed, models.StageDead},
}

// CanAdvance reports whether a deal may move between stages. Closed and
// dead deals are final.
func CanAdvance(from, to models.DealStage) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func knownStage(s models.DealStage) bool {
	switch s {
	case models.StageLead, models.StageUnderReview, models.StageUnderContract, models.StageClosed, models.StageDead:
		return true
	}
	return false
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	pub      changefeed.Publisher
	workflow *workflow.Engine
	deals    *records.Repository[models.Deal]
}

func NewService(db *gorm.DB, log *zap.Logger, pub changefeed.Publisher, wf *workflow.Engine) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = changefeed.Discard
	}
	return &Service{
		db:       db,
		log:      log.Named("pipeline"),
		pub:      pub,
		workflow: wf,
		deals: records.MustRepository[models.Deal](db,
			records.WithSearch("name", "address", "city"),
			records.WithPreload("Sheet"),
			records.WithReadOnly("stage", "project_id", "closed_at")),
	}
}

// Deals is the generic store used for listing and partial updates. Stage
// changes go through Advance.
func (s *Service) Deals() *records.Repository[models.Deal] {
	return s.deals
}

// CreateDeal stores a new deal, in the lead stage unless another open stage
// is given.
func (s *Service) CreateDeal(ctx context.Context, deal *models.Deal) error {
	if deal.Stage == "" {
		deal.Stage = models.StageLead
	}
	if !knownStage(deal.Stage) || deal.Stage == models.StageClosed || deal.Stage == models.StageDead {
		return fmt.Errorf("%w: a new deal cannot start in stage %q", records.ErrInvalid, deal.Stage)
	}
	deal.ProjectID = nil
	deal.ClosedAt = nil
	deal.Sheet = nil

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(deal).Error; err != nil {
			return err
		}
		_, err := s.workflow.WithTx(tx).Instantiate(ctx, models.RecordDeal, deal.ID, string(deal.Stage), time.Now())
		return err
	})
	if err != nil {
		return records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent(models.RecordDeal, changefeed.ActionCreated, deal.ID))
	return nil
}

// UpdateDeal applies a partial update to a deal's descriptive fields.
func (s *Service) UpdateDeal(ctx context.Context, id uint, changes map[string]any) (*models.Deal, error) {
	deal, err := s.deals.Update(ctx, id, changes)
	if err != nil {
		return nil, err
	}
	s.pub.Publish(changefeed.NewEvent(models.RecordDeal, changefeed.ActionUpdated, id))
	return deal, nil
}

// Advance moves a deal to another stage, instantiating the workflow for it.
func (s *Service) Advance(ctx context.Context, id uint, stage models.DealStage, at time.Time) (*models.Deal, error) {
	var deal models.Deal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&deal, id).Error; err != nil {
			return err
		}
		if !CanAdvance(deal.Stage, stage) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, deal.Stage, stage)
		}
		deal.Stage = stage
		if stage == models.StageClosed {
			deal.ClosedAt = &at
		}
		if err := tx.Model(&deal).Select("stage", "closed_at").Updates(&deal).Error; err != nil {
			return err
		}
		_, err := s.workflow.WithTx(tx).Instantiate(ctx, models.RecordDeal, deal.ID, string(stage), at)
		return err
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.log.Info("deal advanced", zap.Uint("deal_id", id), zap.String("stage", string(stage)))
	s.pub.Publish(changefeed.NewEvent(models.RecordDeal, changefeed.ActionUpdated, id))
	return &deal, nil
}

// SaveDealSheet validates and calculates the inputs and stores them with the
// headline results on the deal, replacing any earlier sheet.
func (s *Service) SaveDealSheet(ctx context.Context, dealID uint, in dealsheet.Inputs) (*models.DealSheet, dealsheet.Result, error) {
	res, err := dealsheet.Calculate(in)
	if err != nil {
		return nil, dealsheet.Result{}, err
	}

	sheet := models.DealSheet{
		DealID:           dealID,
		Inputs:           in,
		TotalProjectCost: res.TotalProjectCost,
		NetProfit:        res.NetProfit,
		Margin:           res.Margin,
		LoanAmount:       res.LoanAmount,
		MaxLotPrice:      res.MaxLotPrice,
		Verdict:          string(res.Verdict),
		CalculatedAt:     time.Now().UTC(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deal models.Deal
		if err := tx.First(&deal, dealID).Error; err != nil {
			return err
		}
		var existing models.DealSheet
		err := tx.Where("deal_id = ?", dealID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&sheet).Error
		case err != nil:
			return err
		}
		sheet.ID = existing.ID
		sheet.CreatedAt = existing.CreatedAt
		return tx.Save(&sheet).Error
	})
	if err != nil {
		return nil, dealsheet.Result{}, records.Translate(err)
	}

	metrics.DealSheetsCalculated.WithLabelValues(string(res.Verdict)).Inc()
	s.log.Debug("deal sheet saved",
		zap.Uint("deal_id", dealID),
		zap.String("verdict", string(res.Verdict)),
		zap.String("margin", res.Margin.String()))
	s.pub.Publish(changefeed.NewEvent(recordDealSheet, changefeed.ActionUpdated, sheet.ID))
	s.pub.Publish(changefeed.NewEvent(models.RecordDeal, changefeed.ActionUpdated, dealID))
	return &sheet, res, nil
}

// DealSheet loads a deal's sheet and recalculates its full result.
func (s *Service) DealSheet(ctx context.Context, dealID uint) (*models.DealSheet, dealsheet.Result, error) {
	var sheet models.DealSheet
	if err := s.db.WithContext(ctx).Where("deal_id = ?", dealID).First(&sheet).Error; err != nil {
		return nil, dealsheet.Result{}, records.Translate(err)
	}
	res, err := dealsheet.Calculate(sheet.Inputs)
	if err != nil {
		return nil, dealsheet.Result{}, err
	}
	return &sheet, res, nil
}

// ConvertInput overrides what Convert takes from the deal.
type ConvertInput struct {
	EntityID    uint   `json:"entity_id"`
	ProjectName string `json:"project_name"`
	JobName     string `json:"job_name"`
	Lot         string `json:"lot"`
	Plan        string `json:"plan"`
}

// Convert turns a closed deal into a project with one job, links the deal to
// the project and starts the job's pre-construction workflow.
func (s *Service) Convert(ctx context.Context, dealID uint, in ConvertInput) (*models.Project, *models.Job, error) {
	var (
		project models.Project
		job     models.Job
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deal models.Deal
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Sheet").First(&deal, dealID).Error; err != nil {
			return err
		}
		if deal.Stage != models.StageClosed {
			return fmt.Errorf("%w: deal is %s", ErrNotClosed, deal.Stage)
		}
		if deal.ProjectID != nil {
			return fmt.Errorf("%w: project %d", ErrAlreadyConverted, *deal.ProjectID)
		}

		entityID := in.EntityID
		if entityID == 0 && deal.EntityID != nil {
			entityID = *deal.EntityID
		}
		if entityID == 0 {
			return fmt.Errorf("%w: an owning entity is required", records.ErrInvalid)
		}

		project = models.Project{EntityID: entityID, Name: firstNonEmpty(in.ProjectName, deal.Name), Location: location(deal), Status: "active"}
		if err := tx.Create(&project).Error; err != nil {
			return err
		}

		job = models.Job{
			ProjectID: project.ID,
			Name:      firstNonEmpty(in.JobName, deal.Name),
			Lot:       in.Lot,
			Plan:      in.Plan,
			Address:   deal.Address,
			Status:    models.JobPreConstruction,
			DealID:    &deal.ID,
		}
		if deal.Sheet != nil {
			job.SqFt = int(deal.Sheet.Inputs.HouseSqFt.IntPart())
		}
		if err := tx.Create(&job).Error; err != nil {
			return err
		}

		deal.ProjectID = &project.ID
		if err := tx.Model(&deal).Select("project_id").Updates(&deal).Error; err != nil {
			return err
		}
		link := &models.RecordLink{FromType: models.RecordDeal, FromID: deal.ID, ToType: models.RecordProject, ToID: project.ID, Relation: "converted_to"}
		if err := records.NewLinks(tx).Link(ctx, link); err != nil {
			return err
		}
		_, err := s.workflow.WithTx(tx).Instantiate(ctx, models.RecordJob, job.ID, string(job.Status), time.Now())
		return err
	})
	if err != nil {
		return nil, nil, records.Translate(err)
	}

	s.log.Info("deal converted",
		zap.Uint("deal_id", dealID),
		zap.Uint("project_id", project.ID),
		zap.Uint("job_id", job.ID))
	s.pub.Publish(changefeed.NewEvent(models.RecordProject, changefeed.ActionCreated, project.ID))
	s.pub.Publish(changefeed.NewEvent(models.RecordJob, changefeed.ActionCreated, job.ID))
	s.pub.Publish(changefeed.NewEvent(models.RecordDeal, changefeed.ActionUpdated, dealID))
	return &project, &job, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func location(d models.Deal) string {
	switch {
	case d.City != "" && d.State != "":
		return d.City + ", " + d.State
	case d.City != "":
		return d.City
	}
	return d.State
}
