// Package construction manages projects, home-build jobs, budgets and change
// orders, and reports job cost against budget.
package construction

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
	"github.com/beesaferoot/buildops/internal/workflow"
)

var (
	ErrInvalidTransition = fmt.Errorf("%w: invalid job status transition", records.ErrConflict)
	ErrDecided           = fmt.Errorf("%w: change order already decided", records.ErrConflict)
)

var jobTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobPreConstruction: {models.JobPermitting, models.JobInProgress},
	models.JobPermitting:      {models.JobInProgress},
	models.JobInProgress:      {models.JobComplete},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to models.JobStatus) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

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
	return &Service{db: db, log: log.Named("construction"), pub: pub, workflow: wf}
}

// CreateJob stores a job in pre-construction, unless another starting status
// is given, and instantiates the job workflow for that status.
func (s *Service) CreateJob(ctx context.Context, job *models.Job) error {
	if job.Status == "" {
		job.Status = models.JobPreConstruction
	}
	if _, ok := jobTransitions[job.Status]; !ok && job.Status != models.JobComplete {
		return fmt.Errorf("%w: unknown job status %q", records.ErrInvalid, job.Status)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		_, err := s.workflow.WithTx(tx).Instantiate(ctx, models.RecordJob, job.ID, string(job.Status), time.Now())
		return err
	})
	if err != nil {
		return records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent(models.RecordJob, changefeed.ActionCreated, job.ID))
	return nil
}

// SetJobStatus moves a job along pre_construction, permitting, in_progress
// and complete.
func (s *Service) SetJobStatus(ctx context.Context, jobID uint, status models.JobStatus, at time.Time) (*models.Job, error) {
	var job models.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, jobID).Error; err != nil {
			return err
		}
		if !CanTransition(job.Status, status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, job.Status, status)
		}

		job.Status = status
		if status == models.JobInProgress && job.StartDate == nil {
			job.StartDate = &at
		}
		if err := tx.Model(&job).Select("status", "start_date").Updates(&job).Error; err != nil {
			return err
		}
		_, err := s.workflow.WithTx(tx).Instantiate(ctx, models.RecordJob, job.ID, string(status), at)
		return err
	})
	if err != nil {
		return nil, records.Translate(err)
	}

	s.log.Info("job status changed", zap.Uint("job_id", jobID), zap.String("status", string(status)))
	s.pub.Publish(changefeed.NewEvent(models.RecordJob, changefeed.ActionUpdated, jobID))
	return &job, nil
}

func (s *Service) AddChangeOrder(ctx context.Context, co *models.ChangeOrder) error {
	co.Status = models.ChangeOrderPending
	co.DecidedAt = nil
	if err := s.db.WithContext(ctx).Create(co).Error; err != nil {
		return records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent("change_order", changefeed.ActionCreated, co.ID))
	return nil
}

// DecideChangeOrder approves or rejects a pending change order.
func (s *Service) DecideChangeOrder(ctx context.Context, id uint, approve bool, at time.Time) (*models.ChangeOrder, error) {
	var co models.ChangeOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&co, id).Error; err != nil {
			return err
		}
		if co.Status != models.ChangeOrderPending {
			return ErrDecided
		}
		co.Status = models.ChangeOrderRejected
		if approve {
			co.Status = models.ChangeOrderApproved
		}
		co.DecidedAt = &at
		return tx.Model(&co).Select("status", "decided_at").Updates(&co).Error
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent("change_order", changefeed.ActionUpdated, co.ID))
	return &co, nil
}
