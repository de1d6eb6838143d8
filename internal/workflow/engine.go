// Package workflow instantiates task lists from admin-defined templates when
// a record enters a status, and tracks their completion.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

var (
	ErrInvalidTemplate  = fmt.Errorf("%w: invalid workflow template", records.ErrInvalid)
	ErrAlreadyCompleted = fmt.Errorf("%w: task already completed", records.ErrConflict)
	ErrNotCompleted     = fmt.Errorf("%w: task is not completed", records.ErrConflict)
)

// Engine creates and updates workflow tasks.
type Engine struct {
	db  *gorm.DB
	log *zap.Logger
	pub changefeed.Publisher
}

func NewEngine(db *gorm.DB, log *zap.Logger, pub changefeed.Publisher) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = changefeed.Discard
	}
	return &Engine{db: db, log: log.Named("workflow"), pub: pub}
}

// WithTx returns an engine that works inside tx, so instantiation commits
// or rolls back with the status change that triggered it.
func (e *Engine) WithTx(tx *gorm.DB) *Engine {
	clone := *e
	clone.db = tx
	return &clone
}

func orderedPhases(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order").Order("id")
}

// Instantiate creates the tasks of every active template for recordType
// triggered by status. A template is instantiated at most once per record;
// later calls return no tasks for it.
func (e *Engine) Instantiate(ctx context.Context, recordType string, recordID uint, status string, at time.Time) ([]models.WorkflowTask, error) {
	var templates []models.WorkflowTemplate
	err := e.db.WithContext(ctx).
		Where("record_type = ? AND trigger_status = ? AND active = ?", recordType, status, true).
		Preload("Phases", orderedPhases).
		Preload("Phases.Tasks", orderedPhases).
		Order("id").
		Find(&templates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	var created []models.WorkflowTask
	for _, tpl := range templates {
		var existing int64
		err := e.db.WithContext(ctx).Model(&models.WorkflowRun{}).
			Where("template_id = ? AND record_type = ? AND record_id = ?", tpl.ID, recordType, recordID).
			Count(&existing).Error
		if err != nil {
			return nil, err
		}
		if existing > 0 {
			continue
		}

		run := models.WorkflowRun{TemplateID: tpl.ID, RecordType: recordType, RecordID: recordID, Status: status}
		if err := e.db.WithContext(ctx).Create(&run).Error; err != nil {
			return nil, records.Translate(err)
		}

		tasks := make([]models.WorkflowTask, 0)
		for _, phase := range tpl.Phases {
			for _, tt := range phase.Tasks {
				due := at.AddDate(0, 0, tt.DueOffsetDays)
				tasks = append(tasks, models.WorkflowTask{
					RunID:        run.ID,
					TemplateID:   tpl.ID,
					RecordType:   recordType,
					RecordID:     recordID,
					PhaseName:    phase.Name,
					PhaseOrder:   phase.SortOrder,
					SortOrder:    tt.SortOrder,
					Title:        tt.Title,
					AssigneeRole: tt.AssigneeRole,
					DueDate:      &due,
				})
			}
		}
		if len(tasks) > 0 {
			if err := e.db.WithContext(ctx).Create(&tasks).Error; err != nil {
				return nil, records.Translate(err)
			}
		}
		e.log.Info("workflow instantiated",
			zap.String("template", tpl.Name),
			zap.String("record_type", recordType),
			zap.Uint("record_id", recordID),
			zap.Int("tasks", len(tasks)))
		created = append(created, tasks...)
	}
	return created, nil
}

// Tasks lists the tasks of a record in phase and task order.
func (e *Engine) Tasks(ctx context.Context, recordType string, recordID uint) ([]models.WorkflowTask, error) {
	var tasks []models.WorkflowTask
	err := e.db.WithContext(ctx).
		Where("record_type = ? AND record_id = ?", recordType, recordID).
		Order("phase_order").Order("sort_order").Order("id").
		Find(&tasks).Error
	return tasks, records.Translate(err)
}

func (e *Engine) CompleteTask(ctx context.Context, id uint, by string, at time.Time) (*models.WorkflowTask, error) {
	return e.setCompletion(ctx, id, func(t *models.WorkflowTask) error {
		if t.Done() {
			return ErrAlreadyCompleted
		}
		t.CompletedAt = &at
		t.CompletedBy = by
		return nil
	})
}

func (e *Engine) ReopenTask(ctx context.Context, id uint) (*models.WorkflowTask, error) {
	return e.setCompletion(ctx, id, func(t *models.WorkflowTask) error {
		if !t.Done() {
			return ErrNotCompleted
		}
		t.CompletedAt = nil
		t.CompletedBy = ""
		return nil
	})
}

func (e *Engine) setCompletion(ctx context.Context, id uint, change func(*models.WorkflowTask) error) (*models.WorkflowTask, error) {
	var task models.WorkflowTask
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&task, id).Error; err != nil {
			return err
		}
		if err := change(&task); err != nil {
			return err
		}
		return tx.Model(&task).Select("completed_at", "completed_by").Updates(&task).Error
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	e.pub.Publish(changefeed.NewEvent("workflow_task", changefeed.ActionUpdated, task.ID))
	return &task, nil
}

// PhaseProgress counts completed tasks in one phase.
type PhaseProgress struct {
	Phase string `json:"phase"`
	Order int    `json:"order"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

type Progress struct {
	Phases []PhaseProgress `json:"phases"`
	Done   int             `json:"done"`
	Total  int             `json:"total"`
}

// Progress summarises a record's tasks per phase.
func (e *Engine) Progress(ctx context.Context, recordType string, recordID uint) (Progress, error) {
	tasks, err := e.Tasks(ctx, recordType, recordID)
	if err != nil {
		return Progress{}, err
	}

	type key struct {
		order int
		name  string
	}
	byPhase := map[key]*PhaseProgress{}
	p := Progress{Phases: []PhaseProgress{}}
	for _, t := range tasks {
		k := key{t.PhaseOrder, t.PhaseName}
		pp, ok := byPhase[k]
		if !ok {
			pp = &PhaseProgress{Phase: t.PhaseName, Order: t.PhaseOrder}
			byPhase[k] = pp
		}
		pp.Total++
		p.Total++
		if t.Done() {
			pp.Done++
			p.Done++
		}
	}
	for _, pp := range byPhase {
		p.Phases = append(p.Phases, *pp)
	}
	sort.Slice(p.Phases, func(i, j int) bool {
		if p.Phases[i].Order != p.Phases[j].Order {
			return p.Phases[i].Order < p.Phases[j].Order
		}
		return p.Phases[i].Phase < p.Phases[j].Phase
	})
	return p, nil
}
