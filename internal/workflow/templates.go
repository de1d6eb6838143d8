package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

// TemplateDoc is the YAML form of a template used for import and export.
type TemplateDoc struct {
	Name          string     `yaml:"name"`
	RecordType    string     `yaml:"record_type"`
	TriggerStatus string     `yaml:"trigger_status"`
	Active        *bool      `yaml:"active,omitempty"`
	Phases        []PhaseDoc `yaml:"phases"`
}

type PhaseDoc struct {
	Name  string    `yaml:"name"`
	Order int       `yaml:"order"`
	Tasks []TaskDoc `yaml:"tasks"`
}

type TaskDoc struct {
	Title         string `yaml:"title"`
	Description   string `yaml:"description,omitempty"`
	AssigneeRole  string `yaml:"assignee_role,omitempty"`
	DueOffsetDays int    `yaml:"due_offset_days,omitempty"`
	Order         int    `yaml:"order"`
}

var recordTypes = map[string]bool{
	models.RecordDeal:        true,
	models.RecordProject:     true,
	models.RecordJob:         true,
	models.RecordDisposition: true,
	models.RecordBill:        true,
	models.RecordInvoice:     true,
}

// ValidateTemplate checks names and that phase and task orders are unique
// and start at 1 or above.
func ValidateTemplate(tpl *models.WorkflowTemplate) error {
	var problems []string
	if strings.TrimSpace(tpl.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !recordTypes[tpl.RecordType] {
		problems = append(problems, fmt.Sprintf("unknown record type %q", tpl.RecordType))
	}
	if strings.TrimSpace(tpl.TriggerStatus) == "" {
		problems = append(problems, "trigger_status is required")
	}

	phaseOrders := map[int]bool{}
	for i, phase := range tpl.Phases {
		if strings.TrimSpace(phase.Name) == "" {
			problems = append(problems, fmt.Sprintf("phase %d: name is required", i+1))
		}
		if phase.SortOrder < 1 {
			problems = append(problems, fmt.Sprintf("phase %q: order must be at least 1", phase.Name))
		} else if phaseOrders[phase.SortOrder] {
			problems = append(problems, fmt.Sprintf("phase %q: duplicate order %d", phase.Name, phase.SortOrder))
		}
		phaseOrders[phase.SortOrder] = true

		taskOrders := map[int]bool{}
		for _, task := range phase.Tasks {
			if strings.TrimSpace(task.Title) == "" {
				problems = append(problems, fmt.Sprintf("phase %q: task title is required", phase.Name))
			}
			if task.SortOrder < 1 {
				problems = append(problems, fmt.Sprintf("task %q: order must be at least 1", task.Title))
			} else if taskOrders[task.SortOrder] {
				problems = append(problems, fmt.Sprintf("task %q: duplicate order %d", task.Title, task.SortOrder))
			}
			taskOrders[task.SortOrder] = true
			if task.DueOffsetDays < 0 {
				problems = append(problems, fmt.Sprintf("task %q: due offset must not be negative", task.Title))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTemplate, strings.Join(problems, "; "))
	}
	return nil
}

// SaveTemplate creates tpl, or when a template with the same name and record
// type exists, updates it and replaces its phases in one transaction.
func (e *Engine) SaveTemplate(ctx context.Context, tpl *models.WorkflowTemplate) error {
	if err := ValidateTemplate(tpl); err != nil {
		return err
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.WorkflowTemplate
		err := tx.Where("name = ? AND record_type = ?", tpl.Name, tpl.RecordType).First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil {
			tpl.ID = existing.ID
			tpl.CreatedAt = existing.CreatedAt
			if err := tx.Model(&existing).Select("trigger_status", "active").
				Updates(models.WorkflowTemplate{TriggerStatus: tpl.TriggerStatus, Active: tpl.Active}).Error; err != nil {
				return err
			}
			return replacePhases(tx, tpl)
		}

		phases := tpl.Phases
		tpl.Phases = nil
		if err := tx.Omit("Phases").Create(tpl).Error; err != nil {
			return err
		}
		tpl.Phases = phases
		return replacePhases(tx, tpl)
	})
	if err != nil {
		return records.Translate(err)
	}
	e.pub.Publish(changefeed.NewEvent("workflow_template", changefeed.ActionUpdated, tpl.ID))
	return nil
}

func replacePhases(tx *gorm.DB, tpl *models.WorkflowTemplate) error {
	var phaseIDs []uint
	if err := tx.Model(&models.WorkflowPhase{}).Where("template_id = ?", tpl.ID).Pluck("id", &phaseIDs).Error; err != nil {
		return err
	}
	if len(phaseIDs) > 0 {
		if err := tx.Unscoped().Where("phase_id IN ?", phaseIDs).Delete(&models.WorkflowTemplateTask{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("id IN ?", phaseIDs).Delete(&models.WorkflowPhase{}).Error; err != nil {
			return err
		}
	}

	for i := range tpl.Phases {
		phase := &tpl.Phases[i]
		phase.ID = 0
		phase.TemplateID = tpl.ID
		tasks := phase.Tasks
		phase.Tasks = nil
		if err := tx.Create(phase).Error; err != nil {
			return err
		}
		for j := range tasks {
			tasks[j].ID = 0
			tasks[j].PhaseID = phase.ID
		}
		if len(tasks) > 0 {
			if err := tx.Create(&tasks).Error; err != nil {
				return err
			}
		}
		phase.Tasks = tasks
	}
	return nil
}

// Template loads a template with its ordered phases and tasks.
func (e *Engine) Template(ctx context.Context, id uint) (*models.WorkflowTemplate, error) {
	var tpl models.WorkflowTemplate
	err := e.db.WithContext(ctx).
		Preload("Phases", orderedPhases).
		Preload("Phases.Tasks", orderedPhases).
		First(&tpl, id).Error
	if err != nil {
		return nil, records.Translate(err)
	}
	return &tpl, nil
}

// ImportYAML reads one template document and saves it.
func (e *Engine) ImportYAML(ctx context.Context, r io.Reader) (*models.WorkflowTemplate, error) {
	var doc TemplateDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	tpl := doc.toModel()
	if err := e.SaveTemplate(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// ExportYAML writes the template as a document ImportYAML accepts.
func (e *Engine) ExportYAML(ctx context.Context, id uint, w io.Writer) error {
	tpl, err := e.Template(ctx, id)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(fromModel(tpl)); err != nil {
		return err
	}
	return enc.Close()
}

func (d TemplateDoc) toModel() *models.WorkflowTemplate {
	tpl := &models.WorkflowTemplate{
		Name:          d.Name,
		RecordType:    d.RecordType,
		TriggerStatus: d.TriggerStatus,
		Active:        d.Active == nil || *d.Active,
	}
	for _, p := range d.Phases {
		phase := models.WorkflowPhase{Name: p.Name, SortOrder: p.Order}
		for _, t := range p.Tasks {
			phase.Tasks = append(phase.Tasks, models.WorkflowTemplateTask{
				Title:         t.Title,
				Description:   t.Description,
				AssigneeRole:  t.AssigneeRole,
				DueOffsetDays: t.DueOffsetDays,
				SortOrder:     t.Order,
			})
		}
		tpl.Phases = append(tpl.Phases, phase)
	}
	return tpl
}

func fromModel(tpl *models.WorkflowTemplate) TemplateDoc {
	active := tpl.Active
	doc := TemplateDoc{
		Name:          tpl.Name,
		RecordType:    tpl.RecordType,
		TriggerStatus: tpl.TriggerStatus,
		Active:        &active,
	}
	for _, p := range tpl.Phases {
		pd := PhaseDoc{Name: p.Name, Order: p.SortOrder}
		for _, t := range p.Tasks {
			pd.Tasks = append(pd.Tasks, TaskDoc{
				Title:         t.Title,
				Description:   t.Description,
				AssigneeRole:  t.AssigneeRole,
				DueOffsetDays: t.DueOffsetDays,
				Order:         t.SortOrder,
			})
		}
		doc.Phases = append(doc.Phases, pd)
	}
	return doc
}
