package models

import "time"

// WorkflowTemplate describes the tasks to create when a record of RecordType
// enters TriggerStatus.
type WorkflowTemplate struct {
	Base
	Name          string          `gorm:"not null" json:"name" validate:"required"`
	RecordType    string          `gorm:"not null;index:idx_template_trigger" json:"record_type" validate:"required,oneof=deal project job disposition bill invoice"`
	TriggerStatus string          `gorm:"not null;index:idx_template_trigger" json:"trigger_status" validate:"required"`
	Active        bool            `json:"active"`
	Phases        []WorkflowPhase `gorm:"foreignKey:TemplateID" json:"phases,omitempty" validate:"dive"`
}

type WorkflowPhase struct {
	Base
	TemplateID uint                   `gorm:"not null;index" json:"template_id"`
	Name       string                 `gorm:"not null" json:"name" validate:"required"`
	SortOrder  int                    `gorm:"not null" json:"sort_order" validate:"gte=1"`
	Tasks      []WorkflowTemplateTask `gorm:"foreignKey:PhaseID" json:"tasks,omitempty" validate:"dive"`
}

type WorkflowTemplateTask struct {
	Base
	PhaseID       uint   `gorm:"not null;index" json:"phase_id"`
	Title         string `gorm:"not null" json:"title" validate:"required"`
	Description   string `json:"description"`
	AssigneeRole  string `json:"assignee_role"`
	DueOffsetDays int    `json:"due_offset_days" validate:"gte=0"`
	SortOrder     int    `gorm:"not null" json:"sort_order" validate:"gte=1"`
}

// WorkflowRun marks that a template has been instantiated for a record.
type WorkflowRun struct {
	Base
	TemplateID uint   `gorm:"not null;uniqueIndex:idx_workflow_run" json:"template_id"`
	RecordType string `gorm:"not null;uniqueIndex:idx_workflow_run" json:"record_type"`
	RecordID   uint   `gorm:"not null;uniqueIndex:idx_workflow_run" json:"record_id"`
	Status     string `json:"status"`
}

// WorkflowTask is a concrete task created for a record from a template.
type WorkflowTask struct {
	Base
	RunID        uint       `gorm:"not null;index" json:"run_id"`
	TemplateID   uint       `gorm:"not null" json:"template_id"`
	RecordType   string     `gorm:"not null;index:idx_task_record" json:"record_type"`
	RecordID     uint       `gorm:"not null;index:idx_task_record" json:"record_id"`
	PhaseName    string     `json:"phase_name"`
	PhaseOrder   int        `json:"phase_order"`
	SortOrder    int        `json:"sort_order"`
	Title        string     `gorm:"not null" json:"title"`
	AssigneeRole string     `json:"assignee_role"`
	DueDate      *time.Time `json:"due_date"`
	CompletedAt  *time.Time `json:"completed_at"`
	CompletedBy  string     `json:"completed_by"`
}

// Done reports whether the task has been completed.
func (t WorkflowTask) Done() bool { return t.CompletedAt != nil }
