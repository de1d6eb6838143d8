package models

// RecordLink relates two records, e.g. a document to a bill or a deal to
// the project it became.
type RecordLink struct {
	Base
	FromType string `gorm:"not null;index:idx_link_from" json:"from_type" validate:"required"`
	FromID   uint   `gorm:"not null;index:idx_link_from" json:"from_id" validate:"required"`
	ToType   string `gorm:"not null;index:idx_link_to" json:"to_type" validate:"required"`
	ToID     uint   `gorm:"not null;index:idx_link_to" json:"to_id" validate:"required"`
	Relation string `json:"relation" validate:"max=50"`
}
