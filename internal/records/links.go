package records

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/models"
)

// Links stores relations between records of any type.
type Links struct {
	db *gorm.DB
}

func NewLinks(db *gorm.DB) *Links {
	return &Links{db: db}
}

// Link relates two records. Linking the same pair twice with the same
// relation is a conflict.
func (l *Links) Link(ctx context.Context, link *models.RecordLink) error {
	if link.FromType == "" || link.ToType == "" || link.FromID == 0 || link.ToID == 0 {
		return fmt.Errorf("%w: both ends of a link are required", ErrInvalid)
	}
	if link.FromType == link.ToType && link.FromID == link.ToID {
		return fmt.Errorf("%w: a record cannot link to itself", ErrInvalid)
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		err := tx.Model(&models.RecordLink{}).
			Where("from_type = ? AND from_id = ? AND to_type = ? AND to_id = ? AND relation = ?",
				link.FromType, link.FromID, link.ToType, link.ToID, link.Relation).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: link already exists", ErrConflict)
		}
		return Translate(tx.Create(link).Error)
	})
}

// For returns the links touching a record in either direction.
func (l *Links) For(ctx context.Context, recordType string, id uint) ([]models.RecordLink, error) {
	var links []models.RecordLink
	err := l.db.WithContext(ctx).
		Where("(from_type = ? AND from_id = ?) OR (to_type = ? AND to_id = ?)", recordType, id, recordType, id).
		Order("id").
		Find(&links).Error
	return links, Translate(err)
}

func (l *Links) Unlink(ctx context.Context, id uint) error {
	res := l.db.WithContext(ctx).Delete(&models.RecordLink{}, id)
	if res.Error != nil {
		return Translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: link %d", ErrNotFound, id)
	}
	return nil
}
