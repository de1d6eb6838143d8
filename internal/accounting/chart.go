package accounting

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

const recordGLAccount = "gl_account"

// AccountReadOnly are the GL account columns fixed at creation.
var AccountReadOnly = []string{"entity_id", "type", "system_role"}

var ErrAccountInUse = fmt.Errorf("%w: account is in use", records.ErrConflict)

// DeleteAccount removes a GL account that nothing posts to or references.
func (s *Service) DeleteAccount(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acct models.GLAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&acct, id).Error; err != nil {
			return err
		}

		refs := []struct {
			what   string
			model  any
			column string
		}{
			{"journal lines", &models.JournalLine{}, "account_id"},
			{"bill lines", &models.BillLine{}, "account_id"},
			{"invoice lines", &models.InvoiceLine{}, "account_id"},
			{"bank accounts", &models.BankAccount{}, "gl_account_id"},
		}
		for _, ref := range refs {
			var n int64
			if err := tx.Model(ref.model).Where(clause.Eq{Column: clause.Column{Name: ref.column}, Value: id}).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: %s %s is referenced by %d %s", ErrAccountInUse, acct.Code, acct.Name, n, ref.what)
			}
		}
		return tx.Delete(&acct).Error
	})
	if err != nil {
		return records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent(recordGLAccount, changefeed.ActionDeleted, id))
	return nil
}
