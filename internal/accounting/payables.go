package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

// CreateBill stores a draft bill. The total is the sum of its lines and the
// due date defaults to the bill date plus the vendor's terms.
func (s *Service) CreateBill(ctx context.Context, bill *models.Bill) error {
	if len(bill.Lines) == 0 {
		return fmt.Errorf("%w: a bill needs at least one line", records.ErrInvalid)
	}
	if bill.Date.IsZero() {
		return fmt.Errorf("%w: bill date is required", records.ErrInvalid)
	}
	total := decimal.Zero
	for i, l := range bill.Lines {
		if !l.Amount.IsPositive() {
			return fmt.Errorf("%w: line %d amount must be positive", records.ErrInvalid, i+1)
		}
		total = total.Add(l.Amount.Round(2))
		bill.Lines[i].Amount = l.Amount.Round(2)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if bill.DueDate.IsZero() {
			var vendor models.Vendor
			if err := tx.First(&vendor, bill.VendorID).Error; err != nil {
				return err
			}
			bill.DueDate = bill.Date.AddDate(0, 0, vendor.TermsDays)
		}
		bill.Status = models.BillDraft
		bill.Total = total
		bill.AmountPaid = decimal.Zero
		bill.JournalEntryID = nil
		return tx.Create(bill).Error
	})
	if err != nil {
		return records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent(models.RecordBill, changefeed.ActionCreated, bill.ID))
	return nil
}

// UpdateBill applies a partial update to a draft bill. Once posted a
// bill is changed only by payment or void.
func (s *Service) UpdateBill(ctx context.Context, id uint, changes map[string]any) (*models.Bill, error) {
	var updated *models.Bill
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.Bill
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cur, id).Error; err != nil {
			return err
		}
		if cur.Status != models.BillDraft {
			return fmt.Errorf("%w: bill is %s, only drafts can be edited", ErrInvalidStatus, cur.Status)
		}
		var err error
		updated, err = s.bills.WithTx(tx).Update(ctx, id, changes)
		return err
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent(models.RecordBill, changefeed.ActionUpdated, id))
	return updated, nil
}

// ApproveBill posts a draft bill: debit each line's account, credit
// accounts payable.
func (s *Service) ApproveBill(ctx context.Context, id uint) (*models.Bill, error) {
	var (
		bill  models.Bill
		entry *models.JournalEntry
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Lines").First(&bill, id).Error; err != nil {
			return err
		}
		if bill.Status != models.BillDraft {
			return fmt.Errorf("%w: bill is %s", ErrInvalidStatus, bill.Status)
		}
		ap, err := controlAccount(tx, bill.EntityID, models.RoleAccountsPayable)
		if err != nil {
			return err
		}

		entry = &models.JournalEntry{
			EntityID: bill.EntityID,
			Date:     bill.Date,
			Memo:     "Bill " + bill.Number,
			Source:   SourceBill,
			SourceID: &bill.ID,
		}
		for _, l := range bill.Lines {
			entry.Lines = append(entry.Lines, models.JournalLine{
				AccountID: l.AccountID,
				Debit:     l.Amount,
				JobID:     l.JobID,
				CostCode:  l.CostCode,
				Memo:      l.Description,
			})
		}
		entry.Lines = append(entry.Lines, models.JournalLine{AccountID: ap.ID, Credit: bill.Total, Memo: "Bill " + bill.Number})
		if err := post(tx, entry); err != nil {
			return err
		}

		bill.Status = models.BillApproved
		bill.JournalEntryID = &entry.ID
		return tx.Model(&bill).Select("status", "journal_entry_id").Updates(&bill).Error
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.posted(entry)
	s.log.Info("bill approved", zap.Uint("bill_id", bill.ID), zap.String("total", bill.Total.StringFixed(2)))
	s.pub.Publish(changefeed.NewEvent(models.RecordBill, "approved", bill.ID))
	return &bill, nil
}

// PayBill records a payment from a bank account: debit accounts payable,
// credit the bank's cash account.
func (s *Service) PayBill(ctx context.Context, billID, bankAccountID uint, amount decimal.Decimal, date time.Time) (*models.BillPayment, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", records.ErrInvalid)
	}
	amount = amount.Round(2)

	var (
		payment models.BillPayment
		entry   *models.JournalEntry
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bill models.Bill
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&bill, billID).Error; err != nil {
			return err
		}
		if bill.Status != models.BillApproved && bill.Status != models.BillPartiallyPaid {
			return fmt.Errorf("%w: bill is %s", ErrInvalidStatus, bill.Status)
		}
		if amount.GreaterThan(bill.Balance()) {
			return fmt.Errorf("%w: %s against %s", ErrOverpayment, amount.StringFixed(2), bill.Balance().StringFixed(2))
		}
		bank, err := bankAccount(tx, bankAccountID, bill.EntityID)
		if err != nil {
			return err
		}
		ap, err := controlAccount(tx, bill.EntityID, models.RoleAccountsPayable)
		if err != nil {
			return err
		}

		entry = &models.JournalEntry{
			EntityID: bill.EntityID,
			Date:     date,
			Memo:     "Payment of bill " + bill.Number,
			Source:   SourceBillPayment,
			SourceID: &bill.ID,
			Lines: []models.JournalLine{
				{AccountID: ap.ID, Debit: amount},
				{AccountID: bank.GLAccountID, Credit: amount},
			},
		}
		if err := post(tx, entry); err != nil {
			return err
		}

		payment = models.BillPayment{
			BillID:         bill.ID,
			BankAccountID:  bank.ID,
			Amount:         amount,
			Date:           date,
			JournalEntryID: entry.ID,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		bill.AmountPaid = bill.AmountPaid.Add(amount)
		bill.Status = models.BillPartiallyPaid
		if bill.Balance().IsZero() {
			bill.Status = models.BillPaid
		}
		return tx.Model(&bill).Select("amount_paid", "status").Updates(&bill).Error
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.posted(entry)
	s.pub.Publish(changefeed.NewEvent(models.RecordBill, "paid", billID))
	return &payment, nil
}

// VoidBill voids a draft or an unpaid approved bill. An approved bill's
// entry is reversed on date.
func (s *Service) VoidBill(ctx context.Context, id uint, date time.Time) (*models.Bill, error) {
	var (
		bill     models.Bill
		reversal *models.JournalEntry
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&bill, id).Error; err != nil {
			return err
		}
		switch bill.Status {
		case models.BillDraft:
		case models.BillApproved:
			if bill.JournalEntryID != nil {
				var err error
				if reversal, err = reverse(tx, *bill.JournalEntryID, date); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("%w: bill is %s", ErrInvalidStatus, bill.Status)
		}
		bill.Status = models.BillVoid
		return tx.Model(&bill).Select("status").Updates(&bill).Error
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	if reversal != nil {
		s.posted(reversal)
	}
	s.pub.Publish(changefeed.NewEvent(models.RecordBill, "voided", bill.ID))
	return &bill, nil
}
