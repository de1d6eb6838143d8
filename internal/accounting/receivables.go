package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

const defaultInvoiceTermsDays = 30

// CreateInvoice stores a draft invoice totalled from its lines.
func (s *Service) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if len(inv.Lines) == 0 {
		return fmt.Errorf("%w: an invoice needs at least one line", records.ErrInvalid)
	}
	if inv.Date.IsZero() {
		return fmt.Errorf("%w: invoice date is required", records.ErrInvalid)
	}
	total := decimal.Zero
	for i, l := range inv.Lines {
		if !l.Amount.IsPositive() {
			return fmt.Errorf("%w: line %d amount must be positive", records.ErrInvalid, i+1)
		}
		inv.Lines[i].Amount = l.Amount.Round(2)
		total = total.Add(inv.Lines[i].Amount)
	}
	if inv.DueDate.IsZero() {
		inv.DueDate = inv.Date.AddDate(0, 0, defaultInvoiceTermsDays)
	}
	inv.Status = models.InvoiceDraft
	inv.Total = total
	inv.AmountPaid = decimal.Zero
	inv.JournalEntryID = nil

	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		return records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent(models.RecordInvoice, changefeed.ActionCreated, inv.ID))
	return nil
}

// UpdateInvoice applies a partial update to a draft invoice. Once posted a
// invoice is changed only by payment or void.
func (s *Service) UpdateInvoice(ctx context.Context, id uint, changes map[string]any) (*models.Invoice, error) {
	var updated *models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.Invoice
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cur, id).Error; err != nil {
			return err
		}
		if cur.Status != models.InvoiceDraft {
			return fmt.Errorf("%w: invoice is %s, only drafts can be edited", ErrInvalidStatus, cur.Status)
		}
		var err error
		updated, err = s.invoices.WithTx(tx).Update(ctx, id, changes)
		return err
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent(models.RecordInvoice, changefeed.ActionUpdated, id))
	return updated, nil
}

// IssueInvoice posts a draft invoice: debit accounts receivable, credit each
// line's revenue account.
func (s *Service) IssueInvoice(ctx context.Context, id uint) (*models.Invoice, error) {
	var (
		inv   models.Invoice
		entry *models.JournalEntry
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Lines").First(&inv, id).Error; err != nil {
			return err
		}
		if inv.Status != models.InvoiceDraft {
			return fmt.Errorf("%w: invoice is %s", ErrInvalidStatus, inv.Status)
		}
		ar, err := controlAccount(tx, inv.EntityID, models.RoleAccountsReceivable)
		if err != nil {
			return err
		}

		entry = &models.JournalEntry{
			EntityID: inv.EntityID,
			Date:     inv.Date,
			Memo:     "Invoice " + inv.Number,
			Source:   SourceInvoice,
			SourceID: &inv.ID,
			Lines:    []models.JournalLine{{AccountID: ar.ID, Debit: inv.Total, Memo: "Invoice " + inv.Number}},
		}
		for _, l := range inv.Lines {
			entry.Lines = append(entry.Lines, models.JournalLine{
				AccountID: l.AccountID,
				Credit:    l.Amount,
				JobID:     l.JobID,
				Memo:      l.Description,
			})
		}
		if err := post(tx, entry); err != nil {
			return err
		}

		inv.Status = models.InvoiceIssued
		inv.JournalEntryID = &entry.ID
		return tx.Model(&inv).Select("status", "journal_entry_id").Updates(&inv).Error
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.posted(entry)
	s.pub.Publish(changefeed.NewEvent(models.RecordInvoice, "issued", inv.ID))
	return &inv, nil
}

// ReceivePayment records a customer payment into a bank account: debit the
// bank's cash account, credit accounts receivable.
func (s *Service) ReceivePayment(ctx context.Context, invoiceID, bankAccountID uint, amount decimal.Decimal, date time.Time) (*models.InvoicePayment, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", records.ErrInvalid)
	}
	amount = amount.Round(2)

	var (
		payment models.InvoicePayment
		entry   *models.JournalEntry
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.Invoice
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&inv, invoiceID).Error; err != nil {
			return err
		}
		if inv.Status != models.InvoiceIssued && inv.Status != models.InvoicePartiallyPaid {
			return fmt.Errorf("%w: invoice is %s", ErrInvalidStatus, inv.Status)
		}
		if amount.GreaterThan(inv.Balance()) {
			return fmt.Errorf("%w: %s against %s", ErrOverpayment, amount.StringFixed(2), inv.Balance().StringFixed(2))
		}
		bank, err := bankAccount(tx, bankAccountID, inv.EntityID)
		if err != nil {
			return err
		}
		ar, err := controlAccount(tx, inv.EntityID, models.RoleAccountsReceivable)
		if err != nil {
			return err
		}

		entry = &models.JournalEntry{
			EntityID: inv.EntityID,
			Date:     date,
			Memo:     "Payment of invoice " + inv.Number,
			Source:   SourceInvoicePayment,
			SourceID: &inv.ID,
			Lines: []models.JournalLine{
				{AccountID: bank.GLAccountID, Debit: amount},
				{AccountID: ar.ID, Credit: amount},
			},
		}
		if err := post(tx, entry); err != nil {
			return err
		}

		payment = models.InvoicePayment{
			InvoiceID:      inv.ID,
			BankAccountID:  bank.ID,
			Amount:         amount,
			Date:           date,
			JournalEntryID: entry.ID,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		inv.AmountPaid = inv.AmountPaid.Add(amount)
		inv.Status = models.InvoicePartiallyPaid
		if inv.Balance().IsZero() {
			inv.Status = models.InvoicePaid
		}
		return tx.Model(&inv).Select("amount_paid", "status").Updates(&inv).Error
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.posted(entry)
	s.pub.Publish(changefeed.NewEvent(models.RecordInvoice, "paid", invoiceID))
	return &payment, nil
}

// VoidInvoice voids a draft or unpaid issued invoice, reversing its entry.
func (s *Service) VoidInvoice(ctx context.Context, id uint, date time.Time) (*models.Invoice, error) {
	var (
		inv      models.Invoice
		reversal *models.JournalEntry
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&inv, id).Error; err != nil {
			return err
		}
		switch inv.Status {
		case models.InvoiceDraft:
		case models.InvoiceIssued:
			if inv.JournalEntryID != nil {
				var err error
				if reversal, err = reverse(tx, *inv.JournalEntryID, date); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("%w: invoice is %s", ErrInvalidStatus, inv.Status)
		}
		inv.Status = models.InvoiceVoid
		return tx.Model(&inv).Select("status").Updates(&inv).Error
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	if reversal != nil {
		s.posted(reversal)
	}
	s.pub.Publish(changefeed.NewEvent(models.RecordInvoice, "voided", inv.ID))
	return &inv, nil
}
