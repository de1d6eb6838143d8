// Package accounting keeps the general ledger of each entity and the
// payables and receivables that post to it.
package accounting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/metrics"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

var (
	ErrUnbalanced      = fmt.Errorf("%w: journal entry does not balance", records.ErrInvalid)
	ErrInvalidLine     = fmt.Errorf("%w: invalid journal line", records.ErrInvalid)
	ErrForeignAccount  = fmt.Errorf("%w: account does not belong to the entity", records.ErrInvalid)
	ErrAlreadyReversed = fmt.Errorf("%w: entry already reversed", records.ErrConflict)
	ErrInvalidStatus   = fmt.Errorf("%w: invalid status for this action", records.ErrConflict)
	ErrOverpayment     = fmt.Errorf("%w: payment exceeds open balance", records.ErrInvalid)
	ErrNoControl       = fmt.Errorf("%w: entity has no control account", records.ErrInvalid)
)

// Journal sources.
const (
	SourceManual         = "manual"
	SourceReversal       = "reversal"
	SourceBill           = "bill"
	SourceBillPayment    = "bill_payment"
	SourceInvoice        = "invoice"
	SourceInvoicePayment = "invoice_payment"
)

const recordJournalEntry = "journal_entry"

// documentReadOnly are the bill and invoice columns only posting may set.
var documentReadOnly = []string{"status", "total", "amount_paid", "journal_entry_id"}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
	pub changefeed.Publisher

	bills    *records.Repository[models.Bill]
	invoices *records.Repository[models.Invoice]
}

func NewService(db *gorm.DB, log *zap.Logger, pub changefeed.Publisher) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = changefeed.Discard
	}
	return &Service{
		db:       db,
		log:      log.Named("accounting"),
		pub:      pub,
		bills:    records.MustRepository[models.Bill](db, records.WithPreload("Lines", "Payments"), records.WithReadOnly(documentReadOnly...)),
		invoices: records.MustRepository[models.Invoice](db, records.WithPreload("Lines", "Payments"), records.WithReadOnly(documentReadOnly...)),
	}
}

// WithTx returns a service that posts inside tx.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	clone := *s
	clone.db = tx
	return &clone
}

// Post validates and stores a journal entry.
func (s *Service) Post(ctx context.Context, entry *models.JournalEntry) error {
	if entry.Source == "" {
		entry.Source = SourceManual
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return post(tx, entry)
	})
	if err != nil {
		return records.Translate(err)
	}
	s.posted(entry)
	return nil
}

func (s *Service) posted(entry *models.JournalEntry) {
	metrics.JournalEntriesPosted.WithLabelValues(entry.Source).Inc()
	s.log.Debug("journal entry posted",
		zap.Uint("entry_id", entry.ID),
		zap.Uint("entity_id", entry.EntityID),
		zap.String("source", entry.Source))
	s.pub.Publish(changefeed.NewEvent(recordJournalEntry, changefeed.ActionCreated, entry.ID))
}

// post checks the double-entry rules and inserts the entry with its lines.
func post(tx *gorm.DB, entry *models.JournalEntry) error {
	if entry.EntityID == 0 {
		return fmt.Errorf("%w: entity is required", records.ErrInvalid)
	}
	if entry.Date.IsZero() {
		return fmt.Errorf("%w: date is required", records.ErrInvalid)
	}
	if len(entry.Lines) < 2 {
		return fmt.Errorf("%w: an entry needs at least two lines", ErrInvalidLine)
	}

	debits, credits := decimal.Zero, decimal.Zero
	accounts := map[uint]struct{}{}
	for i := range entry.Lines {
		l := &entry.Lines[i]
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d has a negative amount", ErrInvalidLine, i+1)
		}
		if l.Debit.IsPositive() == l.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d must have exactly one of debit or credit", ErrInvalidLine, i+1)
		}
		if !l.Debit.Equal(l.Debit.Round(2)) || !l.Credit.Equal(l.Credit.Round(2)) {
			return fmt.Errorf("%w: line %d has fractional cents", ErrInvalidLine, i+1)
		}
		if l.AccountID == 0 {
			return fmt.Errorf("%w: line %d has no account", ErrInvalidLine, i+1)
		}
		debits = debits.Add(l.Debit)
		credits = credits.Add(l.Credit)
		accounts[l.AccountID] = struct{}{}

		l.ID = 0
		l.EntryID = 0
		l.Date = entry.Date
		l.ReconciliationID = nil
		l.ReconciledAt = nil
	}
	if !debits.Equal(credits) {
		return fmt.Errorf("%w: debits %s, credits %s", ErrUnbalanced, debits.StringFixed(2), credits.StringFixed(2))
	}

	ids := make([]uint, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	var owned int64
	err := tx.Model(&models.GLAccount{}).
		Where("id IN ? AND entity_id = ?", ids, entry.EntityID).
		Count(&owned).Error
	if err != nil {
		return err
	}
	if int(owned) != len(ids) {
		return ErrForeignAccount
	}

	entry.ID = 0
	entry.PostedAt = time.Now().UTC()
	entry.ReversedByID = nil
	return tx.Create(entry).Error
}

// Reverse posts the mirror image of an entry dated date and links the two.
func (s *Service) Reverse(ctx context.Context, entryID uint, date time.Time) (*models.JournalEntry, error) {
	var reversal *models.JournalEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		reversal, err = reverse(tx, entryID, date)
		return err
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.posted(reversal)
	s.pub.Publish(changefeed.NewEvent(recordJournalEntry, changefeed.ActionUpdated, entryID))
	return reversal, nil
}

func reverse(tx *gorm.DB, entryID uint, date time.Time) (*models.JournalEntry, error) {
	var orig models.JournalEntry
	if err := tx.Preload("Lines").First(&orig, entryID).Error; err != nil {
		return nil, err
	}
	if orig.ReversedByID != nil {
		return nil, ErrAlreadyReversed
	}
	if orig.ReversalOfID != nil {
		return nil, fmt.Errorf("%w: entry %d is itself a reversal", ErrAlreadyReversed, entryID)
	}

	reversal := &models.JournalEntry{
		EntityID:     orig.EntityID,
		Date:         date,
		Memo:         fmt.Sprintf("Reversal of entry %d", orig.ID),
		Source:       SourceReversal,
		SourceID:     &orig.ID,
		ReversalOfID: &orig.ID,
	}
	for _, l := range orig.Lines {
		reversal.Lines = append(reversal.Lines, models.JournalLine{
			AccountID: l.AccountID,
			Debit:     l.Credit,
			Credit:    l.Debit,
			JobID:     l.JobID,
			CostCode:  l.CostCode,
			Memo:      l.Memo,
		})
	}
	if err := post(tx, reversal); err != nil {
		return nil, err
	}
	err := tx.Model(&models.JournalEntry{}).Where("id = ?", orig.ID).Update("reversed_by_id", reversal.ID).Error
	return reversal, err
}

// Entry loads a posted entry with its lines.
func (s *Service) Entry(ctx context.Context, id uint) (*models.JournalEntry, error) {
	var entry models.JournalEntry
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&entry, id).Error
	if err != nil {
		return nil, records.Translate(err)
	}
	return &entry, nil
}

// TrialBalanceRow is one account of a trial balance. Balance is signed by
// the account's normal side.
type TrialBalanceRow struct {
	AccountID uint               `json:"account_id"`
	Code      string             `json:"code"`
	Name      string             `json:"name"`
	Type      models.AccountType `json:"type"`
	Debit     decimal.Decimal    `json:"debit"`
	Credit    decimal.Decimal    `json:"credit"`
	Balance   decimal.Decimal    `json:"balance"`
}

type TrialBalance struct {
	EntityID    uint              `json:"entity_id"`
	AsOf        time.Time         `json:"as_of"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
	Balanced    bool              `json:"balanced"`
}

// TrialBalance totals the lines of an entity dated on or before asOf.
func (s *Service) TrialBalance(ctx context.Context, entityID uint, asOf time.Time) (*TrialBalance, error) {
	db := s.db.WithContext(ctx)

	var accounts []models.GLAccount
	if err := db.Unscoped().Where("entity_id = ?", entityID).Order("code").Find(&accounts).Error; err != nil {
		return nil, err
	}

	var lines []models.JournalLine
	err := db.
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.entry_id AND journal_entries.deleted_at IS NULL").
		Where("journal_entries.entity_id = ? AND journal_lines.date <= ?", entityID, asOf).
		Find(&lines).Error
	if err != nil {
		return nil, err
	}

	rows := make(map[uint]*TrialBalanceRow, len(accounts))
	for _, a := range accounts {
		rows[a.ID] = &TrialBalanceRow{AccountID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type}
	}
	tb := &TrialBalance{EntityID: entityID, AsOf: asOf}
	for _, l := range lines {
		r, ok := rows[l.AccountID]
		if !ok {
			continue
		}
		r.Debit = r.Debit.Add(l.Debit)
		r.Credit = r.Credit.Add(l.Credit)
		tb.TotalDebit = tb.TotalDebit.Add(l.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(l.Credit)
	}

	for _, r := range rows {
		if r.Debit.IsZero() && r.Credit.IsZero() {
			continue
		}
		r.Balance = r.Credit.Sub(r.Debit)
		if r.Type.DebitNormal() {
			r.Balance = r.Debit.Sub(r.Credit)
		}
		tb.Rows = append(tb.Rows, *r)
	}
	sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].Code < tb.Rows[j].Code })
	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit)
	return tb, nil
}

// controlAccount returns the entity's account holding role.
func controlAccount(tx *gorm.DB, entityID uint, role string) (*models.GLAccount, error) {
	var acct models.GLAccount
	err := tx.Where("entity_id = ? AND system_role = ?", entityID, role).Order("id").First(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoControl, role)
		}
		return nil, err
	}
	return &acct, nil
}

// bankAccount loads a bank account and checks it belongs to entityID.
func bankAccount(tx *gorm.DB, id, entityID uint) (*models.BankAccount, error) {
	var bank models.BankAccount
	if err := tx.First(&bank, id).Error; err != nil {
		return nil, err
	}
	if bank.EntityID != entityID {
		return nil, fmt.Errorf("%w: bank account %d", ErrForeignAccount, id)
	}
	return &bank, nil
}
