package banking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

var (
	ErrReconciliationOpen = fmt.Errorf("%w: account already has an open reconciliation", records.ErrConflict)
	ErrFinalized          = fmt.Errorf("%w: reconciliation is finalized", records.ErrConflict)
	ErrOutOfBalance       = fmt.Errorf("%w: reconciliation does not balance", records.ErrConflict)
	ErrAlreadyMatched     = fmt.Errorf("%w: line already matched", records.ErrConflict)
	ErrAmountMismatch     = fmt.Errorf("%w: amounts differ", records.ErrInvalid)
	ErrWrongAccount       = fmt.Errorf("%w: line belongs to another account", records.ErrInvalid)
)

// Start opens a reconciliation of a bank account against a statement. The
// beginning balance is the ending balance of the last finalized one.
func (s *Service) Start(ctx context.Context, bankAccountID uint, statementDate time.Time, endingBalance decimal.Decimal) (*models.Reconciliation, error) {
	var rec models.Reconciliation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bank models.BankAccount
		if err := tx.First(&bank, bankAccountID).Error; err != nil {
			return err
		}

		var open int64
		err := tx.Model(&models.Reconciliation{}).
			Where("bank_account_id = ? AND status = ?", bank.ID, models.ReconciliationOpen).
			Count(&open).Error
		if err != nil {
			return err
		}
		if open > 0 {
			return ErrReconciliationOpen
		}

		var last []models.Reconciliation
		err = tx.Where("bank_account_id = ? AND status = ?", bank.ID, models.ReconciliationFinalized).
			Order("statement_date DESC").Order("id DESC").Limit(1).
			Find(&last).Error
		if err != nil {
			return err
		}
		beginning := decimal.Zero
		if len(last) == 1 {
			if !statementDate.After(last[0].StatementDate) {
				return fmt.Errorf("%w: statement date must follow %s", records.ErrInvalid, last[0].StatementDate.Format("2006-01-02"))
			}
			beginning = last[0].EndingBalance
		}

		rec = models.Reconciliation{
			BankAccountID:    bank.ID,
			StatementDate:    statementDate,
			BeginningBalance: beginning,
			EndingBalance:    endingBalance.Round(2),
			Status:           models.ReconciliationOpen,
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return nil, records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent(recordReconciliation, changefeed.ActionCreated, rec.ID))
	return &rec, nil
}

// workspace is an open reconciliation with the cash account it clears.
type workspace struct {
	rec  models.Reconciliation
	bank models.BankAccount
}

func loadOpen(tx *gorm.DB, id uint) (*workspace, error) {
	var w workspace
	if err := tx.First(&w.rec, id).Error; err != nil {
		return nil, err
	}
	if w.rec.Status != models.ReconciliationOpen {
		return nil, ErrFinalized
	}
	if err := tx.First(&w.bank, w.rec.BankAccountID).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Service) modify(ctx context.Context, id uint, fn func(tx *gorm.DB, w *workspace) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := loadOpen(tx, id)
		if err != nil {
			return err
		}
		return fn(tx, w)
	})
	if err != nil {
		return records.Translate(err)
	}
	s.pub.Publish(changefeed.NewEvent(recordReconciliation, changefeed.ActionUpdated, id))
	return nil
}

type candidate struct {
	stmt     int
	book     int
	distance int
}

func absDays(a, b time.Time) int {
	d := int(a.Sub(b).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

// AutoMatch pairs unmatched statement lines with uncleared book lines of the
// same signed amount dated within windowDays of each other. The closest
// dates pair first and each line is used at most once.
func (s *Service) AutoMatch(ctx context.Context, id uint, windowDays int) (int, error) {
	if windowDays < 0 {
		return 0, fmt.Errorf("%w: window must not be negative", records.ErrInvalid)
	}
	matched := 0
	err := s.modify(ctx, id, func(tx *gorm.DB, w *workspace) error {
		var stmts []models.BankStatementLine
		err := tx.Where("bank_account_id = ? AND journal_line_id IS NULL AND reconciliation_id IS NULL AND date <= ?",
			w.bank.ID, w.rec.StatementDate).
			Order("date").Order("id").
			Find(&stmts).Error
		if err != nil {
			return err
		}
		var book []models.JournalLine
		err = tx.Where("account_id = ? AND reconciliation_id IS NULL AND date <= ?",
			w.bank.GLAccountID, w.rec.StatementDate.AddDate(0, 0, windowDays)).
			Order("date").Order("id").
			Find(&book).Error
		if err != nil {
			return err
		}

		var pairs []candidate
		for i, st := range stmts {
			for j, bl := range book {
				if !st.Amount.Equal(bl.Signed()) {
					continue
				}
				if d := absDays(st.Date, bl.Date); d <= windowDays {
					pairs = append(pairs, candidate{stmt: i, book: j, distance: d})
				}
			}
		}
		sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].distance < pairs[b].distance })

		usedStmt := map[int]bool{}
		usedBook := map[int]bool{}
		for _, p := range pairs {
			if usedStmt[p.stmt] || usedBook[p.book] {
				continue
			}
			usedStmt[p.stmt], usedBook[p.book] = true, true
			if err := pair(tx, w, &stmts[p.stmt], &book[p.book]); err != nil {
				return err
			}
			matched++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("auto match", zap.Uint("reconciliation_id", id), zap.Int("matched", matched))
	return matched, nil
}

func pair(tx *gorm.DB, w *workspace, st *models.BankStatementLine, bl *models.JournalLine) error {
	recID := w.rec.ID
	st.JournalLineID = &bl.ID
	st.ReconciliationID = &recID
	if err := tx.Model(st).Select("journal_line_id", "reconciliation_id").Updates(st).Error; err != nil {
		return err
	}
	bl.ReconciliationID = &recID
	return tx.Model(bl).Select("reconciliation_id").Updates(bl).Error
}

// Match pairs a statement line with a book line by hand.
func (s *Service) Match(ctx context.Context, id, statementLineID, journalLineID uint) error {
	return s.modify(ctx, id, func(tx *gorm.DB, w *workspace) error {
		var st models.BankStatementLine
		if err := tx.First(&st, statementLineID).Error; err != nil {
			return err
		}
		var bl models.JournalLine
		if err := tx.First(&bl, journalLineID).Error; err != nil {
			return err
		}
		if st.BankAccountID != w.bank.ID || bl.AccountID != w.bank.GLAccountID {
			return ErrWrongAccount
		}
		if st.JournalLineID != nil || st.ReconciliationID != nil || bl.ReconciliationID != nil {
			return ErrAlreadyMatched
		}
		if !st.Amount.Equal(bl.Signed()) {
			return fmt.Errorf("%w: statement %s, books %s", ErrAmountMismatch, st.Amount.StringFixed(2), bl.Signed().StringFixed(2))
		}
		return pair(tx, w, &st, &bl)
	})
}

// Unmatch releases a statement line and the book line paired with it.
func (s *Service) Unmatch(ctx context.Context, id, statementLineID uint) error {
	return s.modify(ctx, id, func(tx *gorm.DB, w *workspace) error {
		var st models.BankStatementLine
		if err := tx.First(&st, statementLineID).Error; err != nil {
			return err
		}
		if st.ReconciliationID == nil || *st.ReconciliationID != w.rec.ID {
			return fmt.Errorf("%w: statement line is not matched in this reconciliation", records.ErrInvalid)
		}
		if st.JournalLineID != nil {
			err := tx.Model(&models.JournalLine{}).Where("id = ?", *st.JournalLineID).
				Update("reconciliation_id", nil).Error
			if err != nil {
				return err
			}
		}
		return tx.Model(&st).Updates(map[string]any{"journal_line_id": nil, "reconciliation_id": nil}).Error
	})
}

// Clear marks a book line cleared without a statement line, e.g. when the
// statement was never imported.
func (s *Service) Clear(ctx context.Context, id, journalLineID uint) error {
	return s.modify(ctx, id, func(tx *gorm.DB, w *workspace) error {
		var bl models.JournalLine
		if err := tx.First(&bl, journalLineID).Error; err != nil {
			return err
		}
		if bl.AccountID != w.bank.GLAccountID {
			return ErrWrongAccount
		}
		if bl.ReconciliationID != nil {
			return ErrAlreadyMatched
		}
		return tx.Model(&bl).Update("reconciliation_id", w.rec.ID).Error
	})
}

// Unclear removes a book line from the reconciliation along with any
// statement line paired with it.
func (s *Service) Unclear(ctx context.Context, id, journalLineID uint) error {
	return s.modify(ctx, id, func(tx *gorm.DB, w *workspace) error {
		res := tx.Model(&models.JournalLine{}).
			Where("id = ? AND reconciliation_id = ?", journalLineID, w.rec.ID).
			Update("reconciliation_id", nil)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: line is not cleared in this reconciliation", records.ErrInvalid)
		}
		return tx.Model(&models.BankStatementLine{}).
			Where("journal_line_id = ? AND reconciliation_id = ?", journalLineID, w.rec.ID).
			Updates(map[string]any{"journal_line_id": nil, "reconciliation_id": nil}).Error
	})
}

// Summary is the state of the reconciliation wizard.
type Summary struct {
	Reconciliation     models.Reconciliation      `json:"reconciliation"`
	ClearedDeposits    decimal.Decimal            `json:"cleared_deposits"`
	ClearedWithdrawals decimal.Decimal            `json:"cleared_withdrawals"`
	ClearedBalance     decimal.Decimal            `json:"cleared_balance"`
	Difference         decimal.Decimal            `json:"difference"`
	Cleared            []models.JournalLine       `json:"cleared"`
	UnclearedBook      []models.JournalLine       `json:"uncleared_book"`
	UnmatchedStatement []models.BankStatementLine `json:"unmatched_statement"`
}

// Summary computes the difference, ending - (beginning + cleared), and
// lists what is left to match.
func (s *Service) Summary(ctx context.Context, id uint) (*Summary, error) {
	db := s.db.WithContext(ctx)
	var rec models.Reconciliation
	if err := db.First(&rec, id).Error; err != nil {
		return nil, records.Translate(err)
	}
	var bank models.BankAccount
	if err := db.First(&bank, rec.BankAccountID).Error; err != nil {
		return nil, records.Translate(err)
	}

	sum := &Summary{Reconciliation: rec}
	if err := db.Where("reconciliation_id = ?", rec.ID).Order("date").Order("id").Find(&sum.Cleared).Error; err != nil {
		return nil, err
	}
	for _, l := range sum.Cleared {
		amt := l.Signed()
		if amt.IsPositive() {
			sum.ClearedDeposits = sum.ClearedDeposits.Add(amt)
		} else {
			sum.ClearedWithdrawals = sum.ClearedWithdrawals.Add(amt)
		}
	}
	sum.ClearedBalance = rec.BeginningBalance.Add(sum.ClearedDeposits).Add(sum.ClearedWithdrawals)
	sum.Difference = rec.EndingBalance.Sub(sum.ClearedBalance)

	if rec.Status == models.ReconciliationOpen {
		err := db.Where("account_id = ? AND reconciliation_id IS NULL AND date <= ?", bank.GLAccountID, rec.StatementDate).
			Order("date").Order("id").Find(&sum.UnclearedBook).Error
		if err != nil {
			return nil, err
		}
		err = db.Where("bank_account_id = ? AND reconciliation_id IS NULL AND date <= ?", bank.ID, rec.StatementDate).
			Order("date").Order("id").Find(&sum.UnmatchedStatement).Error
		if err != nil {
			return nil, err
		}
	}
	return sum, nil
}

// Difference is ending - (beginning + cleared).
func (s *Service) Difference(ctx context.Context, id uint) (decimal.Decimal, error) {
	sum, err := s.Summary(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return sum.Difference, nil
}

// Finalize closes a balanced reconciliation and stamps its cleared lines.
func (s *Service) Finalize(ctx context.Context, id uint, at time.Time) (*models.Reconciliation, error) {
	sum, err := s.Summary(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sum.Difference.IsZero() {
		return nil, fmt.Errorf("%w: difference %s", ErrOutOfBalance, sum.Difference.StringFixed(2))
	}

	var rec models.Reconciliation
	err = s.modify(ctx, id, func(tx *gorm.DB, w *workspace) error {
		err := tx.Model(&models.JournalLine{}).Where("reconciliation_id = ?", w.rec.ID).
			Update("reconciled_at", at).Error
		if err != nil {
			return err
		}
		rec = w.rec
		rec.Status = models.ReconciliationFinalized
		rec.FinalizedAt = &at
		return tx.Model(&rec).Select("status", "finalized_at").Updates(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("reconciliation finalized",
		zap.Uint("reconciliation_id", id),
		zap.Uint("bank_account_id", rec.BankAccountID),
		zap.String("ending_balance", rec.EndingBalance.StringFixed(2)))
	return &rec, nil
}
