// Package banking imports bank statements and reconciles them against the
// cash accounts of the ledger.
package banking

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

const (
	recordBankAccount    = "bank_account"
	recordReconciliation = "reconciliation"
)

var ErrBadStatement = fmt.Errorf("%w: malformed statement", records.ErrInvalid)

var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "01/02/06", "1/2/06"}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
	pub changefeed.Publisher
}

func NewService(db *gorm.DB, log *zap.Logger, pub changefeed.Publisher) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = changefeed.Discard
	}
	return &Service{db: db, log: log.Named("banking"), pub: pub}
}

// ImportResult counts the rows of an imported statement.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ImportStatement reads a CSV with Date, Description and Amount columns
// (negative amounts are withdrawals). Rows already imported for the account
// are skipped. Repeats of the same date, amount and description within one
// file are distinct rows.
func (s *Service) ImportStatement(ctx context.Context, bankAccountID uint, r io.Reader) (ImportResult, error) {
	var res ImportResult

	var bank models.BankAccount
	if err := s.db.WithContext(ctx).First(&bank, bankAccountID).Error; err != nil {
		return res, records.Translate(err)
	}

	lines, err := parseStatement(r)
	if err != nil {
		return res, err
	}

	seen := map[string]int{}
	for i := range lines {
		l := &lines[i]
		l.BankAccountID = bank.ID
		key := rowKey(l)
		l.Fingerprint = fingerprint(bank.ID, key, seen[key])
		seen[key]++
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range lines {
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lines[i])
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				res.Skipped++
				continue
			}
			res.Imported++
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, records.Translate(err)
	}

	s.log.Info("statement imported",
		zap.Uint("bank_account_id", bank.ID),
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped))
	if res.Imported > 0 {
		s.pub.Publish(changefeed.NewEvent(recordBankAccount, changefeed.ActionUpdated, bank.ID))
	}
	return res, nil
}

func rowKey(l *models.BankStatementLine) string {
	return l.Date.Format("2006-01-02") + "|" + l.Amount.StringFixed(2) + "|" + strings.ToLower(strings.Join(strings.Fields(l.Description), " "))
}

func fingerprint(accountID uint, key string, occurrence int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%d", accountID, key, occurrence)))
	return hex.EncodeToString(sum[:])
}

func parseStatement(r io.Reader) ([]models.BankStatementLine, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrBadStatement)
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		switch name {
		case "memo", "payee":
			name = "description"
		case "posted date", "transaction date":
			name = "date"
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	for _, required := range []string{"date", "description", "amount"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing %q column", ErrBadStatement, required)
		}
	}

	var lines []models.BankStatementLine
	for row := 2; ; row++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrBadStatement, row, err)
		}
		if blank(rec) {
			continue
		}
		field := func(name string) string {
			if i := cols[name]; i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		date, err := parseDate(field("date"))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrBadStatement, row, err)
		}
		amount, err := parseAmount(field("amount"))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrBadStatement, row, err)
		}
		lines = append(lines, models.BankStatementLine{
			Date:        date,
			Description: field("description"),
			Amount:      amount,
		})
	}
	return lines, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// parseAmount accepts "1,234.50", "-12", "$40.00" and accounting style
// "(12.00)" for negatives.
func parseAmount(s string) (decimal.Decimal, error) {
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if neg {
		d = d.Neg()
	}
	return d.Round(2), nil
}
