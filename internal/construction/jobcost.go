package construction

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

// CostLine compares budget and spend for one cost code.
type CostLine struct {
	CostCode        string          `json:"cost_code"`
	Description     string          `json:"description"`
	Original        decimal.Decimal `json:"original_budget"`
	ApprovedChanges decimal.Decimal `json:"approved_changes"`
	Revised         decimal.Decimal `json:"revised_budget"`
	Committed       decimal.Decimal `json:"committed"`
	Actual          decimal.Decimal `json:"actual"`
	Variance        decimal.Decimal `json:"variance"`
	PercentSpent    decimal.Decimal `json:"percent_spent"`
}

func (l *CostLine) finish() {
	l.Revised = l.Original.Add(l.ApprovedChanges)
	l.Variance = l.Revised.Sub(l.Actual)
	l.PercentSpent = decimal.Zero
	if !l.Revised.IsZero() {
		l.PercentSpent = l.Actual.DivRound(l.Revised, 4)
	}
}

// JobCostSummary is the cost report of a job, by cost code and in total.
type JobCostSummary struct {
	JobID uint       `json:"job_id"`
	Job   string     `json:"job"`
	Lines []CostLine `json:"lines"`
	Total CostLine   `json:"total"`
}

var (
	actualBillStatuses    = []models.BillStatus{models.BillApproved, models.BillPartiallyPaid, models.BillPaid}
	committedBillStatuses = []models.BillStatus{models.BillDraft}
)

// JobCost builds the summary. Actual cost is approved bill lines coded to the
// job; committed cost is draft bill lines.
func (s *Service) JobCost(ctx context.Context, jobID uint) (*JobCostSummary, error) {
	db := s.db.WithContext(ctx)

	var job models.Job
	if err := db.First(&job, jobID).Error; err != nil {
		return nil, records.Translate(err)
	}

	lines := map[string]*CostLine{}
	line := func(code string) *CostLine {
		l, ok := lines[code]
		if !ok {
			l = &CostLine{CostCode: code}
			lines[code] = l
		}
		return l
	}

	var budget []models.BudgetLine
	if err := db.Where("job_id = ?", jobID).Find(&budget).Error; err != nil {
		return nil, err
	}
	for _, b := range budget {
		l := line(b.CostCode)
		l.Original = l.Original.Add(b.Amount)
		if l.Description == "" {
			l.Description = b.Description
		}
	}

	var changes []models.ChangeOrder
	if err := db.Where("job_id = ? AND status = ?", jobID, models.ChangeOrderApproved).Find(&changes).Error; err != nil {
		return nil, err
	}
	for _, c := range changes {
		l := line(c.CostCode)
		l.ApprovedChanges = l.ApprovedChanges.Add(c.Amount)
	}

	actual, err := s.billLines(ctx, jobID, actualBillStatuses)
	if err != nil {
		return nil, err
	}
	for _, b := range actual {
		l := line(b.CostCode)
		l.Actual = l.Actual.Add(b.Amount)
	}

	committed, err := s.billLines(ctx, jobID, committedBillStatuses)
	if err != nil {
		return nil, err
	}
	for _, b := range committed {
		l := line(b.CostCode)
		l.Committed = l.Committed.Add(b.Amount)
	}

	summary := &JobCostSummary{JobID: job.ID, Job: job.Name, Lines: make([]CostLine, 0, len(lines))}
	summary.Total.CostCode = "TOTAL"
	for _, l := range lines {
		l.finish()
		summary.Lines = append(summary.Lines, *l)
		summary.Total.Original = summary.Total.Original.Add(l.Original)
		summary.Total.ApprovedChanges = summary.Total.ApprovedChanges.Add(l.ApprovedChanges)
		summary.Total.Committed = summary.Total.Committed.Add(l.Committed)
		summary.Total.Actual = summary.Total.Actual.Add(l.Actual)
	}
	summary.Total.finish()
	sort.Slice(summary.Lines, func(i, j int) bool { return summary.Lines[i].CostCode < summary.Lines[j].CostCode })
	return summary, nil
}

func (s *Service) billLines(ctx context.Context, jobID uint, statuses []models.BillStatus) ([]models.BillLine, error) {
	var lines []models.BillLine
	err := s.db.WithContext(ctx).
		Joins("JOIN bills ON bills.id = bill_lines.bill_id AND bills.deleted_at IS NULL").
		Where("bill_lines.job_id = ? AND bills.status IN ?", jobID, statuses).
		Find(&lines).Error
	return lines, err
}
