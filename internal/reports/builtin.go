package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/accounting"
	"github.com/beesaferoot/buildops/internal/construction"
	"github.com/beesaferoot/buildops/internal/investors"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

// Built-in report names.
const (
	ReportPipeline          = "pipeline"
	ReportJobCost           = "job-cost"
	ReportAPAging           = "ap-aging"
	ReportARAging           = "ar-aging"
	ReportTrialBalance      = "trial-balance"
	ReportInvestorStatement = "investor-statement"
)

var ErrUnknownReport = fmt.Errorf("%w: unknown report", records.ErrNotFound)

// Params select the subject of a report. Which fields are required depends
// on the report; a zero AsOf means today.
type Params struct {
	EntityID   uint      `json:"entity_id"`
	JobID      uint      `json:"job_id"`
	InvestorID uint      `json:"investor_id"`
	AsOf       time.Time `json:"as_of"`
}

type buildFunc func(ctx context.Context, p Params) (*Table, error)

// Builder produces the built-in reports.
type Builder struct {
	db           *gorm.DB
	log          *zap.Logger
	accounting   *accounting.Service
	construction *construction.Service
	investors    *investors.Service
	now          func() time.Time
	reports      map[string]buildFunc
}

func NewBuilder(db *gorm.DB, log *zap.Logger, acct *accounting.Service, cons *construction.Service, inv *investors.Service) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Builder{
		db:           db,
		log:          log.Named("reports"),
		accounting:   acct,
		construction: cons,
		investors:    inv,
		now:          time.Now,
	}
	b.reports = map[string]buildFunc{
		ReportPipeline:          b.pipeline,
		ReportJobCost:           b.jobCost,
		ReportAPAging:           b.aging(accounting.AgingPayables),
		ReportARAging:           b.aging(accounting.AgingReceivables),
		ReportTrialBalance:      b.trialBalance,
		ReportInvestorStatement: b.investorStatement,
	}
	return b
}

// Names lists the built-in reports in alphabetical order.
func (b *Builder) Names() []string {
	names := make([]string, 0, len(b.reports))
	for name := range b.reports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *Builder) Build(ctx context.Context, name string, p Params) (*Table, error) {
	build, ok := b.reports[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReport, name)
	}
	if p.AsOf.IsZero() {
		p.AsOf = b.now().UTC()
	}
	start := time.Now()
	t, err := build(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", name, err)
	}
	b.log.Debug("report built",
		zap.String("report", name),
		zap.Int("rows", len(t.Rows)),
		zap.Duration("took", time.Since(start)))
	return t, nil
}

// Bundle builds several reports concurrently, returning them in the order
// requested. The first failure cancels the rest.
func (b *Builder) Bundle(ctx context.Context, names []string, p Params) ([]*Table, error) {
	for _, name := range names {
		if _, ok := b.reports[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownReport, name)
		}
	}
	tables := make([]*Table, len(names))
	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			t, err := b.Build(ctx, name, p)
			if err != nil {
				return err
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

func needID(field string, id uint) error {
	if id == 0 {
		return fmt.Errorf("%w: %s is required", records.ErrInvalid, field)
	}
	return nil
}

func count(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

var stageOrder = []models.DealStage{
	models.StageLead, models.StageUnderReview, models.StageUnderContract, models.StageClosed, models.StageDead,
}

func stageRank(s models.DealStage) int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return len(stageOrder)
}

// pipeline lists deals grouped by stage with the headline figures of their
// deal sheets.
func (b *Builder) pipeline(ctx context.Context, p Params) (*Table, error) {
	q := b.db.WithContext(ctx).Preload("Sheet")
	if p.EntityID != 0 {
		q = q.Where("entity_id = ?", p.EntityID)
	}
	var deals []models.Deal
	if err := q.Find(&deals).Error; err != nil {
		return nil, records.Translate(err)
	}
	sort.SliceStable(deals, func(i, j int) bool {
		ri, rj := stageRank(deals[i].Stage), stageRank(deals[j].Stage)
		if ri != rj {
			return ri < rj
		}
		return deals[i].Name < deals[j].Name
	})

	t := NewTable(ReportPipeline, "Deal Pipeline",
		Column{"stage", "Stage", Text},
		Column{"deal", "Deal", Text},
		Column{"city", "City", Text},
		Column{"total_project_cost", "Total Cost", Money},
		Column{"net_profit", "Net Profit", Money},
		Column{"margin", "Margin", Ratio},
		Column{"verdict", "Verdict", Text},
	)
	for _, d := range deals {
		cost, profit, margin, verdict := decimal.Zero, decimal.Zero, decimal.Zero, ""
		if d.Sheet != nil {
			cost, profit, margin, verdict = d.Sheet.TotalProjectCost, d.Sheet.NetProfit, d.Sheet.Margin, d.Sheet.Verdict
		}
		t.Add(string(d.Stage), d.Name, d.City, cost, profit, margin, verdict)
	}

	grouped, err := t.GroupBy([]string{"stage"}, "total_project_cost", "net_profit")
	if err != nil {
		return nil, err
	}
	if _, err := grouped.Totals("total_project_cost", "net_profit"); err != nil {
		return nil, err
	}
	return grouped, nil
}

func (b *Builder) jobCost(ctx context.Context, p Params) (*Table, error) {
	if err := needID("job_id", p.JobID); err != nil {
		return nil, err
	}
	sum, err := b.construction.JobCost(ctx, p.JobID)
	if err != nil {
		return nil, err
	}

	t := NewTable(ReportJobCost, "Job Cost - "+sum.Job,
		Column{"cost_code", "Cost Code", Text},
		Column{"description", "Description", Text},
		Column{"original_budget", "Original Budget", Money},
		Column{"approved_changes", "Approved Changes", Money},
		Column{"revised_budget", "Revised Budget", Money},
		Column{"committed", "Committed", Money},
		Column{"actual", "Actual", Money},
		Column{"variance", "Variance", Money},
		Column{"percent_spent", "% Spent", Ratio},
	)
	for _, l := range sum.Lines {
		t.Add(l.CostCode, l.Description, l.Original, l.ApprovedChanges, l.Revised, l.Committed, l.Actual, l.Variance, l.PercentSpent)
	}
	tot := sum.Total
	t.Total = &Row{Subtotal: true, Values: map[string]any{
		"cost_code":        "Total",
		"original_budget":  tot.Original,
		"approved_changes": tot.ApprovedChanges,
		"revised_budget":   tot.Revised,
		"committed":        tot.Committed,
		"actual":           tot.Actual,
		"variance":         tot.Variance,
		"percent_spent":    tot.PercentSpent,
	}}
	return t, nil
}

func (b *Builder) aging(kind accounting.AgingKind) buildFunc {
	name, title, party := ReportAPAging, "AP Aging", "Vendor"
	if kind == accounting.AgingReceivables {
		name, title, party = ReportARAging, "AR Aging", "Customer"
	}
	return func(ctx context.Context, p Params) (*Table, error) {
		if err := needID("entity_id", p.EntityID); err != nil {
			return nil, err
		}
		rep, err := b.accounting.Aging(ctx, kind, p.EntityID, p.AsOf)
		if err != nil {
			return nil, err
		}

		t := NewTable(name, title+" "+p.AsOf.Format("2006-01-02"),
			Column{"party", party, Text},
			Column{"number", "Number", Text},
			Column{"date", "Date", Date},
			Column{"due_date", "Due", Date},
			Column{"days_past_due", "Days Past Due", Count},
			Column{"bucket", "Bucket", Text},
			Column{"balance", "Balance", Money},
		)
		for _, r := range rep.Rows {
			t.Add(r.Party, r.Number, r.Date, r.DueDate, count(r.DaysPastDue), r.Bucket, r.Balance)
		}
		grouped, err := t.GroupBy([]string{"party"}, "balance")
		if err != nil {
			return nil, err
		}
		if _, err := grouped.Totals("balance"); err != nil {
			return nil, err
		}
		return grouped, nil
	}
}

func (b *Builder) trialBalance(ctx context.Context, p Params) (*Table, error) {
	if err := needID("entity_id", p.EntityID); err != nil {
		return nil, err
	}
	tb, err := b.accounting.TrialBalance(ctx, p.EntityID, p.AsOf)
	if err != nil {
		return nil, err
	}

	t := NewTable(ReportTrialBalance, "Trial Balance "+p.AsOf.Format("2006-01-02"),
		Column{"code", "Account", Text},
		Column{"name", "Name", Text},
		Column{"type", "Type", Text},
		Column{"debit", "Debit", Money},
		Column{"credit", "Credit", Money},
		Column{"balance", "Balance", Money},
	)
	for _, r := range tb.Rows {
		t.Add(r.Code, r.Name, string(r.Type), r.Debit, r.Credit, r.Balance)
	}
	if _, err := t.Totals("debit", "credit"); err != nil {
		return nil, err
	}
	return t, nil
}

func (b *Builder) investorStatement(ctx context.Context, p Params) (*Table, error) {
	if err := needID("investor_id", p.InvestorID); err != nil {
		return nil, err
	}
	st, err := b.investors.Statement(ctx, p.InvestorID)
	if err != nil {
		return nil, err
	}

	t := NewTable(ReportInvestorStatement, "Statement - "+st.Investor,
		Column{"entity", "Entity", Text},
		Column{"committed", "Committed", Money},
		Column{"called", "Called", Money},
		Column{"unfunded", "Unfunded", Money},
		Column{"distributed", "Distributed", Money},
	)
	for _, l := range st.Lines {
		t.Add(l.Entity, l.Committed, l.Called, l.Unfunded, l.Distributed)
	}
	if _, err := t.Totals("committed", "called", "unfunded", "distributed"); err != nil {
		return nil, err
	}
	return t, nil
}
