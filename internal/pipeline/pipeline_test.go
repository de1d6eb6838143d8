package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beesaferoot/buildops/internal/dealsheet"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
	"github.com/beesaferoot/buildops/internal/testutil"
	"github.com/beesaferoot/buildops/internal/workflow"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func inputs() dealsheet.Inputs {
	return dealsheet.Inputs{
		LotPrice:           dec("100000"),
		ClosingCostPct:     dec("0.02"),
		DueDiligenceCost:   dec("5000"),
		HouseSqFt:          dec("2000"),
		BuildCostPerSqFt:   dec("150"),
		SiteWorkCost:       dec("20000"),
		PermitsFees:        dec("10000"),
		DesignEngineering:  dec("15000"),
		ContingencyPct:     dec("0.05"),
		BuilderFeePct:      dec("0.10"),
		SalePrice:          dec("650000"),
		SellingCostPct:     dec("0.06"),
		LoanToCostPct:      dec("0.80"),
		MaxLoanToValuePct:  dec("0.75"),
		InterestRate:       dec("0.09"),
		OriginationPct:     dec("0.01"),
		AvgDrawPct:         dec("0.5"),
		ProjectMonths:      dec("12"),
		MonthlyHoldingCost: dec("1000"),
	}
}

func newService(t *testing.T) (*Service, *workflow.Engine) {
	t.Helper()
	db := testutil.DB(t)
	wf := workflow.NewEngine(db, nil, nil)
	return NewService(db, nil, nil, wf), wf
}

func TestCanAdvance(t *testing.T) {
	tests := []struct {
		from, to models.DealStage
		want     bool
	}{
		{models.StageLead, models.StageUnderReview, true},
		{models.StageLead, models.StageUnderContract, false},
		{models.StageUnderReview, models.StageUnderContract, true},
		{models.StageUnderContract, models.StageClosed, true},
		{models.StageUnderReview, models.StageDead, true},
		{models.StageClosed, models.StageDead, false},
		{models.StageDead, models.StageLead, false},
		{models.StageUnderContract, models.StageLead, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanAdvance(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestSaveDealSheet(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	deal := &models.Deal{Name: "Oak Ridge Lot 4", City: "Bend", State: "OR"}
	require.NoError(t, s.CreateDeal(ctx, deal))

	sheet, res, err := s.SaveDealSheet(ctx, deal.ID, inputs())
	require.NoError(t, err)
	assert.Equal(t, dealsheet.VerdictCaution, res.Verdict)
	assert.True(t, dec("72719.60").Equal(sheet.NetProfit))
	assert.Equal(t, "caution", sheet.Verdict)

	in := inputs()
	in.SalePrice = dec("700000")
	again, res, err := s.SaveDealSheet(ctx, deal.ID, in)
	require.NoError(t, err)
	assert.Equal(t, sheet.ID, again.ID)
	assert.Equal(t, dealsheet.VerdictGo, res.Verdict)

	loaded, full, err := s.DealSheet(ctx, deal.ID)
	require.NoError(t, err)
	assert.True(t, dec("700000").Equal(loaded.Inputs.SalePrice))
	assert.Equal(t, res.NetProfit.String(), full.NetProfit.String())

	bad := inputs()
	bad.SalePrice = decimal.Zero
	_, _, err = s.SaveDealSheet(ctx, deal.ID, bad)
	var verrs dealsheet.ValidationErrors
	assert.ErrorAs(t, err, &verrs)

	_, _, err = s.SaveDealSheet(ctx, 999, inputs())
	assert.ErrorIs(t, err, records.ErrNotFound)

	got, err := s.Deals().Get(ctx, deal.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Sheet)
	assert.Equal(t, "go", got.Sheet.Verdict)
}

func TestAdvanceAndConvert(t *testing.T) {
	s, wf := newService(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, wf.SaveTemplate(ctx, &models.WorkflowTemplate{
		Name: "Due diligence", RecordType: models.RecordDeal, TriggerStatus: string(models.StageUnderContract), Active: true,
		Phases: []models.WorkflowPhase{{Name: "DD", SortOrder: 1, Tasks: []models.WorkflowTemplateTask{
			{Title: "Order survey", SortOrder: 1, DueOffsetDays: 7},
		}}},
	}))

	entityID := uint(3)
	deal := &models.Deal{Name: "Cedar Point", Address: "9 Cedar Ct", City: "Bend", State: "OR", EntityID: &entityID}
	require.NoError(t, s.CreateDeal(ctx, deal))
	_, _, err := s.SaveDealSheet(ctx, deal.ID, inputs())
	require.NoError(t, err)

	_, err = s.UpdateDeal(ctx, deal.ID, map[string]any{"stage": "closed"})
	assert.ErrorIs(t, err, records.ErrInvalid)

	_, _, err = s.Convert(ctx, deal.ID, ConvertInput{})
	assert.ErrorIs(t, err, ErrNotClosed)

	_, err = s.Advance(ctx, deal.ID, models.StageClosed, at)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	for _, stage := range []models.DealStage{models.StageUnderReview, models.StageUnderContract, models.StageClosed} {
		_, err = s.Advance(ctx, deal.ID, stage, at)
		require.NoError(t, err, stage)
	}

	tasks, err := wf.Tasks(ctx, models.RecordDeal, deal.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].DueDate.Equal(at.AddDate(0, 0, 7)))

	project, job, err := s.Convert(ctx, deal.ID, ConvertInput{Lot: "4"})
	require.NoError(t, err)
	assert.Equal(t, entityID, project.EntityID)
	assert.Equal(t, "Cedar Point", project.Name)
	assert.Equal(t, "Bend, OR", project.Location)
	assert.Equal(t, project.ID, job.ProjectID)
	assert.Equal(t, 2000, job.SqFt)
	assert.Equal(t, models.JobPreConstruction, job.Status)
	require.NotNil(t, job.DealID)

	got, err := s.Deals().Get(ctx, deal.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ProjectID)
	assert.Equal(t, project.ID, *got.ProjectID)
	require.NotNil(t, got.ClosedAt)

	links, err := records.NewLinks(s.db).For(ctx, models.RecordProject, project.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "converted_to", links[0].Relation)

	_, _, err = s.Convert(ctx, deal.ID, ConvertInput{})
	assert.ErrorIs(t, err, ErrAlreadyConverted)
}

func TestConvert_RequiresEntity(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	deal := &models.Deal{Name: "No Owner", Stage: models.StageUnderContract}
	require.NoError(t, s.CreateDeal(ctx, deal))
	_, err := s.Advance(ctx, deal.ID, models.StageClosed, time.Now())
	require.NoError(t, err)

	_, _, err = s.Convert(ctx, deal.ID, ConvertInput{})
	assert.ErrorIs(t, err, records.ErrInvalid)

	project, _, err := s.Convert(ctx, deal.ID, ConvertInput{EntityID: 8, ProjectName: "Infill"})
	require.NoError(t, err)
	assert.Equal(t, "Infill", project.Name)
}

func TestCreateDeal_RejectsFinalStage(t *testing.T) {
	s, _ := newService(t)
	err := s.CreateDeal(context.Background(), &models.Deal{Name: "x", Stage: models.StageClosed})
	assert.ErrorIs(t, err, records.ErrInvalid)
}
