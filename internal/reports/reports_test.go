package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/beesaferoot/buildops/internal/accounting"
	"github.com/beesaferoot/buildops/internal/construction"
	"github.com/beesaferoot/buildops/internal/investors"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
	"github.com/beesaferoot/buildops/internal/testutil"
	"github.com/beesaferoot/buildops/internal/workflow"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleTable() *Table {
	t := NewTable("sample", "Sample",
		Column{"region", "Region", Text},
		Column{"name", "Name", Text},
		Column{"amount", "Amount", Money},
		Column{"share", "Share", Ratio},
	)
	t.Add("north", "a", dec("10.5"), dec("0.25"))
	t.Add("south", "b", dec("20"), dec("0.5"))
	t.Add("north", "c", dec("1.25"), dec("0.25"))
	return t
}

func TestTable_GroupByAndTotals(t *testing.T) {
	grouped, err := sampleTable().GroupBy([]string{"region"}, "amount")
	require.NoError(t, err)
	require.Len(t, grouped.Rows, 5)

	var got []string
	for _, r := range grouped.Rows {
		label := r.String("region") + "/" + r.String("name")
		if r.Subtotal {
			label += "=" + r.Decimal("amount").StringFixed(2)
		}
		got = append(got, label)
	}
	want := []string{"north/a", "north/c", "north/=11.75", "south/b", "south/=20.00"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("grouped rows mismatch (-want +got):\n%s", diff)
	}

	total, err := grouped.Totals("amount")
	require.NoError(t, err)
	assert.True(t, dec("31.75").Equal(total.Decimal("amount")))
	assert.Equal(t, "Total", total.String("region"))
	assert.Equal(t, total, *grouped.Total)
}

func TestTable_Errors(t *testing.T) {
	tbl := sampleTable()
	_, err := tbl.GroupBy([]string{"missing"})
	assert.ErrorIs(t, err, records.ErrInvalid)
	_, err = tbl.GroupBy([]string{"region"}, "name")
	assert.ErrorIs(t, err, records.ErrInvalid)
	_, err = tbl.GroupBy(nil)
	assert.ErrorIs(t, err, records.ErrInvalid)
	_, err = tbl.Totals("nope")
	assert.ErrorIs(t, err, records.ErrInvalid)
}

func TestTable_Filter(t *testing.T) {
	grouped, err := sampleTable().GroupBy([]string{"region"}, "amount")
	require.NoError(t, err)

	north := grouped.Filter(func(r Row) bool { return r.String("region") == "north" })
	require.Len(t, north.Rows, 2)
	assert.Nil(t, north.Total)
	for _, r := range north.Rows {
		assert.False(t, r.Subtotal)
	}
}

func TestWriteCSV(t *testing.T) {
	tbl := sampleTable()
	_, err := tbl.Totals("amount")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, FormatCSV, tbl))
	require.True(t, bytes.HasPrefix(buf.Bytes(), utf8BOM))

	recs, err := csv.NewReader(bytes.NewReader(buf.Bytes()[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	want := [][]string{
		{"Region", "Name", "Amount", "Share"},
		{"north", "a", "10.50", "0.2500"},
		{"south", "b", "20.00", "0.5000"},
		{"north", "c", "1.25", "0.2500"},
		{"Total", "", "31.75", ""},
	}
	if diff := cmp.Diff(want, recs); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}

	assert.ErrorIs(t, Export(&buf, FormatCSV, tbl, tbl), records.ErrInvalid)
	assert.ErrorIs(t, Export(&buf, "pdf", tbl), records.ErrInvalid)
}

func TestWriteXLSX(t *testing.T) {
	first := sampleTable()
	_, err := first.Totals("amount")
	require.NoError(t, err)
	second := NewTable("dates", "Sample", Column{"when", "When", Date}, Column{"n", "Count", Count})
	second.Add(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), decimal.NewFromInt(7))

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, FormatXLSX, first, second))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Sample", "Sample (2)"}, f.GetSheetList())

	rows, err := f.GetRows("Sample", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"Region", "Name", "Amount", "Share"}, rows[0])
	assert.Equal(t, "10.5", rows[1][2])
	assert.Equal(t, "31.75", rows[4][2])

	formatted, err := f.GetCellValue("Sample", "C2")
	require.NoError(t, err)
	assert.Equal(t, "10.50", formatted)

	styleID, err := f.GetCellStyle("Sample", "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)

	n, err := f.GetCellValue("Sample (2)", "B2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "7", n)
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "Job Cost - Lot 4-7", sheetName(&Table{Title: "Job Cost - Lot 4/7"}, used))
	long := &Table{Title: "Statement - A Very Long Investor Name Indeed"}
	first := sheetName(long, used)
	assert.Len(t, []rune(first), 31)
	second := sheetName(long, used)
	assert.Len(t, []rune(second), 31)
	assert.NotEqual(t, first, second)
	assert.Equal(t, "pipeline", sheetName(&Table{Name: "pipeline"}, used))
}

type fixture struct {
	builder *Builder
	acct    *accounting.Service
	entity  models.Entity
}

func newBuilder(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	acct := accounting.NewService(db, nil, nil)
	cons := construction.NewService(db, nil, nil, workflow.NewEngine(db, nil, nil))
	b := NewBuilder(db, nil, acct, cons, investors.NewService(db, nil, nil))
	b.now = func() time.Time { return time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC) }

	f := &fixture{builder: b, acct: acct, entity: models.Entity{Name: "Oak Ridge LLC"}}
	require.NoError(t, db.Create(&f.entity).Error)

	deals := []models.Deal{
		{Name: "Maple", Stage: models.StageLead, Sheet: &models.DealSheet{TotalProjectCost: dec("500000"), NetProfit: dec("50000"), Margin: dec("0.0909"), Verdict: "no_go"}},
		{Name: "Cedar", Stage: models.StageUnderContract, Sheet: &models.DealSheet{TotalProjectCost: dec("400000"), NetProfit: dec("80000"), Margin: dec("0.1667"), Verdict: "go"}},
		{Name: "Birch", Stage: models.StageLead, Sheet: &models.DealSheet{TotalProjectCost: dec("300000"), NetProfit: dec("30000"), Margin: dec("0.0909"), Verdict: "no_go"}},
		{Name: "Elm", Stage: models.StageDead},
	}
	for i := range deals {
		require.NoError(t, db.Create(&deals[i]).Error)
	}

	cash := models.GLAccount{EntityID: f.entity.ID, Code: "1000", Name: "Cash", Type: models.AccountAsset}
	equity := models.GLAccount{EntityID: f.entity.ID, Code: "3000", Name: "Member Capital", Type: models.AccountEquity}
	require.NoError(t, db.Create(&cash).Error)
	require.NoError(t, db.Create(&equity).Error)
	require.NoError(t, acct.Post(context.Background(), &models.JournalEntry{
		EntityID: f.entity.ID,
		Date:     time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Lines: []models.JournalLine{
			{AccountID: cash.ID, Debit: dec("5000")},
			{AccountID: equity.ID, Credit: dec("5000")},
		},
	}))
	return f
}

func TestBuild_Pipeline(t *testing.T) {
	f := newBuilder(t)
	tbl, err := f.builder.Build(context.Background(), ReportPipeline, Params{})
	require.NoError(t, err)

	var got []string
	for _, r := range tbl.Rows {
		if r.Subtotal {
			got = append(got, r.String("stage")+" subtotal "+r.Decimal("total_project_cost").String())
			continue
		}
		got = append(got, r.String("stage")+" "+r.String("deal"))
	}
	want := []string{
		"lead Birch", "lead Maple", "lead subtotal 800000",
		"under_contract Cedar", "under_contract subtotal 400000",
		"dead Elm", "dead subtotal 0",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pipeline rows mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, tbl.Total)
	assert.True(t, dec("1200000").Equal(tbl.Total.Decimal("total_project_cost")))
	assert.True(t, dec("160000").Equal(tbl.Total.Decimal("net_profit")))
}

func TestBuild_TrialBalance(t *testing.T) {
	f := newBuilder(t)
	tbl, err := f.builder.Build(context.Background(), ReportTrialBalance, Params{EntityID: f.entity.ID})
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "1000", tbl.Rows[0].String("code"))
	assert.True(t, dec("5000").Equal(tbl.Rows[1].Decimal("credit")))
	assert.True(t, tbl.Total.Decimal("debit").Equal(tbl.Total.Decimal("credit")))
	assert.Equal(t, "Trial Balance 2026-06-30", tbl.Title)
}

func TestBuild_Errors(t *testing.T) {
	f := newBuilder(t)
	ctx := context.Background()

	_, err := f.builder.Build(ctx, "balance-sheet", Params{})
	assert.ErrorIs(t, err, ErrUnknownReport)
	assert.ErrorIs(t, err, records.ErrNotFound)

	for _, name := range []string{ReportJobCost, ReportAPAging, ReportARAging, ReportTrialBalance, ReportInvestorStatement} {
		_, err := f.builder.Build(ctx, name, Params{})
		assert.ErrorIs(t, err, records.ErrInvalid, name)
	}

	_, err = f.builder.Build(ctx, ReportJobCost, Params{JobID: 404})
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestBundle(t *testing.T) {
	f := newBuilder(t)
	ctx := context.Background()

	tables, err := f.builder.Bundle(ctx, []string{ReportTrialBalance, ReportPipeline, ReportAPAging}, Params{EntityID: f.entity.ID})
	require.NoError(t, err)
	require.Len(t, tables, 3)
	assert.Equal(t, ReportTrialBalance, tables[0].Name)
	assert.Equal(t, ReportPipeline, tables[1].Name)
	assert.Equal(t, ReportAPAging, tables[2].Name)
	assert.Empty(t, tables[2].Rows)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, tables...))

	_, err = f.builder.Bundle(ctx, []string{ReportPipeline, "nope"}, Params{})
	assert.ErrorIs(t, err, ErrUnknownReport)
	_, err = f.builder.Bundle(ctx, []string{ReportPipeline, ReportJobCost}, Params{})
	assert.ErrorIs(t, err, records.ErrInvalid)

	assert.Equal(t, []string{"ap-aging", "ar-aging", "investor-statement", "job-cost", "pipeline", "trial-balance"}, f.builder.Names())
}
