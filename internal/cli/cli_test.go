package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/beesaferoot/buildops/internal/models"
)

type env struct {
	dir        string
	dsn        string
	migrations string
}

func useTempEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		dir:        dir,
		dsn:        filepath.Join(dir, "cli.db"),
		migrations: filepath.Join(dir, "migrations"),
	}
	t.Setenv("BUILDOPS_CONFIG_FILE", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MIGRATIONS_PATH", "")
	t.Setenv("BUILDOPS_DATABASE_DRIVER", "sqlite")
	t.Setenv("BUILDOPS_DATABASE_DSN", e.dsn)
	t.Setenv("BUILDOPS_MIGRATIONS_DIR", e.migrations)
	t.Setenv("BUILDOPS_STORAGE_BACKEND", "local")
	t.Setenv("BUILDOPS_STORAGE_DIR", filepath.Join(dir, "documents"))
	t.Setenv("BUILDOPS_LOGGING_LEVEL", "error")
	return e
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, strings.Join(args, " "))
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCmd(t *testing.T) {
	root := NewRootCmd()
	assert.Equal(t, "buildops", root.Use)
	assert.NotNil(t, root.PersistentFlags().Lookup("debug"))
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "dealsheet", "report", "workflow", "bank"} {
		assert.True(t, names[want], want)
	}
}

func TestServeCmd(t *testing.T) {
	cmd := ServeCmd()
	assert.Equal(t, "serve", cmd.Use)
	assert.Equal(t, "Run the HTTP API", cmd.Short)
	assert.NotNil(t, cmd.Flags().Lookup("migrate"))
}

func TestMigrateCmds(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		short string
	}{
		{InitCmd(), "init", "Initialize migration tracking table in the database"},
		{CreateCmd(), "create [name]", "Create a new migration file"},
		{GenerateCmd(), "generate [name]", "Generate a migration from model changes"},
		{UpCmd(), "up", "Apply all pending migrations"},
		{DownCmd(), "down", "Revert the last migration"},
		{StatusCmd(), "status", "Show status of all migrations"},
		{HistoryCmd(), "history", "Show migration history"},
		{ValidateCmd(), "validate", "Validate all migrations"},
		{DriftCmd(), "drift", "Compare the models with the database schema"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.use, tt.cmd.Use)
		assert.Equal(t, tt.short, tt.cmd.Short)
	}
	assert.NotNil(t, UpCmd().Flags().Lookup("dry-run"))
	assert.Len(t, MigrateCmd().Commands(), len(tests))
}

func TestMigrateLifecycle(t *testing.T) {
	e := useTempEnv(t)

	assert.Contains(t, mustRun(t, "migrate", "init"), "initialized")

	out := mustRun(t, "migrate", "up", "--dry-run")
	assert.Contains(t, out, "- baseline (00000000000000)")

	out = mustRun(t, "migrate", "up")
	assert.Contains(t, out, "Successfully applied migration: baseline")
	assert.Contains(t, mustRun(t, "migrate", "up"), "No pending migrations.")

	out = mustRun(t, "migrate", "status")
	assert.Contains(t, out, "Version")
	assert.Regexp(t, `00000000000000\s+baseline\s+Applied`, out)

	assert.Contains(t, mustRun(t, "migrate", "history"), "baseline")
	assert.Equal(t, "no drift detected\n", mustRun(t, "migrate", "drift"))
	assert.Contains(t, mustRun(t, "migrate", "generate", "nothing"), "No schema changes detected")

	out = mustRun(t, "migrate", "create", "Add job notes")
	assert.Contains(t, out, "_add_job_notes.up.sql")
	entries, err := os.ReadDir(e.migrations)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	assert.Equal(t, "All 2 migrations are valid.\n", mustRun(t, "migrate", "validate"))
	assert.Contains(t, mustRun(t, "migrate", "up"), "add_job_notes")

	assert.Contains(t, mustRun(t, "migrate", "down"), "Successfully reverted migration: add_job_notes")
	out = mustRun(t, "migrate", "status")
	assert.Regexp(t, `add_job_notes\s+Pending`, out)

	writeFile(t, e.migrations, "broken.sql", "SELECT 1;")
	_, err = run(t, "migrate", "validate")
	assert.ErrorContains(t, err, "broken.sql")

	_, err = run(t, "migrate", "create")
	assert.Error(t, err)
}

const inputsYAML = `
lot_price: 100000
closing_cost_pct: 0.02
due_diligence_cost: 5000
house_sqft: 2000
build_cost_per_sqft: 150
site_work_cost: 20000
permits_fees: 10000
design_engineering: 15000
contingency_pct: 0.05
builder_fee_pct: 0.10
sale_price: 650000
selling_cost_pct: 0.06
loan_to_cost_pct: 0.80
max_loan_to_value_pct: 0.75
interest_rate: 0.09
origination_pct: 0.01
avg_draw_pct: 0.5
project_months: 12
monthly_holding_cost: 1000
`

func TestDealSheetCalc(t *testing.T) {
	path := writeFile(t, t.TempDir(), "inputs.yaml", inputsYAML)

	out := mustRun(t, "dealsheet", "calc", "-f", path)
	assert.Regexp(t, `Net profit\s+72719\.60`, out)
	assert.Regexp(t, `Margin\s+11\.19%`, out)
	assert.Regexp(t, `Verdict\s+caution`, out)

	out = mustRun(t, "dealsheet", "calc", "-f", path, "--json")
	var res struct {
		NetProfit decimal.Decimal `json:"net_profit"`
		Verdict   string          `json:"verdict"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, decimal.RequireFromString("72719.60").Equal(res.NetProfit))
	assert.Equal(t, "caution", res.Verdict)
}

func TestDealSheetCalc_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, "dealsheet", "calc")
	assert.ErrorContains(t, err, `required flag(s) "file" not set`)

	bad := writeFile(t, dir, "bad.yaml", "lot_price: 100000\nsale_price: 0\n")
	_, err = run(t, "dealsheet", "calc", "-f", bad)
	assert.ErrorContains(t, err, "sale_price")

	unknown := writeFile(t, dir, "unknown.yaml", "lot_size: 3\n")
	_, err = run(t, "dealsheet", "calc", "-f", unknown)
	assert.ErrorContains(t, err, "failed to parse inputs")
}

const templateYAML = `
name: Contract to close
record_type: deal
trigger_status: under_contract
phases:
  - name: Due diligence
    order: 1
    tasks:
      - title: Order survey
        order: 1
        due_offset_days: 7
`

func TestWorkflowAndReports(t *testing.T) {
	e := useTempEnv(t)
	mustRun(t, "migrate", "up")

	tpl := writeFile(t, e.dir, "contract.yaml", templateYAML)
	out := mustRun(t, "workflow", "import", tpl)
	assert.Contains(t, out, `Imported template "Contract to close" (id 1, 1 phases)`)

	out = mustRun(t, "workflow", "export", "1")
	assert.Contains(t, out, "trigger_status: under_contract")
	assert.Contains(t, out, "title: Order survey")

	assert.Contains(t, mustRun(t, "report", "list"), "pipeline")

	csvPath := filepath.Join(e.dir, "pipeline.csv")
	mustRun(t, "report", "export", "pipeline", "--format", "csv", "-o", csvPath)
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))

	xlsxPath := filepath.Join(e.dir, "bundle.xlsx")
	mustRun(t, "report", "export", "pipeline", "--format", "xlsx", "-o", xlsxPath)
	assert.FileExists(t, xlsxPath)

	_, err = run(t, "report", "export", "job-cost")
	assert.ErrorContains(t, err, "job_id")

	_, err = run(t, "report", "export", "nope")
	assert.ErrorContains(t, err, "nope")

	_, err = run(t, "report", "export", "pipeline", "--as-of", "yesterday")
	assert.ErrorContains(t, err, "invalid --as-of")
}

func TestBankImport(t *testing.T) {
	e := useTempEnv(t)
	mustRun(t, "migrate", "up")

	db, err := gorm.Open(sqlite.Open(e.dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	entity := models.Entity{Name: "Oak Ridge LLC"}
	require.NoError(t, db.Create(&entity).Error)
	cash := models.GLAccount{EntityID: entity.ID, Code: "1000", Name: "Cash", Type: models.AccountAsset}
	require.NoError(t, db.Create(&cash).Error)
	bank := models.BankAccount{EntityID: entity.ID, Name: "Operating", GLAccountID: cash.ID}
	require.NoError(t, db.Create(&bank).Error)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	csv := writeFile(t, e.dir, "jan.csv", "Date,Description,Amount\n2026-01-04,DEPOSIT,\"1,000.00\"\n2026-01-31,SERVICE FEE,-15\n")
	assert.Equal(t, "Imported 2 lines, skipped 0 already imported\n", mustRun(t, "bank", "import", "1", csv))
	assert.Equal(t, "Imported 0 lines, skipped 2 already imported\n", mustRun(t, "bank", "import", "1", csv))

	_, err = run(t, "bank", "import", "x", csv)
	assert.ErrorContains(t, err, "invalid account id")
	_, err = run(t, "bank", "import", "1", filepath.Join(e.dir, "missing.csv"))
	assert.ErrorContains(t, err, "failed to open statement")
}
