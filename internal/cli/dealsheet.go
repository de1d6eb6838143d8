package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/beesaferoot/buildops/internal/dealsheet"
)

func DealSheetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dealsheet",
		Short: "Deal sheet calculations",
	}
	cmd.AddCommand(DealSheetCalcCmd())
	return cmd
}

func DealSheetCalcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Calculate a deal sheet from a YAML inputs file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			asJSON, _ := cmd.Flags().GetBool("json")

			in, err := readInputs(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			res, err := dealsheet.Calculate(in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResult(out, res)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "Inputs file (YAML or JSON); - reads stdin")
	_ = cmd.MarkFlagRequired("file")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	return cmd
}

func readInputs(path string, stdin io.Reader) (dealsheet.Inputs, error) {
	var in dealsheet.Inputs
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return in, fmt.Errorf("failed to open inputs: %w", err)
		}
		defer f.Close()
		r = f
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil {
		return in, fmt.Errorf("failed to parse inputs: %w", err)
	}
	return in, nil
}

func printResult(w io.Writer, r dealsheet.Result) {
	line := func(label string, v decimal.Decimal) {
		fmt.Fprintf(w, "%-22s %14s\n", label, v.StringFixed(2))
	}
	pct := func(label string, v decimal.Decimal) {
		fmt.Fprintf(w, "%-22s %13s%%\n", label, v.Shift(2).StringFixed(2))
	}

	line("Land cost", r.LandCost)
	line("Hard cost", r.HardCost)
	line("Soft cost", r.SoftCost)
	line("Contingency", r.Contingency)
	line("Builder fee", r.BuilderFee)
	line("Construction cost", r.ConstructionCost)
	line("Loan amount", r.LoanAmount)
	if r.LoanCapped {
		fmt.Fprintf(w, "%-22s %14s\n", "", "(capped by value)")
	}
	line("Financing cost", r.FinancingCost)
	line("Holding cost", r.HoldingCost)
	line("Selling cost", r.SellingCost)
	line("Total project cost", r.TotalProjectCost)
	line("Net profit", r.NetProfit)
	pct("Margin", r.Margin)
	pct("Return on cost", r.ReturnOnCost)
	line("Equity required", r.EquityRequired)
	pct("Return on equity", r.ReturnOnEquity)
	pct("Annualized ROE", r.AnnualizedROE)
	line("Cost per sq ft", r.CostPerSqFt)
	line("Max lot price", r.MaxLotPrice)
	fmt.Fprintf(w, "%-22s %14s\n", "Verdict", r.Verdict)
}
