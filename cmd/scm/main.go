package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/Arg0xel/SCM---current-work/adapters/excel"
	"github.com/Arg0xel/SCM---current-work/adapters/postgres"
	"github.com/Arg0xel/SCM---current-work/app"
	"github.com/Arg0xel/SCM---current-work/domain/core"
	"github.com/Arg0xel/SCM---current-work/domain/scm"
	"github.com/Arg0xel/SCM---current-work/internal/config"
	"github.com/Arg0xel/SCM---current-work/ports"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[Main] no .env file loaded: %v", err)
	}

	rootCmd := &cobra.Command{
		Use:   "scm",
		Short: "Synthetic control analysis over observational panels",
	}
	rootCmd.AddCommand(newAnalyzeCmd(), newMigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newAnalyzeCmd() *cobra.Command {
	var (
		panelPath   string
		jsonOutput  bool
		databaseURL string

		treatedUnit   string
		treatmentYear int
		preStart      int
		preEnd        int
		postEnd       int
		maxGap        int
		minPool       int
		covariates    []string
		anchors       []int
		prefitMode    string
		prefitParam   float64
		sampleCap     int
		inTimeYear    int
		concurrency   int
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one synthetic-control analysis",
		Long: `Run the full pipeline over a panel file: gap interpolation, donor-pool
construction, weight fitting, and placebo inference.

Configuration layers defaults, SCM_* environment variables, then these
flags. Example:

  scm analyze --panel fertility.xlsx --treated-unit china \
    --treatment-year 1980 --pre-start 1960 --pre-end 1979 --post-end 2000 \
    --covariates gdp_per_capita,urbanization --anchors 1965,1970,1975`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			set := cmd.Flags().Changed
			if set("treated-unit") {
				cfg.TreatedUnit = core.UnitID(treatedUnit)
			}
			if set("treatment-year") {
				cfg.TreatmentYear = treatmentYear
			}
			if set("pre-start") {
				cfg.PrePeriodStart = preStart
			}
			if set("pre-end") {
				cfg.PrePeriodEnd = preEnd
			}
			if set("post-end") {
				cfg.PostPeriodEnd = postEnd
			}
			if set("max-gap") {
				cfg.MaxGapYears = maxGap
			}
			if set("min-pool") {
				cfg.MinDonorPoolSize = minPool
			}
			if set("covariates") {
				cfg.Covariates = covariates
			}
			if set("anchors") {
				cfg.SpecialPredictorAnchorYears = anchors
			}
			if set("prefit-mode") {
				cfg.PrefitFilterMode = config.PrefitFilterMode(prefitMode)
			}
			if set("prefit-param") {
				cfg.PrefitFilterParam = prefitParam
			}
			if set("sample-cap") {
				cfg.PlaceboSampleCap = sampleCap
			}
			if set("in-time-year") {
				cfg.InTimePlaceboYear = inTimeYear
			}
			if set("concurrency") {
				cfg.PlaceboConcurrency = concurrency
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var ledger ports.RunLedger
			if databaseURL != "" {
				db, err := sqlx.Connect("postgres", databaseURL)
				if err != nil {
					return fmt.Errorf("failed to connect to database: %w", err)
				}
				defer db.Close()

				repo := postgres.NewRunRepository(db)
				if err := repo.EnsureSchema(ctx); err != nil {
					return err
				}
				ledger = repo
			}

			source := excel.NewPanelReader(panelPath, excel.DefaultColumns())
			result, err := app.NewAnalysisService(cfg, source, ledger).Run(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(result)
			}
			printSummary(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&panelPath, "panel", "", "panel file (.xlsx or .csv)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the full result as JSON")
	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL URL for the run ledger (optional)")

	cmd.Flags().StringVar(&treatedUnit, "treated-unit", "", "treated unit identifier")
	cmd.Flags().IntVar(&treatmentYear, "treatment-year", 0, "first year of treatment")
	cmd.Flags().IntVar(&preStart, "pre-start", 0, "first pre-treatment year")
	cmd.Flags().IntVar(&preEnd, "pre-end", 0, "last pre-treatment year")
	cmd.Flags().IntVar(&postEnd, "post-end", 0, "last post-treatment year")
	cmd.Flags().IntVar(&maxGap, "max-gap", 0, "largest interior gap to interpolate, in years")
	cmd.Flags().IntVar(&minPool, "min-pool", 0, "minimum surviving donor pool size")
	cmd.Flags().StringSliceVar(&covariates, "covariates", nil, "averaged covariate predictors")
	cmd.Flags().IntSliceVar(&anchors, "anchors", nil, "special-predictor anchor years")
	cmd.Flags().StringVar(&prefitMode, "prefit-mode", "", "placebo pre-fit filter: quantile, relative, or none")
	cmd.Flags().Float64Var(&prefitParam, "prefit-param", 0, "pre-fit filter parameter")
	cmd.Flags().IntVar(&sampleCap, "sample-cap", 0, "maximum number of placebo refits (0 = all donors)")
	cmd.Flags().IntVar(&inTimeYear, "in-time-year", 0, "fictitious treatment year for the in-time placebo (0 = off)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel placebo fits")

	_ = cmd.MarkFlagRequired("panel")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the run ledger schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				return fmt.Errorf("DATABASE_URL is not set")
			}
			db, err := sqlx.Connect("postgres", dsn)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := postgres.NewRunRepository(db).EnsureSchema(ctx); err != nil {
				return err
			}
			log.Println("[Migrate] run ledger schema is up to date")
			return nil
		},
	}
}

func printSummary(result *scm.AnalysisResult) {
	fmt.Printf("run %s  treated=%s\n\n", result.RunID, result.TreatedUnit)

	fmt.Printf("donor pool: %d requested, %d surviving\n",
		result.FilterReport.Requested, result.FilterReport.Surviving)
	for _, stage := range result.FilterReport.Stages {
		if len(stage.Removed) > 0 {
			fmt.Printf("  %-20s removed %d\n", stage.Stage, len(stage.Removed))
		}
	}

	fmt.Printf("\ndonor weights:\n")
	dw := result.Main.DonorWeights()
	sort.Slice(dw, func(i, j int) bool { return dw[i].Weight > dw[j].Weight })
	for _, d := range dw {
		if d.Weight < 0.001 {
			continue
		}
		fmt.Printf("  %-24s %.4f\n", d.UnitID, d.Weight)
	}
	if len(result.Main.ExcludedDonors) > 0 {
		fmt.Printf("  excluded for missing predictors: %v\n", result.Main.ExcludedDonors)
	}

	fmt.Printf("\nfit quality:\n")
	fmt.Printf("  pre-RMSPE  %.4f\n", result.Main.PrePeriodRMSPE)
	fmt.Printf("  post-RMSPE %.4f\n", result.Main.PostPeriodRMSPE)
	if result.Main.PerfectPreFit {
		fmt.Printf("  MSPE ratio +Inf (perfect pre-period fit)\n")
	} else {
		fmt.Printf("  MSPE ratio %.4f\n", result.Main.MSPERatio)
	}

	fmt.Printf("\ninference (%s):\n", result.PValue.Method)
	fmt.Printf("  placebos: %d in distribution, %d failed, %d filtered\n",
		len(result.Placebos.Results), result.Placebos.FailedFits, result.Placebos.FilteredOut)
	if result.PValue.Defined {
		fmt.Printf("  p-value: %.4f\n", result.PValue.Value)
	} else {
		fmt.Printf("  p-value: undefined (%s)\n", result.PValue.Reason)
	}

	if result.InTime != nil {
		fmt.Printf("\nin-time placebo (%d): pre-RMSPE %.4f, post-RMSPE %.4f\n",
			result.InTimeYear, result.InTime.PrePeriodRMSPE, result.InTime.PostPeriodRMSPE)
	}
}
