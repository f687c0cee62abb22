package cmd

import (
	"errors"

	"github.com/pyneda/xsslab/pkg/analysis"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var analyzeFile string
var analyzeSummary bool
var analyzeConcurrency int

var analyzeCmd = &cobra.Command{
	Use:   "analyze [payload...]",
	Short: "Analyze XSS payloads for contexts, techniques and risk",
	Example: `  xsslab analyze '<img src=x onerror=alert(1)>'
  xsslab analyze --file payloads.txt --summary`,
	RunE: func(cmd *cobra.Command, args []string) error {
		items := append([]string(nil), args...)
		if analyzeFile != "" {
			lines, err := readLines(analyzeFile)
			if err != nil {
				return err
			}
			items = append(items, lines...)
		}
		if len(items) == 0 {
			return errors.New("at least one payload or --file is required")
		}

		analyzer := analysis.NewPayloadAnalyzer()
		if len(items) == 1 && !analyzeSummary {
			return printOne(cmd, analyzer.Analyze(items[0]))
		}

		concurrency := analyzeConcurrency
		if concurrency <= 0 {
			concurrency = viper.GetInt("analysis.batch_concurrency")
		}
		results := analyzer.BatchAnalyze(cmd.Context(), items, concurrency)
		if analyzeSummary {
			return printReport(cmd, analysis.Summarize(results), analysis.Report(results))
		}
		return printList(cmd, results)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzeFile, "file", "", "File with one payload per line (- for stdin)")
	analyzeCmd.Flags().BoolVar(&analyzeSummary, "summary", false, "Print an aggregated report instead of each analysis")
	analyzeCmd.Flags().IntVarP(&analyzeConcurrency, "concurrency", "c", 0, "Batch analysis workers (default from analysis.batch_concurrency)")
}
