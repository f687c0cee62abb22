package cmd

import (
	"github.com/pyneda/xsslab/pkg/prevention"

	"github.com/spf13/cobra"
)

var preventionOpts prevention.Options
var preventionReport bool
var preventionResults bool

var preventionCmd = &cobra.Command{
	Use:   "prevention",
	Short: "Validate XSS defences against fixed attack suites",
	Long: `Runs the selected suites and scores the defences:
  --sanitizer  treats an encoder (or chain) as the input sanitizer
  --encoding   checks the reference context encoder
  --csp        simulates a Content-Security-Policy against inline scripts
  --waf-rule   blocks payloads matching any of the given regular expressions`,
	Example: `  xsslab prevention --sanitizer html_entities --encoding
  xsslab prevention --csp "script-src 'self'" --report
  xsslab prevention --waf-rule '<script' --waf-rule 'on\w+=' --results -f table`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		assessment, err := prevention.NewValidator().Run(preventionOpts)
		if err != nil {
			return err
		}
		switch {
		case preventionReport:
			return printReport(cmd, assessment, prevention.Report(assessment))
		case preventionResults:
			return printList(cmd, assessment.Results)
		}
		return printOne(cmd, assessment)
	},
}

func init() {
	rootCmd.AddCommand(preventionCmd)
	preventionCmd.Flags().StringVar(&preventionOpts.Sanitizer, "sanitizer", "", "Encoder spec used as the sanitizer under test")
	preventionCmd.Flags().BoolVar(&preventionOpts.Encoding, "encoding", false, "Run the output encoding suite")
	preventionCmd.Flags().StringVar(&preventionOpts.CSP, "csp", "", "Content-Security-Policy to evaluate")
	preventionCmd.Flags().StringArrayVar(&preventionOpts.WAFRules, "waf-rule", nil, "WAF blocking rule, a case-insensitive regular expression (repeatable)")
	preventionCmd.Flags().BoolVar(&preventionReport, "report", false, "Print a text report")
	preventionCmd.Flags().BoolVar(&preventionResults, "results", false, "List every test result")
}
