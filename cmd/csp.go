package cmd

import (
	"errors"
	"strings"

	"github.com/pyneda/xsslab/pkg/csp"

	"github.com/spf13/cobra"
)

var cspReport bool
var cspBypasses bool
var cspFile string

var cspCmd = &cobra.Command{
	Use:   "csp [policy]",
	Short: "Analyze a Content-Security-Policy header for XSS bypasses",
	Example: `  xsslab csp "default-src 'self'; script-src 'self' 'unsafe-inline'"
  xsslab csp --file policy.txt --bypasses -f table`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policy := ""
		if len(args) == 1 {
			policy = args[0]
		}
		if cspFile != "" {
			data, err := readInput(cspFile)
			if err != nil {
				return err
			}
			policy = strings.TrimSpace(data)
		}
		if policy == "" {
			return errors.New("a policy argument or --file is required")
		}

		result := csp.NewAnalyzer().Analyze(policy)
		switch {
		case cspReport:
			return printReport(cmd, result, csp.Report(result))
		case cspBypasses:
			return printList(cmd, result.Bypasses)
		}
		return printOne(cmd, result)
	},
}

func init() {
	rootCmd.AddCommand(cspCmd)
	cspCmd.Flags().BoolVar(&cspReport, "report", false, "Print a text report")
	cspCmd.Flags().BoolVar(&cspBypasses, "bypasses", false, "List every bypass technique found")
	cspCmd.Flags().StringVar(&cspFile, "file", "", "Read the policy from a file (- for stdin)")
}
