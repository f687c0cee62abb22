package cmd

import (
	"errors"

	"github.com/pyneda/xsslab/pkg/dom"

	"github.com/spf13/cobra"
)

var domFile string
var domReport bool
var domFlows bool

var domCmd = &cobra.Command{
	Use:   "dom [javascript]",
	Short: "Trace DOM XSS flows from sources to sinks in JavaScript",
	Example: `  xsslab dom "document.body.innerHTML = location.hash"
  xsslab dom --file app.js --report
  xsslab dom --file app.js --flows -f table`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := ""
		if len(args) == 1 {
			code = args[0]
		}
		if domFile != "" {
			data, err := readInput(domFile)
			if err != nil {
				return err
			}
			code = data
		}
		if code == "" {
			return errors.New("a javascript argument or --file is required")
		}

		result := dom.NewParser().Analyze(code)
		switch {
		case domReport:
			return printReport(cmd, result, dom.Report(result))
		case domFlows:
			return printList(cmd, result.Flows)
		}
		return printOne(cmd, result)
	},
}

func init() {
	rootCmd.AddCommand(domCmd)
	domCmd.Flags().StringVar(&domFile, "file", "", "Read JavaScript from a file (- for stdin)")
	domCmd.Flags().BoolVar(&domReport, "report", false, "Print a text report")
	domCmd.Flags().BoolVar(&domFlows, "flows", false, "List only the vulnerable flows")
}
