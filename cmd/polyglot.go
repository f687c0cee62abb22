package cmd

import (
	"errors"

	"github.com/pyneda/xsslab/pkg/polyglot"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var polyglotContexts []string
var polyglotMaxLength int
var polyglotMaxPayloads int
var polyglotNoObfuscation bool
var polyglotBrowsers []string
var polyglotMinimal bool
var polyglotReport bool
var polyglotSeed int64

var polyglotCmd = &cobra.Command{
	Use:   "polyglot",
	Short: "Generate polyglot payloads that work across several contexts",
	Example: `  xsslab polyglot -c html_content -c js_string_single --browser chrome
  xsslab polyglot -c html_attribute -c html_content --minimal`,
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := polyglot.ParseContexts(polyglotContexts)
		if err != nil {
			return err
		}
		seed := polyglotSeed
		if seed == 0 {
			seed = viper.GetInt64("polyglot.seed")
		}
		engine := polyglot.NewEngine(polyglot.WithSeed(seed))

		if polyglotMinimal {
			p, ok := engine.GenerateMinimal(targets)
			if !ok {
				return errors.New("no minimal polyglot covers the given contexts")
			}
			return printOne(cmd, *p)
		}

		opts := polyglot.Options{
			MaxLength:          polyglotMaxLength,
			MaxPayloads:        polyglotMaxPayloads,
			IncludeObfuscation: viper.GetBool("polyglot.include_obfuscation") && !polyglotNoObfuscation,
			TargetBrowsers:     polyglotBrowsers,
		}
		if opts.MaxLength <= 0 {
			opts.MaxLength = viper.GetInt("polyglot.max_length")
		}
		if opts.MaxPayloads <= 0 {
			opts.MaxPayloads = viper.GetInt("polyglot.max_payloads")
		}
		results, err := engine.Generate(targets, opts)
		if err != nil {
			return err
		}
		if polyglotReport {
			return printReport(cmd, results, polyglot.Report(results))
		}
		return printList(cmd, results)
	},
}

func init() {
	rootCmd.AddCommand(polyglotCmd)
	polyglotCmd.Flags().StringSliceVarP(&polyglotContexts, "context", "c", nil, "Target context. Can be added multiple times.")
	polyglotCmd.Flags().IntVar(&polyglotMaxLength, "max-length", 0, "Maximum payload length (default from polyglot.max_length)")
	polyglotCmd.Flags().IntVarP(&polyglotMaxPayloads, "max-payloads", "n", 0, "Maximum payloads returned (default from polyglot.max_payloads)")
	polyglotCmd.Flags().BoolVar(&polyglotNoObfuscation, "no-obfuscation", false, "Skip obfuscated variants")
	polyglotCmd.Flags().StringSliceVarP(&polyglotBrowsers, "browser", "b", nil, "Generate variants for a browser (chrome, firefox, safari, ie)")
	polyglotCmd.Flags().BoolVar(&polyglotMinimal, "minimal", false, "Return the single shortest component covering most contexts")
	polyglotCmd.Flags().BoolVar(&polyglotReport, "report", false, "Print a text report")
	polyglotCmd.Flags().Int64Var(&polyglotSeed, "seed", 0, "Random seed for reproducible output")
	polyglotCmd.MarkFlagRequired("context")
}
