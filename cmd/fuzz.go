package cmd

import (
	"errors"
	"fmt"

	"github.com/pyneda/xsslab/pkg/fuzz"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var fuzzResponseFile string
var fuzzMarker string
var fuzzContext string
var fuzzBasePayloads []string
var fuzzLimit int
var fuzzPolyglotContexts []string

var fuzzCmd = &cobra.Command{
	Use:   "fuzz",
	Short: "Context-aware fuzzing helpers",
	Long:  `Detect the injection context of a reflected marker and generate payloads adapted to it.`,
}

var fuzzDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Fingerprint the injection context of a marker in a response body",
	Example: `  curl -s 'https://example.com/?q=CANARY' | xsslab fuzz detect --response-file -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		response, err := readInput(fuzzResponseFile)
		if err != nil {
			return err
		}
		marker := fuzzMarker
		if marker == "" {
			marker = viper.GetString("fuzz.marker")
		}
		return printOne(cmd, newFuzzer().DetectContext(response, marker))
	},
}

var fuzzGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate payloads adapted to an injection context",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := fuzz.ParseInjectionContext(fuzzContext)
		if err != nil {
			return err
		}
		generated := newFuzzer().GeneratePayloads(fuzz.NewFingerprint(ctx), fuzzBasePayloads)
		if fuzzLimit > 0 && len(generated) > fuzzLimit {
			generated = generated[:fuzzLimit]
		}
		if len(generated) == 0 {
			return errors.New("no payloads generated for context")
		}
		return printStrings(cmd, "Payload", generated)
	},
}

var fuzzPolyglotCmd = &cobra.Command{
	Use:   "polyglot",
	Short: "Print a payload meant to fire in many contexts at once",
	RunE: func(cmd *cobra.Command, args []string) error {
		contexts, err := parseInjectionContexts(fuzzPolyglotContexts)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), newFuzzer().GeneratePolyglot(contexts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fuzzCmd)
	fuzzCmd.AddCommand(fuzzDetectCmd, fuzzGenerateCmd, fuzzPolyglotCmd)

	fuzzDetectCmd.Flags().StringVarP(&fuzzResponseFile, "response-file", "r", "", "Response body to inspect (- for stdin)")
	fuzzDetectCmd.Flags().StringVarP(&fuzzMarker, "marker", "m", "", "Reflected marker (default from fuzz.marker)")
	fuzzDetectCmd.MarkFlagRequired("response-file")

	fuzzGenerateCmd.Flags().StringVarP(&fuzzContext, "context", "c", "", "Injection context, e.g. html_attribute_value")
	fuzzGenerateCmd.Flags().StringSliceVarP(&fuzzBasePayloads, "payload", "p", nil, "Base payload to adapt. Can be added multiple times.")
	fuzzGenerateCmd.Flags().IntVarP(&fuzzLimit, "limit", "l", 0, "Maximum payloads to print")
	fuzzGenerateCmd.MarkFlagRequired("context")

	fuzzPolyglotCmd.Flags().StringSliceVarP(&fuzzPolyglotContexts, "context", "c", nil, "Injection context. Can be added multiple times.")
}
