package cmd

import (
	"errors"
	"fmt"

	"github.com/pyneda/xsslab/pkg/scan"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var scanURLs []string
var scanParams []string
var scanFuzz bool
var scanOutput string
var scanSave bool
var scanReportFormat string
var scanMaxAttempts int
var scanHTTPVersion string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Test URL parameters for reflected XSS",
	Long: `Sends corpus payloads through each parameter and scores how they are
reflected. Parameters are discovered from the page when --param is not given.
With --fuzz the injection context is fingerprinted first and context-aware
payloads are sent instead.`,
	Example: `  xsslab scan -u 'https://example.com/search' -p q
  xsslab scan -u https://a.example -u https://b.example --save
  xsslab scan -u 'https://example.com/search' -p q --fuzz --max-attempts 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(scanURLs) == 0 {
			return errors.New("at least one --url is required")
		}
		cfg := scan.ConfigFromViper()
		if scanHTTPVersion != "" {
			cfg.HTTPVersion = scanHTTPVersion
		}
		scanner, err := scan.NewScanner(cfg)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if scanFuzz {
			if len(scanParams) == 0 {
				return errors.New("--fuzz requires at least one --param")
			}
			maxAttempts := scanMaxAttempts
			if maxAttempts <= 0 {
				maxAttempts = viper.GetInt("fuzz.max_attempts")
			}
			fz := newFuzzer()
			for _, target := range scanURLs {
				for _, param := range scanParams {
					fp, results, err := scanner.FuzzParameter(ctx, target, param, fz, maxAttempts, viper.GetString("fuzz.marker"))
					if err != nil {
						log.Error().Err(err).Str("url", target).Str("param", param).Msg("Fuzzing failed")
						continue
					}
					if err := printOne(cmd, fp); err != nil {
						return err
					}
					if err := printList(cmd, results); err != nil {
						return err
					}
				}
			}
		} else {
			var params []string
			if len(scanParams) > 0 {
				params = scanParams
			}
			if len(scanURLs) == 1 || params != nil {
				for _, target := range scanURLs {
					if _, err := scanner.ScanURL(ctx, target, params); err != nil {
						log.Error().Err(err).Str("url", target).Msg("Scan failed")
					}
				}
			} else {
				scanner.ScanURLs(ctx, scanURLs)
			}
			vulns := scanner.Vulnerabilities()
			if len(vulns) == 0 {
				log.Info().Msg("No reflections found")
			} else if err := printList(cmd, vulns); err != nil {
				return err
			}
		}

		stats := scanner.Statistics()
		log.Info().Int("tests", stats.TotalTests).Int("successful", stats.SuccessfulInjections).
			Float64("average_confidence", stats.AverageConfidence).Dur("duration", stats.Duration).Msg("Scan complete")

		path := scanOutput
		if path == "" && scanSave {
			path = scan.DefaultReportFilename(scanURLs[0], scanReportFormat)
		}
		if path != "" {
			if err := scanner.ExportResults(path, scanReportFormat); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Report written to", path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringSliceVarP(&scanURLs, "url", "u", nil, "Target URL. Can be added multiple times.")
	scanCmd.Flags().StringSliceVarP(&scanParams, "param", "p", nil, "Parameter to test. Can be added multiple times.")
	scanCmd.Flags().BoolVar(&scanFuzz, "fuzz", false, "Fingerprint the context and run the context-aware fuzzer")
	scanCmd.Flags().IntVar(&scanMaxAttempts, "max-attempts", 0, "Fuzzing attempts per parameter (default from fuzz.max_attempts)")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "Write the scan report to this file")
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "Write the scan report to a file named after the first target")
	scanCmd.Flags().StringVar(&scanReportFormat, "report-format", scan.ReportJSON, "Report file format (text, json)")
	scanCmd.Flags().StringVar(&scanHTTPVersion, "http-version", "", "HTTP version (1.1, 2, 3), overrides scan.http_version")
}

