package cmd

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pyneda/xsslab/lib"
	"github.com/pyneda/xsslab/pkg/payloads"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var payloadsCategory string
var payloadsContexts []string
var payloadsTechniques []string
var payloadsMinRate float64
var payloadsMaxLength int
var payloadsLimit int
var payloadsSeed int64
var payloadsExportOutput string
var payloadsExportFormat string
var payloadsCustomContext string

var payloadsCmd = &cobra.Command{
	Use:     "payloads",
	Aliases: []string{"p", "payload"},
	Short:   "Browse and export the XSS payload corpus",
}

var payloadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List payloads, optionally filtered",
	RunE: func(cmd *cobra.Command, args []string) error {
		library, err := loadLibrary()
		if err != nil {
			return err
		}
		opts := payloads.FilterOptions{
			Contexts:       payloadsContexts,
			Techniques:     payloadsTechniques,
			MinSuccessRate: payloadsMinRate,
			MaxLength:      payloadsMaxLength,
		}
		if payloadsCategory != "" {
			c, err := payloads.ParseCategory(payloadsCategory)
			if err != nil {
				return err
			}
			opts.Categories = []payloads.Category{c}
		}
		return printList(cmd, library.Filter(opts))
	},
}

var payloadsSearchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Search payloads by description, payload text and tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		library, err := loadLibrary()
		if err != nil {
			return err
		}
		found := library.Search(args[0])
		log.Debug().Str("keyword", args[0]).Int("results", len(found)).Msg("Searched payloads")
		return printList(cmd, found)
	},
}

var payloadsBestCmd = &cobra.Command{
	Use:   "best",
	Short: "Show the payloads with the highest success rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		library, err := loadLibrary()
		if err != nil {
			return err
		}
		return printList(cmd, library.Best(payloadsLimit))
	},
}

var payloadsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		library, err := loadLibrary()
		if err != nil {
			return err
		}
		stats := library.Statistics()
		return printReport(cmd, stats, statsReport(stats))
	},
}

var payloadsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the corpus as JSON or YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		library, err := loadLibrary()
		if err != nil {
			return err
		}
		exportFormat := strings.ToLower(payloadsExportFormat)
		if exportFormat != "json" && exportFormat != "yaml" {
			return fmt.Errorf("unsupported export format: %s", payloadsExportFormat)
		}
		path := payloadsExportOutput
		if path == "" {
			path = payloads.DefaultExportFilename("XSS Payload Library", exportFormat)
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if exportFormat == "json" {
			err = library.ExportJSON(f)
		} else {
			err = library.ExportYAML(f)
		}
		if err != nil {
			return err
		}
		log.Info().Str("path", path).Int("payloads", library.TotalCount()).Msg("Payload corpus exported")
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var payloadsRandomCmd = &cobra.Command{
	Use:   "random",
	Short: "Pick a random payload",
	RunE: func(cmd *cobra.Command, args []string) error {
		library, err := loadLibrary()
		if err != nil {
			return err
		}
		var category payloads.Category
		if payloadsCategory != "" {
			if category, err = payloads.ParseCategory(payloadsCategory); err != nil {
				return err
			}
		}
		seed := payloadsSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		p, err := library.Random(rand.New(rand.NewSource(seed)), category)
		if err != nil {
			return err
		}
		return printOne(cmd, p)
	},
}

var payloadsCustomCmd = &cobra.Command{
	Use:   "custom <payload>",
	Short: "Adapt a payload to an injection context",
	Example: `  xsslab payloads custom '<svg onload=alert(1)>' --context attribute_value`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if payloadsCustomContext == "" {
			return errors.New("--context is required")
		}
		return printStrings(cmd, "Payload", []string{payloads.CreateCustomPayload(args[0], payloadsCustomContext)})
	},
}

func statsReport(s payloads.Statistics) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%sTotal payloads:%s %d\n", lib.Blue, lib.ResetColor, s.TotalPayloads)
	fmt.Fprintf(&sb, "%sAverage success rate:%s %s\n\n", lib.Blue, lib.ResetColor, lib.ColorScore(s.AverageSuccessRate, "%.2f"))

	rows := make([][]string, 0, len(s.CategoryCounts))
	for _, c := range payloads.Categories {
		if n, ok := s.CategoryCounts[c]; ok {
			rows = append(rows, []string{string(c), strconv.Itoa(n)})
		}
	}
	sb.WriteString(lib.RenderTable([]string{"Category", "Payloads"}, rows))
	sb.WriteString(lib.RenderTable([]string{"Context", "Payloads"}, countRows(s.ContextDistribution)))
	sb.WriteString(lib.RenderTable([]string{"Technique", "Payloads"}, countRows(s.TechniqueDistribution)))
	sb.WriteString(lib.RenderTable([]string{"Severity", "Payloads"}, countRows(s.SeverityDistribution)))
	return sb.String()
}

// countRows sorts by count descending, then name.
func countRows(counts map[string]int) [][]string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	rows := make([][]string, len(names))
	for i, name := range names {
		rows[i] = []string{name, strconv.Itoa(counts[name])}
	}
	return rows
}

func init() {
	rootCmd.AddCommand(payloadsCmd)
	payloadsCmd.AddCommand(payloadsListCmd, payloadsSearchCmd, payloadsBestCmd, payloadsStatsCmd,
		payloadsExportCmd, payloadsRandomCmd, payloadsCustomCmd)

	payloadsCmd.PersistentFlags().StringVar(&extraPayloadsFile, "extra", "", "YAML file with additional payloads, same shape as the yaml export")

	payloadsListCmd.Flags().StringVar(&payloadsCategory, "category", "", "Filter by category")
	payloadsListCmd.Flags().StringSliceVar(&payloadsContexts, "context", nil, "Filter by context. Can be added multiple times.")
	payloadsListCmd.Flags().StringSliceVar(&payloadsTechniques, "technique", nil, "Filter by bypass technique. Can be added multiple times.")
	payloadsListCmd.Flags().Float64Var(&payloadsMinRate, "min-rate", 0, "Minimum success rate")
	payloadsListCmd.Flags().IntVar(&payloadsMaxLength, "max-length", 0, "Maximum payload length")

	payloadsBestCmd.Flags().IntVarP(&payloadsLimit, "limit", "l", 10, "Number of payloads")

	payloadsExportCmd.Flags().StringVarP(&payloadsExportOutput, "output", "o", "", "Output file (default xss-payload-library.<format>)")
	payloadsExportCmd.Flags().StringVar(&payloadsExportFormat, "export-format", "json", "Export format (json, yaml)")

	payloadsRandomCmd.Flags().StringVar(&payloadsCategory, "category", "", "Pick from a category")
	payloadsRandomCmd.Flags().Int64Var(&payloadsSeed, "seed", 0, "Random seed")

	payloadsCustomCmd.Flags().StringVarP(&payloadsCustomContext, "context", "c", "", "Target context (attribute_value, url_parameter, javascript_string)")
}
