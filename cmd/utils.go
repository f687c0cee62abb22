package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pyneda/xsslab/lib"
	"github.com/pyneda/xsslab/pkg/fuzz"
	"github.com/pyneda/xsslab/pkg/payloads"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func outputFormat() lib.FormatType {
	// Validated in PersistentPreRunE.
	f, _ := lib.ParseFormatType(format)
	return f
}

func printList[T lib.Formattable](cmd *cobra.Command, items []T) error {
	out, err := lib.FormatOutput(items, outputFormat())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func printOne[T lib.Formattable](cmd *cobra.Command, item T) error {
	out, err := lib.FormatSingleOutput(item, outputFormat())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

// printReport writes data for json/yaml and the prebuilt text report otherwise.
func printReport(cmd *cobra.Command, data any, report string) error {
	switch f := outputFormat(); f {
	case lib.JSON, lib.YAML:
		out, err := lib.FormatData(data, f)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), report)
	}
	return nil
}

func printStrings(cmd *cobra.Command, header string, items []string) error {
	switch f := outputFormat(); f {
	case lib.JSON, lib.YAML:
		return printReport(cmd, items, "")
	case lib.Table:
		rows := make([][]string, len(items))
		for i, item := range items {
			rows[i] = []string{strconv.Itoa(i + 1), item}
		}
		fmt.Fprintln(cmd.OutOrStdout(), lib.RenderTable([]string{"#", header}, rows))
	default:
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(items, "\n"))
	}
	return nil
}

// readLines returns the non-empty, non-comment lines of path, or stdin for "-".
func readLines(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func newFuzzer() *fuzz.ContextAwareFuzzer {
	return fuzz.NewContextAwareFuzzer(
		fuzz.WithSeed(viper.GetInt64("fuzz.seed")),
		fuzz.WithWindowSize(viper.GetInt("fuzz.window_size")),
		fuzz.WithSelection(fuzz.ParseSelection(viper.GetString("fuzz.selection"))),
		fuzz.WithMutationLimit(viper.GetInt("fuzz.mutation_limit")),
	)
}

func parseInjectionContexts(names []string) ([]fuzz.InjectionContext, error) {
	out := make([]fuzz.InjectionContext, 0, len(names))
	for _, name := range names {
		ctx, err := fuzz.ParseInjectionContext(name)
		if err != nil {
			return nil, err
		}
		out = append(out, ctx)
	}
	return out, nil
}

var extraPayloadsFile string

// loadLibrary returns the embedded corpus, extended with --extra when given.
func loadLibrary() (*payloads.Library, error) {
	library := payloads.NewLibrary()
	if extraPayloadsFile == "" {
		return library, nil
	}
	return library.LoadExtra(extraPayloadsFile)
}
