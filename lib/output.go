package lib

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

type FormatType string

const (
	Pretty FormatType = "pretty"
	Text   FormatType = "text"
	JSON   FormatType = "json"
	YAML   FormatType = "yaml"
	Table  FormatType = "table"
)

// Formattable is implemented by every result type printed by the CLI.
type Formattable interface {
	String() string
	Pretty() string
	TableHeaders() []string
	TableRow() []string
}

func FormatOutput[T Formattable](data []T, format FormatType) (string, error) {
	switch format {
	case Text:
		var textOutput []string
		for _, item := range data {
			textOutput = append(textOutput, item.String())
		}
		return strings.Join(textOutput, "\n"), nil
	case Pretty:
		var prettyOutput []string
		for _, item := range data {
			prettyOutput = append(prettyOutput, item.Pretty())
		}
		return strings.Join(prettyOutput, "\n"), nil
	case JSON, YAML:
		return FormatData(data, format)
	case Table:
		var tableData [][]string
		for _, item := range data {
			tableData = append(tableData, item.TableRow())
		}
		var headers []string
		if len(data) > 0 {
			headers = data[0].TableHeaders()
		}
		return RenderTable(headers, tableData), nil
	default:
		return "", fmt.Errorf("unknown format: %v", format)
	}
}

func FormatSingleOutput[T Formattable](data T, format FormatType) (string, error) {
	switch format {
	case Text:
		return data.String(), nil
	case Pretty:
		return data.Pretty(), nil
	case JSON, YAML:
		return FormatData(data, format)
	case Table:
		return RenderTable(data.TableHeaders(), [][]string{data.TableRow()}), nil
	default:
		return "", fmt.Errorf("unknown format: %v", format)
	}
}

// FormatData serializes arbitrary values (statistics, summaries) as JSON or YAML.
func FormatData(data any, format FormatType) (string, error) {
	switch format {
	case JSON:
		j, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(j), nil
	case YAML:
		y, err := yaml.Marshal(data)
		if err != nil {
			return "", err
		}
		return string(y), nil
	default:
		return "", fmt.Errorf("format %v not supported for this data", format)
	}
}

// RenderTable draws a bordered table.
func RenderTable(headers []string, rows [][]string) string {
	buffer := new(bytes.Buffer)
	table := tablewriter.NewWriter(buffer)
	if len(headers) > 0 {
		table.SetHeader(headers)
	}
	table.SetBorder(true)
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
	return buffer.String()
}

func FormatOutputToFile[T Formattable](data []T, format FormatType, filepath string) error {
	formattedData, err := FormatOutput(data, format)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath, []byte(formattedData), 0644)
}

// ParseFormatType converts a string format to a FormatType.
func ParseFormatType(format string) (FormatType, error) {
	normalizedFormat := strings.ToLower(format)
	switch normalizedFormat {
	case "pretty":
		return Pretty, nil
	case "text":
		return Text, nil
	case "json":
		return JSON, nil
	case "yaml":
		return YAML, nil
	case "table":
		return Table, nil
	default:
		return "", fmt.Errorf("unknown format: %s", format)
	}
}

// Truncate shortens s to n runes, adding an ellipsis when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
