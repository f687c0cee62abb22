package payloads

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/pyneda/xsslab/pkg/encoding"
)

type exportRecord struct {
	Payload          string   `json:"payload" yaml:"payload"`
	Description      string   `json:"description" yaml:"description"`
	Contexts         []string `json:"contexts" yaml:"contexts"`
	BypassTechniques []string `json:"bypass_techniques" yaml:"bypass_techniques"`
	SuccessRate      float64  `json:"success_rate" yaml:"success_rate"`
	Source           string   `json:"source" yaml:"source"`
	Tags             []string `json:"tags" yaml:"tags"`
	Severity         string   `json:"severity" yaml:"severity"`
	Notes            string   `json:"notes" yaml:"notes"`
}

func toRecords(list []Payload) []exportRecord {
	records := make([]exportRecord, 0, len(list))
	for _, p := range list {
		records = append(records, exportRecord{
			Payload:          p.Payload,
			Description:      p.Description,
			Contexts:         p.Contexts,
			BypassTechniques: p.BypassTechniques,
			SuccessRate:      p.SuccessRate,
			Source:           p.Source,
			Tags:             p.Tags,
			Severity:         p.Severity,
			Notes:            p.Notes,
		})
	}
	return records
}

func marshalJSON(v any, prefix string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ExportJSON writes the corpus as a JSON object of category to payload list,
// keeping corpus order.
func (l *Library) ExportJSON(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, s := range l.sections {
		if i > 0 {
			buf.WriteString(",")
		}
		key, err := marshalJSON(string(s.category), "")
		if err != nil {
			return err
		}
		value, err := marshalJSON(toRecords(s.payloads), "  ")
		if err != nil {
			return fmt.Errorf("exporting %s: %w", s.category, err)
		}
		buf.WriteString("\n  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
	}
	buf.WriteString("\n}\n")
	_, err := w.Write(buf.Bytes())
	return err
}

// ExportYAML writes the same shape as ExportJSON. The output can be fed back
// through LoadExtra.
func (l *Library) ExportYAML(w io.Writer) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, s := range l.sections {
		var value yaml.Node
		if err := value.Encode(toRecords(s.payloads)); err != nil {
			return fmt.Errorf("exporting %s: %w", s.category, err)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: string(s.category)},
			&value,
		)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return err
	}
	return enc.Close()
}

// DefaultExportFilename derives a file name such as xss-payload-library.json.
func DefaultExportFilename(title, ext string) string {
	return slug.Make(title) + "." + strings.TrimPrefix(ext, ".")
}

// CreateCustomPayload adapts a base payload to the given injection context.
func CreateCustomPayload(base, context string) string {
	switch {
	case context == "attribute_value" && !strings.HasPrefix(base, `"`):
		return `" ` + base + ` "`
	case context == "url_parameter":
		return encoding.QuoteSafe(base, "/")
	case context == "javascript_string" && strings.Contains(base, `"`):
		return strings.ReplaceAll(base, `"`, `\"`)
	default:
		return base
	}
}
