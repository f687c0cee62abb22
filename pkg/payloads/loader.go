package payloads

import (
	"embed"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed corpus/*.yaml
var corpusFS embed.FS

const builtinCorpus = "corpus/xss.yaml"

// corpusSection keeps categories in file order, which the export preserves.
type corpusSection struct {
	category Category
	payloads []Payload
}

// parseCorpus reads the category -> payload list mapping used by both the
// embedded corpus and user supplied files.
func parseCorpus(data []byte) ([]corpusSection, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing payload corpus: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("payload corpus must be a mapping of category to payload list")
	}

	sections := make([]corpusSection, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		category := Category(root.Content[i].Value)
		var entries []Payload
		if err := root.Content[i+1].Decode(&entries); err != nil {
			return nil, fmt.Errorf("decoding category %s: %w", category, err)
		}
		for j := range entries {
			entries[j].Category = category
			if entries[j].Contexts == nil {
				entries[j].Contexts = []string{}
			}
			if entries[j].BypassTechniques == nil {
				entries[j].BypassTechniques = []string{}
			}
			if entries[j].Tags == nil {
				entries[j].Tags = []string{}
			}
		}
		sections = append(sections, corpusSection{category: category, payloads: entries})
	}
	return sections, nil
}

func loadBuiltinCorpus() []corpusSection {
	data, err := corpusFS.ReadFile(builtinCorpus)
	if err != nil {
		log.Fatal().Err(err).Msg("Embedded payload corpus missing")
	}
	sections, err := parseCorpus(data)
	if err != nil {
		log.Fatal().Err(err).Msg("Embedded payload corpus is invalid")
	}
	return sections
}

// LoadExtra returns a new library holding the current payloads plus the ones
// found in the YAML file at path. The receiver is left untouched.
func (l *Library) LoadExtra(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading extra payloads: %w", err)
	}
	extra, err := parseCorpus(data)
	if err != nil {
		return nil, err
	}

	merged := make([]corpusSection, 0, len(l.sections)+len(extra))
	for _, s := range l.sections {
		merged = append(merged, corpusSection{category: s.category, payloads: append([]Payload(nil), s.payloads...)})
	}
	added := 0
	for _, s := range extra {
		added += len(s.payloads)
		found := false
		for i := range merged {
			if merged[i].category == s.category {
				merged[i].payloads = append(merged[i].payloads, s.payloads...)
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, s)
		}
	}
	log.Info().Str("file", path).Int("payloads", added).Msg("Loaded extra payloads")
	return newLibrary(merged), nil
}
