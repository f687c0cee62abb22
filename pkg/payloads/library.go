package payloads

import (
	"errors"
	"math/rand"
	"slices"
	"sort"
	"strings"
)

var (
	ErrNoPayloads      = errors.New("no payloads available")
	ErrUnknownCategory = errors.New("unknown payload category")
)

// Library is a read-only, indexed view over the payload corpus. It is safe
// for concurrent use.
type Library struct {
	sections     []corpusSection
	all          []Payload
	contextIndex map[string][]Payload
	techIndex    map[string][]Payload
	tagIndex     map[string][]Payload
	keywordIndex map[string][]int
}

// NewLibrary builds a library from the embedded corpus.
func NewLibrary() *Library {
	return newLibrary(loadBuiltinCorpus())
}

func newLibrary(sections []corpusSection) *Library {
	l := &Library{
		sections:     sections,
		contextIndex: make(map[string][]Payload),
		techIndex:    make(map[string][]Payload),
		tagIndex:     make(map[string][]Payload),
		keywordIndex: make(map[string][]int),
	}
	for _, s := range sections {
		for _, p := range s.payloads {
			idx := len(l.all)
			l.all = append(l.all, p)
			for _, c := range p.Contexts {
				l.contextIndex[c] = append(l.contextIndex[c], p)
			}
			for _, t := range p.BypassTechniques {
				l.techIndex[t] = append(l.techIndex[t], p)
			}
			for _, t := range p.Tags {
				l.tagIndex[t] = append(l.tagIndex[t], p)
			}
			for _, kw := range strings.Fields(strings.ToLower(p.Description)) {
				l.keywordIndex[kw] = append(l.keywordIndex[kw], idx)
			}
		}
	}
	return l
}

// byRate returns a copy sorted by success rate, highest first. Ties keep corpus order.
func byRate(list []Payload) []Payload {
	out := append([]Payload(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SuccessRate > out[j].SuccessRate
	})
	return out
}

// ByCategory returns the payloads of a category in corpus order.
func (l *Library) ByCategory(category Category) []Payload {
	for _, s := range l.sections {
		if s.category == category {
			return append([]Payload(nil), s.payloads...)
		}
	}
	return []Payload{}
}

func (l *Library) ByContext(ctx string) []Payload {
	return byRate(l.contextIndex[ctx])
}

func (l *Library) ByTechnique(technique string) []Payload {
	return byRate(l.techIndex[technique])
}

func (l *Library) ByTag(tag string) []Payload {
	return byRate(l.tagIndex[tag])
}

func (l *Library) BySeverity(severity string) []Payload {
	var matching []Payload
	for _, p := range l.all {
		if p.Severity == severity {
			matching = append(matching, p)
		}
	}
	return byRate(matching)
}

// Best returns the limit highest success rate payloads.
func (l *Library) Best(limit int) []Payload {
	sorted := byRate(l.all)
	if limit >= 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}
	return sorted
}

// Search matches keyword case-insensitively against description, payload and
// tags, plus exact description words.
func (l *Library) Search(keyword string) []Payload {
	kw := strings.ToLower(keyword)
	matched := make(map[int]bool)
	for i, p := range l.all {
		if strings.Contains(strings.ToLower(p.Description), kw) ||
			strings.Contains(strings.ToLower(p.Payload), kw) ||
			strings.Contains(strings.ToLower(strings.Join(p.Tags, " ")), kw) {
			matched[i] = true
		}
	}
	for _, i := range l.keywordIndex[kw] {
		matched[i] = true
	}

	var result []Payload
	for i, p := range l.all {
		if matched[i] {
			result = append(result, p)
		}
	}
	return byRate(result)
}

// Random picks a payload, from category when it is not empty.
func (l *Library) Random(rng *rand.Rand, category Category) (Payload, error) {
	pool := l.all
	if category != "" {
		pool = l.ByCategory(category)
	}
	if len(pool) == 0 {
		return Payload{}, ErrNoPayloads
	}
	return pool[rng.Intn(len(pool))], nil
}

// FilterOptions narrows Filter. Zero values disable a criterion.
type FilterOptions struct {
	Categories     []Category
	Contexts       []string
	Techniques     []string
	MinSuccessRate float64
	MaxLength      int
}

func (l *Library) Filter(opts FilterOptions) []Payload {
	var filtered []Payload
	for _, s := range l.sections {
		if len(opts.Categories) > 0 && !slices.Contains(opts.Categories, s.category) {
			continue
		}
		for _, p := range s.payloads {
			if p.SuccessRate < opts.MinSuccessRate {
				continue
			}
			if opts.MaxLength > 0 && len(p.Payload) > opts.MaxLength {
				continue
			}
			if len(opts.Contexts) > 0 && !p.hasAnyContext(opts.Contexts) {
				continue
			}
			if len(opts.Techniques) > 0 && !p.hasAnyTechnique(opts.Techniques) {
				continue
			}
			filtered = append(filtered, p)
		}
	}
	return byRate(filtered)
}

func (l *Library) TotalCount() int {
	return len(l.all)
}

// All returns every payload in corpus order.
func (l *Library) All() []Payload {
	return append([]Payload(nil), l.all...)
}

// Statistics summarises the corpus.
type Statistics struct {
	TotalPayloads         int              `json:"total_payloads" yaml:"total_payloads"`
	CategoryCounts        map[Category]int `json:"category_counts" yaml:"category_counts"`
	AverageSuccessRate    float64          `json:"average_success_rate" yaml:"average_success_rate"`
	ContextDistribution   map[string]int   `json:"context_distribution" yaml:"context_distribution"`
	TechniqueDistribution map[string]int   `json:"technique_distribution" yaml:"technique_distribution"`
	SeverityDistribution  map[string]int   `json:"severity_distribution" yaml:"severity_distribution"`
}

func (l *Library) Statistics() Statistics {
	stats := Statistics{
		TotalPayloads:         len(l.all),
		CategoryCounts:        make(map[Category]int),
		ContextDistribution:   make(map[string]int),
		TechniqueDistribution: make(map[string]int),
		SeverityDistribution:  make(map[string]int),
	}
	for _, s := range l.sections {
		stats.CategoryCounts[s.category] = len(s.payloads)
	}
	if len(l.all) == 0 {
		return stats
	}
	total := 0.0
	for _, p := range l.all {
		total += p.SuccessRate
		for _, c := range p.Contexts {
			stats.ContextDistribution[c]++
		}
		for _, t := range p.BypassTechniques {
			stats.TechniqueDistribution[t]++
		}
		stats.SeverityDistribution[p.Severity]++
	}
	stats.AverageSuccessRate = total / float64(len(l.all))
	return stats
}
