package scan

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"mvdan.cc/xurls/v2"
)

// FallbackParameters are tested when the page cannot be fetched.
var FallbackParameters = []string{"q", "search", "test"}

// commonParameters are added when their name appears anywhere in the page.
var commonParameters = []string{
	"q", "search", "query", "keyword", "term",
	"name", "username", "email", "message", "comment",
	"id", "page", "category", "tag", "filter",
	"input", "data", "value", "text", "content",
	"title", "description", "url", "link",
}

// DiscoverParameters fetches target and collects candidate parameter names
// from form fields, the target's own query, links in the page and common
// names mentioned in the content. The result is sorted.
func (s *Scanner) DiscoverParameters(ctx context.Context, target string) []string {
	resp, err := s.fetch(ctx, target)
	if err != nil {
		log.Warn().Err(err).Str("url", target).Msg("Parameter discovery failed, using fallback parameters")
		return append([]string(nil), FallbackParameters...)
	}
	found := ParametersFromContent(target, resp.body)
	log.Info().Str("url", target).Int("parameters", len(found)).Msg("Discovered parameters")
	return found
}

// ParametersFromContent extracts parameter names from an already fetched page.
func ParametersFromContent(target, content string) []string {
	params := make(map[string]struct{})
	add := func(name string) {
		if name = strings.TrimSpace(name); name != "" {
			params[name] = struct{}{}
		}
	}

	for _, name := range formParameters(content) {
		add(name)
	}
	for _, name := range queryKeys(target) {
		add(name)
	}
	for _, link := range xurls.Strict().FindAllString(content, -1) {
		for _, name := range queryKeys(link) {
			add(name)
		}
	}
	lower := strings.ToLower(content)
	for _, name := range commonParameters {
		if strings.Contains(lower, name) {
			add(name)
		}
	}

	out := make([]string, 0, len(params))
	for name := range params {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func formParameters(content string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		log.Debug().Err(err).Msg("Could not parse page for form fields")
		return nil
	}
	var names []string
	doc.Find("input[name], textarea[name], select[name]").Each(func(_ int, sel *goquery.Selection) {
		if name, ok := sel.Attr("name"); ok {
			names = append(names, name)
		}
	})
	return names
}

func queryKeys(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil && len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return keys
}
