// Package citations resolves raw grounding metadata from a model response
// into attributable document citations.
package citations

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/zonewise-dev/zonewise/pkg/agent/llm"
)

const excerptLimit = 300

// Citation attributes part of an answer to a logical planning document.
type Citation struct {
	SourceID         string `json:"sourceId"`
	SourceName       string `json:"sourceName"`
	Excerpt          string `json:"excerpt"`
	SectionReference string `json:"sectionReference,omitempty"`
	PageNumber       string `json:"pageNumber,omitempty"`
	// Synthetic marks a category-level placeholder emitted when grounding
	// returned nothing attributable; it is not evidence.
	Synthetic bool `json:"synthetic,omitempty"`
}

// sourceRule maps chunk text to a logical document. Rules are evaluated
// top to bottom and the first match wins, so specific documents must come
// before general ones.
type sourceRule struct {
	keywords []string
	id       string
	name     string
}

var sourceRules = []sourceRule{
	{[]string{"subchapter 9", "downtown district"}, "zoning-code-downtown", "Milwaukee Zoning Code, Subchapter 9 (Downtown Districts)"},
	{[]string{"subchapter 5", "residential district", "rs1", "rs2", "rt1", "rm1"}, "zoning-code-residential", "Milwaukee Zoning Code, Subchapter 5 (Residential Districts)"},
	{[]string{"subchapter 7", "commercial district", "lb1", "lb2", "ns1"}, "zoning-code-commercial", "Milwaukee Zoning Code, Subchapter 7 (Commercial Districts)"},
	{[]string{"subchapter 11", "industrial district", "industrial use"}, "zoning-code-industrial", "Milwaukee Zoning Code, Subchapter 11 (Industrial Districts)"},
	{[]string{"parking", "bicycle parking", "loading"}, "zoning-code-parking", "Milwaukee Zoning Code, Parking and Loading Standards"},
	{[]string{"overlay zone", "site plan review overlay", "development incentive zone"}, "overlay-zones", "Milwaukee Overlay Zone Regulations"},
	{[]string{"design guideline", "urban design"}, "design-guidelines", "Milwaukee Urban Design Guidelines"},
	{[]string{"vacant lot", "buildable lot"}, "vacant-lots", "Milwaukee Vacant Lot Handbook"},
	{[]string{"home building", "house design"}, "home-building", "Milwaukee Home Building Guide"},
	{[]string{"commercial corridor", "commercial real estate"}, "commercial", "Milwaukee Commercial Real Estate Guide"},
}

// Section and page references are opportunistic; first pattern to hit wins.
var sectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)§\s*([\d]+-[\d]+(?:-[\d]+)?)`),
	regexp.MustCompile(`(?i)\bsection\s+(\d+(?:[-.]\d+)+)`),
	regexp.MustCompile(`(?i)\bsubchapter\s+(\d+)`),
}

var pagePattern = regexp.MustCompile(`(?i)\bpage\s+(\d+)`)

// categoryNames labels the synthetic fallback per document category.
var categoryNames = map[string]string{
	"home-building":     "Milwaukee Home Building Guide",
	"vacant-lots":       "Milwaukee Vacant Lot Handbook",
	"commercial":        "Milwaukee Commercial Real Estate Guide",
	"overlay-zones":     "Milwaukee Overlay Zone Regulations",
	"design-guidelines": "Milwaukee Urban Design Guidelines",
}

// Extractor turns grounding metadata into citations and a confidence score.
type Extractor struct {
	storeName string
}

// NewExtractor creates an Extractor; storeName labels chunks no rule claims.
func NewExtractor(storeName string) *Extractor {
	return &Extractor{storeName: storeName}
}

// Extract resolves each grounding chunk to a logical source, deduplicating
// by source id. The first chunk to claim a source keeps its excerpt; later
// chunks for the same source are dropped. When nothing resolves and the
// query named a category, a single synthetic citation is emitted so the
// caller always has an attributable source.
func (e *Extractor) Extract(meta *llm.GroundingMetadata, category string) []Citation {
	var out []Citation
	seen := make(map[string]bool)

	if meta != nil {
		for _, chunk := range meta.Chunks {
			c := e.classify(chunk)
			if seen[c.SourceID] {
				continue
			}
			seen[c.SourceID] = true
			out = append(out, c)
		}
	}

	if len(out) == 0 && category != "" {
		name, ok := categoryNames[category]
		if !ok {
			name = category
		}
		out = append(out, Citation{
			SourceID:   category,
			SourceName: name,
			Synthetic:  true,
		})
	}

	return out
}

// Confidence averages the support scores across the response, clamped to
// [0.1, 1.0]. A response with no scored supports gets 0.5.
func (e *Extractor) Confidence(meta *llm.GroundingMetadata) float64 {
	if meta == nil {
		return 0.5
	}
	var sum float64
	var n int
	for _, s := range meta.Supports {
		for _, score := range s.Confidence {
			sum += score
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	mean := sum / float64(n)
	if mean < 0.1 {
		return 0.1
	}
	if mean > 1.0 {
		return 1.0
	}
	return mean
}

func (e *Extractor) classify(chunk llm.GroundingChunk) Citation {
	lower := strings.ToLower(chunk.Text)

	c := Citation{
		SourceID:   e.storeName,
		SourceName: e.storeName,
		Excerpt:    excerpt(chunk.Text),
	}
	if chunk.Title != "" {
		c.SourceName = chunk.Title
	}

	for _, rule := range sourceRules {
		if matchesAny(lower, rule.keywords) {
			c.SourceID = rule.id
			c.SourceName = rule.name
			break
		}
	}

	for _, p := range sectionPatterns {
		if m := p.FindStringSubmatch(chunk.Text); m != nil {
			c.SectionReference = m[1]
			break
		}
	}
	if m := pagePattern.FindStringSubmatch(chunk.Text); m != nil {
		c.PageNumber = m[1]
	}

	return c
}

func matchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= excerptLimit {
		return text
	}
	// Back off to a rune boundary so the cut never splits a multi-byte rune.
	cut := excerptLimit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
