// Package scorer implements the deterministic fallback scorer used when
// the model-based scoring call times out. It relies on text matching
// only, so a unit never disappears once a provider response was obtained.
package scorer

import (
	"regexp"
	"strings"

	"github.com/sells-group/visibility-cli/internal/model"
)

// domainPattern matches bare domain-like tokens in response text.
var domainPattern = regexp.MustCompile(`\b([a-z0-9][a-z0-9-]*(?:\.[a-z0-9][a-z0-9-]*)+)\b`)

// NormalizeDomain strips scheme, www prefix, path, and port from a URL
// so it can be compared against domains mentioned in response text.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.IndexByte(d, ':'); i >= 0 {
		d = d[:i]
	}
	return d
}

// brandName returns the registrable label of a domain ("acme" for
// "acme.com"), used to catch prose mentions without the TLD.
func brandName(domain string) string {
	if i := strings.IndexByte(domain, '.'); i > 0 {
		return domain[:i]
	}
	return domain
}

// Score evaluates a provider response against the target domain using
// text heuristics. Presence is 1 when the domain or its brand label
// appears in the response; all other axes derive from presence, mention
// rank, and keyword coverage. Absent domains score all zeros.
func Score(phrase, response, domainURL string) (model.ScoreBreakdown, []model.CompetitorMention) {
	domain := NormalizeDomain(domainURL)
	lower := strings.ToLower(response)

	mentions := extractMentions(lower)
	competitors := competitorsFrom(mentions, domain)

	idx := strings.Index(lower, domain)
	if idx < 0 && brandName(domain) != "" {
		idx = indexWord(lower, brandName(domain))
	}
	if idx < 0 {
		return model.ScoreBreakdown{}, competitors
	}

	rank := 1
	for _, m := range mentions {
		if m.domain != domain && m.index < idx {
			rank++
		}
	}

	relevance := keywordCoverage(phrase, lower) * 100
	accuracy := 70.0 // text match confirms the mention, not its claims
	sentiment := 50.0
	overall := positionScore(rank)*0.4 + relevance*0.4 + sentiment*0.2

	return model.ScoreBreakdown{
		Presence:  1,
		Relevance: relevance,
		Accuracy:  accuracy,
		Sentiment: sentiment,
		Overall:   overall,
	}, competitors
}

type mention struct {
	domain string
	index  int
}

// extractMentions finds the first occurrence of each domain-like token.
func extractMentions(lower string) []mention {
	seen := make(map[string]bool)
	var out []mention
	for _, loc := range domainPattern.FindAllStringIndex(lower, -1) {
		d := NormalizeDomain(lower[loc[0]:loc[1]])
		if d == "" || seen[d] || !plausibleDomain(d) {
			continue
		}
		seen[d] = true
		out = append(out, mention{domain: d, index: loc[0]})
	}
	return out
}

// plausibleDomain filters out version numbers and file names that match
// the domain pattern.
func plausibleDomain(d string) bool {
	i := strings.LastIndexByte(d, '.')
	tld := d[i+1:]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if r >= '0' && r <= '9' {
			return false
		}
	}
	switch tld {
	case "html", "htm", "php", "png", "jpg", "pdf", "txt", "json", "xml", "css", "js":
		return false
	}
	return true
}

func competitorsFrom(mentions []mention, target string) []model.CompetitorMention {
	var out []model.CompetitorMention
	pos := 0
	for _, m := range mentions {
		pos++
		if m.domain == target {
			continue
		}
		out = append(out, model.CompetitorMention{
			Name:        brandName(m.domain),
			Domain:      m.domain,
			Position:    pos,
			Sentiment:   "neutral",
			MentionType: "text_match",
		})
	}
	return out
}

// keywordCoverage returns the fraction of phrase words (len > 2) that
// appear in the response.
func keywordCoverage(phrase, lower string) float64 {
	words := strings.Fields(strings.ToLower(phrase))
	var total, hit int
	for _, w := range words {
		w = strings.Trim(w, ".,?!\"'")
		if len(w) <= 2 {
			continue
		}
		total++
		if strings.Contains(lower, w) {
			hit++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hit) / float64(total)
}

// positionScore rewards earlier mentions: 100 for first, decaying by 15
// per rank, floored at 10.
func positionScore(rank int) float64 {
	s := 100.0 - float64(rank-1)*15.0
	if s < 10 {
		s = 10
	}
	return s
}

// indexWord finds w in s on word boundaries, returning -1 if absent.
func indexWord(s, w string) int {
	for start := 0; ; {
		i := strings.Index(s[start:], w)
		if i < 0 {
			return -1
		}
		i += start
		beforeOK := i == 0 || !isWordByte(s[i-1])
		after := i + len(w)
		afterOK := after >= len(s) || !isWordByte(s[after])
		if beforeOK && afterOK {
			return i
		}
		start = i + len(w)
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '-'
}
