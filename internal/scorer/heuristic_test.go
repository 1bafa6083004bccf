package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDomain(t *testing.T) {
	cases := map[string]string{
		"https://www.acme.com/products?x=1": "acme.com",
		"http://acme.com":                   "acme.com",
		"ACME.com":                          "acme.com",
		"acme.com:8080":                     "acme.com",
		"  acme.co.uk/path  ":               "acme.co.uk",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeDomain(in), "input %q", in)
	}
}

func TestScore_DomainAbsent(t *testing.T) {
	scores, competitors := Score("best crm software", "Salesforce and hubspot.com are popular options.", "https://acme.com")

	assert.Equal(t, 0, scores.Presence)
	assert.Equal(t, 0.0, scores.Overall)
	// Competitors are still extracted from the response.
	require.Len(t, competitors, 1)
	assert.Equal(t, "hubspot.com", competitors[0].Domain)
}

func TestScore_DomainPresent(t *testing.T) {
	response := "For best crm software, check acme.com first, then hubspot.com."
	scores, competitors := Score("best crm software", response, "https://www.acme.com")

	assert.Equal(t, 1, scores.Presence)
	assert.Greater(t, scores.Relevance, 90.0) // all phrase words appear
	assert.Equal(t, 70.0, scores.Accuracy)
	assert.Equal(t, 50.0, scores.Sentiment)
	assert.Greater(t, scores.Overall, 0.0)

	require.Len(t, competitors, 1)
	assert.Equal(t, "hubspot", competitors[0].Name)
	assert.Equal(t, "neutral", competitors[0].Sentiment)
}

func TestScore_BrandNameWithoutTLD(t *testing.T) {
	scores, _ := Score("crm tools", "Acme is a solid choice for crm tools.", "https://acme.com")
	assert.Equal(t, 1, scores.Presence)
}

func TestScore_BrandSubstringDoesNotCount(t *testing.T) {
	// "acmeify" contains "acme" but is a different word.
	scores, _ := Score("crm tools", "Try acmeify for crm tools.", "https://acme.com")
	assert.Equal(t, 0, scores.Presence)
}

func TestScore_LaterMentionScoresLowerOverall(t *testing.T) {
	first, _ := Score("crm", "acme.com leads, then rival.com and other.io.", "https://acme.com")
	later, _ := Score("crm", "rival.com leads, then other.io, and finally acme.com.", "https://acme.com")

	assert.Greater(t, first.Overall, later.Overall)
}

func TestScore_FiltersImplausibleDomains(t *testing.T) {
	_, competitors := Score("setup guide", "See index.html and v1.2.3 notes at rival.com.", "https://acme.com")

	require.Len(t, competitors, 1)
	assert.Equal(t, "rival.com", competitors[0].Domain)
}

func TestKeywordCoverage(t *testing.T) {
	assert.InDelta(t, 1.0, keywordCoverage("best crm software", "the best crm software list"), 0.001)
	assert.InDelta(t, 0.5, keywordCoverage("best crm", "a crm roundup"), 0.001)
	assert.Equal(t, 0.0, keywordCoverage("a an", "anything"))
}

func TestPositionScore(t *testing.T) {
	assert.Equal(t, 100.0, positionScore(1))
	assert.Equal(t, 85.0, positionScore(2))
	assert.Equal(t, 10.0, positionScore(50))
}
