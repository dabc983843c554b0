package release

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestScoreRothfussAudiobook(t *testing.T) {
	candidate := Candidate{
		Title:     "The Name of the Wind - Patrick Rothfuss - English Audiobook M4B",
		Seeders:   intPtr(50),
		MagnetURL: "magnet:?xt=urn:btih:abc",
	}
	book := Book{Title: "The Name of the Wind", Author: "Patrick Rothfuss", Type: FormatAudiobook}

	result := Score(candidate, "en", book)

	assert.GreaterOrEqual(t, result.Total, 80)
	assert.Contains(t, result.DetectedLanguages, "en")
	assert.Equal(t, FormatAudiobook, result.DetectedFormat)
	assert.Equal(t, 100, result.Breakdown.Title)
	assert.Equal(t, 100, result.Breakdown.Author)
	assert.Equal(t, 100, result.Breakdown.Language)
}

func TestScoreWrongLanguage(t *testing.T) {
	candidate := Candidate{
		Title:     "De Naam Van De Wind - Dutch Audiobook",
		Seeders:   intPtr(50),
		MagnetURL: "magnet:?xt=urn:btih:abc",
	}
	book := Book{Title: "The Name of the Wind", Author: "Patrick Rothfuss", Type: FormatAudiobook}

	result := Score(candidate, "en", book)

	assert.Less(t, result.Total, 70)
	assert.Contains(t, result.DetectedLanguages, "nl")
	assert.Equal(t, 0, result.Breakdown.Language)
}

func TestScoreMultiLanguageMatchesAnyRequest(t *testing.T) {
	candidate := Candidate{Title: "Some Book MULTI Audiobook", Seeders: intPtr(10)}
	result := Score(candidate, "fi", Book{Title: "Some Book"})
	assert.Equal(t, 100, result.Breakdown.Language)
}

func TestScoreNoLanguageDetectedIsNeutral(t *testing.T) {
	candidate := Candidate{Title: "Some Book Audiobook", Seeders: intPtr(10)}
	result := Score(candidate, "en", Book{Title: "Some Book"})
	assert.Equal(t, 50, result.Breakdown.Language)
}

func TestScoreAuthor(t *testing.T) {
	book := Book{Title: "It"}

	cases := []struct {
		name   string
		author string
		title  string
		want   int
	}{
		{"no author is neutral", "", "It - Audiobook", 50},
		{"full name", "Stephen King", "It - Stephen King - Audiobook", 100},
		{"last name only", "Stephen King", "It (King) Audiobook", 80},
		{"first name only", "Stephen King", "It by Stephen Audiobook", 40},
		{"no match", "Stephen King", "It - Unknown Narrator", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			book.Author = tc.author
			result := Score(Candidate{Title: tc.title}, "en", book)
			assert.Equal(t, tc.want, result.Breakdown.Author)
		})
	}
}

func TestScoreHealthCurve(t *testing.T) {
	cases := []struct {
		seeders int
		want    int
	}{
		{0, 0},
		{1, 28},
		{5, 60},
		{6, 61},
		{20, 80},
		{100, 96},
	}
	for _, tc := range cases {
		candidate := Candidate{Title: "X", Seeders: intPtr(tc.seeders), MagnetURL: "magnet:?x"}
		result := Score(candidate, "en", Book{Title: "X"})
		assert.Equal(t, tc.want, result.Breakdown.Health, "seeders=%d", tc.seeders)
	}
}

func TestScoreHealthBounds(t *testing.T) {
	zero := Score(Candidate{Title: "X", Seeders: intPtr(0), MagnetURL: "m"}, "en", Book{Title: "X"})
	assert.Equal(t, 0, zero.Breakdown.Health)

	hundred := Score(Candidate{Title: "X", Seeders: intPtr(100), MagnetURL: "m"}, "en", Book{Title: "X"})
	assert.GreaterOrEqual(t, hundred.Breakdown.Health, 90)
}

func TestScoreUsenetAlwaysHealthy(t *testing.T) {
	candidate := Candidate{Title: "X", DownloadURL: "https://indexer/get/1"}
	assert.True(t, candidate.IsUsenet())

	result := Score(candidate, "en", Book{Title: "X"})
	assert.Equal(t, 100, result.Breakdown.Health)
}

func TestIsUsenetClassification(t *testing.T) {
	assert.False(t, Candidate{DownloadURL: "u", MagnetURL: "m"}.IsUsenet())
	assert.False(t, Candidate{DownloadURL: "u", Seeders: intPtr(5)}.IsUsenet())
	assert.False(t, Candidate{MagnetURL: "m"}.IsUsenet())
}

func TestTitleVerbatimSubstringScoresFull(t *testing.T) {
	result := Score(Candidate{Title: "THE  NAME of the WIND! (2007) epub"}, "en",
		Book{Title: "The Name of the Wind"})
	assert.Equal(t, 100, result.Breakdown.Title)
}

func TestTrigramSimilarity(t *testing.T) {
	assert.Equal(t, TrigramSimilarity("hello world", "world hello"),
		TrigramSimilarity("world hello", "hello world"))
	assert.Equal(t, 100, TrigramSimilarity("abc", "abc"))
	assert.Equal(t, 0, TrigramSimilarity("", "abc"))
	assert.Equal(t, 0, TrigramSimilarity("", ""))

	partial := TrigramSimilarity("the wise mans fear", "the name of the wind")
	assert.Greater(t, partial, 0)
	assert.Less(t, partial, 100)
}

func TestConfidenceBands(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, ScoreResult{Total: 90}.Confidence())
	assert.Equal(t, ConfidenceMedium, ScoreResult{Total: 89}.Confidence())
	assert.Equal(t, ConfidenceMedium, ScoreResult{Total: 70}.Confidence())
	assert.Equal(t, ConfidenceLow, ScoreResult{Total: 69}.Confidence())
}
