package release

import (
	"math"
	"regexp"
	"strings"
)

// Scoring weights per factor; they sum to 100.
const (
	weightTitle    = 40
	weightAuthor   = 20
	weightLanguage = 25
	weightFormat   = 10
	weightHealth   = 5
)

// Candidate is the scorer's view of a search result.
type Candidate struct {
	Title       string
	Seeders     *int
	DownloadURL string
	MagnetURL   string
}

// Book is the scorer's view of the requested book's metadata.
type Book struct {
	Title  string
	Author string
	Type   Format
}

// Breakdown holds the per-factor scores, each 0-100.
type Breakdown struct {
	Title    int `json:"title"`
	Author   int `json:"author"`
	Language int `json:"language"`
	Format   int `json:"format"`
	Health   int `json:"health"`
}

// ScoreResult is the weighted confidence score with its breakdown.
type ScoreResult struct {
	Total             int       `json:"total"`
	Breakdown         Breakdown `json:"breakdown"`
	DetectedLanguages []string  `json:"detectedLanguages"`
	DetectedFormat    Format    `json:"detectedFormat"`
}

// Confidence bands over the total score.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Confidence returns the band for the total: >=90 high, 70-89 medium, else low.
func (r ScoreResult) Confidence() string {
	switch {
	case r.Total >= 90:
		return ConfidenceHigh
	case r.Total >= 70:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Score rates how well a candidate matches the requested book and language.
func Score(candidate Candidate, requestedLanguage string, book Book) ScoreResult {
	parsed := Parse(candidate.Title)

	breakdown := Breakdown{
		Title:    titleScore(candidate.Title, book.Title),
		Author:   authorScore(candidate.Title, book.Author),
		Language: languageScore(parsed, requestedLanguage),
		Format:   formatScore(parsed.Format, book.Type),
		Health:   healthScore(candidate),
	}

	weighted := float64(breakdown.Title*weightTitle+
		breakdown.Author*weightAuthor+
		breakdown.Language*weightLanguage+
		breakdown.Format*weightFormat+
		breakdown.Health*weightHealth) / 100.0

	return ScoreResult{
		Total:             int(math.Round(weighted)),
		Breakdown:         breakdown,
		DetectedLanguages: parsed.Languages,
		DetectedFormat:    parsed.Format,
	}
}

func titleScore(releaseTitle, bookTitle string) int {
	release := normalizeForMatching(releaseTitle)
	book := normalizeForMatching(bookTitle)
	if release == "" || book == "" {
		return 0
	}
	if strings.Contains(release, book) {
		return 100
	}
	return TrigramSimilarity(release, book)
}

func authorScore(releaseTitle, author string) int {
	if author == "" {
		return 50
	}

	release := normalizeForMatching(releaseTitle)
	normalized := normalizeForMatching(author)
	if release == "" {
		return 0
	}
	if strings.Contains(release, normalized) {
		return 100
	}

	parts := strings.Fields(normalized)
	if len(parts) > 1 {
		lastName := parts[len(parts)-1]
		if len(lastName) > 3 && strings.Contains(release, lastName) {
			return 80
		}
	}
	if len(parts) > 0 {
		firstName := parts[0]
		if len(firstName) > 3 && strings.Contains(release, firstName) {
			return 40
		}
	}
	return 0
}

func languageScore(parsed ParsedRelease, requested string) int {
	if parsed.IsMultiLanguage {
		return 100
	}
	if len(parsed.Languages) == 0 {
		return 50
	}
	for _, code := range parsed.Languages {
		if code == requested {
			return 100
		}
	}
	return 0
}

func formatScore(detected, requested Format) int {
	if detected == FormatNone {
		return 50
	}
	switch requested {
	case FormatAudiobook, FormatEbook:
		if detected == requested {
			return 100
		}
		return 0
	default:
		return 50
	}
}

// healthScore maps seeder counts to 0-100 on a flattening curve. Usenet
// candidates get full availability.
func healthScore(candidate Candidate) int {
	if candidate.IsUsenet() {
		return 100
	}

	seeders := 0
	if candidate.Seeders != nil {
		seeders = *candidate.Seeders
	}

	switch {
	case seeders <= 0:
		return 0
	case seeders <= 5:
		return 20 + seeders*8
	case seeders <= 20:
		return 60 + int(math.Round(float64(seeders-5)*1.3))
	default:
		score := 80 + int(math.Round(float64(seeders-20)*0.2))
		return min(score, 100)
	}
}

// IsUsenet classifies the candidate's origin: usenet results carry a direct
// download URL but no magnet and no seeder count.
func (c Candidate) IsUsenet() bool {
	return c.DownloadURL != "" && c.MagnetURL == "" && c.Seeders == nil
}

var (
	nonAlphanumRe = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

func normalizeForMatching(text string) string {
	text = strings.ToLower(text)
	text = nonAlphanumRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// TrigramSimilarity is the Jaccard similarity over padded 3-character
// substring sets, scaled to 0-100. Symmetric, and 100 for identical
// non-empty strings.
func TrigramSimilarity(a, b string) int {
	if a == b {
		if a == "" {
			return 0
		}
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	setA := toTrigrams(a)
	setB := toTrigrams(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return int(math.Round(float64(intersection) / float64(union) * 100))
}

func toTrigrams(s string) map[string]bool {
	padded := "  " + s + "  "
	trigrams := make(map[string]bool, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		trigrams[padded[i:i+3]] = true
	}
	return trigrams
}
