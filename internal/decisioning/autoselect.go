// Package decisioning applies the auto-select policy over scored candidates.
package decisioning

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/release"
)

// Reason codes for a selection outcome.
type Reason string

const (
	ReasonAutoSelected             Reason = "auto_selected"
	ReasonNoMatchingResults        Reason = "no_matching_results"
	ReasonNoDownloadableResults    Reason = "no_downloadable_results"
	ReasonBelowConfidenceThreshold Reason = "below_confidence_threshold"
	ReasonBelowSeederThreshold     Reason = "below_seeder_threshold"
	ReasonError                    Reason = "error"
)

// Candidate is a scored, pending search result under consideration.
type Candidate struct {
	ID int64
	release.Candidate

	Score             int
	DetectedLanguages []string
	IsMultiLanguage   bool
}

// Downloadable reports whether the candidate carries a usable source reference.
func (c Candidate) Downloadable() bool {
	return c.MagnetURL != "" || c.DownloadURL != ""
}

// SourceRef returns the reference to hand to a download client, magnet first.
func (c Candidate) SourceRef() string {
	if c.MagnetURL != "" {
		return c.MagnetURL
	}
	return c.DownloadURL
}

// Result is the outcome of one selection run.
type Result struct {
	Selected  bool
	Reason    Reason
	Candidate *Candidate
}

// Policy holds the thresholds for unattended selection.
type Policy struct {
	MinSeeders          int
	ConfidenceThreshold int
	logger              zerolog.Logger
}

// NewPolicy creates a selection policy with the given thresholds.
func NewPolicy(minSeeders, confidenceThreshold int, logger zerolog.Logger) *Policy {
	return &Policy{
		MinSeeders:          minSeeders,
		ConfidenceThreshold: confidenceThreshold,
		logger:              logger.With().Str("component", "autoselect").Logger(),
	}
}

// Select decides whether the best candidate can be grabbed unattended.
// Selection must never crash the caller, so any panic surfaces as the generic
// error reason.
func (p *Policy) Select(requestID int64, requestedLanguage string, candidates []Candidate) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Int64("requestId", requestID).Interface("panic", r).
				Msg("Auto-selection failed")
			result = Result{Selected: false, Reason: ReasonError}
		}
	}()

	matching := p.filterMatching(requestedLanguage, candidates)
	if len(matching) == 0 {
		p.logSkip(requestID, "no results meeting criteria")
		return Result{Selected: false, Reason: ReasonNoMatchingResults}
	}

	var downloadable []Candidate
	for _, c := range matching {
		if c.Downloadable() {
			downloadable = append(downloadable, c)
		}
	}
	if len(downloadable) == 0 {
		p.logSkip(requestID, "results match criteria but none are downloadable")
		return Result{Selected: false, Reason: ReasonNoDownloadableResults}
	}

	best := downloadable[0]

	if best.Score < p.ConfidenceThreshold {
		p.logSkip(requestID, "best result below confidence threshold")
		return Result{Selected: false, Reason: ReasonBelowConfidenceThreshold, Candidate: &best}
	}
	if !p.meetsSeederThreshold(best) {
		p.logSkip(requestID, "best result below seeder threshold")
		return Result{Selected: false, Reason: ReasonBelowSeederThreshold, Candidate: &best}
	}

	p.logger.Info().Int64("requestId", requestID).Str("title", best.Title).
		Int("score", best.Score).Msg("Auto-selected release")
	return Result{Selected: true, Reason: ReasonAutoSelected, Candidate: &best}
}

// filterMatching keeps candidates over the confidence threshold whose detected
// languages match the request, ranked best first. A candidate with no detected
// language, or a multi-language one, counts as matching. Ranking is score
// descending with original query order as the tie-break.
func (p *Policy) filterMatching(requestedLanguage string, candidates []Candidate) []Candidate {
	var matching []Candidate
	for _, c := range candidates {
		if c.Score < p.ConfidenceThreshold {
			continue
		}
		if !languageMatches(c, requestedLanguage) {
			continue
		}
		matching = append(matching, c)
	}

	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Score > matching[j].Score
	})
	return matching
}

func languageMatches(c Candidate, requested string) bool {
	if c.IsMultiLanguage || len(c.DetectedLanguages) == 0 {
		return true
	}
	for _, code := range c.DetectedLanguages {
		if code == requested {
			return true
		}
	}
	return false
}

func (p *Policy) meetsSeederThreshold(c Candidate) bool {
	if c.IsUsenet() {
		return true
	}
	seeders := 0
	if c.Seeders != nil {
		seeders = *c.Seeders
	}
	return seeders >= p.MinSeeders
}

func (p *Policy) logSkip(requestID int64, reason string) {
	p.logger.Info().Int64("requestId", requestID).Str("reason", reason).Msg("Auto-selection skipped")
}
