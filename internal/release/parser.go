// Package release parses and scores release titles against book requests.
package release

import (
	"regexp"

	"github.com/dlclark/regexp2"
)

// Format is the media format detected in a release title.
type Format string

const (
	FormatAudiobook Format = "audiobook"
	FormatEbook     Format = "ebook"
	FormatNone      Format = ""
)

// ParsedRelease is the metadata extracted from a raw release title.
type ParsedRelease struct {
	Languages       []string `json:"languages"`
	IsMultiLanguage bool     `json:"isMultiLanguage"`
	Format          Format   `json:"format"`
	RawTitle        string   `json:"rawTitle"`
}

// Languages maps supported ISO 639-1 codes to display names.
var Languages = map[string]string{
	"en":    "English",
	"nl":    "Dutch",
	"de":    "German",
	"fr":    "French",
	"es":    "Spanish",
	"it":    "Italian",
	"pt":    "Portuguese",
	"pt-BR": "Portuguese (Brazil)",
	"ru":    "Russian",
	"ja":    "Japanese",
	"ko":    "Korean",
	"zh":    "Chinese",
	"pl":    "Polish",
	"sv":    "Swedish",
	"da":    "Danish",
	"no":    "Norwegian",
	"fi":    "Finnish",
	"tr":    "Turkish",
	"ar":    "Arabic",
	"he":    "Hebrew",
	"hi":    "Hindi",
	"th":    "Thai",
	"vi":    "Vietnamese",
	"cs":    "Czech",
	"hu":    "Hungarian",
	"ro":    "Romanian",
	"bg":    "Bulgarian",
	"uk":    "Ukrainian",
	"el":    "Greek",
}

// matcher abstracts over the two regex engines: the standard library for
// plain patterns, regexp2 where lookarounds are needed (bare language codes
// must not match inside longer words, and RE2 has no lookbehind).
type matcher interface {
	MatchString(s string) bool
}

type lookaround struct {
	re *regexp2.Regexp
}

func (l lookaround) MatchString(s string) bool {
	ok, _ := l.re.MatchString(s)
	return ok
}

func plain(pattern string) matcher {
	return regexp.MustCompile(pattern)
}

func around(pattern string, opts regexp2.RegexOptions) matcher {
	return lookaround{re: regexp2.MustCompile(pattern, opts)}
}

type languagePattern struct {
	code    string
	pattern matcher
}

// Patterns adapted from Radarr/Sonarr LanguageParser and rank-torrent-name.
// Order matters: more specific patterns come before generic ones. Bare
// two-letter codes are case-sensitive uppercase so that ordinary words do
// not trigger them.
var languagePatterns = []languagePattern{
	// English
	{"en", plain(`(?i)\benglish\b`)},
	{"en", around(`(?<![a-z])eng(?![a-z])`, regexp2.IgnoreCase)},
	{"en", around(`(?<![a-z])EN(?![a-z])`, 0)},

	// Dutch/Flemish
	{"nl", plain(`(?i)\bdutch\b`)},
	{"nl", plain(`(?i)\bflemish\b`)},
	{"nl", around(`(?<![a-z])NL(?![a-z])`, 0)},
	{"nl", plain(`(?i)\.NL\.`)},
	{"nl", plain(`(?i)\[Dutch\]`)},
	{"nl", plain(`(?i)\(Dutch\)`)},

	// German (including Swiss German)
	{"de", plain(`(?i)\bgerman\b`)},
	{"de", plain(`(?i)\bswissgerman\b`)},
	{"de", plain(`(?i)\bger\.dub\b`)},
	{"de", plain(`(?i)\bvideomann\b`)},
	{"de", around(`(?<![a-z])ger(?![a-z])`, regexp2.IgnoreCase)},
	{"de", around(`(?<![a-z])DE(?![a-z])`, 0)},
	{"de", plain(`(?i)\.DE\.`)},

	// French
	{"fr", plain(`(?i)\bfrench\b`)},
	{"fr", plain(`(?i)\btruefrench\b`)},
	{"fr", around(`(?<![a-z])VF(?![a-z])`, regexp2.IgnoreCase)},
	{"fr", around(`(?<![a-z])VFF(?![a-z])`, regexp2.IgnoreCase)},
	{"fr", around(`(?<![a-z])VFQ(?![a-z])`, regexp2.IgnoreCase)},
	{"fr", around(`(?<![a-z])VFI(?![a-z])`, regexp2.IgnoreCase)},
	{"fr", around(`(?<![a-z])FR(?![a-z])`, 0)},
	{"fr", plain(`(?i)\.FR\.`)},

	// Spanish
	{"es", plain(`(?i)\bspanish\b`)},
	{"es", plain(`(?i)\bespañol\b`)},
	{"es", plain(`(?i)\bcastellano\b`)},
	{"es", around(`(?<![a-z])ES(?![a-z])`, 0)},
	{"es", plain(`(?i)\.ES\.`)},
	{"es", plain(`(?i)\blatino\b`)},

	// Italian
	{"it", plain(`(?i)\bitalian\b`)},
	{"it", around(`(?<![a-z])ita(?![a-z])`, regexp2.IgnoreCase)},
	{"it", around(`(?<![a-z])IT(?![a-z])`, 0)},
	{"it", plain(`(?i)\.IT\.`)},

	// Portuguese
	{"pt", plain(`(?i)\bportuguese\b`)},
	{"pt", around(`(?<![a-z])por(?![a-z])`, regexp2.IgnoreCase)},
	{"pt", around(`(?<![a-z])PT(?![a-z])`, 0)},
	{"pt", plain(`(?i)\.PT\.`)},

	// Portuguese (Brazil)
	{"pt-BR", plain(`(?i)\bbrazilian\b`)},
	{"pt-BR", plain(`(?i)\bdublado\b`)},
	{"pt-BR", plain(`(?i)\bpt-br\b`)},
	{"pt-BR", plain(`(?i)\.BR\.`)},

	// Russian
	{"ru", plain(`(?i)\brussian\b`)},
	{"ru", around(`(?<![a-z])rus(?![a-z])`, regexp2.IgnoreCase)},
	{"ru", around(`(?<![a-z])RU(?![a-z])`, 0)},

	// Japanese
	{"ja", plain(`(?i)\bjapanese\b`)},
	{"ja", around(`(?<![a-z])jap(?![a-z])`, regexp2.IgnoreCase)},
	{"ja", around(`(?<![a-z])jpn(?![a-z])`, regexp2.IgnoreCase)},
	{"ja", plain(`(?i)\(JA\)`)},

	// Korean
	{"ko", plain(`(?i)\bkorean\b`)},
	{"ko", around(`(?<![a-z])kor(?![a-z])`, regexp2.IgnoreCase)},

	// Chinese
	{"zh", plain(`(?i)\bchinese\b`)},
	{"zh", plain(`(?i)\bmandarin\b`)},
	{"zh", plain(`(?i)\bcantonese\b`)},
	{"zh", plain(`(?i)\[CHT\]`)},
	{"zh", plain(`(?i)\[CHS\]`)},
	{"zh", plain(`(?i)\[BIG5\]`)},
	{"zh", plain(`(?i)\[GB\]`)},

	// Polish
	{"pl", plain(`(?i)\bpolish\b`)},
	{"pl", around(`(?<![a-z])PL(?![a-z])`, 0)},
	{"pl", plain(`(?i)\bpl\.dub\b`)},
	{"pl", plain(`(?i)\bdub\.pl\b`)},

	// Swedish
	{"sv", plain(`(?i)\bswedish\b`)},
	{"sv", around(`(?<![a-z])swe(?![a-z])`, regexp2.IgnoreCase)},

	// Danish
	{"da", plain(`(?i)\bdanish\b`)},
	{"da", around(`(?<![a-z])dan(?![a-z])`, regexp2.IgnoreCase)},

	// Norwegian
	{"no", plain(`(?i)\bnorwegian\b`)},
	{"no", around(`(?<![a-z])nor(?![a-z])`, regexp2.IgnoreCase)},

	// Finnish
	{"fi", plain(`(?i)\bfinnish\b`)},
	{"fi", around(`(?<![a-z])fin(?![a-z])`, regexp2.IgnoreCase)},

	// Turkish
	{"tr", plain(`(?i)\bturkish\b`)},
	{"tr", around(`(?<![a-z])tur(?![a-z])`, regexp2.IgnoreCase)},

	// Arabic
	{"ar", plain(`(?i)\barabic\b`)},

	// Hebrew
	{"he", plain(`(?i)\bhebrew\b`)},
	{"he", plain(`(?i)\bhebdub\b`)},

	// Hindi
	{"hi", plain(`(?i)\bhindi\b`)},

	// Thai
	{"th", plain(`(?i)\bthai\b`)},

	// Vietnamese
	{"vi", plain(`(?i)\bvietnamese\b`)},
	{"vi", around(`(?<![a-z])VIE(?![a-z])`, regexp2.IgnoreCase)},

	// Czech
	{"cs", plain(`(?i)\bczech\b`)},
	{"cs", around(`(?<![a-z])CZ(?![a-z])`, 0)},

	// Hungarian
	{"hu", plain(`(?i)\bhungarian\b`)},
	{"hu", plain(`(?i)\bhundub\b`)},
	{"hu", around(`(?<![a-z])HUN(?![a-z])`, regexp2.IgnoreCase)},

	// Romanian
	{"ro", plain(`(?i)\bromanian\b`)},
	{"ro", plain(`(?i)\brodubbed\b`)},

	// Bulgarian
	{"bg", plain(`(?i)\bbulgarian\b`)},
	{"bg", plain(`(?i)\bbgaudio\b`)},
	{"bg", around(`(?<![a-z])BG(?![a-z])`, 0)},

	// Ukrainian
	{"uk", plain(`(?i)\bukrainian\b`)},
	{"uk", around(`(?<![a-z])ukr(?![a-z])`, regexp2.IgnoreCase)},

	// Greek
	{"el", plain(`(?i)\bgreek\b`)},
}

// Multi-language indicators: such releases match any requested language.
// The bare DL token is the German dual-language tag, guarded so the WEB-DL
// container tag never counts.
var multiLanguagePatterns = []matcher{
	plain(`(?i)\bmulti\b`),
	plain(`(?i)\bdual\b`),
	plain(`(?i)\btri-audio\b`),
	plain(`(?i)\bquad[.\s]audio\b`),
	around(`(?<!WEB)(?<!WEB-)(?<!WEB\.)(?<!WEB_)\bDL\b`, 0),
	plain(`\bML\b`),
}

var audiobookPatterns = []matcher{
	plain(`(?i)\baudiobook\b`),
	plain(`(?i)\bm4b\b`),
	plain(`(?i)\bunabridged\b`),
	plain(`(?i)\babridged\b`),
	plain(`(?i)\bnarrated\s+by\b`),
	plain(`(?i)\bread\s+by\b`),
	plain(`(?i)\b(?:64|128|192|256|320)kbps\b`),
	plain(`(?i)\bmp3\b.*\b(?:audiobook|book)\b`),
}

var ebookPatterns = []matcher{
	plain(`(?i)\bebook\b`),
	plain(`(?i)\bepub\b`),
	plain(`(?i)\bmobi\b`),
	plain(`(?i)\bazw3?\b`),
	plain(`(?i)\bpdf\b`),
	plain(`(?i)\bcbr\b`),
	plain(`(?i)\bcbz\b`),
}

// Parse extracts languages, multi-language flag, and format from a title.
func Parse(title string) ParsedRelease {
	if title == "" {
		return ParsedRelease{}
	}
	return ParsedRelease{
		Languages:       DetectLanguages(title),
		IsMultiLanguage: IsMultiLanguage(title),
		Format:          DetectFormat(title),
		RawTitle:        title,
	}
}

// DetectLanguages returns every language code matched in the title, in
// pattern-table order, deduplicated.
func DetectLanguages(title string) []string {
	if title == "" {
		return nil
	}

	var detected []string
	seen := make(map[string]bool)
	for _, lp := range languagePatterns {
		if seen[lp.code] {
			continue
		}
		if lp.pattern.MatchString(title) {
			seen[lp.code] = true
			detected = append(detected, lp.code)
		}
	}
	return detected
}

// IsMultiLanguage reports whether the title carries a multi/dual-audio marker.
func IsMultiLanguage(title string) bool {
	for _, p := range multiLanguagePatterns {
		if p.MatchString(title) {
			return true
		}
	}
	return false
}

// DetectFormat tests audiobook markers before ebook markers; first category
// matched wins.
func DetectFormat(title string) Format {
	for _, p := range audiobookPatterns {
		if p.MatchString(title) {
			return FormatAudiobook
		}
	}
	for _, p := range ebookPatterns {
		if p.MatchString(title) {
			return FormatEbook
		}
	}
	return FormatNone
}

// LanguageName returns the display name for a code, or "" when unknown.
func LanguageName(code string) string {
	return Languages[code]
}
