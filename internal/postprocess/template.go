// Package postprocess relocates completed downloads into the library layout.
package postprocess

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shelfarr/shelfarr/internal/release"
)

// DefaultTemplate is used when no template is configured.
const DefaultTemplate = "{author}/{title}"

// Book is the metadata a destination path is rendered from.
type Book struct {
	ID        int64
	Title     string
	Author    string
	Year      int
	Publisher string
	Language  string
	Type      release.Format
}

// templateVariables are the recognized placeholders.
var templateVariables = []string{"author", "title", "year", "publisher", "language"}

var (
	invalidFilenameCharsRe = regexp.MustCompile(`[<>:"/\\|?*]`)
	controlCharsRe         = regexp.MustCompile(`[\x00-\x1f]`)
	collapseWhitespaceRe   = regexp.MustCompile(`\s+`)
	duplicateSlashesRe     = regexp.MustCompile(`/+`)
	placeholderRe          = regexp.MustCompile(`\{([a-z]+)\}`)
)

// BuildPath renders a relative path from a template and book metadata.
// The template is sanitized against traversal before substitution, and the
// rendered result again afterwards, since metadata itself could carry
// traversal sequences.
func BuildPath(book Book, template string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}
	template = sanitizeTemplatePath(template)

	substitutions := map[string]string{
		"{author}":    orUnknown(book.Author, "Unknown Author"),
		"{title}":     book.Title,
		"{year}":      yearOrUnknown(book.Year),
		"{publisher}": orUnknown(book.Publisher, "Unknown Publisher"),
		"{language}":  orUnknown(book.Language, "en"),
	}

	result := template
	for variable, value := range substitutions {
		result = strings.ReplaceAll(result, variable, SanitizeFilename(value))
	}
	return sanitizeTemplatePath(result)
}

// BuildDestination joins the output base path with the rendered template.
func BuildDestination(book Book, basePath, template string) string {
	return filepath.Join(basePath, filepath.FromSlash(BuildPath(book, template)))
}

// BuildFilename renders a single-file name for a book, keeping the source
// extension.
func BuildFilename(book Book, extension string) string {
	name := fmt.Sprintf("%s - %s", orUnknown(book.Author, "Unknown Author"), book.Title)
	return SanitizeFilename(name) + extension
}

// ValidateTemplate checks a user-supplied template before it is saved.
// Returns false with a message on the first problem found.
func ValidateTemplate(template string) (bool, string) {
	if strings.TrimSpace(template) == "" {
		return false, "Template cannot be empty"
	}
	if !strings.Contains(template, "{title}") {
		return false, "Template must include {title}"
	}
	if strings.Contains(template, "..") {
		return false, `Template must not contain ".."`
	}
	for _, match := range placeholderRe.FindAllStringSubmatch(template, -1) {
		known := false
		for _, v := range templateVariables {
			if match[1] == v {
				known = true
				break
			}
		}
		if !known {
			return false, fmt.Sprintf("Unknown template variable {%s}", match[1])
		}
	}
	return true, ""
}

// SanitizeFilename strips filename-unsafe characters and control characters,
// collapses whitespace, and caps the length at 100.
func SanitizeFilename(name string) string {
	name = invalidFilenameCharsRe.ReplaceAllString(name, "")
	name = controlCharsRe.ReplaceAllString(name, "")
	name = collapseWhitespaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}
	return name
}

// sanitizeTemplatePath removes traversal sequences and leading slashes and
// collapses duplicate slashes.
func sanitizeTemplatePath(path string) string {
	path = strings.ReplaceAll(path, "..", "")
	path = duplicateSlashesRe.ReplaceAllString(path, "/")
	path = strings.TrimPrefix(path, "/")
	return path
}

func orUnknown(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func yearOrUnknown(year int) string {
	if year <= 0 {
		return "Unknown Year"
	}
	return fmt.Sprintf("%d", year)
}
