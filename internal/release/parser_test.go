package release

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguagesFullWords(t *testing.T) {
	assert.Contains(t, DetectLanguages("Book.Title.English.Audiobook"), "en")
	assert.Contains(t, DetectLanguages("Book.Title.Dutch.Audiobook"), "nl")
	assert.Contains(t, DetectLanguages("Book.Title.German.Audiobook"), "de")
	assert.Contains(t, DetectLanguages("Book.Title.Flemish.Audiobook"), "nl")
}

func TestDetectLanguagesShortCodes(t *testing.T) {
	assert.Contains(t, DetectLanguages("Book.Title.ENG.MP3"), "en")
	assert.Contains(t, DetectLanguages("Book.Title.NL.M4B"), "nl")
	assert.Contains(t, DetectLanguages("Book.Title.DE.MP3"), "de")
}

func TestDetectLanguagesRegionalMarkers(t *testing.T) {
	assert.Contains(t, DetectLanguages("Book.Title.TRUEFRENCH.M4B"), "fr")
	assert.Contains(t, DetectLanguages("Book.Title.VF.Audiobook"), "fr")
	assert.Contains(t, DetectLanguages("Book.Title.Dublado.M4B"), "pt-BR")
	assert.Contains(t, DetectLanguages("Book Title [Dutch] Audiobook"), "nl")
}

func TestDetectLanguagesMultiple(t *testing.T) {
	languages := DetectLanguages("Book.Title.English.German.Audiobook")
	assert.Contains(t, languages, "en")
	assert.Contains(t, languages, "de")
}

func TestDetectLanguagesNone(t *testing.T) {
	assert.Empty(t, DetectLanguages("Book.Title.Audiobook.M4B"))
	assert.Empty(t, DetectLanguages(""))
}

func TestShortCodeNotMatchedInsideWords(t *testing.T) {
	// "Friends" must not register as FR, "italic" must not register as ita.
	assert.NotContains(t, DetectLanguages("Friends.Of.The.Library.epub"), "fr")
	assert.NotContains(t, DetectLanguages("the italic type ebook"), "it")
}

func TestWebDLIsNotGermanDualTag(t *testing.T) {
	languages := DetectLanguages("Book.Title.WEB-DL.English")
	assert.NotContains(t, languages, "de")
	assert.Contains(t, languages, "en")

	assert.False(t, IsMultiLanguage("Book.Title.WEB-DL.English"))
	assert.True(t, IsMultiLanguage("Book.Title.German.DL.Audiobook"))
}

func TestIsMultiLanguage(t *testing.T) {
	assert.True(t, IsMultiLanguage("Book.Title.MULTI.Audiobook"))
	assert.True(t, IsMultiLanguage("Book.Title.Dual.Audio.M4B"))
	assert.False(t, IsMultiLanguage("Book.Title.English.Audiobook"))
}

func TestDetectFormatAudiobook(t *testing.T) {
	assert.Equal(t, FormatAudiobook, DetectFormat("Book.Title.M4B"))
	assert.Equal(t, FormatAudiobook, DetectFormat("Book Title Audiobook MP3"))
	assert.Equal(t, FormatAudiobook, DetectFormat("Book Title Unabridged"))
	assert.Equal(t, FormatAudiobook, DetectFormat("Book Title narrated by Someone"))
}

func TestDetectFormatEbook(t *testing.T) {
	assert.Equal(t, FormatEbook, DetectFormat("Book.Title.EPUB"))
	assert.Equal(t, FormatEbook, DetectFormat("Book.Title.MOBI"))
}

func TestDetectFormatAudiobookWinsOverEbook(t *testing.T) {
	assert.Equal(t, FormatAudiobook, DetectFormat("Book.Title.Audiobook.EPUB.Bundle"))
}

func TestDetectFormatUnknown(t *testing.T) {
	assert.Equal(t, FormatNone, DetectFormat("Book.Title"))
}

func TestParse(t *testing.T) {
	result := Parse("Book.Title.Dutch.Audiobook.M4B")
	assert.Contains(t, result.Languages, "nl")
	assert.Equal(t, FormatAudiobook, result.Format)
	assert.False(t, result.IsMultiLanguage)
	assert.Equal(t, "Book.Title.Dutch.Audiobook.M4B", result.RawTitle)
}

func TestParseBlank(t *testing.T) {
	result := Parse("")
	assert.Empty(t, result.Languages)
	assert.Equal(t, FormatNone, result.Format)
	assert.False(t, result.IsMultiLanguage)
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "English", LanguageName("en"))
	assert.Equal(t, "", LanguageName("xx"))
	assert.GreaterOrEqual(t, len(Languages), 20)
}
