package models

import (
	"slices"
	"strings"
)

// LanguageInfo describes a recognition language the tool knows about.
type LanguageInfo struct {
	Code        string
	EngineCode  string
	Aliases     []string
	Description string
}

var catalogue = []LanguageInfo{
	{Code: "en", EngineCode: "eng", Aliases: []string{"eng", "english"}, Description: "English"},
	{Code: "ko", EngineCode: "kor", Aliases: []string{"kor", "korean"}, Description: "Korean"},
	{Code: "de", EngineCode: "deu", Aliases: []string{"deu", "ger", "german"}, Description: "German"},
	{Code: "fr", EngineCode: "fra", Aliases: []string{"fra", "fre", "french"}, Description: "French"},
	{Code: "es", EngineCode: "spa", Aliases: []string{"spa", "spanish"}, Description: "Spanish"},
	{Code: "it", EngineCode: "ita", Aliases: []string{"ita", "italian"}, Description: "Italian"},
	{Code: "pt", EngineCode: "por", Aliases: []string{"por", "portuguese"}, Description: "Portuguese"},
	{Code: "nl", EngineCode: "nld", Aliases: []string{"nld", "dutch"}, Description: "Dutch"},
	{Code: "ja", EngineCode: "jpn", Aliases: []string{"jpn", "japan", "japanese"}, Description: "Japanese"},
	{Code: "ch", EngineCode: "chi_sim", Aliases: []string{"zh", "chi_sim", "chinese"}, Description: "Chinese (simplified)"},
	{Code: "chinese_cht", EngineCode: "chi_tra", Aliases: []string{"chi_tra", "zh-tw"}, Description: "Chinese (traditional)"},
	{Code: "ru", EngineCode: "rus", Aliases: []string{"rus", "russian"}, Description: "Russian"},
}

// ListLanguages returns the known languages.
func ListLanguages() []LanguageInfo {
	return slices.Clone(catalogue)
}

// LookupLanguage resolves a configured code or alias, case-insensitively.
func LookupLanguage(code string) (LanguageInfo, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, l := range catalogue {
		if l.Code == code || slices.Contains(l.Aliases, code) {
			return l, true
		}
	}
	return LanguageInfo{}, false
}

// IsKnownLanguage reports whether code resolves to a known language.
func IsKnownLanguage(code string) bool {
	_, ok := LookupLanguage(code)
	return ok
}

// EngineCode maps a configured code to the engine's code, passing unknown
// codes through unchanged.
func EngineCode(code string) string {
	if l, ok := LookupLanguage(code); ok {
		return l.EngineCode
	}
	return code
}
