package domain

import (
	"golang.org/x/text/language"
)

const DefaultLanguage = "en"

var (
	supportedLanguages = []string{"en", "ru", "ro"}
	languageMatcher    = language.NewMatcher([]language.Tag{
		language.English,
		language.Russian,
		language.Romanian,
	})
)

// SupportedLanguages returns the languages prompts exist for.
func SupportedLanguages() []string {
	return append([]string(nil), supportedLanguages...)
}

// MatchLanguage maps a user supplied tag ("ru-RU", "ro", "en-GB") to a supported
// base language. It reports false when nothing matches.
func MatchLanguage(raw string) (string, bool) {
	tag, err := language.Parse(raw)
	if err != nil {
		return DefaultLanguage, false
	}
	_, idx, conf := languageMatcher.Match(tag)
	if conf == language.No {
		return DefaultLanguage, false
	}
	return supportedLanguages[idx], true
}
