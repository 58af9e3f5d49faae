package domain

import "strings"

// Personality is a configured text-generation profile.
type Personality struct {
	// Ref is the entry from personalities.list, e.g. "generic/lollms".
	Ref                        string `json:"ref"`
	Name                       string `json:"name"`
	Language                   string `json:"language"`
	WelcomeMessage             string `json:"welcomeMessage,omitempty"`
	Conditioning               string `json:"conditioning,omitempty"`
	WelcomeAudioDir            string `json:"welcomeAudioDir,omitempty"`
	IncludeWelcomeInDiscussion bool   `json:"includeWelcomeInDiscussion"`
	Dir                        string `json:"dir,omitempty"`
}

// PrimaryLanguage returns the personality's normalized language.
func (p *Personality) PrimaryLanguage() string {
	return NormalizeLanguage(p.Language)
}

// NormalizeLanguage lower-cases a language name and keeps its first word,
// so "French (France)" becomes "french". Blank input yields "".
func NormalizeLanguage(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
