package voice

import (
	"errors"
	"strings"
)

// BaselineLanguage is used when nothing better is available.
const BaselineLanguage = "en-IN"

// ErrNoVoice is returned by SelectVoice when the catalog is empty.
var ErrNoVoice = errors.New("no synthesis voice available")

// Language is a selectable conversation language.
type Language struct {
	Code        string
	DisplayName string
}

// ReferenceLanguages is the ordered list of candidate languages offered to
// the user, filtered by SupportedLanguages.
var ReferenceLanguages = []Language{
	{Code: "hi-IN", DisplayName: "Hindi"},
	{Code: "en-IN", DisplayName: "English"},
	{Code: "mr-IN", DisplayName: "Marathi"},
	{Code: "ta-IN", DisplayName: "Tamil"},
	{Code: "te-IN", DisplayName: "Telugu"},
	{Code: "kn-IN", DisplayName: "Kannada"},
	{Code: "bn-IN", DisplayName: "Bengali"},
	{Code: "gu-IN", DisplayName: "Gujarati"},
	{Code: "pa-IN", DisplayName: "Punjabi"},
	{Code: "ml-IN", DisplayName: "Malayalam"},
}

// PrimarySubtag returns the language part of a tag ("hi" for "hi-IN").
func PrimarySubtag(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		return tag[:i]
	}
	return tag
}

// SelectVoice picks the best voice for lang. The first rule that matches wins:
// exact tag, primary-subtag prefix, primary subtag anywhere in the tag, the
// catalog default, the first voice.
func SelectVoice(lang string, voices []Voice) (Voice, error) {
	if len(voices) == 0 {
		return Voice{}, ErrNoVoice
	}

	for _, v := range voices {
		if v.Lang == lang {
			return v, nil
		}
	}

	prefix := PrimarySubtag(lang)
	if prefix != "" {
		for _, v := range voices {
			if strings.HasPrefix(v.Lang, prefix) {
				return v, nil
			}
		}
		for _, v := range voices {
			if strings.Contains(v.Lang, prefix) {
				return v, nil
			}
		}
	}

	for _, v := range voices {
		if v.Default {
			return v, nil
		}
	}
	return voices[0], nil
}

// HasVoiceFor reports whether some voice carries lang's primary subtag.
func HasVoiceFor(lang string, voices []Voice) bool {
	prefix := PrimarySubtag(lang)
	if prefix == "" {
		return false
	}
	for _, v := range voices {
		if strings.Contains(v.Lang, prefix) {
			return true
		}
	}
	return false
}

// SupportedLanguages filters ReferenceLanguages down to the languages with at
// least one matching voice, preserving reference order.
func SupportedLanguages(voices []Voice) []Language {
	out := make([]Language, 0, len(ReferenceLanguages))
	for _, l := range ReferenceLanguages {
		if HasVoiceFor(l.Code, voices) {
			out = append(out, l)
		}
	}
	return out
}

// ResolveLanguage keeps selected while its primary subtag is still supported,
// otherwise falls back to the first supported language, then to baseline.
func ResolveLanguage(selected string, supported []Language, baseline string) string {
	prefix := PrimarySubtag(selected)
	for _, l := range supported {
		if prefix != "" && PrimarySubtag(l.Code) == prefix {
			return selected
		}
	}
	if len(supported) > 0 {
		return supported[0].Code
	}
	if baseline == "" {
		baseline = BaselineLanguage
	}
	return baseline
}
