package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectVoice_FallbackLadder(t *testing.T) {
	cases := []struct {
		name    string
		lang    string
		catalog []Voice
		want    string
	}{
		{
			name:    "exact",
			lang:    "hi-IN",
			catalog: []Voice{{Name: "a", Lang: "en-IN"}, {Name: "lekha", Lang: "hi-IN"}},
			want:    "lekha",
		},
		{
			name:    "prefix",
			lang:    "hi-IN",
			catalog: []Voice{{Name: "us-hindi", Lang: "hi-US"}},
			want:    "us-hindi",
		},
		{
			name:    "contains",
			lang:    "ta-IN",
			catalog: []Voice{{Name: "en", Lang: "en-IN"}, {Name: "odd", Lang: "x-ta-LK"}},
			want:    "odd",
		},
		{
			name:    "default",
			lang:    "hi-IN",
			catalog: []Voice{{Name: "first", Lang: "fr-FR"}, {Name: "rishi", Lang: "en-IN", Default: true}},
			want:    "rishi",
		},
		{
			name:    "first",
			lang:    "hi-IN",
			catalog: []Voice{{Name: "first", Lang: "fr-FR"}, {Name: "second", Lang: "de-DE"}},
			want:    "first",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := SelectVoice(tc.lang, tc.catalog)
			require.NoError(t, err)
			assert.Equal(t, tc.want, v.Name)
		})
	}
}

func TestSelectVoice_DefaultRung(t *testing.T) {
	v, err := SelectVoice("hi-IN", []Voice{{Name: "rishi", Lang: "en-IN", Default: true}})
	require.NoError(t, err)
	assert.Equal(t, "rishi", v.Name)
}

func TestSelectVoice_EmptyCatalog(t *testing.T) {
	_, err := SelectVoice("hi-IN", nil)
	assert.ErrorIs(t, err, ErrNoVoice)
}

func TestSupportedLanguages_FiltersByPrimarySubtag(t *testing.T) {
	withoutMarathi := []Voice{{Lang: "hi-IN"}, {Lang: "en-IN"}}
	got := SupportedLanguages(withoutMarathi)
	assert.Equal(t, []Language{
		{Code: "hi-IN", DisplayName: "Hindi"},
		{Code: "en-IN", DisplayName: "English"},
	}, got)

	withMarathi := append(withoutMarathi, Voice{Lang: "mr-IN"})
	got = SupportedLanguages(withMarathi)
	require.Len(t, got, 3)
	assert.Equal(t, "Marathi", got[2].DisplayName)
}

func TestResolveLanguage(t *testing.T) {
	supported := []Language{{Code: "hi-IN"}, {Code: "en-IN"}}

	assert.Equal(t, "en-IN", ResolveLanguage("en-IN", supported, BaselineLanguage))
	assert.Equal(t, "hi-IN", ResolveLanguage("mr-IN", supported, BaselineLanguage))
	assert.Equal(t, BaselineLanguage, ResolveLanguage("mr-IN", nil, ""))
}

func TestPrimarySubtag(t *testing.T) {
	assert.Equal(t, "hi", PrimarySubtag("hi-IN"))
	assert.Equal(t, "en", PrimarySubtag("en_GB"))
	assert.Equal(t, "ta", PrimarySubtag("ta"))
}
