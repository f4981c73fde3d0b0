package console

import (
	"fmt"
	"strings"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice"
)

// DefaultVoices is the catalog used when none is configured.
const DefaultVoices = "hi-IN:Lekha,en-IN:Rishi:default,ta-IN:Valluvar,mr-IN:Aarti"

// ParseVoices reads a voice catalog written as comma separated
// "lang:name[:default]" entries.
func ParseVoices(raw string) ([]voice.Voice, error) {
	var out []voice.Voice
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("voice %q must be lang:name[:default]", entry)
		}
		v := voice.Voice{
			Lang: strings.TrimSpace(parts[0]),
			Name: strings.TrimSpace(parts[1]),
		}
		if v.Lang == "" || v.Name == "" {
			return nil, fmt.Errorf("voice %q must be lang:name[:default]", entry)
		}
		if len(parts) == 3 {
			if !strings.EqualFold(strings.TrimSpace(parts[2]), "default") {
				return nil, fmt.Errorf("voice %q: unknown flag %q", entry, parts[2])
			}
			v.Default = true
		}
		out = append(out, v)
	}
	return out, nil
}
