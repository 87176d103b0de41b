package synth

import (
	"regexp"
	"strings"
)

var (
	spokenCRLFPattern      = regexp.MustCompile(`\r\n?`)
	spokenBreakPattern     = regexp.MustCompile(`\n+`)
	spokenSpacePattern     = regexp.MustCompile(`[ \t]+`)
	spokenTightPunctuation = regexp.MustCompile(`([.,!?;:])(\p{L})`)
)

// normalizeSpokenText prepares raw dream or interpretation text for an
// utterance engine: line breaks become sentence pauses, whitespace collapses,
// and punctuation gets breathing room so pacing sounds natural.
func normalizeSpokenText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = spokenCRLFPattern.ReplaceAllString(raw, "\n")
	raw = spokenBreakPattern.ReplaceAllString(raw, "\n")

	// Turn each remaining line break into a sentence pause unless the line
	// already ends with terminal punctuation.
	lines := strings.Split(raw, "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !endsWithSentencePunctuation(line) {
			line += "."
		}
		parts = append(parts, line)
	}
	raw = strings.Join(parts, " ")

	raw = spokenSpacePattern.ReplaceAllString(raw, " ")
	raw = spokenTightPunctuation.ReplaceAllString(raw, "$1 $2")
	return strings.TrimSpace(raw)
}

func endsWithSentencePunctuation(line string) bool {
	for i := len(line) - 1; i >= 0; i-- {
		switch line[i] {
		case '"', '\'', ')', ']':
			continue
		case '.', '!', '?', ':', ';', ',':
			return true
		default:
			return false
		}
	}
	return false
}
