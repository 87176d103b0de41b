package interpreter

import (
	"fmt"
	"strings"
)

// SpeakableText flattens an interpretation into narration suitable for a
// synthesis backend: prose sections in a fixed order, list sections spoken as
// sentences, everything separated by line breaks the normalizer can turn
// into pauses.
func SpeakableText(in Interpretation) string {
	var parts []string

	if s := strings.TrimSpace(in.Summary); s != "" {
		parts = append(parts, s)
	}
	if len(in.Symbols) > 0 {
		var syms []string
		for _, sym := range in.Symbols {
			if sym.Meaning != "" {
				syms = append(syms, fmt.Sprintf("%s stands for %s", sym.Name, sym.Meaning))
			} else {
				syms = append(syms, sym.Name)
			}
		}
		parts = append(parts, "Symbols in this dream. "+strings.Join(syms, ". "))
	}
	if len(in.Archetypes) > 0 {
		parts = append(parts, "Archetypes at play. "+strings.Join(in.Archetypes, ". "))
	}
	if s := strings.TrimSpace(in.JungianInterpretation); s != "" && s != strings.TrimSpace(in.Summary) {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(in.ShadowWork); s != "" {
		parts = append(parts, "Shadow work. "+s)
	}
	if len(in.Recommendations) > 0 {
		parts = append(parts, "Suggestions. "+strings.Join(in.Recommendations, " "))
	}
	if s := strings.TrimSpace(in.EmotionalTone); s != "" {
		parts = append(parts, "The emotional tone of this dream reads as "+s+".")
	}

	return strings.Join(parts, "\n")
}
