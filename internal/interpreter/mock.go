package interpreter

import (
	"context"
	"fmt"
	"strings"
)

// MockInterpreter produces deterministic local analyses when no analysis
// backend is configured. It works from a small symbol table, which is enough
// for demos and for exercising the speech pipeline end to end.
type MockInterpreter struct{}

func NewMockInterpreter() *MockInterpreter { return &MockInterpreter{} }

var mockSymbolTable = []Symbol{
	{Name: "water", Meaning: "the state of the unconscious and of emotion"},
	{Name: "flying", Meaning: "a desire for freedom or escape from constraint"},
	{Name: "falling", Meaning: "loss of control or fear of failure"},
	{Name: "chase", Meaning: "avoidance of a feeling or situation in waking life"},
	{Name: "teeth", Meaning: "anxiety about appearance, power, or aging"},
	{Name: "house", Meaning: "the self and its many rooms"},
	{Name: "snake", Meaning: "transformation and hidden knowledge"},
	{Name: "forest", Meaning: "the unknown territory of the psyche"},
	{Name: "door", Meaning: "a threshold or an opportunity not yet taken"},
	{Name: "mirror", Meaning: "self-confrontation"},
}

func (a *MockInterpreter) Analyze(ctx context.Context, req Request) (Interpretation, error) {
	select {
	case <-ctx.Done():
		return Interpretation{}, ctx.Err()
	default:
	}

	text := strings.ToLower(strings.TrimSpace(req.DreamText))
	if text == "" {
		return Interpretation{
			Summary: "There is not enough of the dream here to interpret. Try describing a scene, a place, or a feeling you remember.",
		}, nil
	}

	var symbols []Symbol
	for _, s := range mockSymbolTable {
		if strings.Contains(text, s.Name) {
			symbols = append(symbols, s)
		}
	}

	out := Interpretation{
		EmotionalTone:   mockTone(text),
		Symbols:         symbols,
		Archetypes:      mockArchetypes(symbols),
		ShadowWork:      "Notice which figure in the dream you least wanted to look at; it often carries the disowned part.",
		Recommendations: []string{"Record the dream again in the morning before it fades.", "Note what feeling lingered after waking."},
	}

	switch len(symbols) {
	case 0:
		out.Summary = "No familiar symbols surfaced, which often means the dream speaks in a private language. The feelings it left behind matter more than the imagery."
	case 1:
		out.Summary = fmt.Sprintf("The dream centers on %s, pointing toward %s.", symbols[0].Name, symbols[0].Meaning)
	default:
		names := make([]string, len(symbols))
		for i, s := range symbols {
			names[i] = s.Name
		}
		out.Summary = fmt.Sprintf("The dream weaves together %s. Taken together they suggest a psyche negotiating change.", strings.Join(names, ", "))
	}
	out.JungianInterpretation = out.Summary

	return out, nil
}

func mockTone(text string) string {
	for _, w := range []string{"afraid", "scared", "dark", "chase", "falling", "lost"} {
		if strings.Contains(text, w) {
			return "anxious"
		}
	}
	for _, w := range []string{"flying", "light", "warm", "laughing", "home"} {
		if strings.Contains(text, w) {
			return "hopeful"
		}
	}
	return "ambivalent"
}

func mockArchetypes(symbols []Symbol) []string {
	var out []string
	for _, s := range symbols {
		switch s.Name {
		case "snake", "forest", "mirror":
			out = append(out, "the Shadow")
		case "house", "door":
			out = append(out, "the Self")
		case "water":
			out = append(out, "the Great Mother")
		}
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
