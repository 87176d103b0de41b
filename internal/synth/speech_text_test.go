package synth

import "testing"

func TestNormalizeSpokenTextLineBreaksBecomePauses(t *testing.T) {
	got := normalizeSpokenText("I was flying over water\nthen the city appeared")
	want := "I was flying over water. then the city appeared."
	if got != want {
		t.Fatalf("normalizeSpokenText() = %q, want %q", got, want)
	}
}

func TestNormalizeSpokenTextKeepsExistingPunctuation(t *testing.T) {
	got := normalizeSpokenText("It ended suddenly.\n\nI woke up.")
	want := "It ended suddenly. I woke up."
	if got != want {
		t.Fatalf("normalizeSpokenText() = %q, want %q", got, want)
	}
}

func TestNormalizeSpokenTextCollapsesWhitespace(t *testing.T) {
	got := normalizeSpokenText("a   dream\t about   rain")
	want := "a dream about rain."
	if got != want {
		t.Fatalf("normalizeSpokenText() = %q, want %q", got, want)
	}
}

func TestNormalizeSpokenTextSpacesAfterPunctuation(t *testing.T) {
	got := normalizeSpokenText("shadow,water.fire")
	want := "shadow, water. fire."
	if got != want {
		t.Fatalf("normalizeSpokenText() = %q, want %q", got, want)
	}
}

func TestNormalizeSpokenTextEmpty(t *testing.T) {
	if got := normalizeSpokenText("  \n \t "); got != "" {
		t.Fatalf("normalizeSpokenText(blank) = %q, want empty", got)
	}
}
