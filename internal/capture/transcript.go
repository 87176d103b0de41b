package capture

import "strings"

// Event is one recognition update from the underlying recognizer. Interim
// events carry the best current guess for the in-progress utterance; final
// events commit it.
type Event struct {
	Text  string
	Final bool
}

// Transcript accumulates recognition events into committed utterances plus at
// most one in-progress interim guess. Finalized text is committed exactly
// once; recognizers are allowed to re-emit the same final result when a
// stream restarts, so a final identical to the last committed entry is
// dropped.
type Transcript struct {
	committed []string
	interim   string
}

// Apply folds one event in and reports whether anything changed.
func (t *Transcript) Apply(ev Event) bool {
	text := strings.TrimSpace(ev.Text)

	if !ev.Final {
		if t.interim == text {
			return false
		}
		t.interim = text
		return true
	}

	changed := t.interim != ""
	t.interim = ""
	if text == "" {
		return changed
	}
	if n := len(t.committed); n > 0 && t.committed[n-1] == text {
		return changed
	}
	t.committed = append(t.committed, text)
	return true
}

// Committed returns the finalized utterances in arrival order.
func (t *Transcript) Committed() []string {
	out := make([]string, len(t.committed))
	copy(out, t.committed)
	return out
}

// Interim returns the in-progress guess, if any.
func (t *Transcript) Interim() string { return t.interim }

// Text joins everything heard so far, interim guess included.
func (t *Transcript) Text() string {
	parts := make([]string, 0, len(t.committed)+1)
	parts = append(parts, t.committed...)
	if t.interim != "" {
		parts = append(parts, t.interim)
	}
	return strings.Join(parts, " ")
}

// Reset discards all accumulated text.
func (t *Transcript) Reset() {
	t.committed = nil
	t.interim = ""
}
