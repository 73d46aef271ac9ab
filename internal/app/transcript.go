package app

import (
	"strings"
	"sync"

	"github.com/ariavoice/aria/pkg/bridge"
)

// TranscriptEntry is one contiguous stretch of speech by a single speaker.
type TranscriptEntry struct {
	Speaker bridge.Speaker
	Text    string
}

// Transcript accumulates transcription deltas into per-speaker entries.
// Deltas arrive as fragments; consecutive fragments from the same speaker
// are merged into one entry.
type Transcript struct {
	mu      sync.Mutex
	entries []TranscriptEntry
}

// Append adds a transcription delta. Empty deltas are ignored.
func (t *Transcript) Append(speaker bridge.Speaker, text string) {
	if text == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.entries); n > 0 && t.entries[n-1].Speaker == speaker {
		t.entries[n-1].Text += text
		return
	}
	t.entries = append(t.entries, TranscriptEntry{Speaker: speaker, Text: text})
}

// Entries returns a copy of the accumulated entries.
func (t *Transcript) Entries() []TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// String renders the transcript as speaker-prefixed lines.
func (t *Transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	for _, e := range t.entries {
		b.WriteString(string(e.Speaker))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(e.Text))
		b.WriteString("\n")
	}
	return b.String()
}
