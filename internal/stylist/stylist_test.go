package stylist

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ariavoice/aria/pkg/bridge"
)

func validArgs() map[string]any {
	return map[string]any{
		"top":          "linen shirt",
		"bottom":       "chinos",
		"footwear":     "loafers",
		"accessories":  []any{"leather belt", "sunglasses"},
		"colorPalette": []any{"#F5F5DC", "#2F4F4F"},
		"vibe":         "relaxed summer evening",
	}
}

func TestDecodeSuggestion(t *testing.T) {
	t.Parallel()

	s, err := DecodeSuggestion(validArgs())
	if err != nil {
		t.Fatalf("DecodeSuggestion: %v", err)
	}
	want := Suggestion{
		Top:          "linen shirt",
		Bottom:       "chinos",
		Footwear:     "loafers",
		Accessories:  []string{"leather belt", "sunglasses"},
		ColorPalette: []string{"#F5F5DC", "#2F4F4F"},
		Vibe:         "relaxed summer evening",
	}
	if !reflect.DeepEqual(s, want) {
		t.Errorf("got %+v, want %+v", s, want)
	}
}

func TestDecodeSuggestionRejectsMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing top", func(a map[string]any) { delete(a, "top") }},
		{"top not a string", func(a map[string]any) { a["top"] = 7 }},
		{"missing palette", func(a map[string]any) { delete(a, "colorPalette") }},
		{"palette not a list", func(a map[string]any) { a["colorPalette"] = "#FFFFFF" }},
		{"palette element not a string", func(a map[string]any) { a["colorPalette"] = []any{42} }},
		{"palette entry not hex", func(a map[string]any) { a["colorPalette"] = []any{"beige"} }},
		{"palette entry too short", func(a map[string]any) { a["colorPalette"] = []any{"#FFF"} }},
		{"accessories not a list", func(a map[string]any) { a["accessories"] = "belt" }},
		{"missing vibe", func(a map[string]any) { delete(a, "vibe") }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			args := validArgs()
			tc.mutate(args)
			if _, err := DecodeSuggestion(args); err == nil {
				t.Error("DecodeSuggestion accepted malformed args")
			}
		})
	}
}

func TestDecodeSuggestionAcceptsBareHex(t *testing.T) {
	t.Parallel()

	args := validArgs()
	args["colorPalette"] = []any{"2f4f4f", "#AABBCC"}
	if _, err := DecodeSuggestion(args); err != nil {
		t.Errorf("DecodeSuggestion rejected bare hex: %v", err)
	}
}

type recordingDisplay struct {
	mu    sync.Mutex
	shown []Suggestion
	err   error
}

func (d *recordingDisplay) Show(s Suggestion) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown = append(d.shown, s)
	return d.err
}

func (d *recordingDisplay) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.shown)
}

type ackRecord struct {
	id     string
	name   string
	result map[string]any
}

func TestHandleAcknowledgesExactlyOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    map[string]any
		display *recordingDisplay
		shown   int
	}{
		{"valid call", validArgs(), &recordingDisplay{}, 1},
		{"display failure", validArgs(), &recordingDisplay{err: errors.New("no screen")}, 1},
		{"malformed args", map[string]any{"top": 1}, &recordingDisplay{}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var mu sync.Mutex
			var acks []ackRecord
			respond := func(id, name string, result map[string]any) error {
				mu.Lock()
				defer mu.Unlock()
				acks = append(acks, ackRecord{id, name, result})
				return nil
			}

			h := NewHandler(tc.display, respond)
			h.Handle(bridge.ToolCall{ID: "call-1", Name: ToolName, Args: tc.args})

			mu.Lock()
			if len(acks) != 1 {
				t.Fatalf("got %d acknowledgements, want exactly 1", len(acks))
			}
			ack := acks[0]
			mu.Unlock()

			if ack.id != "call-1" || ack.name != ToolName {
				t.Errorf("acknowledged (%q, %q), want (call-1, %s)", ack.id, ack.name, ToolName)
			}
			if got := ack.result["result"]; got != "ok" {
				t.Errorf("result = %v, want ok", got)
			}

			if tc.shown > 0 {
				waitFor(t, func() bool { return tc.display.count() == tc.shown })
			} else if tc.display.count() != 0 {
				t.Errorf("display called %d times for malformed args, want 0", tc.display.count())
			}
		})
	}
}

func TestHandleAcknowledgesUnknownTool(t *testing.T) {
	t.Parallel()

	var acks int
	respond := func(id, name string, result map[string]any) error {
		acks++
		return nil
	}
	display := &recordingDisplay{}

	h := NewHandler(display, respond)
	h.Handle(bridge.ToolCall{ID: "call-9", Name: "someOtherTool"})

	if acks != 1 {
		t.Errorf("got %d acknowledgements for unknown tool, want 1", acks)
	}
	if display.count() != 0 {
		t.Error("display called for unknown tool")
	}
}

func TestHandleSurvivesAckFailure(t *testing.T) {
	t.Parallel()

	respond := func(string, string, map[string]any) error {
		return errors.New("session closed")
	}
	display := &recordingDisplay{}

	h := NewHandler(display, respond)
	h.Handle(bridge.ToolCall{ID: "call-2", Name: ToolName, Args: validArgs()})

	// The suggestion still renders even when the acknowledgement is lost.
	waitFor(t, func() bool { return display.count() == 1 })
}

func TestDeclarationShape(t *testing.T) {
	t.Parallel()

	d := Declaration()
	if d.Name != ToolName {
		t.Errorf("name = %q, want %q", d.Name, ToolName)
	}
	props, ok := d.Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatal("parameters has no properties object")
	}
	for _, field := range []string{"top", "bottom", "footwear", "accessories", "colorPalette", "vibe"} {
		if _, ok := props[field]; !ok {
			t.Errorf("declaration missing property %q", field)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
