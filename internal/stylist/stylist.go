// Package stylist declares and handles the one callable the voice agent
// exposes to the model: displaying an outfit suggestion. The model drives the
// conversation; when it decides on an outfit it invokes the tool, the handler
// acknowledges receipt immediately, and the suggestion is rendered out of
// band.
package stylist

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ariavoice/aria/pkg/bridge"
)

// ToolName is the function name declared to the session.
const ToolName = "displayOutfitSuggestion"

// Suggestion is a decoded outfit proposal from the model.
type Suggestion struct {
	Top          string
	Bottom       string
	Footwear     string
	Accessories  []string
	ColorPalette []string
	Vibe         string
}

// Display renders a suggestion to the user. Implementations may be slow;
// the handler never waits for them before acknowledging the call.
type Display interface {
	Show(Suggestion) error
}

// Declaration returns the tool definition announced during session setup.
func Declaration() bridge.ToolDefinition {
	return bridge.ToolDefinition{
		Name:        ToolName,
		Description: "Display a complete outfit suggestion to the user. Call this whenever you have settled on a concrete outfit recommendation.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"top": map[string]any{
					"type":        "string",
					"description": "Upper-body garment.",
				},
				"bottom": map[string]any{
					"type":        "string",
					"description": "Lower-body garment.",
				},
				"footwear": map[string]any{
					"type":        "string",
					"description": "Shoes or similar.",
				},
				"accessories": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Optional accessories.",
				},
				"colorPalette": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Hex color strings, e.g. #2F4F4F.",
				},
				"vibe": map[string]any{
					"type":        "string",
					"description": "One-line mood of the outfit.",
				},
			},
			"required": []string{"top", "bottom", "footwear", "accessories", "colorPalette", "vibe"},
		},
	}
}

// DecodeSuggestion validates and converts raw tool-call arguments.
func DecodeSuggestion(args map[string]any) (Suggestion, error) {
	var s Suggestion
	var err error

	if s.Top, err = stringField(args, "top"); err != nil {
		return Suggestion{}, err
	}
	if s.Bottom, err = stringField(args, "bottom"); err != nil {
		return Suggestion{}, err
	}
	if s.Footwear, err = stringField(args, "footwear"); err != nil {
		return Suggestion{}, err
	}
	if s.Vibe, err = stringField(args, "vibe"); err != nil {
		return Suggestion{}, err
	}
	if s.Accessories, err = stringListField(args, "accessories"); err != nil {
		return Suggestion{}, err
	}
	if s.ColorPalette, err = stringListField(args, "colorPalette"); err != nil {
		return Suggestion{}, err
	}
	for _, c := range s.ColorPalette {
		if !validHexColor(c) {
			return Suggestion{}, fmt.Errorf("stylist: colorPalette entry %q is not a hex color", c)
		}
	}
	return s, nil
}

func stringField(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("stylist: missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("stylist: field %q is %T, want string", key, v)
	}
	return s, nil
}

func stringListField(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("stylist: missing field %q", key)
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		// JSON decoding yields []any even for homogeneous arrays.
		out := make([]string, len(list))
		for i, e := range list {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("stylist: field %q element %d is %T, want string", key, i, e)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("stylist: field %q is %T, want string list", key, v)
	}
}

func validHexColor(s string) bool {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// Responder sends a tool response back over the session.
type Responder func(id, name string, result map[string]any) error

// Handler acknowledges and dispatches incoming tool calls.
type Handler struct {
	display Display
	respond Responder
	logger  *slog.Logger
	onCall  func()
}

// HandlerOption is a functional option for configuring a [Handler].
type HandlerOption func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// WithCallHook registers fn to be called once per handled tool call.
func WithCallHook(fn func()) HandlerOption {
	return func(h *Handler) { h.onCall = fn }
}

// NewHandler creates a Handler rendering via display and acknowledging via
// respond.
func NewHandler(display Display, respond Responder, opts ...HandlerOption) *Handler {
	h := &Handler{
		display: display,
		respond: respond,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Handle processes one tool call. The acknowledgement is sent exactly once,
// before decode and display, so the model never stalls waiting on rendering.
// Decode and display failures are logged and otherwise swallowed.
func (h *Handler) Handle(call bridge.ToolCall) {
	if h.onCall != nil {
		h.onCall()
	}
	if call.Name != ToolName {
		h.logger.Warn("stylist: unknown tool call", "name", call.Name, "id", call.ID)
		// Still acknowledge so the model is not left waiting.
		h.ack(call)
		return
	}

	h.ack(call)

	suggestion, err := DecodeSuggestion(call.Args)
	if err != nil {
		h.logger.Warn("stylist: dropping malformed suggestion", "id", call.ID, "err", err)
		return
	}

	go func() {
		if err := h.display.Show(suggestion); err != nil {
			h.logger.Warn("stylist: display failed", "id", call.ID, "err", err)
		}
	}()
}

func (h *Handler) ack(call bridge.ToolCall) {
	if err := h.respond(call.ID, call.Name, map[string]any{"result": "ok"}); err != nil {
		h.logger.Warn("stylist: acknowledgement failed", "id", call.ID, "err", err)
	}
}
