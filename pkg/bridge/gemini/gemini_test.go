package gemini_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ariavoice/aria/pkg/audio/codec"
	"github.com/ariavoice/aria/pkg/bridge"
	"github.com/ariavoice/aria/pkg/bridge/gemini"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startServer launches a test WebSocket server. The handler function receives
// the accepted *websocket.Conn. The server is automatically closed when the
// test finishes.
func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// nextEvent waits for the next event on the session stream.
func nextEvent(t *testing.T, sess bridge.Session) bridge.Event {
	t.Helper()
	select {
	case ev, ok := <-sess.Events():
		if !ok {
			t.Fatal("event stream closed unexpectedly")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return bridge.Event{}
	}
}

// connect dials the test server and returns the session. The handler must
// first read the setup message.
func connect(t *testing.T, srv *httptest.Server, cfg bridge.SessionConfig) bridge.Session {
	t.Helper()
	p := gemini.New("test-api-key", gemini.WithBaseURL(wsURL(srv)))
	sess, err := p.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestConnectSendsSetup(t *testing.T) {
	t.Parallel()

	setupCh := make(chan map[string]any, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "test-api-key" {
			t.Errorf("key query param = %q, want test-api-key", got)
		}
		var setup map[string]any
		readJSON(t, conn, &setup)
		setupCh <- setup
		writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
		<-r.Context().Done()
	})

	sess := connect(t, srv, bridge.SessionConfig{
		Voice:        "Aoede",
		Instructions: "be brief",
		Tools: []bridge.ToolDefinition{{
			Name:        "displayOutfitSuggestion",
			Description: "show an outfit",
		}},
	})

	raw := <-setupCh
	setup, ok := raw["setup"].(map[string]any)
	if !ok {
		t.Fatalf("no setup object in %v", raw)
	}
	if got := setup["model"]; got != "models/gemini-2.0-flash-live-001" {
		t.Errorf("model = %v, want models/gemini-2.0-flash-live-001", got)
	}
	if _, ok := setup["systemInstruction"]; !ok {
		t.Error("setup is missing systemInstruction")
	}
	if _, ok := setup["tools"]; !ok {
		t.Error("setup is missing tools")
	}

	if ev := nextEvent(t, sess); ev.Type != bridge.EventOpened {
		t.Errorf("first event = %v, want opened", ev.Type)
	}
}

func TestInboundAudioAndTranscripts(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"modelTurn": map[string]any{
				"parts": []map[string]any{{
					"inlineData": map[string]any{
						"mimeType": "audio/pcm;rate=24000",
						"data":     base64.StdEncoding.EncodeToString(pcm),
					},
				}},
			},
			"outputTranscription": map[string]any{"text": "hello there"},
		}})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"inputTranscription": map[string]any{"text": "hi"},
		}})
		<-r.Context().Done()
	})

	sess := connect(t, srv, bridge.SessionConfig{})

	if ev := nextEvent(t, sess); ev.Type != bridge.EventOpened {
		t.Fatalf("first event = %v, want opened", ev.Type)
	}

	ev := nextEvent(t, sess)
	if ev.Type != bridge.EventAudio {
		t.Fatalf("second event = %v, want audio", ev.Type)
	}
	if string(ev.Audio) != string(pcm) {
		t.Errorf("audio payload = %v, want %v", ev.Audio, pcm)
	}
	if ev.Seq != 0 {
		t.Errorf("first chunk seq = %d, want 0", ev.Seq)
	}

	ev = nextEvent(t, sess)
	if ev.Type != bridge.EventTranscript || ev.Speaker != bridge.SpeakerModel || ev.Text != "hello there" {
		t.Errorf("model transcript event = %+v", ev)
	}

	ev = nextEvent(t, sess)
	if ev.Type != bridge.EventTranscript || ev.Speaker != bridge.SpeakerUser || ev.Text != "hi" {
		t.Errorf("user transcript event = %+v", ev)
	}
}

func TestInterruptedSignal(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"interrupted": true,
		}})
		<-r.Context().Done()
	})

	sess := connect(t, srv, bridge.SessionConfig{})
	nextEvent(t, sess) // opened
	if ev := nextEvent(t, sess); ev.Type != bridge.EventInterrupted {
		t.Errorf("event = %v, want interrupted", ev.Type)
	}
}

func TestToolCallEvent(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
		writeJSON(t, conn, map[string]any{"toolCall": map[string]any{
			"functionCalls": []map[string]any{{
				"id":   "fc-1",
				"name": "displayOutfitSuggestion",
				"args": map[string]any{"top": "shirt"},
			}},
		}})
		<-r.Context().Done()
	})

	sess := connect(t, srv, bridge.SessionConfig{})
	nextEvent(t, sess) // opened
	ev := nextEvent(t, sess)
	if ev.Type != bridge.EventToolCall || ev.Tool == nil {
		t.Fatalf("event = %+v, want tool call", ev)
	}
	if ev.Tool.ID != "fc-1" || ev.Tool.Name != "displayOutfitSuggestion" {
		t.Errorf("tool call = %+v", ev.Tool)
	}
	if got := ev.Tool.Args["top"]; got != "shirt" {
		t.Errorf("args.top = %v, want shirt", got)
	}
}

func TestSendAudioPassesChunkThrough(t *testing.T) {
	t.Parallel()

	inputCh := make(chan map[string]any, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
		var input map[string]any
		readJSON(t, conn, &input)
		inputCh <- input
		<-r.Context().Done()
	})

	sess := connect(t, srv, bridge.SessionConfig{})
	nextEvent(t, sess) // opened

	chunk := codec.Chunk{MIME: "audio/pcm;rate=16000", Data: base64.StdEncoding.EncodeToString([]byte{1, 2})}
	if err := sess.SendAudio(chunk); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	input := <-inputCh
	ri, ok := input["realtimeInput"].(map[string]any)
	if !ok {
		t.Fatalf("no realtimeInput in %v", input)
	}
	chunks, ok := ri["mediaChunks"].([]any)
	if !ok || len(chunks) != 1 {
		t.Fatalf("mediaChunks = %v, want one chunk", ri["mediaChunks"])
	}
	mc := chunks[0].(map[string]any)
	if mc["mimeType"] != chunk.MIME || mc["data"] != chunk.Data {
		t.Errorf("media chunk = %v, want passthrough of %+v", mc, chunk)
	}
}

func TestSendTextBecomesClientContent(t *testing.T) {
	t.Parallel()

	contentCh := make(chan map[string]any, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
		var content map[string]any
		readJSON(t, conn, &content)
		contentCh <- content
		<-r.Context().Done()
	})

	sess := connect(t, srv, bridge.SessionConfig{})
	nextEvent(t, sess) // opened

	if err := sess.SendText(codec.EncodeText("what should I wear?")); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	content := <-contentCh
	cc, ok := content["clientContent"].(map[string]any)
	if !ok {
		t.Fatalf("no clientContent in %v", content)
	}
	if cc["turnComplete"] != true {
		t.Error("turnComplete is not true")
	}
	turns := cc["turns"].([]any)
	turn := turns[0].(map[string]any)
	parts := turn["parts"].([]any)
	if got := parts[0].(map[string]any)["text"]; got != "what should I wear?" {
		t.Errorf("text part = %v, want the decoded message", got)
	}
}

func TestSendToolResponse(t *testing.T) {
	t.Parallel()

	respCh := make(chan map[string]any, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
		var resp map[string]any
		readJSON(t, conn, &resp)
		respCh <- resp
		<-r.Context().Done()
	})

	sess := connect(t, srv, bridge.SessionConfig{})
	nextEvent(t, sess) // opened

	if err := sess.SendToolResponse("fc-1", "displayOutfitSuggestion", map[string]any{"result": "ok"}); err != nil {
		t.Fatalf("SendToolResponse: %v", err)
	}

	resp := <-respCh
	tr, ok := resp["toolResponse"].(map[string]any)
	if !ok {
		t.Fatalf("no toolResponse in %v", resp)
	}
	frs := tr["functionResponses"].([]any)
	fr := frs[0].(map[string]any)
	if fr["id"] != "fc-1" || fr["name"] != "displayOutfitSuggestion" {
		t.Errorf("function response = %v", fr)
	}
	if got := fr["response"].(map[string]any)["result"]; got != "ok" {
		t.Errorf("response.result = %v, want ok", got)
	}
}

func TestServerErrorSurfacesAsEvent(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		writeJSON(t, conn, map[string]any{"error": map[string]any{
			"code":    429,
			"message": "quota exceeded",
		}})
		<-r.Context().Done()
	})

	sess := connect(t, srv, bridge.SessionConfig{})
	ev := nextEvent(t, sess)
	if ev.Type != bridge.EventError || ev.Err == nil {
		t.Fatalf("event = %+v, want error event", ev)
	}
	if !strings.Contains(ev.Err.Error(), "quota exceeded") {
		t.Errorf("error = %v, want it to mention quota exceeded", ev.Err)
	}
}

func TestCloseEmitsClosedAndEndsStream(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
		<-r.Context().Done()
	})

	sess := connect(t, srv, bridge.SessionConfig{})
	nextEvent(t, sess) // opened

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// The stream ends with a closed event (or an immediate channel close if
	// the consumer was not draining).
	for ev := range sess.Events() {
		if ev.Type == bridge.EventError {
			t.Fatalf("got error event on local close: %v", ev.Err)
		}
	}

	if err := sess.SendAudio(codec.Chunk{}); err == nil {
		t.Error("SendAudio after Close succeeded, want error")
	}
}

func TestTerminalEventSurvivesBackpressure(t *testing.T) {
	t.Parallel()

	pcm := base64.StdEncoding.EncodeToString([]byte{1, 2})
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
		// Flood the session while the consumer is not draining.
		for i := 0; i < 100; i++ {
			writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{{
						"inlineData": map[string]any{
							"mimeType": "audio/pcm;rate=24000",
							"data":     pcm,
						},
					}},
				},
			}})
		}
		<-r.Context().Done()
	})

	sess := connect(t, srv, bridge.SessionConfig{})

	// Let the receive loop fill the event buffer before closing.
	time.Sleep(200 * time.Millisecond)
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var last bridge.Event
	for ev := range sess.Events() {
		last = ev
	}
	if last.Type != bridge.EventClosed {
		t.Errorf("last event = %v, want closed; a full buffer must evict stale events, not the terminal", last.Type)
	}
}

func TestConnectFailsWhenServerRejects(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	p := gemini.New("bad-key", gemini.WithBaseURL(wsURL(srv)))
	if _, err := p.Connect(context.Background(), bridge.SessionConfig{}); err == nil {
		t.Fatal("Connect succeeded against a rejecting server, want error")
	}
}
