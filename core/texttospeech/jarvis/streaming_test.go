package jarvis

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
)

func newStreamTestServer(t *testing.T, handle func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts/stream" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("failed to upgrade: %v", err)
		}
		defer conn.Close()
		handle(conn)
	}))
}

// readSpeakUntilFlush gathers Speak text until a Flush arrives. The second
// return is false once the client closed the stream.
func readSpeakUntilFlush(conn *websocket.Conn) (string, bool) {
	var text string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return "", false
		}
		var parsed struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(msg, &parsed); err != nil {
			return "", false
		}
		switch parsed.Type {
		case "Speak":
			text += parsed.Text
		case "Flush":
			return text, true
		case "Close":
			return "", false
		}
	}
}

func TestStreamingSynthesizeCollectsFramesUntilFlushed(t *testing.T) {
	gotText := make(chan string, 1)
	server := newStreamTestServer(t, func(conn *websocket.Conn) {
		text, ok := readSpeakUntilFlush(conn)
		if !ok {
			return
		}
		gotText <- text
		conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2})
		conn.WriteMessage(websocket.BinaryMessage, []byte{3})
		conn.WriteJSON(map[string]string{"type": "Flushed"})
	})
	defer server.Close()

	client := NewStreamingSynthesisClient(server.URL)
	defer client.Close()

	speech, err := client.Synthesize(context.Background(), "Hello there.")
	if err != nil {
		t.Fatalf("expected synthesis to succeed, got %v", err)
	}
	if !bytes.Equal(speech, []byte{1, 2, 3}) {
		t.Fatalf("expected concatenated frames, got %v", speech)
	}
	if text := <-gotText; text != "Hello there." {
		t.Fatalf("expected server to receive %q, got %q", "Hello there.", text)
	}
}

func TestStreamingSynthesizeReusesConnection(t *testing.T) {
	var connections atomic.Int32
	server := newStreamTestServer(t, func(conn *websocket.Conn) {
		connections.Add(1)
		for {
			text, ok := readSpeakUntilFlush(conn)
			if !ok {
				return
			}
			conn.WriteMessage(websocket.BinaryMessage, []byte(text))
			conn.WriteJSON(map[string]string{"type": "Flushed"})
		}
	})
	defer server.Close()

	client := NewStreamingSynthesisClient(server.URL)
	defer client.Close()

	for _, text := range []string{"one.", "two.", "three."} {
		speech, err := client.Synthesize(context.Background(), text)
		if err != nil {
			t.Fatalf("expected synthesis of %q to succeed, got %v", text, err)
		}
		if string(speech) != text {
			t.Fatalf("expected %q back, got %q", text, speech)
		}
	}
	if got := connections.Load(); got != 1 {
		t.Fatalf("expected a single websocket connection, got %d", got)
	}
}

func TestStreamingSynthesizeServerError(t *testing.T) {
	server := newStreamTestServer(t, func(conn *websocket.Conn) {
		if _, ok := readSpeakUntilFlush(conn); !ok {
			return
		}
		conn.WriteJSON(map[string]string{"type": "Error", "error": "voice unavailable"})
	})
	defer server.Close()

	client := NewStreamingSynthesisClient(server.URL)
	defer client.Close()

	if _, err := client.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("expected an error from the stream")
	}
}

func TestStreamingSynthesizeAfterCloseFails(t *testing.T) {
	server := newStreamTestServer(t, func(conn *websocket.Conn) {})
	defer server.Close()

	client := NewStreamingSynthesisClient(server.URL)
	if err := client.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
	if _, err := client.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("expected synthesis on a closed client to fail")
	}
}
