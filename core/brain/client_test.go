package brain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendMessageRoundTrip(t *testing.T) {
	var gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Text   string `json:"text"`
			ChatID string `json:"chatId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		gotBody = body.Text + "|" + body.ChatID
		json.NewEncoder(w).Encode(ChatReply{Response: "hello back", ChatID: "chat-1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithToken("secret"))
	reply, err := client.SendMessage(context.Background(), "hello", "chat-1")
	if err != nil {
		t.Fatalf("expected message to send, got %v", err)
	}
	if reply.Response != "hello back" || reply.ChatID != "chat-1" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer token header, got %q", gotAuth)
	}
	if gotBody != "hello|chat-1" {
		t.Fatalf("unexpected request payload: %q", gotBody)
	}
}

func TestClientSendMessageOmitsEmptyChatID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if _, present := raw["chatId"]; present {
			t.Fatal("expected chatId to be omitted for a new conversation")
		}
		json.NewEncoder(w).Encode(ChatReply{Response: "ok", ChatID: "assigned"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	reply, err := client.SendMessage(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("expected message to send, got %v", err)
	}
	if reply.ChatID != "assigned" {
		t.Fatalf("expected server-assigned chat id, got %q", reply.ChatID)
	}
}

func TestClientUnauthorizedReturnsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithToken("expired"))
	_, err := client.ListChats(context.Background())

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401 in error, got %d", authErr.StatusCode)
	}
}

func TestClientForbiddenReturnsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.SendMessage(context.Background(), "hello", "")

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestClientServerErrorIsNotAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.SendMessage(context.Background(), "hello", "")
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		t.Fatalf("expected plain transport error, got auth error %v", err)
	}
}

func TestClientCreateChatRejectsMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Chat{Name: "nameless"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.CreateChat(context.Background()); err == nil {
		t.Fatal("expected an error when the backend omits the chat id")
	}
}

func TestClientChatManagementEndpoints(t *testing.T) {
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path)
		switch {
		case r.URL.Path == "/chats":
			json.NewEncoder(w).Encode([]Chat{{ChatID: "a", Name: "First"}})
		case r.URL.Path == "/chats/a/history":
			json.NewEncoder(w).Encode([]HistoryEntry{{Role: "human", Content: "hey"}})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	chats, err := client.ListChats(ctx)
	if err != nil || len(chats) != 1 || chats[0].ChatID != "a" {
		t.Fatalf("unexpected list result: %v %v", chats, err)
	}
	history, err := client.History(ctx, "a")
	if err != nil || len(history) != 1 || history[0].Role != "human" {
		t.Fatalf("unexpected history result: %v %v", history, err)
	}
	if err := client.RenameChat(ctx, "a", "Renamed"); err != nil {
		t.Fatalf("expected rename to succeed, got %v", err)
	}
	if err := client.DeleteChat(ctx, "a"); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}

	expected := []string{"GET /chats", "GET /chats/a/history", "PATCH /chats/a", "DELETE /chats/a"}
	if len(requests) != len(expected) {
		t.Fatalf("expected %d requests, got %v", len(expected), requests)
	}
	for i, want := range expected {
		if requests[i] != want {
			t.Fatalf("expected request %d to be %q, got %q", i, want, requests[i])
		}
	}
}

func TestClientSendImageQuestionMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/image-qa" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("expected multipart request: %v", err)
		}
		if got := r.FormValue("question"); got != "what is this" {
			t.Fatalf("expected question field, got %q", got)
		}
		if got := r.FormValue("chatId"); got != "chat-9" {
			t.Fatalf("expected chatId field, got %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("expected file part: %v", err)
		}
		defer file.Close()
		if header.Filename != "photo.jpg" {
			t.Fatalf("expected filename to be preserved, got %q", header.Filename)
		}
		json.NewEncoder(w).Encode(ChatReply{Response: "a cat", ChatID: "chat-9"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	reply, err := client.SendImageQuestion(context.Background(), []byte{0xFF, 0xD8}, "photo.jpg", "what is this", "chat-9")
	if err != nil {
		t.Fatalf("expected image question to send, got %v", err)
	}
	if reply.Response != "a cat" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestClientAgentStatus(t *testing.T) {
	connected := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agent-status" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]bool{"connected": connected})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	got, err := client.AgentStatus(context.Background())
	if err != nil {
		t.Fatalf("expected status to fetch, got %v", err)
	}
	if !got {
		t.Fatal("expected connected status")
	}

	connected = false
	got, err = client.AgentStatus(context.Background())
	if err != nil || got {
		t.Fatalf("expected disconnected status, got %v %v", got, err)
	}
}
