package core

import (
	"context"
	"errors"
	"testing"

	"github.com/PratyushRao/JARVIS/core/brain"
)

type fakeChatService struct {
	chats      []brain.Chat
	history    map[string][]brain.HistoryEntry
	listErr    error
	historyErr error
	renamed    map[string]string
	deleted    []string
	created    int
}

func newFakeChatService(chats ...brain.Chat) *fakeChatService {
	return &fakeChatService{
		chats:   chats,
		history: map[string][]brain.HistoryEntry{},
		renamed: map[string]string{},
	}
}

func (f *fakeChatService) ListChats(context.Context) ([]brain.Chat, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.chats, nil
}

func (f *fakeChatService) CreateChat(context.Context) (brain.Chat, error) {
	f.created++
	chat := brain.Chat{ChatID: "new-chat", Name: "New chat"}
	f.chats = append(f.chats, chat)
	return chat, nil
}

func (f *fakeChatService) History(_ context.Context, chatID string) ([]brain.HistoryEntry, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history[chatID], nil
}

func (f *fakeChatService) RenameChat(_ context.Context, chatID string, name string) error {
	f.renamed[chatID] = name
	return nil
}

func (f *fakeChatService) DeleteChat(_ context.Context, chatID string) error {
	f.deleted = append(f.deleted, chatID)
	return nil
}

func TestSessionStoreListChats(t *testing.T) {
	service := newFakeChatService(
		brain.Chat{ChatID: "a", Name: "First"},
		brain.Chat{ChatID: "b", Name: "Second"},
	)
	store := newSessionStore(service)

	chats, err := store.ListChats(context.Background())
	if err != nil {
		t.Fatalf("expected chats to list, got %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if chats[0].ID != "a" || chats[0].Name != "First" {
		t.Fatalf("unexpected first chat: %+v", chats[0])
	}
}

func TestSessionStoreListChatsDegradesToEmptyOnTransportError(t *testing.T) {
	service := newFakeChatService(brain.Chat{ChatID: "a", Name: "First"})
	store := newSessionStore(service)

	if _, err := store.ListChats(context.Background()); err != nil {
		t.Fatalf("expected initial list to succeed, got %v", err)
	}

	service.listErr = errors.New("connection refused")
	chats, err := store.ListChats(context.Background())
	if err != nil {
		t.Fatalf("expected empty list instead of error, got %v", err)
	}
	if len(chats) != 0 {
		t.Fatalf("expected empty list on transport failure, got %+v", chats)
	}
	if cached := store.Chats(); len(cached) != 1 || cached[0].ID != "a" {
		t.Fatalf("expected the cached list to be untouched, got %+v", cached)
	}
}

func TestSessionStoreListChatsPropagatesAuthError(t *testing.T) {
	service := newFakeChatService()
	service.listErr = &brain.AuthError{StatusCode: 401}
	store := newSessionStore(service)

	_, err := store.ListChats(context.Background())
	var authErr *brain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected auth error to propagate, got %v", err)
	}
}

func TestSessionStoreSelectChatMapsRoles(t *testing.T) {
	service := newFakeChatService(brain.Chat{ChatID: "a"})
	service.history["a"] = []brain.HistoryEntry{
		{Role: "human", Content: "hello"},
		{Role: "ai", Content: "hi there"},
		{Role: "tool", Content: "lookup result"},
	}
	store := newSessionStore(service)

	messages, err := store.SelectChat(context.Background(), "a")
	if err != nil {
		t.Fatalf("expected history to load, got %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].Sender != SenderUser {
		t.Fatalf("expected human entry to map to user, got %q", messages[0].Sender)
	}
	if messages[1].Sender != SenderAssistant || messages[2].Sender != SenderAssistant {
		t.Fatal("expected non-human entries to map to assistant")
	}
	if store.ActiveChatID() != "a" {
		t.Fatalf("expected chat to become active, got %q", store.ActiveChatID())
	}
}

func TestSessionStoreSelectChatSurvivesHistoryFailure(t *testing.T) {
	service := newFakeChatService(brain.Chat{ChatID: "a"})
	service.historyErr = errors.New("timeout")
	store := newSessionStore(service)

	messages, err := store.SelectChat(context.Background(), "a")
	if err != nil {
		t.Fatalf("expected selection to survive transport failure, got %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty transcript, got %d messages", len(messages))
	}
	if store.ActiveChatID() != "a" {
		t.Fatalf("expected chat to stay selected, got %q", store.ActiveChatID())
	}
}

func TestSessionStoreCreateChatBecomesActive(t *testing.T) {
	store := newSessionStore(newFakeChatService())

	chat, err := store.CreateChat(context.Background())
	if err != nil {
		t.Fatalf("expected chat to be created, got %v", err)
	}
	if chat.ID != "new-chat" {
		t.Fatalf("expected created chat id, got %q", chat.ID)
	}
	if store.ActiveChatID() != "new-chat" {
		t.Fatalf("expected new chat to be active, got %q", store.ActiveChatID())
	}
}

func TestSessionStoreRenameRejectsBlankName(t *testing.T) {
	service := newFakeChatService(brain.Chat{ChatID: "a"})
	store := newSessionStore(service)

	if err := store.RenameChat(context.Background(), "a", "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected %v, got %v", ErrInvalidInput, err)
	}
	if len(service.renamed) != 0 {
		t.Fatal("expected no server call for a blank rename")
	}

	if err := store.RenameChat(context.Background(), "a", "Named"); err != nil {
		t.Fatalf("expected rename to succeed, got %v", err)
	}
	if service.renamed["a"] != "Named" {
		t.Fatalf("expected rename to reach the server, got %v", service.renamed)
	}
}

func TestSessionStoreDeleteActiveChatClearsSelection(t *testing.T) {
	service := newFakeChatService(brain.Chat{ChatID: "a"}, brain.Chat{ChatID: "b"})
	store := newSessionStore(service)
	if _, err := store.ListChats(context.Background()); err != nil {
		t.Fatalf("expected chats to list, got %v", err)
	}
	if _, err := store.SelectChat(context.Background(), "a"); err != nil {
		t.Fatalf("expected chat to select, got %v", err)
	}

	if err := store.DeleteChat(context.Background(), "a"); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
	if store.ActiveChatID() != "" {
		t.Fatalf("expected no active chat after deleting it, got %q", store.ActiveChatID())
	}
	if chats := store.Chats(); len(chats) != 1 || chats[0].ID != "b" {
		t.Fatalf("expected only the other chat to remain, got %+v", chats)
	}
}

func TestSessionStoreDeleteInactiveChatKeepsSelection(t *testing.T) {
	service := newFakeChatService(brain.Chat{ChatID: "a"}, brain.Chat{ChatID: "b"})
	store := newSessionStore(service)
	if _, err := store.ListChats(context.Background()); err != nil {
		t.Fatalf("expected chats to list, got %v", err)
	}
	if _, err := store.SelectChat(context.Background(), "a"); err != nil {
		t.Fatalf("expected chat to select, got %v", err)
	}

	if err := store.DeleteChat(context.Background(), "b"); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
	if store.ActiveChatID() != "a" {
		t.Fatalf("expected active chat to be untouched, got %q", store.ActiveChatID())
	}
}

func TestSessionStoreAdoptRecordsServerAssignedChat(t *testing.T) {
	store := newSessionStore(newFakeChatService())

	store.Adopt("assigned")
	if store.ActiveChatID() != "assigned" {
		t.Fatalf("expected adopted chat to become active, got %q", store.ActiveChatID())
	}
	if chats := store.Chats(); len(chats) != 1 || chats[0].ID != "assigned" {
		t.Fatalf("expected adopted chat in the list, got %+v", chats)
	}

	store.Adopt("")
	if store.ActiveChatID() != "assigned" {
		t.Fatalf("expected empty adoption to be ignored, got %q", store.ActiveChatID())
	}

	store.Adopt("assigned")
	if chats := store.Chats(); len(chats) != 1 {
		t.Fatalf("expected no duplicate chats, got %+v", chats)
	}
}
