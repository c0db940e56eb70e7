package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/PratyushRao/JARVIS/core/brain"
	"go.opentelemetry.io/otel/codes"
)

// Chat identifies one server-side conversation.
type Chat struct {
	ID   string
	Name string
}

// SessionStore tracks the known chats and which one is active. Listing and
// history failures are treated as transient: the store logs them and degrades
// to an empty result instead of failing the whole session, except for
// authentication failures which always propagate.
type SessionStore struct {
	mu           sync.Mutex
	service      ChatService
	chats        []Chat
	activeChatID string
}

func newSessionStore(service ChatService) *SessionStore {
	return &SessionStore{service: service}
}

// ListChats refreshes the chat list from the server. On transport failure an
// empty list is returned; the locally cached list is left untouched.
func (s *SessionStore) ListChats(ctx context.Context) ([]Chat, error) {
	ctx, span := tracer.Start(ctx, "list chats")
	defer span.End()

	if s.service == nil {
		return nil, nil
	}

	serverChats, err := s.service.ListChats(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var authErr *brain.AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		logger.WarnContext(ctx, "Failed to list chats, degrading to an empty list", "error", err)
		return []Chat{}, nil
	}

	chats := make([]Chat, 0, len(serverChats))
	for _, chat := range serverChats {
		chats = append(chats, Chat{ID: chat.ChatID, Name: chat.Name})
	}

	s.mu.Lock()
	s.chats = chats
	snapshot := append([]Chat(nil), s.chats...)
	s.mu.Unlock()
	return snapshot, nil
}

// CreateChat makes a new server-side chat and makes it the active one.
func (s *SessionStore) CreateChat(ctx context.Context) (Chat, error) {
	ctx, span := tracer.Start(ctx, "create chat")
	defer span.End()

	if s.service == nil {
		return Chat{}, errors.New("no chat service configured")
	}

	created, err := s.service.CreateChat(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Chat{}, err
	}

	chat := Chat{ID: created.ChatID, Name: created.Name}
	s.mu.Lock()
	s.chats = append(s.chats, chat)
	s.activeChatID = chat.ID
	s.mu.Unlock()
	return chat, nil
}

// SelectChat makes the chat active and loads its transcript. History entries
// with the "human" role map to the user; every other role is shown as the
// assistant. A transport failure still selects the chat, with an empty
// transcript.
func (s *SessionStore) SelectChat(ctx context.Context, chatID string) ([]Message, error) {
	ctx, span := tracer.Start(ctx, "select chat")
	defer span.End()

	s.mu.Lock()
	s.activeChatID = chatID
	s.mu.Unlock()

	if s.service == nil {
		return nil, nil
	}

	history, err := s.service.History(ctx, chatID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var authErr *brain.AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		logger.WarnContext(ctx, "Failed to load chat history", "chat_id", chatID, "error", err)
		return nil, nil
	}

	messages := make([]Message, 0, len(history))
	for _, entry := range history {
		sender := SenderAssistant
		if entry.Role == "human" {
			sender = SenderUser
		}
		messages = append(messages, Message{Sender: sender, Text: entry.Content})
	}
	return messages, nil
}

// RenameChat renames a chat on the server and in the cached list. Blank names
// are rejected locally without a server round-trip.
func (s *SessionStore) RenameChat(ctx context.Context, chatID string, name string) error {
	ctx, span := tracer.Start(ctx, "rename chat")
	defer span.End()

	if strings.TrimSpace(name) == "" {
		return ErrInvalidInput
	}
	if s.service == nil {
		return errors.New("no chat service configured")
	}

	if err := s.service.RenameChat(ctx, chatID, name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.mu.Lock()
	for i := range s.chats {
		if s.chats[i].ID == chatID {
			s.chats[i].Name = name
		}
	}
	s.mu.Unlock()
	return nil
}

// DeleteChat removes a chat. Deleting the active chat leaves no chat active;
// the caller decides what to select next.
func (s *SessionStore) DeleteChat(ctx context.Context, chatID string) error {
	ctx, span := tracer.Start(ctx, "delete chat")
	defer span.End()

	if s.service == nil {
		return errors.New("no chat service configured")
	}

	if err := s.service.DeleteChat(ctx, chatID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.mu.Lock()
	chats := s.chats[:0]
	for _, chat := range s.chats {
		if chat.ID != chatID {
			chats = append(chats, chat)
		}
	}
	s.chats = chats
	if s.activeChatID == chatID {
		s.activeChatID = ""
	}
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) ActiveChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeChatID
}

func (s *SessionStore) Chats() []Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Chat(nil), s.chats...)
}

// Adopt records a chat id the server assigned to a message that was sent
// before any chat was active. The transcript is kept as-is; no reload happens.
func (s *SessionStore) Adopt(chatID string) {
	if chatID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeChatID == chatID {
		return
	}
	s.activeChatID = chatID
	for _, chat := range s.chats {
		if chat.ID == chatID {
			return
		}
	}
	s.chats = append(s.chats, Chat{ID: chatID})
}
