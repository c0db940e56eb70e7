package core

import (
	"sync"

	"github.com/jinzhu/copier"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one entry in the visible conversation transcript.
type Message struct {
	Sender Sender
	Text   string
}

// conversation holds the transcript of the currently selected chat.
type conversation struct {
	mu       sync.Mutex
	messages []Message
}

func (c *conversation) Append(message Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
}

// Replace swaps the whole transcript, used when switching chats.
func (c *conversation) Replace(messages []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append([]Message(nil), messages...)
}

func (c *conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

func (c *conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	var messages []Message
	if err := copier.Copy(&messages, &c.messages); err != nil {
		messages = append([]Message(nil), c.messages...)
	}
	return messages
}
