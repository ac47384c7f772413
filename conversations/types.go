// Package conversations stores chat turns. Gateway talks to the conversation
// backend over REST; Store is a SQLite implementation of that backend.
package conversations

import (
	"errors"
	"fmt"
	"time"

	"github.com/aschepis/backscratcher/toolchat/chat"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// NewMessage is a message as sent to the backend.
// LLMProvider and ToolResults are only set on assistant messages.
type NewMessage struct {
	Role        string            `json:"role"`
	Content     interface{}       `json:"content"`
	LLMProvider *string           `json:"llmProvider"`
	ToolResults []chat.ToolResult `json:"toolResults"`
}

// StoredMessage is a message as returned by the backend.
type StoredMessage struct {
	ID string `json:"id"`
	NewMessage
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation is the metadata of a stored conversation.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Title     string    `json:"title"`
	LastLLM   string    `json:"lastLLM"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary is one entry of a conversation listing.
type Summary struct {
	Conversation
	MessageCount int `json:"messageCount"`
}

// Detail is a conversation with its messages in order.
type Detail struct {
	Conversation Conversation    `json:"conversation"`
	Messages     []StoredMessage `json:"messages"`
}

// CreateRequest creates a conversation seeded with messages.
type CreateRequest struct {
	UserID   string       `json:"userId"`
	Title    string       `json:"title"`
	LastLLM  string       `json:"lastLLM"`
	Messages []NewMessage `json:"messages,omitempty"`
}

// UpdateRequest patches conversation metadata. Nil fields are left unchanged.
type UpdateRequest struct {
	Title   *string `json:"title,omitempty"`
	LastLLM *string `json:"lastLLM,omitempty"`
}

// PersistenceError is a failed backend call.
type PersistenceError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *PersistenceError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError reports whether err is a failed backend call.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
