package conversations

import (
	"strings"

	"github.com/aschepis/backscratcher/toolchat/chat"
)

const (
	titleWords   = 6
	defaultTitle = "New Conversation"
)

// Title derives a conversation title from the first message content: its
// first six space-separated words, followed by "..." when there are more.
// Only the space character separates words; newlines and tabs stay inside
// a word.
func Title(content interface{}) string {
	text, err := chat.ContentText(content)
	if err != nil || strings.TrimSpace(text) == "" {
		return defaultTitle
	}
	words := strings.Split(text, " ")
	if len(words) <= titleWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:titleWords], " ") + "..."
}
