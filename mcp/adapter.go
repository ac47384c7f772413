package mcp

import (
	"regexp"
	"strconv"
	"sync"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// maxSafeNameLen is the tool name limit shared by the provider APIs.
const maxSafeNameLen = 64

// NameAdapter handles mapping between MCP tool names (which may contain dots
// or other punctuation) and safe tool names accepted by every provider API.
// It is safe for concurrent use.
type NameAdapter struct {
	mu             sync.RWMutex
	safeToOriginal map[string]string
	originalToSafe map[string]string
}

// NewNameAdapter creates a new name adapter.
func NewNameAdapter() *NameAdapter {
	return &NameAdapter{
		safeToOriginal: make(map[string]string),
		originalToSafe: make(map[string]string),
	}
}

// ToSafeName converts an MCP tool name to a safe name by replacing every
// character outside [a-zA-Z0-9_-] with an underscore.
// Example: "gmail.messages.list" -> "gmail_messages_list"
func ToSafeName(original string) string {
	safe := unsafeNameChars.ReplaceAllString(original, "_")
	if len(safe) > maxSafeNameLen {
		safe = safe[:maxSafeNameLen]
	}
	return safe
}

// ToOriginalName converts a safe name back to the original MCP tool name.
// Names that were never registered are returned unchanged with ok=false.
func (a *NameAdapter) ToOriginalName(safe string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	original, ok := a.safeToOriginal[safe]
	if !ok {
		return safe, false
	}
	return original, true
}

// RegisterMapping registers a bidirectional mapping between original and safe names.
func (a *NameAdapter) RegisterMapping(original, safe string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.originalToSafe[original] = safe
	a.safeToOriginal[safe] = original
}

// GetSafeName returns the safe name for an original name, creating the mapping
// if needed. When two originals collapse to the same safe name, the later one
// gets a numeric suffix.
func (a *NameAdapter) GetSafeName(original string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if safe, ok := a.originalToSafe[original]; ok {
		return safe
	}

	base := ToSafeName(original)
	safe := base
	for n := 2; ; n++ {
		owner, taken := a.safeToOriginal[safe]
		if !taken || owner == original {
			break
		}
		suffix := "_" + strconv.Itoa(n)
		if len(base)+len(suffix) > maxSafeNameLen {
			safe = base[:maxSafeNameLen-len(suffix)] + suffix
		} else {
			safe = base + suffix
		}
	}

	a.originalToSafe[original] = safe
	a.safeToOriginal[safe] = original
	return safe
}

// Reset forgets every mapping.
func (a *NameAdapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.safeToOriginal = make(map[string]string)
	a.originalToSafe = make(map[string]string)
}
