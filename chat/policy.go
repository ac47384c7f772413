package chat

// ToolCallPolicy bounds how many tool calls of a single provider response
// are executed in one turn. Calls beyond the limit are logged and dropped,
// and the turn always makes at most one follow-up provider request.
type ToolCallPolicy struct {
	MaxCallsPerTurn int
}

// FirstToolCallOnly executes only the first tool call a provider emits.
var FirstToolCallOnly = ToolCallPolicy{MaxCallsPerTurn: 1}

func (p ToolCallPolicy) limit(candidates int) int {
	n := p.MaxCallsPerTurn
	if n < 1 {
		n = 1
	}
	return min(candidates, n)
}
