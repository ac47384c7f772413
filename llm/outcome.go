package llm

// OutcomeKind tags a TurnOutcome.
type OutcomeKind string

const (
	// OutcomeDirectAnswer means the provider answered in text with no tool call.
	OutcomeDirectAnswer OutcomeKind = "direct_answer"
	// OutcomeToolCall means the provider asked for a tool invocation.
	OutcomeToolCall OutcomeKind = "tool_call"
)

// TurnOutcome is the normalized result of one provider exchange:
// either DirectAnswer(Text) or ToolCall(Call). Provider adapters emit
// responses whose blocks keep the provider's order, so every provider's
// tool-call detection (function call parts, tool_use blocks, tool_calls
// lists) collapses into this one shape.
type TurnOutcome struct {
	Kind OutcomeKind

	// Text is the assistant text of the response. It can be set on a
	// ToolCall outcome too when the provider narrated before calling.
	Text string

	// Call is the selected tool call; nil for DirectAnswer.
	Call *ToolUseBlock

	// CandidateCalls is how many tool calls the provider emitted in total.
	CandidateCalls int
}

// IsToolCall reports whether the outcome requests a tool invocation.
func (o TurnOutcome) IsToolCall() bool {
	return o.Kind == OutcomeToolCall && o.Call != nil
}

// OutcomeFromResponse classifies a provider response. The first tool use
// block wins; later ones are only counted.
func OutcomeFromResponse(resp *Response) TurnOutcome {
	uses := resp.ToolUses()
	out := TurnOutcome{
		Kind:           OutcomeDirectAnswer,
		Text:           resp.Text(),
		CandidateCalls: len(uses),
	}
	if len(uses) > 0 {
		first := uses[0]
		if first.Input == nil {
			first.Input = map[string]interface{}{}
		}
		out.Kind = OutcomeToolCall
		out.Call = &first
	}
	return out
}
