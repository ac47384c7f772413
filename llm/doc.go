// Package llm provides a provider-neutral abstraction layer for Large Language Model (LLM) APIs.
//
// This package defines common types, interfaces, and utilities that allow the gateway
// to talk to Gemini, Claude, ChatGPT and Ollama without the turn logic being coupled
// to any specific provider's SDK.
//
// # Core Concepts
//
//  1. Messages: The Message type represents a conversation message with role (user, assistant, system)
//     and content blocks (text, tool use, tool results).
//
//  2. Tools: The ToolSpec type represents a tool definition that can be provided to an LLM,
//     and ToolUseBlock/ToolResultBlock represent tool invocations and their results.
//
//  3. Client Interface: The Client interface provides Synchronous(). Each provider package
//     implements it and owns the translation to and from its wire format.
//
//  4. Outcomes: OutcomeFromResponse collapses a Response into a TurnOutcome, either a
//     direct answer or the first tool call the provider emitted.
//
//  5. Middleware: The Middleware interface allows adding cross-cutting concerns like
//     logging without modifying provider implementations. WithRetry and WithTimeout wrap
//     a Client with backoff retries and per-call deadlines.
//
//  6. Errors: The Error type provides provider-neutral error handling with support for
//     rate limits, retryable errors, and provider-specific error details.
//
//  7. Registry: ProviderRegistry resolves requested provider ids (falling back to the
//     default provider) and reports whether credentials are present.
//
// Usage Example
//
//	client := llm.WrapWithMiddleware(
//	    baseClient,
//	    llm.NewLoggingMiddleware(logger, llm.ProviderAnthropic),
//	)
//	client = llm.WithRetry(client, llm.DefaultRetryPolicy(), logger)
//
//	req := &llm.Request{
//	    Model: "claude-3-5-sonnet-20241022",
//	    Messages: []llm.Message{
//	        llm.NewTextMessage(llm.RoleUser, "Hello!"),
//	    },
//	}
//
//	resp, err := client.Synchronous(ctx, req)
//	outcome := llm.OutcomeFromResponse(resp)
//
// # Extension Points
//
// To add a new LLM provider:
//  1. Implement the Client interface
//  2. Translate between provider-specific types and llm package types
//  3. Keep response blocks in the provider's order so the first tool call stays first
//  4. Handle provider-specific errors and translate to llm.Error types
package llm
