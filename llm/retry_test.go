package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastPolicy(retries uint64) RetryPolicy {
	return RetryPolicy{
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsedTime:  time.Second,
	}
}

func TestWithRetry_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		calls++
		if calls < 3 {
			return nil, NewStatusError(503, "unavailable", nil)
		}
		return &Response{Content: []ContentBlock{{Type: ContentBlockTypeText, Text: "ok"}}}, nil
	})

	client := WithRetry(base, fastPolicy(5), zerolog.Nop())
	resp, err := client.Synchronous(context.Background(), &Request{Model: "m"})
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if resp.Text() != "ok" {
		t.Errorf("Expected response text ok, got %q", resp.Text())
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_DoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		calls++
		return nil, NewStatusError(401, "bad key", nil)
	})

	_, err := WithRetry(base, fastPolicy(5), zerolog.Nop()).Synchronous(context.Background(), &Request{})
	if err == nil {
		t.Fatal("Expected error")
	}
	var llmErr *Error
	if !errors.As(err, &llmErr) || llmErr.Type != ErrorTypeAuthentication {
		t.Errorf("Expected authentication error to pass through, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		calls++
		return nil, NewRateLimitError("slow down", nil, nil)
	})

	_, err := WithRetry(base, fastPolicy(2), zerolog.Nop()).Synchronous(context.Background(), &Request{})
	if !IsRateLimitError(err) {
		t.Fatalf("Expected last rate limit error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 1 call plus 2 retries, got %d", calls)
	}
}

func TestWithRetry_ZeroRetriesReturnsClient(t *testing.T) {
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) { return &Response{}, nil })
	if _, ok := WithRetry(base, RetryPolicy{}, zerolog.Nop()).(ClientFunc); !ok {
		t.Error("Expected zero-retry policy to return the client unchanged")
	}
}

func TestWithRetry_StopsOnContextCancel(t *testing.T) {
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return nil, NewNetworkError("down", nil)
	})
	policy := fastPolicy(10)
	policy.InitialInterval = time.Hour
	policy.MaxInterval = time.Hour
	policy.MaxElapsedTime = 0

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := WithRetry(base, policy, zerolog.Nop()).Synchronous(ctx, &Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestWrapWithMiddleware_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return MiddlewareFunc{
			BeforeRequestFunc: func(ctx context.Context, req *Request) (*Request, error) {
				order = append(order, "before:"+name)
				return req, nil
			},
			AfterResponseFunc: func(ctx context.Context, req *Request, resp *Response) (*Response, error) {
				order = append(order, "after:"+name)
				return resp, nil
			},
		}
	}
	base := ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		order = append(order, "call")
		return &Response{}, nil
	})

	if _, err := WrapWithMiddleware(base, mw("a"), mw("b"), NewLoggingMiddleware(zerolog.Nop(), ProviderGemini)).Synchronous(context.Background(), &Request{}); err != nil {
		t.Fatalf("Synchronous: %v", err)
	}
	want := []string{"before:a", "before:b", "call", "after:b", "after:a"}
	if len(order) != len(want) {
		t.Fatalf("Expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, order)
		}
	}
}
