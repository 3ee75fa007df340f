package chat

import (
	"context"
	"testing"
	"time"
)

type deadlineCheckingLLM struct {
	sawDeadline bool
}

func (d *deadlineCheckingLLM) Complete(ctx context.Context, _ LLMRequest) (LLMResponse, error) {
	_, d.sawDeadline = ctx.Deadline()
	return LLMResponse{Text: "ok"}, nil
}

func TestTimeoutClientSetsDeadline(t *testing.T) {
	inner := &deadlineCheckingLLM{}
	c := NewTimeoutLLMClient(inner, 5*time.Second)

	if _, err := c.Complete(context.Background(), LLMRequest{}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !inner.sawDeadline {
		t.Error("inner client saw no deadline")
	}
}

type blockingLLM struct{}

func (blockingLLM) Complete(ctx context.Context, _ LLMRequest) (LLMResponse, error) {
	<-ctx.Done()
	return LLMResponse{}, ctx.Err()
}

func TestTimeoutClientCancelsSlowCalls(t *testing.T) {
	c := NewTimeoutLLMClient(blockingLLM{}, 10*time.Millisecond)

	_, err := c.Complete(context.Background(), LLMRequest{})
	if err == nil {
		t.Fatal("Complete() error = nil, want a deadline error")
	}
}
