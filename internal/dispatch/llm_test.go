package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mrioja/flowd/internal/domain"
	"github.com/mrioja/flowd/internal/ports"
)

// fakeLLM routes completions through a configurable function.
type fakeLLM struct {
	fn func(ctx context.Context, system, user string) (*ports.LLMCompletion, error)
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (*ports.LLMCompletion, error) {
	return f.fn(ctx, system, user)
}

func testStep(id string) domain.Step {
	return domain.Step{
		ID:           id,
		Category:     domain.CategoryGeneral,
		Instructions: "do " + id,
		Priority:     5,
		OutputKind:   domain.OutputText,
	}
}

func TestDispatchSuccess(t *testing.T) {
	llm := &fakeLLM{fn: func(ctx context.Context, system, user string) (*ports.LLMCompletion, error) {
		if !strings.Contains(user, "do a") {
			t.Errorf("prompt missing instructions: %q", user)
		}
		return &ports.LLMCompletion{Content: "done", Model: "m", InputTokens: 10, OutputTokens: 20}, nil
	}}

	d := NewLLMDispatcher(llm, 2, nil, zap.NewNop())
	res, err := d.Dispatch(context.Background(), ports.DispatchRequest{Step: testStep("a")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.Output != "done" {
		t.Errorf("result = %+v", res)
	}
	if res.Usage == nil || res.Usage.InputTokens != 10 || res.Usage.OutputTokens != 20 {
		t.Errorf("usage = %+v", res.Usage)
	}
}

func TestDispatchPropagatesLLMError(t *testing.T) {
	llm := &fakeLLM{fn: func(ctx context.Context, system, user string) (*ports.LLMCompletion, error) {
		return nil, fmt.Errorf("rate limited")
	}}

	d := NewLLMDispatcher(llm, 1, nil, zap.NewNop())
	if _, err := d.Dispatch(context.Background(), ports.DispatchRequest{Step: testStep("a")}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDispatchSlotLimit(t *testing.T) {
	var mu sync.Mutex
	running, peak := 0, 0

	llm := &fakeLLM{fn: func(ctx context.Context, system, user string) (*ports.LLMCompletion, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return &ports.LLMCompletion{Content: "ok"}, nil
	}}

	d := NewLLMDispatcher(llm, 2, nil, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = d.Dispatch(context.Background(), ports.DispatchRequest{Step: testStep(fmt.Sprintf("s%d", i))})
		}(i)
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("peak concurrency %d exceeds slot count 2", peak)
	}
	status := d.Status()
	if status.Busy != 0 || status.Idle != 2 {
		t.Errorf("status after drain = %+v", status)
	}
}

func TestDispatchSlotWaitRespectsContext(t *testing.T) {
	release := make(chan struct{})
	llm := &fakeLLM{fn: func(ctx context.Context, system, user string) (*ports.LLMCompletion, error) {
		<-release
		return &ports.LLMCompletion{Content: "ok"}, nil
	}}

	d := NewLLMDispatcher(llm, 1, nil, zap.NewNop())

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = d.Dispatch(context.Background(), ports.DispatchRequest{Step: testStep("holder")})
	}()
	<-started
	time.Sleep(20 * time.Millisecond) // let the holder take the only slot

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := d.Dispatch(ctx, ports.DispatchRequest{Step: testStep("waiter")})
	if err == nil || !strings.Contains(err.Error(), "dispatcher slot") {
		t.Fatalf("err = %v, want slot wait error", err)
	}

	close(release)
}

func TestBuildStepPromptOrdersDependencies(t *testing.T) {
	deps := map[string]*domain.StepResult{
		"zeta":  {StepID: "zeta", Output: "z-out"},
		"alpha": {StepID: "alpha", Output: "a-out"},
	}

	prompt := buildStepPrompt(testStep("x"), deps)
	if strings.Index(prompt, "alpha") > strings.Index(prompt, "zeta") {
		t.Errorf("dependencies should appear in id order:\n%s", prompt)
	}
	if !strings.Contains(prompt, "a-out") || !strings.Contains(prompt, "z-out") {
		t.Errorf("prompt missing dependency outputs:\n%s", prompt)
	}
}

func TestMockDispatcher(t *testing.T) {
	res, err := NewMockDispatcher().Dispatch(context.Background(), ports.DispatchRequest{Step: testStep("a")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.StepID != "a" {
		t.Errorf("result = %+v", res)
	}
}
