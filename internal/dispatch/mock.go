package dispatch

import (
	"context"
	"fmt"

	"github.com/mrioja/flowd/internal/domain"
	"github.com/mrioja/flowd/internal/ports"
)

// MockDispatcher reports success with placeholder output for every step.
// Useful for exercising the executor without any real backend.
type MockDispatcher struct{}

// NewMockDispatcher creates a no-op dispatcher.
func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

// Dispatch returns a successful placeholder result.
func (d *MockDispatcher) Dispatch(_ context.Context, req ports.DispatchRequest) (*domain.StepResult, error) {
	return &domain.StepResult{
		StepID:  req.Step.ID,
		Success: true,
		Output:  fmt.Sprintf("mock output for step %s", req.Step.ID),
	}, nil
}
