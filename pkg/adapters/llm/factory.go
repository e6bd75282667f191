// Package llm constructs provider-specific LLM clients.
package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mrioja/flowd/internal/config"
	"github.com/mrioja/flowd/internal/ports"
	"github.com/mrioja/flowd/pkg/adapters/llm/anthropic"
)

// Client joins the completion and synthesis ports; provider adapters satisfy
// both.
type Client interface {
	ports.LLMClient
	ports.Synthesizer
}

// NewClient creates an LLM client for the configured provider.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewClient(cfg.APIKey, cfg.DefaultModel, cfg.DefaultMaxTokens, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
