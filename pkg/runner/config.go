package runner

import (
	"fmt"
	"time"
)

// PlatformConfig locates the platform and the runner credential.
type PlatformConfig struct {
	BaseURL     string `json:"base_url" yaml:"base_url"`
	RunnerToken string `json:"runner_token" yaml:"runner_token"`
	AgentID     string `json:"agent_id" yaml:"agent_id"`
}

// LLMConfig selects the model endpoint.
type LLMConfig struct {
	APIKey      string  `json:"api_key" yaml:"api_key"`
	Model       string  `json:"model" yaml:"model"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// RuntimeConfig tunes the cycle scheduler.
type RuntimeConfig struct {
	IntervalSec  int `json:"interval_sec" yaml:"interval_sec"`
	ContextLimit int `json:"context_limit" yaml:"context_limit"`
}

// ExecutionConfig holds the optional on-chain execution wallet.
type ExecutionConfig struct {
	PrivateKey string `json:"private_key,omitempty" yaml:"private_key,omitempty"`
	RPCURL     string `json:"rpc_url,omitempty" yaml:"rpc_url,omitempty"`
}

// PromptsConfig overrides the built-in prompt scaffolding.
type PromptsConfig struct {
	System   string `json:"system,omitempty" yaml:"system,omitempty"`
	Preamble string `json:"preamble,omitempty" yaml:"preamble,omitempty"`
}

// Config is the full runner configuration, grouped by concern.
type Config struct {
	Platform  PlatformConfig  `json:"platform" yaml:"platform"`
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Runtime   RuntimeConfig   `json:"runtime" yaml:"runtime"`
	Execution ExecutionConfig `json:"execution" yaml:"execution"`
	Prompts   PromptsConfig   `json:"prompts" yaml:"prompts"`
}

const (
	defaultIntervalSec  = 300
	defaultContextLimit = 20
	defaultModel        = "gpt-4o-mini"
)

// Normalize fills defaults in place and returns the config for chaining.
func (c Config) Normalize() Config {
	if c.Runtime.IntervalSec <= 0 {
		c.Runtime.IntervalSec = defaultIntervalSec
	}
	if c.Runtime.ContextLimit <= 0 {
		c.Runtime.ContextLimit = defaultContextLimit
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultModel
	}
	return c
}

// Validate reports the first missing required field.
func (c Config) Validate() error {
	switch {
	case c.Platform.BaseURL == "":
		return fmt.Errorf("runner: platform.base_url is required")
	case c.Platform.RunnerToken == "":
		return fmt.Errorf("runner: platform.runner_token is required")
	case c.Platform.AgentID == "":
		return fmt.Errorf("runner: platform.agent_id is required")
	case c.LLM.APIKey == "":
		return fmt.Errorf("runner: llm.api_key is required")
	}
	return nil
}

// Interval converts the configured cadence to a duration.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Runtime.IntervalSec) * time.Second
}

// Merge overlays patch onto base group-wise and returns a new config.
// A group present in the patch replaces the matching fields; zero-valued
// patch fields leave base untouched. Neither input is mutated.
func Merge(base, patch Config) Config {
	out := base

	if patch.Platform.BaseURL != "" {
		out.Platform.BaseURL = patch.Platform.BaseURL
	}
	if patch.Platform.RunnerToken != "" {
		out.Platform.RunnerToken = patch.Platform.RunnerToken
	}
	if patch.Platform.AgentID != "" {
		out.Platform.AgentID = patch.Platform.AgentID
	}

	if patch.LLM.APIKey != "" {
		out.LLM.APIKey = patch.LLM.APIKey
	}
	if patch.LLM.Model != "" {
		out.LLM.Model = patch.LLM.Model
	}
	if patch.LLM.BaseURL != "" {
		out.LLM.BaseURL = patch.LLM.BaseURL
	}
	if patch.LLM.Temperature != 0 {
		out.LLM.Temperature = patch.LLM.Temperature
	}
	if patch.LLM.MaxTokens != 0 {
		out.LLM.MaxTokens = patch.LLM.MaxTokens
	}

	if patch.Runtime.IntervalSec != 0 {
		out.Runtime.IntervalSec = patch.Runtime.IntervalSec
	}
	if patch.Runtime.ContextLimit != 0 {
		out.Runtime.ContextLimit = patch.Runtime.ContextLimit
	}

	if patch.Execution.PrivateKey != "" {
		out.Execution.PrivateKey = patch.Execution.PrivateKey
	}
	if patch.Execution.RPCURL != "" {
		out.Execution.RPCURL = patch.Execution.RPCURL
	}

	if patch.Prompts.System != "" {
		out.Prompts.System = patch.Prompts.System
	}
	if patch.Prompts.Preamble != "" {
		out.Prompts.Preamble = patch.Prompts.Preamble
	}

	return out
}
