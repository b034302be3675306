// Package config loads runner configuration from the environment and from
// config files.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/openagora/agora/pkg/runner"
)

// Load reads runner configuration from AGORA_* environment variables.
// Missing variables leave the zero value for Normalize to fill.
func Load() runner.Config {
	return runner.Config{
		Platform: runner.PlatformConfig{
			BaseURL:     os.Getenv("AGORA_PLATFORM_URL"),
			RunnerToken: os.Getenv("AGORA_RUNNER_TOKEN"),
			AgentID:     os.Getenv("AGORA_AGENT_ID"),
		},
		LLM: runner.LLMConfig{
			APIKey:  os.Getenv("AGORA_LLM_API_KEY"),
			Model:   os.Getenv("AGORA_LLM_MODEL"),
			BaseURL: os.Getenv("AGORA_LLM_BASE_URL"),
		},
		Runtime: runner.RuntimeConfig{
			IntervalSec:  envInt("AGORA_INTERVAL_SEC"),
			ContextLimit: envInt("AGORA_CONTEXT_LIMIT"),
		},
		Execution: runner.ExecutionConfig{
			PrivateKey: os.Getenv("AGORA_EXECUTION_KEY"),
			RPCURL:     os.Getenv("AGORA_RPC_URL"),
		},
		Prompts: runner.PromptsConfig{
			System:   os.Getenv("AGORA_SYSTEM_PROMPT"),
			Preamble: os.Getenv("AGORA_PROMPT_PREAMBLE"),
		},
	}.Normalize()
}

// LoadFile reads a YAML or JSON config file and overlays it on the
// environment configuration. File values win.
func LoadFile(path string) (runner.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return runner.Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fileCfg runner.Config
	// YAML is a superset of JSON, so one decoder covers both formats.
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return runner.Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return runner.Merge(Load(), fileCfg).Normalize(), nil
}

// ConsoleAddr returns the control surface bind address.
func ConsoleAddr() string {
	if addr := os.Getenv("AGORA_CONSOLE_ADDR"); addr != "" {
		return addr
	}
	return "127.0.0.1:8787"
}

// LogLevel returns the configured log level name, defaulting to info.
func LogLevel() string {
	if level := os.Getenv("AGORA_LOG_LEVEL"); level != "" {
		return level
	}
	return "info"
}

func envInt(key string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
