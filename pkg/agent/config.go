package agent

import "fmt"

// Default agent settings.
const (
	ValidatorName       = "ValidatorAgent"
	DefaultMaxRetries   = 2
	DefaultVerboseAgent = true
)

// Config describes one agent. It is copied into the agent at construction and
// never changes afterwards.
type Config struct {
	Name       string
	MaxRetries int
	Verbose    bool
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("agent name must not be empty")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("agent %s: max_retries must be >= 0, got %d", c.Name, c.MaxRetries)
	}
	return nil
}
