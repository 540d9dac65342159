// Package agent provides the research agents and the resilient chat client
// they talk to models through.
//
// The package is organized as follows:
//   - Config describes one agent (name, retry budget, verbosity)
//   - ChatClient sends a message list and returns the model's text
//   - Factory builds a ChatClient over a provider adapter and the middleware chain
//   - ValidatorAgent rates a research article for a topic
//
// Provider adapters live under internal/llmimpl and are selected by Factory.
package agent
