// Package agent defines the AI agent configuration model.
package agent

// Context is the read-only AI agent configuration attached to a
// conversation. It is snapshotted into each inbound message's metadata so
// the workflow runner sees exactly the configuration in effect when the
// message arrived.
type Context struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Model     string         `json:"model"`
	Prompt    string         `json:"system_prompt,omitempty"`
	Greeting  string         `json:"greeting_message,omitempty"`
	Behaviors map[string]any `json:"behaviors,omitempty"`
}
