package models

// AgentRole is immutable metadata describing how a spawned agent behaves.
type AgentRole struct {
	// Name is the unique role name used for registry lookup.
	Name string `json:"name" yaml:"name"`
	// Description summarizes the role's purpose.
	Description string `json:"description" yaml:"description"`
	// Capabilities lists the high-level things this role is good at.
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	// Tools lists the tool names the role is permitted to use.
	Tools []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	// SystemPrompt is the prompt injected when an agent is spawned with
	// this role.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`
	// Model is the model tag the role prefers.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// Thinking is the thinking-depth tag (e.g. "none", "brief", "deep").
	Thinking string `json:"thinking,omitempty" yaml:"thinking,omitempty"`
	// Constraints lists optional behavioral constraints.
	Constraints []string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}
