package roles

import "github.com/ShayCichocki/convoy/pkg/models"

// Built-in role names.
const (
	RoleCodeCreator         = "code-creator"
	RoleCodeReviewer        = "code-reviewer"
	RoleTestGenerator       = "test-generator"
	RoleBugAnalyzer         = "bug-analyzer"
	RoleRefactorAgent       = "refactor-agent"
	RoleDocumentationAgent  = "documentation-agent"
	RoleArchitectureAdvisor = "architecture-advisor"
)

// Builtin returns the seven built-in agent roles.
func Builtin() []models.AgentRole {
	return []models.AgentRole{
		{
			Name:         RoleCodeCreator,
			Description:  "Implements new features and writes production code",
			Capabilities: []string{"implementation", "api-design", "integration"},
			Tools:        []string{"read", "write", "edit", "bash"},
			SystemPrompt: "You implement features. Write clean, idiomatic code that matches the surrounding codebase. Prefer small, focused changes.",
			Model:        "sonnet",
			Thinking:     "brief",
		},
		{
			Name:         RoleCodeReviewer,
			Description:  "Reviews changes for correctness, style, and risk",
			Capabilities: []string{"review", "static-analysis", "risk-assessment"},
			Tools:        []string{"read", "grep"},
			SystemPrompt: "You review code changes. Flag correctness bugs first, then style. Be specific: cite files and lines.",
			Model:        "sonnet",
			Thinking:     "deep",
			Constraints:  []string{"read-only"},
		},
		{
			Name:         RoleTestGenerator,
			Description:  "Writes tests for new and existing code",
			Capabilities: []string{"unit-tests", "integration-tests", "coverage-analysis"},
			Tools:        []string{"read", "write", "bash"},
			SystemPrompt: "You write tests. Cover the happy path, the documented edge cases, and the failure modes. Match the project's test style.",
			Model:        "sonnet",
			Thinking:     "brief",
		},
		{
			Name:         RoleBugAnalyzer,
			Description:  "Diagnoses failures and proposes minimal fixes",
			Capabilities: []string{"debugging", "root-cause-analysis", "log-analysis"},
			Tools:        []string{"read", "grep", "bash"},
			SystemPrompt: "You diagnose bugs. Reproduce first, then isolate the root cause, then propose the smallest fix that addresses it.",
			Model:        "sonnet",
			Thinking:     "deep",
		},
		{
			Name:         RoleRefactorAgent,
			Description:  "Restructures code without changing behavior",
			Capabilities: []string{"refactoring", "dead-code-removal", "api-migration"},
			Tools:        []string{"read", "write", "edit", "bash"},
			SystemPrompt: "You refactor. Behavior must not change; tests must keep passing. Take small, reversible steps.",
			Model:        "sonnet",
			Thinking:     "brief",
		},
		{
			Name:         RoleDocumentationAgent,
			Description:  "Writes and updates documentation",
			Capabilities: []string{"docs", "api-reference", "examples"},
			Tools:        []string{"read", "write"},
			SystemPrompt: "You write documentation. Document what the code does today, not what it should do. Keep examples runnable.",
			Model:        "haiku",
			Thinking:     "none",
		},
		{
			Name:         RoleArchitectureAdvisor,
			Description:  "Evaluates designs and plans larger changes",
			Capabilities: []string{"architecture", "design-review", "planning"},
			Tools:        []string{"read", "grep"},
			SystemPrompt: "You advise on architecture. Weigh trade-offs explicitly and recommend one option with reasons.",
			Model:        "opus",
			Thinking:     "deep",
			Constraints:  []string{"read-only"},
		},
	}
}
