// Package project manages the read-only project-context directory:
// .convoy/context.yaml, .convoy/rules.yaml, .convoy/architecture.md, and
// .convoy/agents/*.yaml (custom role definitions). The CLI init command
// creates the tree; everything else only reads it.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/convoy/internal/roles"
	"github.com/ShayCichocki/convoy/pkg/models"
)

// DirName is the well-known project-context directory name.
const DirName = ".convoy"

// Metadata is the parsed content of context.yaml.
type Metadata struct {
	// Name is the project name.
	Name string `yaml:"name"`
	// Description summarizes the project.
	Description string `yaml:"description,omitempty"`
	// DefaultRole is the role used when a task carries none.
	DefaultRole string `yaml:"default_role,omitempty"`
}

// Rules is the parsed content of rules.yaml.
type Rules struct {
	// Standards lists coding standards agents should follow.
	Standards []string `yaml:"standards,omitempty"`
	// Forbidden lists patterns agents must not introduce.
	Forbidden []string `yaml:"forbidden,omitempty"`
}

// Context is the loaded project context.
type Context struct {
	// Root is the project-context directory path.
	Root string
	// Metadata is the project metadata.
	Metadata Metadata
	// Rules are the coding standards.
	Rules Rules
	// Architecture is the free-text architecture document.
	Architecture string
	// CustomRoles are the role definitions from agents/*.yaml.
	CustomRoles []models.AgentRole
}

// Dir returns the project-context directory under the given root.
func Dir(root string) string {
	return filepath.Join(root, DirName)
}

// Exists reports whether the project-context directory exists.
func Exists(root string) bool {
	info, err := os.Stat(Dir(root))
	return err == nil && info.IsDir()
}

// Init creates the project-context directory tree with template files.
// Existing files are left alone.
func Init(root, projectName string) error {
	dir := Dir(root)
	if err := os.MkdirAll(filepath.Join(dir, "agents"), 0755); err != nil {
		return fmt.Errorf("create context directory: %w", err)
	}

	files := map[string]string{
		"context.yaml":    fmt.Sprintf("name: %s\ndescription: \"\"\ndefault_role: code-creator\n", projectName),
		"rules.yaml":      "standards: []\nforbidden: []\n",
		"architecture.md": "# Architecture\n\nDescribe the system here.\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the project context. Missing optional files yield zero
// values; a missing directory is an error.
func Load(root string) (*Context, error) {
	dir := Dir(root)
	if !Exists(root) {
		return nil, fmt.Errorf("project context not found at %s", dir)
	}

	ctx := &Context{Root: dir}

	if data, err := os.ReadFile(filepath.Join(dir, "context.yaml")); err == nil {
		if err := yaml.Unmarshal(data, &ctx.Metadata); err != nil {
			return nil, fmt.Errorf("parse context.yaml: %w", err)
		}
	}
	if data, err := os.ReadFile(filepath.Join(dir, "rules.yaml")); err == nil {
		if err := yaml.Unmarshal(data, &ctx.Rules); err != nil {
			return nil, fmt.Errorf("parse rules.yaml: %w", err)
		}
	}
	if data, err := os.ReadFile(filepath.Join(dir, "architecture.md")); err == nil {
		ctx.Architecture = string(data)
	}

	custom, err := roles.LoadCustomRoles(filepath.Join(dir, "agents"))
	if err != nil {
		return nil, fmt.Errorf("load custom roles: %w", err)
	}
	ctx.CustomRoles = custom

	return ctx, nil
}
