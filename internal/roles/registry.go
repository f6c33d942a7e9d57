// Package roles holds the registry of agent roles: the seven built-in
// roles plus any custom roles loaded from the project context. The
// registry is read-only after load; reloading requires rebuilding it.
package roles

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/convoy/pkg/models"
)

// Registry maps role names to immutable role metadata.
type Registry struct {
	roles map[string]models.AgentRole
}

// NewRegistry builds a registry from the built-in roles plus any custom
// roles. A custom role with the same name as a built-in overrides it.
func NewRegistry(custom []models.AgentRole) *Registry {
	r := &Registry{roles: make(map[string]models.AgentRole)}
	for _, role := range Builtin() {
		r.roles[role.Name] = role
	}
	for _, role := range custom {
		r.roles[role.Name] = role
	}
	return r
}

// Get returns the role for the given name, or nil if unknown.
func (r *Registry) Get(name string) *models.AgentRole {
	role, ok := r.roles[name]
	if !ok {
		return nil
	}
	return &role
}

// Names returns all registered role names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.roles))
	for name := range r.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered role, sorted by name.
func (r *Registry) All() []models.AgentRole {
	out := make([]models.AgentRole, 0, len(r.roles))
	for _, name := range r.Names() {
		out = append(out, r.roles[name])
	}
	return out
}

// Size returns the number of registered roles.
func (r *Registry) Size() int {
	return len(r.roles)
}

// LoadCustomRoles reads custom role definitions from agents/*.yaml files
// under the given directory. A missing directory yields no roles and no
// error.
func LoadCustomRoles(dir string) ([]models.AgentRole, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading roles directory %s: %w", dir, err)
	}

	var roles []models.AgentRole
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading role file %s: %w", name, err)
		}

		var role models.AgentRole
		if err := yaml.Unmarshal(data, &role); err != nil {
			return nil, fmt.Errorf("parsing role file %s: %w", name, err)
		}
		if role.Name == "" {
			return nil, fmt.Errorf("role file %s: missing name", name)
		}
		roles = append(roles, role)
	}
	return roles, nil
}
