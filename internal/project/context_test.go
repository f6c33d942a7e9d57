package project

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitCreatesTree(t *testing.T) {
	root := t.TempDir()

	if Exists(root) {
		t.Fatal("fresh directory must not have a project context")
	}
	if err := Init(root, "myproject"); err != nil {
		t.Fatal(err)
	}
	if !Exists(root) {
		t.Fatal("expected project context after init")
	}

	for _, name := range []string{"context.yaml", "rules.yaml", "architecture.md"} {
		if _, err := os.Stat(filepath.Join(Dir(root), name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	if info, err := os.Stat(filepath.Join(Dir(root), "agents")); err != nil || !info.IsDir() {
		t.Error("expected agents directory")
	}
}

func TestInitPreservesExistingFiles(t *testing.T) {
	root := t.TempDir()
	if err := Init(root, "first"); err != nil {
		t.Fatal(err)
	}

	custom := "name: handwritten\n"
	contextPath := filepath.Join(Dir(root), "context.yaml")
	if err := os.WriteFile(contextPath, []byte(custom), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Init(root, "second"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(contextPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != custom {
		t.Error("init must not overwrite existing files")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	if err := Init(root, "myproject"); err != nil {
		t.Fatal(err)
	}

	roleYAML := `name: db-migrator
description: Writes database migrations
system_prompt: You write migrations.
`
	if err := os.WriteFile(filepath.Join(Dir(root), "agents", "db-migrator.yaml"), []byte(roleYAML), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Metadata.Name != "myproject" {
		t.Errorf("expected project name round trip, got %q", ctx.Metadata.Name)
	}
	if ctx.Metadata.DefaultRole != "code-creator" {
		t.Errorf("expected default role, got %q", ctx.Metadata.DefaultRole)
	}
	if ctx.Architecture == "" {
		t.Error("expected architecture text")
	}
	if len(ctx.CustomRoles) != 1 || ctx.CustomRoles[0].Name != "db-migrator" {
		t.Errorf("expected custom role loaded, got %v", ctx.CustomRoles)
	}
}

func TestLoadMissingContext(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing project context")
	}
}
