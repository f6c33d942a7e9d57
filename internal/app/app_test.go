package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/convoy/internal/config"
	"github.com/ShayCichocki/convoy/internal/engine"
	"github.com/ShayCichocki/convoy/internal/project"
	"github.com/ShayCichocki/convoy/internal/spawn"
	"github.com/ShayCichocki/convoy/pkg/models"
)

// okSpawner accepts everything.
type okSpawner struct{}

func (okSpawner) Spawn(ctx context.Context, req spawn.Request) (spawn.Result, error) {
	return spawn.Result{Status: spawn.StatusAccepted, ChildSessionKey: "k"}, nil
}

func TestNewWithDefaults(t *testing.T) {
	a, err := New(nil, Options{Spawner: okSpawner{}})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.Engine == nil || a.Runtime == nil || a.Security == nil || a.Orchestrator == nil {
		t.Fatal("expected all components wired")
	}
	if a.Roles.Size() != 7 {
		t.Errorf("expected built-in roles only, got %d", a.Roles.Size())
	}
}

func TestNewWithSQLiteBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "convoy.db")

	a, err := New(cfg, Options{Spawner: okSpawner{}})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	// The engine persists through the sqlite store.
	task, err := a.Engine.CreateTask(engine.CreateRequest{Description: "persist me"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := a.Engine.Get(task.ID)
	if err != nil || got == nil {
		t.Fatalf("expected persisted task, got %v, %v", got, err)
	}
}

func TestNewWithProjectRoles(t *testing.T) {
	root := t.TempDir()
	if err := project.Init(root, "test"); err != nil {
		t.Fatal(err)
	}
	roleYAML := "name: extra-role\ndescription: extra\nsystem_prompt: extra\n"
	if err := os.WriteFile(filepath.Join(project.Dir(root), "agents", "extra.yaml"), []byte(roleYAML), 0644); err != nil {
		t.Fatal(err)
	}

	a, err := New(nil, Options{Spawner: okSpawner{}, ProjectRoot: root})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.Roles.Size() != 8 {
		t.Errorf("expected 7 built-ins + 1 custom, got %d", a.Roles.Size())
	}
}

func TestNewRemoteModeRequiresBaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = "remote-enabled"
	if _, err := New(cfg, Options{Spawner: okSpawner{}}); err == nil {
		t.Error("expected error for remote mode without base url")
	}
}

func TestEndToEndWorkflowThroughApp(t *testing.T) {
	a, err := New(nil, Options{Spawner: okSpawner{}})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	wf, err := a.Orchestrator.CreateWorkflow([]models.Step{
		{Role: "architecture-advisor", Description: "design"},
		{Role: "code-creator", Description: "build", DependsOn: []string{"design"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	done, err := a.Orchestrator.ExecuteWorkflow(context.Background(), wf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != models.WorkflowCompleted {
		t.Errorf("expected completed workflow, got %s", done.Status)
	}
}
