// Package app is the composition root: it wires configuration, logging,
// storage, the task engine, the spawn collaborator, the transport
// adapter, the security service, and the orchestrator into one runnable
// application. Embedders build an App instead of assembling the pieces
// by hand.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ShayCichocki/convoy/internal/config"
	"github.com/ShayCichocki/convoy/internal/engine"
	"github.com/ShayCichocki/convoy/internal/logging"
	"github.com/ShayCichocki/convoy/internal/orchestrator"
	"github.com/ShayCichocki/convoy/internal/project"
	"github.com/ShayCichocki/convoy/internal/roles"
	"github.com/ShayCichocki/convoy/internal/runtime"
	"github.com/ShayCichocki/convoy/internal/security"
	"github.com/ShayCichocki/convoy/internal/spawn"
	"github.com/ShayCichocki/convoy/internal/store"
	"github.com/ShayCichocki/convoy/internal/transport"

	"github.com/anthropics/anthropic-sdk-go"
)

// App bundles the wired components.
type App struct {
	Config       *config.Config
	Log          *zap.Logger
	Tasks        store.TaskStore
	Engine       *engine.Engine
	Roles        *roles.Registry
	Runtime      *runtime.Runtime
	Security     *security.Service
	Orchestrator *orchestrator.Orchestrator
}

// Options overrides parts of the wiring, mainly for tests and embedders.
type Options struct {
	// Spawner replaces the Anthropic-backed spawn collaborator.
	Spawner spawn.Spawner
	// ProjectRoot, when set, loads custom roles from the project context.
	ProjectRoot string
}

// New builds an App from configuration.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	tasks, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	eng := engine.New(tasks, engine.WithLogger(log.Named("engine")))

	registry, err := loadRoles(opts.ProjectRoot)
	if err != nil {
		return nil, err
	}

	spawner := opts.Spawner
	if spawner == nil {
		client, err := spawn.NewClient(spawn.ClientConfig{
			Model:         anthropic.Model(cfg.Anthropic.Model),
			APIKey:        cfg.Anthropic.APIKey,
			UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		}, log.Named("spawn"))
		if err != nil {
			return nil, fmt.Errorf("create spawn client: %w", err)
		}
		spawner = client
	}

	adapter, mode, err := buildAdapter(cfg, eng, spawner, registry, log)
	if err != nil {
		return nil, err
	}

	secOpts := []security.Option{
		security.WithLogger(log.Named("security")),
	}
	if cfg.Security.SessionTTL > 0 {
		secOpts = append(secOpts, security.WithSessionTTL(cfg.Security.SessionTTL))
	}
	if cfg.Security.TokenSecret != "" {
		secOpts = append(secOpts, security.WithTokenSecret([]byte(cfg.Security.TokenSecret)))
	}

	return &App{
		Config:       cfg,
		Log:          log,
		Tasks:        tasks,
		Engine:       eng,
		Roles:        registry,
		Runtime:      runtime.New(adapter, tasks, mode, log.Named("runtime")),
		Security:     security.NewService(secOpts...),
		Orchestrator: orchestrator.New(eng, spawner, orchestrator.WithLogger(log.Named("orchestrator"))),
	}, nil
}

// Close releases the app's resources.
func (a *App) Close() error {
	err := a.Runtime.Close()
	if storeErr := a.Tasks.Close(); err == nil {
		err = storeErr
	}
	a.Log.Sync()
	return err
}

// openStore selects the task store backend from configuration.
func openStore(cfg *config.Config) (store.TaskStore, error) {
	switch cfg.Storage.Backend {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		if cfg.Storage.Path == "" {
			return nil, fmt.Errorf("storage.path required for sqlite backend")
		}
		return store.OpenSQLite(cfg.Storage.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// loadRoles builds the role registry, folding in custom roles from the
// project context when a root is given.
func loadRoles(projectRoot string) (*roles.Registry, error) {
	if projectRoot == "" || !project.Exists(projectRoot) {
		return roles.NewRegistry(nil), nil
	}
	ctx, err := project.Load(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("load project context: %w", err)
	}
	return roles.NewRegistry(ctx.CustomRoles), nil
}

// buildAdapter selects the transport from the deployment mode.
func buildAdapter(cfg *config.Config, eng *engine.Engine, spawner spawn.Spawner, registry *roles.Registry, log *zap.Logger) (transport.Adapter, runtime.Mode, error) {
	switch cfg.Mode {
	case "", string(runtime.ModeLocalOnly):
		adapter := transport.NewLocalAdapter(eng, spawner, registry,
			transport.WithLocalLogger(log.Named("transport")))
		return adapter, runtime.ModeLocalOnly, nil
	case string(runtime.ModeRemoteEnabled), string(runtime.ModeDistributedCluster):
		if cfg.Remote.BaseURL == "" {
			return nil, "", fmt.Errorf("remote.base_url required for %s mode", cfg.Mode)
		}
		remoteOpts := []transport.RemoteOption{
			transport.WithRemoteLogger(log.Named("transport")),
		}
		if cfg.Remote.PollInterval > 0 {
			remoteOpts = append(remoteOpts, transport.WithPollInterval(cfg.Remote.PollInterval))
		}
		if cfg.Remote.RequestTimeout > 0 {
			remoteOpts = append(remoteOpts, transport.WithRequestTimeout(cfg.Remote.RequestTimeout))
		}
		adapter := transport.NewRemoteAdapter(cfg.Remote.BaseURL, remoteOpts...)
		return adapter, runtime.Mode(cfg.Mode), nil
	default:
		return nil, "", fmt.Errorf("unknown deployment mode: %s", cfg.Mode)
	}
}
