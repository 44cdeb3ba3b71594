// Package daemon assembles the tool-execution pipeline: storage, providers,
// policy, approvals, runtimes, and the control-plane server.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RhysSullivan/assistant-sub002/internal/config"
	"github.com/RhysSullivan/assistant-sub002/internal/logger"
	"github.com/RhysSullivan/assistant-sub002/internal/metrics"
	"github.com/RhysSullivan/assistant-sub002/internal/notify"
	"github.com/RhysSullivan/assistant-sub002/internal/observability"
	"github.com/RhysSullivan/assistant-sub002/internal/secrets"
	"github.com/RhysSullivan/assistant-sub002/internal/server"
	"github.com/RhysSullivan/assistant-sub002/internal/store"
	"github.com/RhysSullivan/assistant-sub002/pkg/approval"
	"github.com/RhysSullivan/assistant-sub002/pkg/openapi"
	"github.com/RhysSullivan/assistant-sub002/pkg/policy"
	"github.com/RhysSullivan/assistant-sub002/pkg/provider"
	"github.com/RhysSullivan/assistant-sub002/pkg/runtime"
	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// Daemon owns every long-lived component and their startup order.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	store       *store.Store
	providers   *provider.Registry
	resolver    *policy.Resolver
	ruleFile    *policy.FileSource
	approvals   *approval.Coordinator
	sweeper     *approval.Sweeper
	registry    *runtime.Registry
	runTable    *runtime.RunTable
	broadcaster *notify.Broadcaster
	metrics     *metrics.Metrics
	server      *server.Server

	mu        sync.Mutex
	running   bool
	startTime time.Time
}

// Status describes the daemon's runtime state.
type Status struct {
	Running bool
	PID     int
	Uptime  time.Duration
}

// New wires the pipeline from configuration. Nothing is started yet.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	secretResolver := secrets.NewStaticResolver()
	for _, src := range cfg.Sources {
		if src.SecretKey != "" && len(src.Headers) > 0 {
			secretResolver.Set(src.SecretKey, src.Headers)
		}
	}

	providers := provider.NewRegistry()
	if err := providers.Register(provider.NewHTTPProvider(secretResolver)); err != nil {
		return nil, err
	}
	if err := providers.Register(provider.NewMCPProvider()); err != nil {
		return nil, err
	}
	if err := providers.Register(provider.NewGraphProvider(secretResolver)); err != nil {
		return nil, err
	}
	if err := providers.Register(provider.NewMemoryProvider()); err != nil {
		return nil, err
	}

	// Rules persist in sqlite; an optional file tier is watched and
	// hot-reloaded on top.
	var ruleSource policy.RuleSource = st
	var ruleFile *policy.FileSource
	if cfg.Policy.RulesFile != "" {
		ruleFile, err = policy.NewFileSource(cfg.Policy.RulesFile)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to load policy rules file: %w", err)
		}
		ruleSource = policy.NewMultiSource(st, ruleFile)
	}
	resolver := policy.NewResolver(ruleSource)

	broadcaster := notify.NewBroadcaster()
	var forwarder approval.Forwarder
	if cfg.Approvals.ForwardToSocket {
		forwarder = broadcaster
	}
	approvals := approval.NewCoordinator(st, forwarder, approval.Options{
		TTL:        time.Duration(cfg.Approvals.TTLMinutes) * time.Minute,
		RetryAfter: time.Duration(cfg.Approvals.RetryAfterSecs) * time.Second,
	})
	sweeper := approval.NewSweeper(approvals, cfg.Approvals.SweepSchedule)

	registry := runtime.NewRegistry(resolver, approvals, providers, runtime.Options{
		DefaultTimeout:    time.Duration(cfg.Runtimes.DefaultTimeoutMs) * time.Millisecond,
		MaxPendingRetries: cfg.Runtimes.MaxPendingRetries,
	})
	runTable := runtime.NewRunTable()
	if err := registry.Register(runtime.NewInProcessAdapter()); err != nil {
		st.Close()
		return nil, err
	}
	if err := registry.Register(runtime.NewWorkerAdapter()); err != nil {
		st.Close()
		return nil, err
	}
	if err := registry.Register(runtime.NewSubprocessAdapter(runtime.SubprocessConfig{
		Command:   cfg.Runtimes.Subprocess.Command,
		Args:      cfg.Runtimes.Subprocess.Args,
		KillGrace: time.Duration(cfg.Runtimes.Subprocess.KillGraceSeconds) * time.Second,
	})); err != nil {
		st.Close()
		return nil, err
	}
	if err := registry.Register(runtime.NewRemoteAdapter(runtime.RemoteConfig{
		ExecutorURL:     cfg.Runtimes.Remote.ExecutorURL,
		CallbackBaseURL: cfg.Server.PublicBaseURL,
	}, runTable)); err != nil {
		st.Close()
		return nil, err
	}

	m := metrics.NewMetrics()
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, runTable, approvals, broadcaster, m)

	return &Daemon{
		config:      cfg,
		logger:      log,
		store:       st,
		providers:   providers,
		resolver:    resolver,
		ruleFile:    ruleFile,
		approvals:   approvals,
		sweeper:     sweeper,
		registry:    registry,
		runTable:    runTable,
		broadcaster: broadcaster,
		metrics:     m,
		server:      srv,
	}, nil
}

// Start refreshes tool sources, starts the sweeper, and serves the control
// plane until the listener fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := observability.InitAuditLogger(filepath.Join(d.config.DataDir, "audit.log")); err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	if err := d.refreshSources(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Tool source refresh failed")
	}
	if err := d.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start approval sweeper: %w", err)
	}
	if d.ruleFile != nil {
		if err := d.ruleFile.Watch(ctx); err != nil {
			return fmt.Errorf("failed to watch policy rules file: %w", err)
		}
	}

	d.logger.Info().
		Str("store", d.config.Store.Path).
		Int("sources", len(d.config.Sources)).
		Msg("Daemon started")
	return d.server.Start()
}

// Stop shuts down in reverse startup order.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	if err := d.server.Shutdown(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Server shutdown failed")
	}
	d.sweeper.Stop()
	d.broadcaster.Close()
	if err := d.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// Status reports whether the daemon is running and for how long.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Status{Running: d.running, PID: os.Getpid()}
	if d.running {
		s.Uptime = time.Since(d.startTime)
	}
	return s
}

// Registry exposes the runtime registry for embedding callers.
func (d *Daemon) Registry() *runtime.Registry { return d.registry }

// Store exposes persistence for embedding callers.
func (d *Daemon) Store() *store.Store { return d.store }

// refreshSources discovers tools for every configured source. HTTP sources
// with a spec path go through the OpenAPI extractor so unchanged specs are
// detected by content hash and reused.
func (d *Daemon) refreshSources(ctx context.Context) error {
	extractor := openapi.NewExtractor()
	for _, src := range d.config.Sources {
		source := tool.Source{
			ID:          src.ID,
			WorkspaceID: src.WorkspaceID,
			Kind:        tool.ProviderKind(src.Kind),
			Name:        src.Name,
			BaseURL:     src.BaseURL,
			SecretKey:   src.SecretKey,
		}

		if src.Kind == "http" && src.SpecPath != "" {
			spec, err := os.ReadFile(src.SpecPath)
			if err != nil {
				return fmt.Errorf("source %s: %w", src.ID, err)
			}
			result, err := extractor.RefreshArtifact(ctx, source, spec, d.store)
			if err != nil {
				return fmt.Errorf("source %s: %w", src.ID, err)
			}
			d.logger.Info().
				Str("source_id", src.ID).
				Bool("reused", result.Reused).
				Msg("Tool artifact refreshed")
			continue
		}

		manifest, err := d.providers.DiscoverFromSource(ctx, source)
		if err != nil {
			return fmt.Errorf("source %s: %w", src.ID, err)
		}
		reused, err := d.persistDiscovery(ctx, source, manifest)
		if err != nil {
			return fmt.Errorf("source %s: %w", src.ID, err)
		}
		d.logger.Info().
			Str("source_id", src.ID).
			Int("tools", len(manifest.Tools)).
			Bool("reused", reused).
			Msg("Tool source discovered")
	}
	return nil
}

// persistDiscovery stores a discovered manifest through the artifact store
// so non-OpenAPI sources survive restarts the same way extracted ones do.
// An unchanged manifest keeps the stored artifact and reports reuse.
func (d *Daemon) persistDiscovery(ctx context.Context, source tool.Source, manifest *tool.ToolManifest) (bool, error) {
	hash, err := openapi.StableHash(manifest.Tools)
	if err != nil {
		return false, fmt.Errorf("failed to hash manifest: %w", err)
	}
	manifest.SourceHash = hash

	stored, err := d.store.GetArtifact(ctx, source.WorkspaceID, source.ID)
	if err != nil && !errors.Is(err, openapi.ErrArtifactNotFound) {
		return false, fmt.Errorf("failed to load stored artifact: %w", err)
	}
	if stored != nil && stored.SourceHash == hash {
		return true, nil
	}

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return false, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	now := time.Now().UTC()
	artifact := &tool.ToolArtifact{
		ID:           uuid.NewString(),
		WorkspaceID:  source.WorkspaceID,
		SourceID:     source.ID,
		SourceHash:   hash,
		ToolCount:    len(manifest.Tools),
		ManifestJSON: manifestJSON,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if stored != nil {
		artifact.ID = stored.ID
		artifact.CreatedAt = stored.CreatedAt
	}
	if err := d.store.UpsertArtifact(ctx, artifact); err != nil {
		return false, err
	}
	return false, nil
}
