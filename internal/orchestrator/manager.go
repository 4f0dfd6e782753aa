package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"scenegen/internal/assetstore"
	"scenegen/internal/logging"
	"scenegen/internal/metrics"
	"scenegen/internal/notifications"
	"scenegen/internal/services"
	"scenegen/internal/store"
	"scenegen/internal/workdir"
)

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logging.NewComponentLogger(logger, "orchestrator")
		}
	}
}

// WithMetrics records active scene counts on reg.
func WithMetrics(reg *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = reg }
}

// WithNotifier publishes scene lifecycle events.
func WithNotifier(n notifications.Service) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithArchive copies every assembled scene to an asset store.
func WithArchive(archive assetstore.Store) Option {
	return func(m *Manager) { m.archive = archive }
}

// Manager coordinates scene generation, manual retries, and assembly.
type Manager struct {
	store     *store.Store
	generator ShotGenerator
	assembler SceneAssembler
	settings  Settings
	archive   assetstore.Store
	notifier  notifications.Service
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	base    context.Context
	cancel  context.CancelFunc
	runs    map[int64]*run
	wg      sync.WaitGroup
}

// New constructs a Manager. Start must be called before scenes can run.
func New(st *store.Store, generator ShotGenerator, asm SceneAssembler, settings Settings, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		generator: generator,
		assembler: asm,
		settings:  settings,
		notifier:  notifications.NewService(nil),
		logger:    logging.NewNop(),
		runs:      make(map[int64]*run),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start reclaims scenes interrupted by a previous process and enables
// background runs. Runs inherit ctx; Stop cancels them.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("orchestrator already running")
	}
	m.mu.Unlock()

	reclaimed, err := m.store.ReclaimInterrupted(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransient, "orchestrator", "start", "reclaim interrupted scenes", err)
	}
	if reclaimed > 0 {
		logging.WarnWithContext(m.logger, "reclaimed interrupted scenes", "scene_reclaimed",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldImpact, "interrupted scenes were marked failed and can be restarted"),
		)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("orchestrator already running")
	}
	m.base, m.cancel = context.WithCancel(ctx)
	m.running = true
	return nil
}

// Stop cancels every active run and waits for them to persist their state.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// CancelScene requests cooperative cancellation of a scene's active run. The
// run stops before its next attempt or shot; a backend job already in flight
// receives a best-effort cancel.
func (m *Manager) CancelScene(sceneID int64) error {
	m.mu.Lock()
	r := m.runs[sceneID]
	m.mu.Unlock()
	if r == nil {
		return services.Wrap(services.ErrConflict, "orchestrator", "cancel",
			fmt.Sprintf("scene %d is not running", sceneID), nil)
	}
	r.cancel()
	m.logger.Info("scene cancellation requested",
		logging.Int64(logging.FieldSceneID, sceneID),
		logging.String("run_id", r.id),
		logging.String("run_kind", r.kind),
	)
	return nil
}

// Wait blocks until the scene has no active run or ctx is done.
func (m *Manager) Wait(ctx context.Context, sceneID int64) error {
	m.mu.Lock()
	r := m.runs[sceneID]
	m.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveScenes returns the IDs of scenes with a background run.
func (m *Manager) ActiveScenes() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	return ids
}

// claim registers a run for sceneID. Only one run per scene may exist.
func (m *Manager) claim(parent context.Context, sceneID int64, kind string) (*run, context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil, nil, services.Wrap(services.ErrConfiguration, "orchestrator", kind, "orchestrator not started", nil)
	}
	if existing := m.runs[sceneID]; existing != nil {
		return nil, nil, services.Wrap(services.ErrConflict, "orchestrator", kind,
			fmt.Sprintf("scene %d already has an active %s run", sceneID, existing.kind), nil)
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
		unlink = func() bool { return false }
	)
	if parent == nil {
		ctx, cancel = context.WithCancel(m.base)
	} else {
		// Caller-scoped runs still stop with the manager.
		ctx, cancel = context.WithCancel(parent)
		unlink = context.AfterFunc(m.base, cancel)
	}
	r := &run{id: uuid.NewString(), kind: kind, cancel: cancel, unlink: unlink, done: make(chan struct{})}
	m.runs[sceneID] = r
	m.wg.Add(1)
	m.metrics.SetActiveScenes(len(m.runs))
	return r, ctx, nil
}

func (m *Manager) release(sceneID int64, r *run) {
	m.mu.Lock()
	if m.runs[sceneID] == r {
		delete(m.runs, sceneID)
	}
	m.metrics.SetActiveScenes(len(m.runs))
	m.mu.Unlock()
	r.unlink()
	r.cancel()
	close(r.done)
	m.wg.Done()
}

func (m *Manager) activeRun(sceneID int64) *run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[sceneID]
}

func (m *Manager) sceneWorkDir(sceneID int64) string {
	return workdir.SceneDir(m.settings.WorkDir, sceneID)
}

func (m *Manager) sceneContext(ctx context.Context, sceneID int64, r *run) context.Context {
	ctx = services.WithSceneID(ctx, sceneID)
	if r != nil {
		ctx = services.WithRequestID(ctx, r.id)
	}
	return ctx
}

func (m *Manager) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := m.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

// storeError classifies store failures onto the service taxonomy.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return services.Wrap(services.ErrNotFound, "orchestrator", op, "", err)
	case errors.Is(err, store.ErrStatusMismatch), errors.Is(err, store.ErrInvalidTransition):
		return services.Wrap(services.ErrConflict, "orchestrator", op, "", err)
	default:
		return services.Wrap(services.ErrTransient, "orchestrator", op, "store access failed", err)
	}
}
