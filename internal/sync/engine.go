package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/dsiportal/placement-sync/internal/config"
	"github.com/dsiportal/placement-sync/internal/connection"
	"github.com/dsiportal/placement-sync/internal/feedback"
	"github.com/dsiportal/placement-sync/internal/otel"
	"github.com/dsiportal/placement-sync/internal/portal"
	"github.com/dsiportal/placement-sync/internal/remote"
	"github.com/dsiportal/placement-sync/internal/status"
	"github.com/dsiportal/placement-sync/internal/telemetry"
)

// TracerName is the name of the tracer used by the engine
const TracerName = "github.com/dsiportal/placement-sync/sync"

// Source identifies what caused a state replacement.
type Source string

const (
	// SourceInitialLoad is the document read by InitialLoad or Retry
	SourceInitialLoad Source = "initial-load"
	// SourceSnapshot is a document delivered by the subscription
	SourceSnapshot Source = "snapshot"
	// SourceCleared is a subscription delivery with no document
	SourceCleared Source = "cleared"
	// SourceReset is the empty state installed after a failed load
	SourceReset Source = "reset"
)

// Replacement describes one wholesale replacement of the state.
type Replacement struct {
	Source Source
	// Previous holds the notifications before the replacement
	Previous []portal.Notification
	// Current holds the notifications after the replacement, newest first
	Current []portal.Notification
}

// ReplaceObserver is called after every replacement. Observers run one at a
// time in delivery order and may read or update the state, but must not
// block for long.
type ReplaceObserver func(ctx context.Context, r Replacement)

// Engine synchronizes a portal.State with one remote document.
type Engine struct {
	store   remote.Store
	state   *portal.State
	path    string
	monitor *connection.Monitor

	messenger   feedback.Messenger
	persistence status.Persistence
	metrics     *telemetry.SyncMetrics
	tracer      trace.Tracer

	readyTimeout          time.Duration
	reconnectDelay        time.Duration
	resubscribeMaxElapsed time.Duration
	persistTimeout        time.Duration

	mu            gosync.Mutex
	phase         status.SyncPhase
	syncStatus    status.SyncStatus
	subscriptions []remote.Unsubscribe
	observers     []ReplaceObserver
	persistFailed bool
	// loaded is false until a document is installed and again after a reset
	loaded        bool
	rearming      bool
	stopped       bool
	baseCtx       context.Context

	// applyMu serializes replacements and observer runs
	applyMu gosync.Mutex
	// saveMu serializes status saves
	saveMu gosync.Mutex

	wg         gosync.WaitGroup
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option configures an Engine
type Option func(*Engine)

// WithMonitor reports errors and recoveries to m and re-arms the
// subscription when m reports the network is back.
func WithMonitor(m *connection.Monitor) Option {
	return func(e *Engine) {
		e.monitor = m
	}
}

// WithMessenger sets where user-visible failures are shown
func WithMessenger(m feedback.Messenger) Option {
	return func(e *Engine) {
		e.messenger = m
	}
}

// WithStatusPersistence records the sync status after every change
func WithStatusPersistence(p status.Persistence) Option {
	return func(e *Engine) {
		e.persistence = p
	}
}

// WithSyncMetrics sets the metrics for the engine
func WithSyncMetrics(m *telemetry.SyncMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer sets the tracer for the engine
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithSyncConfig applies the timing settings from cfg
func WithSyncConfig(cfg *config.SyncConfig) Option {
	return func(e *Engine) {
		e.readyTimeout = cfg.GetReadyTimeout()
		e.reconnectDelay = cfg.GetReconnectDelay()
		e.resubscribeMaxElapsed = cfg.GetResubscribeMaxElapsed()
		e.persistTimeout = cfg.GetPersistTimeout()
	}
}

// WithReadyTimeout overrides the readiness timeout
func WithReadyTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.readyTimeout = d
	}
}

// WithReconnectDelay overrides the delay before re-arming the subscription
func WithReconnectDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.reconnectDelay = d
	}
}

// NewEngine creates an engine mirroring the document at path.
func NewEngine(store remote.Store, state *portal.State, path string, opts ...Option) *Engine {
	var nilCfg *config.SyncConfig
	e := &Engine{
		store:                 store,
		state:                 state,
		path:                  path,
		messenger:             feedback.LogMessenger{},
		readyTimeout:          nilCfg.GetReadyTimeout(),
		reconnectDelay:        nilCfg.GetReconnectDelay(),
		resubscribeMaxElapsed: nilCfg.GetResubscribeMaxElapsed(),
		persistTimeout:        nilCfg.GetPersistTimeout(),
		phase:                 status.SyncPhaseUninitialized,
		baseCtx:               context.Background(),
		done:                  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.syncStatus = status.SyncStatus{Phase: e.phase, DocumentPath: path}
	return e
}

// State returns the state the engine mirrors into.
func (e *Engine) State() *portal.State {
	return e.state
}

// DocumentPath returns the mirrored document path.
func (e *Engine) DocumentPath() string {
	return e.path
}

// Phase returns the current phase.
func (e *Engine) Phase() status.SyncPhase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Status returns a copy of the current sync status.
func (e *Engine) Status() *status.SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncStatus.Clone()
}

// Loaded reports whether the state holds a loaded document that may be
// written back.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// OnReplace registers an observer for state replacements.
func (e *Engine) OnReplace(obs ReplaceObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, obs)
}

// Start loads the document, subscribes to it and re-arms the subscription
// on reconnects until ctx is cancelled. A failed initial load is reported
// but does not stop the engine; Retry can recover it.
func (e *Engine) Start(ctx context.Context) error {
	slog.Info("Starting sync engine", "path", e.path)

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelFunc = cancel
	e.baseCtx = runCtx
	e.mu.Unlock()
	defer func() {
		e.shutdown()
		close(e.done)
		slog.Info("Sync engine stopped", "path", e.path)
	}()

	if e.monitor != nil {
		remove := e.monitor.OnChange(e.onConnectionChange)
		defer remove()
	}

	e.restoreStatus(runCtx)
	if err := e.InitialLoad(runCtx); err == nil {
		if err := e.SubscribeAndReplace(runCtx); err != nil {
			slog.Error("Failed to subscribe to document", "path", e.path, "error", err)
		}
	} else {
		slog.Error("Initial load failed", "path", e.path, "error", err)
	}

	<-runCtx.Done()
	return nil
}

// Stop cancels Start and waits for it to return.
func (e *Engine) Stop() error {
	e.mu.Lock()
	cancel := e.cancelFunc
	e.mu.Unlock()
	if cancel != nil {
		slog.Info("Stopping sync engine", "path", e.path)
		cancel()
		<-e.done
	}
	return nil
}

func (e *Engine) shutdown() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	e.wg.Wait()

	e.mu.Lock()
	subs := e.subscriptions
	e.subscriptions = nil
	e.mu.Unlock()
	for _, unsubscribe := range subs {
		unsubscribe()
	}
}

// InitialLoad waits for the backend and replaces the state with the stored
// document. A missing document yields empty collections. If the backend
// cannot be read the state is reset to empty defaults, the failure is shown
// to the user and returned; nothing is retried.
func (e *Engine) InitialLoad(ctx context.Context) error {
	ctx, span := otel.StartSpan(ctx, e.tracer, "sync.InitialLoad",
		trace.WithAttributes(otel.AttrDocumentPath.String(e.path)))
	defer span.End()

	now := time.Now()
	e.setPhase(status.SyncPhaseConnecting, "Waiting for backend")
	e.updateStatus(func(s *status.SyncStatus) {
		s.LastAttempt = &now
		s.AttemptCount++
	})

	start := time.Now()
	err := e.load(ctx)
	e.metrics.RecordOperation(ctx, telemetry.OperationLoad, time.Since(start), err == nil)
	if err != nil {
		otel.RecordError(span, err)
		return err
	}
	return nil
}

func (e *Engine) load(ctx context.Context) error {
	if err := e.waitReady(ctx); err != nil {
		serr := classify("connect to backend", err)
		if errors.Is(err, ErrReadyTimeout) {
			e.setPhase(status.SyncPhaseFailed, serr.Message)
		} else {
			e.setPhase(status.SyncPhaseConnecting, serr.Message)
		}
		e.replace(ctx, portal.Document{}, SourceReset)
		e.fail(ctx, "Could not connect to the database. Please retry", serr)
		return serr
	}

	readCtx, cancel := context.WithTimeout(ctx, e.persistTimeout)
	defer cancel()
	data, err := e.store.Read(readCtx, e.path)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		slog.Info("No document found, starting empty", "path", e.path)
		e.replace(ctx, portal.Document{}, SourceInitialLoad)
	case err != nil:
		serr := classify("load data", err)
		e.setPhase(status.SyncPhaseConnecting, serr.Message)
		e.replace(ctx, portal.Document{}, SourceReset)
		e.fail(ctx, "Failed to load data", serr)
		return serr
	default:
		e.metrics.RecordDocumentBytes(ctx, len(data))
		doc, decodeErr := portal.DecodeDocument(data)
		if decodeErr != nil {
			serr := &Error{Kind: KindInvalidDocument, Message: decodeErr.Error(), Err: decodeErr}
			e.setPhase(status.SyncPhaseConnecting, serr.Message)
			e.replace(ctx, portal.Document{}, SourceReset)
			e.fail(ctx, "Failed to load data", serr)
			return serr
		}
		e.replace(ctx, doc, SourceInitialLoad)
	}

	now := time.Now()
	e.updateStatus(func(s *status.SyncStatus) {
		s.LastLoadTime = &now
		s.AttemptCount = 0
	})
	e.setPhase(status.SyncPhaseReady, "Document loaded")
	if e.monitor != nil {
		e.monitor.ReportRecovered()
	}
	slog.Info("Document loaded", "path", e.path, "bytes", len(data))
	return nil
}

// waitReady blocks until the store is ready, the ready timeout passes or ctx
// is done.
func (e *Engine) waitReady(ctx context.Context) error {
	timer := time.NewTimer(e.readyTimeout)
	defer timer.Stop()
	select {
	case <-e.store.Ready():
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrReadyTimeout, e.readyTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry leaves the failed or connecting phase by loading and subscribing
// again. It is a no-op when the engine is ready.
func (e *Engine) Retry(ctx context.Context) error {
	if e.Phase() == status.SyncPhaseReady {
		return nil
	}
	slog.Info("Retrying sync", "path", e.path, "phase", e.Phase())
	if err := e.InitialLoad(ctx); err != nil {
		return err
	}
	return e.SubscribeAndReplace(e.runContext())
}

// Apply runs fn against the state without persisting. The change is only
// visible locally until the next Persist.
func (e *Engine) Apply(fn func(d *portal.Data) error) error {
	return e.state.Update(fn)
}

// Mutate applies fn and persists the result. If fn fails nothing is
// persisted. If the write fails the local change is kept.
func (e *Engine) Mutate(ctx context.Context, fn func(d *portal.Data) error) error {
	if err := e.Apply(fn); err != nil {
		return err
	}
	return e.Persist(ctx)
}

// Persist writes the whole current state to the document, replacing it.
// It refuses with ErrNotLoaded until a document has been loaded, and after a
// failed load, since the state then holds empty defaults rather than the
// stored data. Failures are shown to the user and returned.
func (e *Engine) Persist(ctx context.Context) error {
	ctx, span := otel.StartSpan(ctx, e.tracer, "sync.Persist",
		trace.WithAttributes(otel.AttrDocumentPath.String(e.path)))
	defer span.End()

	if !e.Loaded() {
		serr := &Error{Kind: KindNotLoaded, Message: "failed to save data: " + ErrNotLoaded.Error(), Err: ErrNotLoaded}
		otel.RecordError(span, serr)
		e.fail(ctx, "Changes kept locally until data is loaded. Please retry", serr)
		return serr
	}

	data, err := e.state.Document().Encode()
	if err != nil {
		otel.RecordError(span, err)
		return &Error{Kind: KindInvalidDocument, Message: err.Error(), Err: err}
	}
	span.SetAttributes(otel.AttrDocumentBytes.Int(len(data)))

	writeCtx, cancel := context.WithTimeout(ctx, e.persistTimeout)
	defer cancel()

	start := time.Now()
	err = e.store.Write(writeCtx, e.path, data)
	e.metrics.RecordOperation(ctx, telemetry.OperationPersist, time.Since(start), err == nil)

	if err != nil {
		serr := classify("save data", err)
		otel.RecordError(span, serr)
		e.mu.Lock()
		e.persistFailed = true
		e.mu.Unlock()
		e.updateStatus(func(s *status.SyncStatus) {
			s.LastPersistError = serr.Message
		})
		e.fail(ctx, "Failed to save data", serr)
		return serr
	}

	e.metrics.RecordDocumentBytes(ctx, len(data))
	now := time.Now()
	e.mu.Lock()
	recovered := e.persistFailed
	e.persistFailed = false
	e.mu.Unlock()
	e.updateStatus(func(s *status.SyncStatus) {
		s.LastPersistTime = &now
		s.LastPersistError = ""
	})
	if recovered && e.monitor != nil {
		e.monitor.ReportRecovered()
	}
	slog.Debug("Document persisted", "path", e.path, "bytes", len(data))
	return nil
}

// SubscribeAndReplace registers a subscription that replaces the state on
// every delivered snapshot. The subscription lives until Stop, even if
// SubscribeAndReplace is called again.
func (e *Engine) SubscribeAndReplace(ctx context.Context) error {
	unsubscribe, err := e.store.Subscribe(ctx, e.path, e.onSnapshot, e.onSubscriptionError)
	if err != nil {
		serr := classify("subscribe to document", err)
		if e.monitor != nil {
			e.monitor.ReportError(serr)
		}
		return serr
	}

	e.mu.Lock()
	e.subscriptions = append(e.subscriptions, unsubscribe)
	count := len(e.subscriptions)
	e.mu.Unlock()
	slog.Info("Subscribed to document", "path", e.path, "subscriptions", count)
	return nil
}

func (e *Engine) onSnapshot(snap remote.Snapshot) {
	ctx, span := otel.StartSpan(e.runContext(), e.tracer, "sync.Snapshot",
		trace.WithAttributes(
			otel.AttrDocumentPath.String(e.path),
			otel.AttrDocumentBytes.Int(len(snap.Data)),
		))
	defer span.End()

	if !snap.Exists || len(snap.Data) == 0 {
		slog.Warn("Document removed remotely, clearing state", "path", e.path)
		e.replace(ctx, portal.Document{}, SourceCleared)
	} else {
		doc, err := portal.DecodeDocument(snap.Data)
		if err != nil {
			slog.Error("Ignoring undecodable snapshot", "path", e.path, "error", err)
			serr := &Error{Kind: KindInvalidDocument, Message: err.Error(), Err: err}
			otel.RecordError(span, serr)
			if e.monitor != nil {
				e.monitor.ReportError(serr)
			}
			return
		}
		e.metrics.RecordDocumentBytes(ctx, len(snap.Data))
		e.replace(ctx, doc, SourceSnapshot)
	}

	now := time.Now()
	e.updateStatus(func(s *status.SyncStatus) {
		s.LastSnapshotTime = &now
		s.SnapshotCount++
	})

	if e.Phase() == status.SyncPhaseConnecting && remote.IsReady(e.store) {
		e.setPhase(status.SyncPhaseReady, "Subscription delivering")
		if e.monitor != nil {
			e.monitor.ReportRecovered()
		}
	}
}

func (e *Engine) onSubscriptionError(err error) {
	serr := classify("receive updates", err)
	slog.Warn("Subscription error", "path", e.path, "error", serr)
	if e.Phase() == status.SyncPhaseReady {
		e.setPhase(status.SyncPhaseConnecting, serr.Message)
	}
	if e.monitor != nil {
		e.monitor.ReportError(serr)
	}
	if e.messenger != nil {
		e.messenger.Show(e.runContext(), "Realtime sync interrupted: "+serr.Message,
			feedback.LevelWarning, feedback.DefaultDuration)
	}
}

// replace swaps the state for doc and notifies observers.
func (e *Engine) replace(ctx context.Context, doc portal.Document, source Source) {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	var previous, current []portal.Notification
	_ = e.state.Update(func(d *portal.Data) error {
		previous = slices.Clone(d.Notifications)
		d.ReplaceFrom(doc)
		current = slices.Clone(d.Notifications)
		return nil
	})
	e.metrics.RecordSnapshot(ctx, string(source))

	e.mu.Lock()
	e.loaded = source != SourceReset
	observers := slices.Clone(e.observers)
	e.mu.Unlock()

	otel.Annotate(ctx,
		otel.AttrSnapshotSource.String(string(source)),
		otel.AttrResultCount.Int(len(current)),
	)

	r := Replacement{Source: source, Previous: previous, Current: current}
	for _, obs := range observers {
		obs(ctx, r)
	}
}

// onConnectionChange re-arms the subscription when the network comes back.
func (e *Engine) onConnectionChange(previous, current connection.Status) {
	switch {
	case current == connection.StatusOffline:
		if e.Phase() == status.SyncPhaseReady {
			e.setPhase(status.SyncPhaseConnecting, "Network offline")
		}
	case previous == connection.StatusOffline:
		e.scheduleRearm()
	}
}

func (e *Engine) scheduleRearm() {
	e.mu.Lock()
	phase := e.phase
	if e.stopped || e.rearming || phase == status.SyncPhaseFailed || phase == status.SyncPhaseUninitialized {
		e.mu.Unlock()
		return
	}
	e.rearming = true
	ctx := e.baseCtx
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			e.rearming = false
			e.mu.Unlock()
		}()
		e.rearm(ctx)
	}()
}

func (e *Engine) rearm(ctx context.Context) {
	timer := time.NewTimer(e.reconnectDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	slog.Info("Network restored, re-arming subscription", "path", e.path)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := e.SubscribeAndReplace(ctx)
		e.metrics.RecordResubscribe(ctx, err == nil)
		if err != nil {
			slog.Warn("Re-arming subscription failed", "path", e.path, "error", err)
			if KindOf(err) == KindPermissionDenied {
				return struct{}{}, backoff.Permanent(err)
			}
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(e.resubscribeMaxElapsed),
	)
	if err != nil {
		if ctx.Err() == nil {
			e.fail(ctx, "Could not restore realtime sync", classify("re-arm subscription", err))
		}
		return
	}
	if e.Phase() == status.SyncPhaseConnecting {
		e.setPhase(status.SyncPhaseReady, "Subscription re-armed")
	}
}

func (e *Engine) runContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseCtx
}

// fail shows err to the user and reports it to the monitor.
func (e *Engine) fail(ctx context.Context, prefix string, err *Error) {
	slog.Error(prefix, "path", e.path, "kind", string(err.Kind), "error", err.Err)
	if e.monitor != nil {
		e.monitor.ReportError(err)
	}
	feedback.Error(ctx, e.messenger, prefix, err)
}

func (e *Engine) setPhase(phase status.SyncPhase, message string) {
	e.mu.Lock()
	previous := e.phase
	e.phase = phase
	e.syncStatus.Phase = phase
	e.syncStatus.Message = message
	e.mu.Unlock()

	if previous != phase {
		slog.Info("Sync phase changed", "path", e.path, "previous", previous, "phase", phase)
	}
	e.saveStatus()
}

func (e *Engine) updateStatus(fn func(s *status.SyncStatus)) {
	e.mu.Lock()
	fn(&e.syncStatus)
	e.mu.Unlock()
	e.saveStatus()
}

// restoreStatus carries the history saved by the previous run into the
// current status.
func (e *Engine) restoreStatus(ctx context.Context) {
	if e.persistence == nil {
		return
	}
	prev, err := e.persistence.LoadStatus(ctx, e.path)
	if err != nil {
		slog.Warn("Failed to load saved sync status", "path", e.path, "error", err)
		return
	}
	e.mu.Lock()
	e.syncStatus.Carry(prev)
	e.mu.Unlock()
}

func (e *Engine) saveStatus() {
	if e.persistence == nil {
		return
	}
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	snapshot := e.syncStatus.Clone()
	e.mu.Unlock()

	if err := e.persistence.SaveStatus(context.Background(), e.path, snapshot); err != nil {
		slog.Warn("Failed to save sync status", "path", e.path, "error", err)
	}
}
