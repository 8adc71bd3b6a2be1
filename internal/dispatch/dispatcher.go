// Package dispatch finds pending documents whose approver has not been told
// yet, sends each one a snapshot with action links, and records delivery.
//
// Delivery is at-least-once. The notified flag is set only after a
// successful send, with a conditional write, so a crash between send and mark
// produces one duplicate next cycle and never a lost notification.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"approvals/internal/audit"
	"approvals/internal/dispatch/metrics"
	"approvals/internal/document/models"
	"approvals/internal/platform/config"
	"approvals/internal/snapshot"
	"approvals/pkg/requestcontext"
)

// Store is the subset of the document store the dispatcher needs.
type Store interface {
	ListDispatchable(ctx context.Context, kinds []models.Kind, after models.ScanCursor, limit int) ([]*models.Document, error)
	MarkNotified(ctx context.Context, id string, now time.Time) (bool, error)
}

type Renderer interface {
	Render(ctx context.Context, doc *models.Document) (*snapshot.Artifact, error)
}

type Notifier interface {
	Notify(ctx context.Context, doc *models.Document, artifact *snapshot.Artifact) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ErrNoKindsEnabled is returned by New when every descriptor is disabled.
var ErrNoKindsEnabled = errors.New("no document kinds enabled for dispatch")

// maxScanPages bounds the store reads of one cycle. A cycle that hits it
// resumes from its cursor next time.
const maxScanPages = 10

// Settings are the dispatcher's tunables.
type Settings struct {
	PollInterval  time.Duration
	Workers       int
	BatchSize     int
	StoreTimeout  time.Duration
	RenderTimeout time.Duration
	SendTimeout   time.Duration
}

// SettingsFromConfig copies the dispatch tunables out of process config.
func SettingsFromConfig(cfg config.Dispatch) Settings {
	return Settings{
		PollInterval:  cfg.PollInterval,
		Workers:       cfg.Workers,
		BatchSize:     cfg.BatchSize,
		StoreTimeout:  cfg.StoreTimeout,
		RenderTimeout: cfg.RenderTimeout,
		SendTimeout:   cfg.SendTimeout,
	}
}

func (s Settings) withDefaults() Settings {
	if s.PollInterval <= 0 {
		s.PollInterval = 60 * time.Second
	}
	if s.Workers < 1 {
		s.Workers = 4
	}
	if s.BatchSize < 1 {
		s.BatchSize = 200
	}
	if s.StoreTimeout <= 0 {
		s.StoreTimeout = 5 * time.Second
	}
	if s.RenderTimeout <= 0 {
		s.RenderTimeout = 10 * time.Second
	}
	if s.SendTimeout <= 0 {
		s.SendTimeout = 30 * time.Second
	}
	return s
}

// CycleResult summarises one dispatch cycle.
type CycleResult struct {
	CycleID         string
	Skipped         bool
	Scanned         int
	Ineligible      int
	Notified        int
	AlreadyNotified int
	RenderFailed    int
	SendFailed      int
	MarkFailed      int
}

// Failed is the number of documents left for the next cycle.
func (r CycleResult) Failed() int {
	return r.RenderFailed + r.SendFailed + r.MarkFailed
}

type Dispatcher struct {
	store    Store
	renderer Renderer
	notifier Notifier
	kinds    []models.Kind
	settings Settings

	lease    Lease
	auditor  AuditPublisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	newID    func() string
	clock    func() time.Time
	cycleMux sync.Mutex
	// resume is where the next cycle's scan starts; guarded by cycleMux.
	resume models.ScanCursor
}

type Option func(*Dispatcher)

func WithLease(l Lease) Option {
	return func(d *Dispatcher) {
		d.lease = l
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(d *Dispatcher) {
		d.auditor = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

// WithClock fixes the time stamped on each cycle (tests).
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.clock = now
	}
}

// WithCycleIDGenerator overrides cycle ID generation (tests).
func WithCycleIDGenerator(gen func() string) Option {
	return func(d *Dispatcher) {
		d.newID = gen
	}
}

// New builds a dispatcher polling the enabled kinds in descriptors. The
// descriptor slice is copied; later changes to it have no effect.
func New(st Store, renderer Renderer, notifier Notifier, descriptors []config.KindDescriptor, settings Settings, opts ...Option) (*Dispatcher, error) {
	var kinds []models.Kind
	for _, name := range config.EnabledKinds(descriptors) {
		kind, err := models.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("dispatch kind: %w", err)
		}
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		return nil, ErrNoKindsEnabled
	}

	d := &Dispatcher{
		store:    st,
		renderer: renderer,
		notifier: notifier,
		kinds:    kinds,
		settings: settings.withDefaults(),
		lease:    NoopLease{},
		newID:    uuid.NewString,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("approvals/internal/dispatch")
	}
	return d, nil
}

// Kinds returns the kinds this dispatcher polls.
func (d *Dispatcher) Kinds() []models.Kind {
	return append([]models.Kind(nil), d.kinds...)
}

// Run executes one cycle immediately and then one per poll interval until
// ctx is cancelled. Cycles run in this goroutine so they never overlap. A
// cycle in flight when ctx is cancelled runs to completion.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.settings.PollInterval)
	defer ticker.Stop()

	d.logger.InfoContext(ctx, "dispatcher started",
		"poll_interval", d.settings.PollInterval.String(),
		"workers", d.settings.Workers,
		"kinds", d.kinds,
	)

	for {
		if ctx.Err() != nil {
			break
		}
		if _, err := d.RunCycle(context.WithoutCancel(ctx)); err != nil {
			d.logger.ErrorContext(ctx, "dispatch cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}

	d.logger.InfoContext(ctx, "dispatcher stopped")
	return nil
}

// RunCycle scans for dispatchable documents and notifies each one. A scan
// failure aborts the cycle and is returned. Per-document failures are logged,
// counted and left for the next cycle.
func (d *Dispatcher) RunCycle(ctx context.Context) (CycleResult, error) {
	d.cycleMux.Lock()
	defer d.cycleMux.Unlock()

	start := time.Now()
	result := CycleResult{CycleID: d.newID()}
	ctx = requestcontext.WithCycleID(ctx, result.CycleID)
	ctx = requestcontext.WithTime(ctx, d.clock())

	ctx, span := d.tracer.Start(ctx, "dispatch.cycle",
		trace.WithAttributes(attribute.String("cycle_id", result.CycleID)))
	defer span.End()

	release, acquired, err := d.acquireLease(ctx)
	if !acquired {
		result.Skipped = true
		d.incrementCycle(metrics.CycleSkipped)
		span.SetAttributes(attribute.Bool("skipped", true))
		d.logger.DebugContext(ctx, "dispatch lease held elsewhere, skipping cycle", "cycle_id", result.CycleID)
		return result, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.settings.StoreTimeout)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			d.logger.WarnContext(ctx, "failed to release dispatch lease", "error", err)
		}
	}()

	docs, err := d.scan(ctx, &result)
	if err != nil {
		d.incrementCycle(metrics.CycleScanFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return result, err
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.settings.Workers)
	for _, doc := range docs {
		g.Go(func() error {
			outcome := d.process(ctx, doc)
			mu.Lock()
			result.record(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	d.incrementCycle(metrics.CycleCompleted)
	if d.metrics != nil {
		d.metrics.ObserveCycle(start)
	}
	span.SetAttributes(
		attribute.Int("scanned", result.Scanned),
		attribute.Int("notified", result.Notified),
		attribute.Int("failed", result.Failed()),
	)

	level := slog.LevelDebug
	if result.Notified > 0 || result.Failed() > 0 {
		level = slog.LevelInfo
	}
	d.logger.Log(ctx, level, "dispatch cycle completed",
		"cycle_id", result.CycleID,
		"scanned", result.Scanned,
		"ineligible", result.Ineligible,
		"notified", result.Notified,
		"already_notified", result.AlreadyNotified,
		"render_failed", result.RenderFailed,
		"send_failed", result.SendFailed,
		"mark_failed", result.MarkFailed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// acquireLease treats a lease backend error as "proceed": the lease only
// saves duplicate scans, and the atomic mark still holds without it.
func (d *Dispatcher) acquireLease(ctx context.Context) (func(context.Context) error, bool, error) {
	leaseCtx, cancel := context.WithTimeout(ctx, d.settings.StoreTimeout)
	defer cancel()
	release, acquired, err := d.lease.Acquire(leaseCtx)
	if err != nil {
		d.logger.WarnContext(ctx, "dispatch lease unavailable, continuing without it", "error", err)
		return func(context.Context) error { return nil }, true, nil
	}
	return release, acquired, nil
}

// scan pages through candidates in (created_at, id) order until BatchSize
// eligible documents are collected or the candidates run out, so rows with an
// unusable contact never fill the batch. A full batch leaves the cursor for
// the next cycle to resume from; reaching the end of the candidates resets it
// to the oldest document. Documents that fail every cycle therefore cannot
// keep the ones behind them waiting.
func (d *Dispatcher) scan(ctx context.Context, result *CycleResult) ([]*models.Document, error) {
	limit := d.settings.BatchSize
	cursor := d.resume
	var batch []*models.Document
	for page := 0; page < maxScanPages; page++ {
		docs, err := d.readPage(ctx, cursor, limit)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			cursor = models.CursorAfter(doc)
			result.Scanned++
			if !doc.DispatchEligible() {
				result.Ineligible++
				d.incrementDocument(doc.Kind, metrics.OutcomeIneligible)
				d.logger.DebugContext(ctx, "skipping document with unusable approver contact",
					"document_id", doc.ID,
					"kind", string(doc.Kind),
				)
				continue
			}
			batch = append(batch, doc)
			if len(batch) == limit {
				d.resume = cursor
				return batch, nil
			}
		}
		if len(docs) < limit {
			d.resume = models.ScanCursor{}
			return batch, nil
		}
	}
	d.resume = cursor
	return batch, nil
}

func (d *Dispatcher) readPage(ctx context.Context, after models.ScanCursor, limit int) ([]*models.Document, error) {
	scanCtx, cancel := context.WithTimeout(ctx, d.settings.StoreTimeout)
	defer cancel()
	docs, err := d.store.ListDispatchable(scanCtx, d.kinds, after, limit)
	if err != nil {
		return nil, fmt.Errorf("scan dispatchable documents: %w", err)
	}
	return docs, nil
}

func (d *Dispatcher) process(ctx context.Context, doc *models.Document) string {
	ctx, span := d.tracer.Start(ctx, "dispatch.document", trace.WithAttributes(
		attribute.String("document_id", doc.ID),
		attribute.String("kind", string(doc.Kind)),
	))
	defer span.End()

	start := time.Now()
	outcome, err := d.deliver(ctx, doc)
	if d.metrics != nil && outcome != metrics.OutcomeRenderFailed {
		d.metrics.ObserveSend(start)
	}
	d.incrementDocument(doc.Kind, outcome)
	span.SetAttributes(attribute.String("outcome", outcome))

	switch outcome {
	case metrics.OutcomeNotified:
		d.logger.InfoContext(ctx, "approver notified",
			"document_id", doc.ID,
			"kind", string(doc.Kind),
		)
		d.logAudit(ctx, doc, audit.EventDocumentNotified, nil)
	case metrics.OutcomeAlreadyNotified:
		d.logger.InfoContext(ctx, "document already marked notified by another dispatcher",
			"document_id", doc.ID,
		)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		level := slog.LevelWarn
		if outcome == metrics.OutcomeMarkFailed {
			// Sent but not recorded: the approver will get a duplicate.
			level = slog.LevelError
		}
		d.logger.Log(ctx, level, "dispatch failed",
			"document_id", doc.ID,
			"kind", string(doc.Kind),
			"outcome", outcome,
			"error", err,
		)
		d.logAudit(ctx, doc, audit.EventDocumentDispatchFailed, err)
	}
	return outcome
}

func (d *Dispatcher) deliver(ctx context.Context, doc *models.Document) (string, error) {
	renderCtx, cancel := context.WithTimeout(ctx, d.settings.RenderTimeout)
	artifact, err := d.renderer.Render(renderCtx, doc)
	cancel()
	if err != nil {
		return metrics.OutcomeRenderFailed, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.settings.SendTimeout)
	err = d.notifier.Notify(sendCtx, doc, artifact)
	cancel()
	if err != nil {
		return metrics.OutcomeSendFailed, err
	}

	markCtx, cancel := context.WithTimeout(ctx, d.settings.StoreTimeout)
	defer cancel()
	flipped, err := d.store.MarkNotified(markCtx, doc.ID, requestcontext.Now(ctx))
	if err != nil {
		return metrics.OutcomeMarkFailed, err
	}
	if !flipped {
		return metrics.OutcomeAlreadyNotified, nil
	}
	return metrics.OutcomeNotified, nil
}

func (r *CycleResult) record(outcome string) {
	switch outcome {
	case metrics.OutcomeNotified:
		r.Notified++
	case metrics.OutcomeAlreadyNotified:
		r.AlreadyNotified++
	case metrics.OutcomeRenderFailed:
		r.RenderFailed++
	case metrics.OutcomeSendFailed:
		r.SendFailed++
	case metrics.OutcomeMarkFailed:
		r.MarkFailed++
	}
}

func (d *Dispatcher) incrementCycle(outcome string) {
	if d.metrics != nil {
		d.metrics.IncrementCycle(outcome)
	}
}

func (d *Dispatcher) incrementDocument(kind models.Kind, outcome string) {
	if d.metrics != nil {
		d.metrics.IncrementDocument(string(kind), outcome)
	}
}

func (d *Dispatcher) logAudit(ctx context.Context, doc *models.Document, eventType audit.EventType, cause error) {
	if d.auditor == nil {
		return
	}
	event := audit.Event{
		Type:       eventType,
		DocumentID: doc.ID,
		Kind:       string(doc.Kind),
		Status:     string(doc.Status),
		Approver:   doc.ApproverContact,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if err := d.auditor.Emit(ctx, event); err != nil {
		d.logger.WarnContext(ctx, "failed to emit audit event",
			"event", string(eventType),
			"document_id", doc.ID,
			"error", err,
		)
	}
}
